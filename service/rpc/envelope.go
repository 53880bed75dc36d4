package rpc

import (
	"bytes"
	"encoding/json"

	"PGateway/tools/errs"
)

// Request is a client call: {id?, method, params?}.
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request. ID is echoed verbatim, including its JSON type.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *errs.CodeError `json:"error,omitempty"`
}

// Notification is a server initiated message. It never carries an id.
// Result and Error are relayed verbatim from the backend that pushed them.
type Notification struct {
	Method string          `json:"method"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Reply is the body a backend service answers with over the internal gate.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errs.CodeError `json:"error,omitempty"`
}

var nullJSON = []byte("null")

// Success builds {id, result}. A nil result is sent as null.
func Success(id json.RawMessage, result any) *Response {
	if result == nil {
		result = json.RawMessage(nullJSON)
	}
	return &Response{ID: id, Result: result}
}

// Failure builds {id, error}. Non CodeError errors become internal errors.
func Failure(id json.RawMessage, err error) *Response {
	ce, ok := errs.As(err)
	if !ok {
		ce = errs.ErrInternal
	}
	return &Response{ID: id, Error: &errs.CodeError{Code: ce.Code, Message: ce.Message}}
}

// Notify builds a one-way {method, params} message.
func Notify(method string, params any) *Notification {
	return &Notification{Method: method, Params: params}
}

// Response attaches id to a backend reply.
func (r *Reply) Response(id json.RawMessage) *Response {
	if r.Error != nil {
		return &Response{ID: id, Error: r.Error}
	}
	if len(r.Result) == 0 {
		return Success(id, nil)
	}
	return &Response{ID: id, Result: r.Result}
}

// InternalErrorFrame is the generic frame substituted whenever the real
// answer cannot be produced or serialised.
func InternalErrorFrame() []byte {
	return []byte(`{"id":null,"error":{"code":500,"message":"Internal server error"}}`)
}

// ParseRequest validates the envelope of a decoded frame. On failure it
// returns an InvalidRequest error together with whatever id could be read.
func ParseRequest(raw json.RawMessage) (*Request, json.RawMessage, *errs.CodeError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, nil, errs.ErrInvalidRequest.WithDetail("frame is not an object")
	}

	req := &Request{}
	if id, ok := fields["id"]; ok && !bytes.Equal(id, nullJSON) {
		if !validID(id) {
			return nil, nil, errs.ErrInvalidRequest.WithDetail("id must be a string or a number")
		}
		req.ID = id
	}

	m, ok := fields["method"]
	if !ok {
		return nil, req.ID, errs.ErrInvalidRequest.WithDetail("method is missing")
	}
	if err := json.Unmarshal(m, &req.Method); err != nil || req.Method == "" {
		return nil, req.ID, errs.ErrInvalidRequest.WithDetail("method must be a non-empty string")
	}

	if p, ok := fields["params"]; ok && !bytes.Equal(p, nullJSON) {
		req.Params = p
	}
	return req, req.ID, nil
}

func validID(id json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return false
	}
	switch v.(type) {
	case string, float64:
		return true
	}
	return false
}
