package broker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"PGateway/service/gate"
	"PGateway/service/metrics"
	"PGateway/service/rpc"
	"PGateway/tools/errs"
	"PGateway/tools/safe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// routedCall is the body a backend receives for a client request.
type routedCall struct {
	ChannelID string          `json:"channelId"`
	RequestID json.RawMessage `json:"requestId"`
	User      string          `json:"user"`
	Params    json.RawMessage `json:"params"`
	Meta      callMeta        `json:"meta"`
}

type callMeta struct {
	ClientIP  string `json:"clientIp"`
	GatewayID string `json:"gatewayId"`
}

var emptyParams = json.RawMessage(`{}`)

// resolve splits method on the first delimiter into service and action.
// A method without a delimiter goes to the default service.
func (b *Broker) resolve(method string) (string, string, error) {
	i := strings.Index(method, b.cfg.MethodDelimiter)
	if i < 0 {
		if b.cfg.DefaultService == "" {
			return "", "", errs.ErrRouting.WithDetailf("no default service for %q", method)
		}
		return b.cfg.DefaultService, method, nil
	}
	service, action := method[:i], method[i+len(b.cfg.MethodDelimiter):]
	if service == "" || action == "" {
		return "", "", errs.ErrRouting.WithDetailf("malformed method %q", method)
	}
	return service, action, nil
}

// route forwards an authenticated request. The backend call runs on its own
// goroutine so later frames and the close of the channel are not held up.
func (b *Broker) route(ctx context.Context, c *Channel, req *rpc.Request, pipe gate.Pipe) error {
	if req.Method == MethodAuthenticate || req.Method == MethodResendChallenge {
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrMethodNotAllowed))
		return nil
	}

	service, action, err := b.resolve(req.Method)
	if err != nil {
		b.metrics.Request("", metrics.OutcomeUnroutable)
		b.reply(c, pipe, rpc.Failure(req.ID, err))
		return nil
	}

	_, _, user := c.snapshot()
	params := req.Params
	if len(params) == 0 {
		params = emptyParams
	}
	requestID := req.ID
	if requestID == nil {
		requestID = json.RawMessage("null")
	}
	call := routedCall{
		ChannelID: c.id,
		RequestID: requestID,
		User:      user,
		Params:    params,
		Meta:      callMeta{ClientIP: c.clientIP, GatewayID: b.cfg.NodeID},
	}

	// waits for a slot instead of dropping the request
	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.metrics.Request(service, metrics.OutcomeUnavailable)
		b.reply(c, pipe, rpc.Failure(req.ID, errs.ErrServiceUnavailable))
		return nil
	}
	b.wg.Add(1)
	callCtx := context.WithoutCancel(ctx)
	safe.Go(b.log, "route", func() {
		defer b.wg.Done()
		defer b.sem.Release(1)
		b.forward(callCtx, c, req.ID, service, action, call, pipe)
	})
	return nil
}

func (b *Broker) forward(ctx context.Context, c *Channel, id json.RawMessage, service, action string, call routedCall, pipe gate.Pipe) {
	log := b.log.With(
		zap.String("channel_id", c.id),
		zap.String("service", service),
		zap.String("action", action))

	start := time.Now()
	reply, err := b.gate.SendTo(ctx, service, action, call)
	b.metrics.BackendCall(service, time.Since(start))

	var resp *rpc.Response
	switch {
	case errors.Is(err, rpc.ErrUnknownService):
		b.metrics.Request(service, metrics.OutcomeUnroutable)
		resp = rpc.Failure(id, errs.ErrRouting.WithDetail(service))
	case err != nil:
		b.metrics.Request(service, metrics.OutcomeUnavailable)
		log.Warn("backend call failed", zap.Error(err))
		resp = rpc.Failure(id, errs.ErrServiceUnavailable)
	case reply == nil:
		b.metrics.Request(service, metrics.OutcomeUnavailable)
		log.Warn("backend returned no reply")
		resp = rpc.Failure(id, errs.ErrServiceUnavailable)
	default:
		outcome := metrics.OutcomeOK
		if reply.Error != nil {
			outcome = metrics.OutcomeError
		}
		b.metrics.Request(service, outcome)
		resp = reply.Response(id)
	}

	// the channel may have closed while the backend was working
	if !b.reg.holds(c) {
		log.Debug("drop reply for closed channel")
		return
	}
	b.reply(c, pipe, resp)
}
