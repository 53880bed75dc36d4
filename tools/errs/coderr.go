package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CodeError is the error shape sent over the wire: {"code":..,"message":..}.
// Detail stays server side and only shows up in logs.
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"-"`
}

func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// WithDetail returns a copy carrying an extra detail string.
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Message: e.Message, Detail: d}
}

// WithDetailf is WithDetail with formatting.
func (e *CodeError) WithDetailf(format string, args ...any) *CodeError {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// Is reports whether err carries a CodeError with the same code.
func (e *CodeError) Is(err error) bool {
	ce, ok := As(err)
	if !ok {
		return false
	}
	if e == nil {
		return false
	}
	return e.Code == ce.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Message)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// As extracts the first CodeError found in err's chain.
func As(err error) (*CodeError, bool) {
	if err == nil {
		return nil, false
	}
	var ce *CodeError
	if errors.As(err, &ce) && ce != nil {
		return ce, true
	}
	return nil, false
}
