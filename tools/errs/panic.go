package errs

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrPanic turns a recovered panic value into an internal error.
func ErrPanic(r any) error {
	return ErrPanicMsg(r, ServerInternalError, "panic error")
}

func ErrPanicMsg(r any, code int, msg string) error {
	if r == nil {
		return nil
	}
	err := &CodeError{
		Code:    code,
		Message: msg,
		Detail:  fmt.Sprint(r),
	}
	return pkgerrors.WithStack(err)
}
