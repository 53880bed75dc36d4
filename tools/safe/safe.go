package safe

import (
	"fmt"
	"reflect"

	"PGateway/logger"
	"PGateway/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required fields during struct initialization.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func Go(log *zap.Logger, name string, f func()) {
	go Run(log, name, f)
}

// Run calls f and recovers from a panic, logging it. It returns the panic
// converted to an error, or nil.
func Run(log *zap.Logger, name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			logger.Or(log).Error("panic recovered", zap.String("task", name), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	f()
	return nil
}
