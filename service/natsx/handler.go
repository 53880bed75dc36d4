package natsx

import (
	"context"
	"time"

	"PGateway/tools/errs"

	"go.uber.org/zap"
)

// Message 统一消息对象
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Handler answers one inbound request.
type Handler func(ctx context.Context, msg Message) (any, error)

// Middleware 中间件（日志、恢复、去重）
type Middleware func(Handler) Handler

// Chain 组合中间件; the first middleware is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover turns a panic in the handler into an internal error reply.
func Recover(log *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in nats handler",
						zap.String("subject", msg.Subject),
						zap.Any("panic", r),
						zap.Stack("stack"))
					result, err = nil, errs.ErrPanic(r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// Logging logs every inbound request at debug level and failures at info.
func Logging(log *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (any, error) {
			start := time.Now()
			result, err := next(ctx, msg)
			fields := []zap.Field{
				zap.String("subject", msg.Subject),
				zap.Duration("took", time.Since(start)),
			}
			if err != nil {
				log.Info("nats request failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("nats request", fields...)
			}
			return result, err
		}
	}
}
