package rpc

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnknownService is returned by a gate asked to reach a service it has
// no address for.
var ErrUnknownService = errors.New("rpc: unknown service")

// RouteFunc serves one inbound route of the internal gate. A returned
// *errs.CodeError reaches the caller with its code; any other error is
// reported as an internal error.
type RouteFunc func(ctx context.Context, body json.RawMessage) (any, error)
