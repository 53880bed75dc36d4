package gate

import (
	"context"
	"encoding/json"
	"errors"
)

// Kind tags an Event.
type Kind uint8

const (
	KindOpen Kind = iota + 1
	KindMessage
	KindClose
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindMessage:
		return "message"
	case KindClose:
		return "close"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is either a lifecycle notification or one decoded inbound frame.
// Data is set only for KindMessage and always holds valid JSON.
type Event struct {
	Kind Kind
	Data json.RawMessage
}

// Peer identifies the socket an event belongs to.
type Peer struct {
	ChannelID string
	ClientIP  string
}

// Pipe writes v as one JSON frame to the socket it was issued for.
type Pipe func(v any) error

// Handler receives every event of every socket. Calls for one socket are
// sequential; calls for different sockets run concurrently.
type Handler func(ctx context.Context, peer Peer, ev Event, pipe Pipe) error

var (
	// ErrPipeClosed is returned by a Pipe whose socket is gone.
	ErrPipeClosed = errors.New("gate: pipe closed")
	// ErrEncode is returned by a Pipe when v could not be encoded. The
	// internal error frame has been written in its place.
	ErrEncode = errors.New("gate: encode frame")

	ErrStarted    = errors.New("gate: already started")
	ErrNilHandler = errors.New("gate: nil handler")
)
