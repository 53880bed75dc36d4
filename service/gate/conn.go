package gate

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"PGateway/service/rpc"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// conn is the gateway side bookkeeping of one socket.
type conn struct {
	id string
	ip string
	ws *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	alive  atomic.Bool // traffic seen since the last sweep
	busy   atomic.Bool // a handler call is running
	local  atomic.Bool // terminated by the gateway (sweep or stop)
	closed atomic.Bool
}

func newConn(id, ip string, ws *websocket.Conn, writeTimeout time.Duration) *conn {
	c := &conn{id: id, ip: ip, ws: ws, writeTimeout: writeTimeout}
	c.alive.Store(true)
	return c
}

func (c *conn) touch() { c.alive.Store(true) }

func (c *conn) write(frame []byte) error {
	if c.closed.Load() {
		return ErrPipeClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// goingAway sends a best effort close frame before a local termination.
func (c *conn) goingAway(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
}

// terminate closes the socket without a handshake. local marks it as
// closed by the gateway so the read loop reports a normal close.
func (c *conn) terminate(local bool) {
	if local {
		c.local.Store(true)
	}
	c.closed.Store(true)
	_ = c.ws.Close()
}

func (c *conn) markClosed() { c.closed.Store(true) }

func (g *Gateway) pipeFor(c *conn) Pipe {
	return func(v any) error {
		frame, err := json.Marshal(v)
		if err != nil {
			g.log.Error("encode outbound frame", zap.String("channel_id", c.id), zap.Error(err))
			g.metrics.SerializationError()
			if werr := c.write(rpc.InternalErrorFrame()); werr != nil {
				return werr
			}
			return errors.Wrap(ErrEncode, err.Error())
		}
		return c.write(frame)
	}
}
