package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"PGateway/service/gate"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startGateway serves h.broker on a real socket with a fixed channel id.
func startGateway(t *testing.T, h *harness, heartbeat time.Duration, id string) *gate.Gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gate.New(gate.Config{ListenAddress: "127.0.0.1:0", HeartbeatInterval: heartbeat},
		gate.WithLogger(zap.NewNop()),
		gate.WithIDGenerator(func() string { return id }))
	require.NoError(t, g.Start(h.broker.Handle))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = g.Stop(ctx)
	})
	return g
}

func TestSilentChannelIsCleanedUp(t *testing.T) {
	h := newHarness(t, Config{})
	g := startGateway(t, h, 50*time.Millisecond, "ws-1")

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+g.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))

	var challenge struct {
		Method string `json:"method"`
		Params struct {
			Secret string `json:"secret"`
		} `json:"params"`
	}
	require.NoError(t, ws.ReadJSON(&challenge))
	assert.Equal(t, "sign", challenge.Method)
	assert.Equal(t, h.secret("ws-1"), challenge.Params.Secret)

	login := fmt.Sprintf(`{"id":1,"method":"authenticate","params":{"user":"alice","sign":%q}}`, h.sign("ws-1", "alice"))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(login)))
	var resp map[string]any
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, map[string]any{"status": "OK"}, resp["result"])

	info, ok := h.broker.Snapshot("ws-1")
	require.True(t, ok)
	assert.Equal(t, StateAuthenticated, info.State)

	// stop reading: pings go unanswered and the sweep drops the socket
	assert.Eventually(t, func() bool {
		_, ok := h.broker.Snapshot("ws-1")
		return !ok
	}, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(h.gate.history()) == 1 }, 3*time.Second, 10*time.Millisecond)
	h.wait()

	assert.Zero(t, g.Len())
	_, bound := h.dir.get("ws-1")
	assert.False(t, bound)
	calls := h.gate.history()
	require.Len(t, calls, 1)
	assert.Equal(t, "offline", calls[0].action)
	assert.JSONEq(t, `{"channelId":"ws-1","user":"alice"}`, string(calls[0].payload))
}
