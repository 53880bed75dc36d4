package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PGateway/service/metrics"
	"PGateway/service/rpc"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type seen struct {
	peer Peer
	ev   Event
	pipe Pipe
}

// recorder forwards every event to a channel and optionally reacts to it.
type recorder struct {
	events chan seen
	react  func(peer Peer, ev Event, pipe Pipe) error
}

func newRecorder(react func(Peer, Event, Pipe) error) *recorder {
	return &recorder{events: make(chan seen, 64), react: react}
}

func (r *recorder) handle(_ context.Context, peer Peer, ev Event, pipe Pipe) error {
	r.events <- seen{peer: peer, ev: ev, pipe: pipe}
	if r.react != nil {
		return r.react(peer, ev, pipe)
	}
	return nil
}

func (r *recorder) next(t *testing.T) seen {
	t.Helper()
	select {
	case s := <-r.events:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for gateway event")
		return seen{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case s := <-r.events:
		t.Fatalf("unexpected event %s", s.ev.Kind)
	case <-time.After(wait):
	}
}

func startGateway(t *testing.T, cfg Config, h Handler, opts ...Option) *Gateway {
	t.Helper()
	cfg.ListenAddress = "127.0.0.1:0"
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	g := New(cfg, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, g.Start(h))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = g.Stop(ctx)
	})
	return g
}

func dial(t *testing.T, g *Gateway, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+g.Addr()+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var out map[string]any
	require.NoError(t, ws.ReadJSON(&out))
	return out
}

func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			var sum float64
			for _, m := range f.GetMetric() {
				sum += m.GetCounter().GetValue()
			}
			return sum
		}
	}
	return 0
}

func TestLifecycleOrder(t *testing.T) {
	rec := newRecorder(func(peer Peer, ev Event, pipe Pipe) error {
		if ev.Kind == KindMessage {
			return pipe(map[string]any{"echo": ev.Data})
		}
		return nil
	})
	g := startGateway(t, Config{}, rec.handle, WithIDGenerator(func() string { return "ch-1" }))
	ws := dial(t, g, nil)

	open := rec.next(t)
	assert.Equal(t, KindOpen, open.ev.Kind)
	assert.Equal(t, "ch-1", open.peer.ChannelID)
	assert.Equal(t, "127.0.0.1", open.peer.ClientIP)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"ping"}`)))
	msg := rec.next(t)
	assert.Equal(t, KindMessage, msg.ev.Kind)
	assert.JSONEq(t, `{"id":1,"method":"ping"}`, string(msg.ev.Data))

	got := readJSON(t, ws)
	assert.Equal(t, map[string]any{"id": float64(1), "method": "ping"}, got["echo"])

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	closed := rec.next(t)
	assert.Equal(t, KindClose, closed.ev.Kind)
	assert.Equal(t, "ch-1", closed.peer.ChannelID)

	assert.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, closed.pipe(map[string]string{"late": "yes"}), ErrPipeClosed)
}

func TestBinaryFramesCarryJSON(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{}, rec.handle)
	ws := dial(t, g, nil)
	rec.next(t)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte(`{"method":"x"}`)))
	msg := rec.next(t)
	assert.Equal(t, KindMessage, msg.ev.Kind)
	assert.JSONEq(t, `{"method":"x"}`, string(msg.ev.Data))
}

func TestMalformedFrameIsDroppedWithoutReply(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := newRecorder(func(peer Peer, ev Event, pipe Pipe) error {
		if ev.Kind == KindMessage {
			return pipe(map[string]string{"ok": "yes"})
		}
		return nil
	})
	core, logs := observer.New(zap.WarnLevel)
	g := startGateway(t, Config{}, rec.handle,
		WithMetrics(metrics.NewCollector("gate", reg)), WithLogger(zap.New(core)))
	ws := dial(t, g, nil)
	rec.next(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(``)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"id":2,"method":"x"}`)))

	msg := rec.next(t)
	assert.JSONEq(t, `{"id":2,"method":"x"}`, string(msg.ev.Data))
	// the only frame the client ever sees answers the valid message
	assert.Equal(t, "yes", readJSON(t, ws)["ok"])
	assert.Equal(t, 2.0, counter(t, reg, "gate_frames_malformed_total"))

	dropped := logs.FilterMessage("drop malformed frame").All()
	require.Len(t, dropped, 2)
	assert.Equal(t, "-32700 Parse error 17 bytes", dropped[0].ContextMap()["error"])
}

func TestHandlerFailureAnswersInternalError(t *testing.T) {
	reg := prometheus.NewRegistry()
	var calls atomic.Int32
	rec := newRecorder(func(peer Peer, ev Event, pipe Pipe) error {
		if ev.Kind != KindMessage {
			return nil
		}
		if calls.Add(1) == 1 {
			return errors.New("backend exploded")
		}
		panic("nil map write")
	})
	g := startGateway(t, Config{}, rec.handle, WithMetrics(metrics.NewCollector("gate", reg)))
	ws := dial(t, g, nil)
	rec.next(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"x"}`)))
		rec.next(t)
		_, frame, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, string(rpc.InternalErrorFrame()), string(frame))
	}
	assert.Equal(t, 2.0, counter(t, reg, "gate_internal_errors_total"))
	assert.Equal(t, 1, g.Len())
}

func TestPipeSubstitutesUnencodableValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	pipeErr := make(chan error, 1)
	rec := newRecorder(func(peer Peer, ev Event, pipe Pipe) error {
		if ev.Kind == KindMessage {
			pipeErr <- pipe(map[string]any{"fn": func() {}})
		}
		return nil
	})
	g := startGateway(t, Config{}, rec.handle, WithMetrics(metrics.NewCollector("gate", reg)))
	ws := dial(t, g, nil)
	rec.next(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{}`)))
	rec.next(t)
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(rpc.InternalErrorFrame()), string(frame))
	assert.ErrorIs(t, <-pipeErr, ErrEncode)
	assert.Equal(t, 1.0, counter(t, reg, "gate_serialization_errors_total"))
}

func TestHeartbeatTerminatesSilentSocket(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := newRecorder(nil)
	g := startGateway(t, Config{HeartbeatInterval: 50 * time.Millisecond}, rec.handle,
		WithMetrics(metrics.NewCollector("gate", reg)))
	// never reads, so pings are never answered
	dial(t, g, nil)
	assert.Equal(t, KindOpen, rec.next(t).ev.Kind)

	closed := rec.next(t)
	assert.Equal(t, KindClose, closed.ev.Kind)
	assert.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, counter(t, reg, "gate_heartbeat_terminations_total"))
}

func TestHeartbeatKeepsResponsiveSocket(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{HeartbeatInterval: 40 * time.Millisecond}, rec.handle)
	ws := dial(t, g, nil)
	rec.next(t)

	// reading lets the client answer pings with pongs
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	rec.none(t, 300*time.Millisecond)
	assert.Equal(t, 1, g.Len())
}

func TestHeartbeatSparesSocketWithSlowHandler(t *testing.T) {
	rec := newRecorder(func(_ Peer, ev Event, pipe Pipe) error {
		if ev.Kind == KindMessage {
			time.Sleep(400 * time.Millisecond)
			return pipe(map[string]any{"id": 1, "result": "slow"})
		}
		return nil
	})
	g := startGateway(t, Config{HeartbeatInterval: 40 * time.Millisecond}, rec.handle)
	ws := dial(t, g, nil)
	rec.next(t)

	frames := make(chan []byte, 4)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			frames <- data
		}
	}()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"slow"}`)))
	assert.Equal(t, KindMessage, rec.next(t).ev.Kind)

	select {
	case data, ok := <-frames:
		require.True(t, ok, "socket closed while its handler was running")
		assert.JSONEq(t, `{"id":1,"result":"slow"}`, string(data))
	case <-time.After(3 * time.Second):
		t.Fatal("no reply from slow handler")
	}
	rec.none(t, 200*time.Millisecond)
	assert.Equal(t, 1, g.Len())
}

func TestHeartbeatWaitsForRunningHandler(t *testing.T) {
	writeErr := make(chan error, 1)
	rec := newRecorder(func(_ Peer, ev Event, pipe Pipe) error {
		if ev.Kind == KindMessage {
			time.Sleep(300 * time.Millisecond)
			writeErr <- pipe(map[string]any{"id": nil, "result": "late"})
		}
		return nil
	})
	g := startGateway(t, Config{HeartbeatInterval: 40 * time.Millisecond}, rec.handle)
	// never reads, so the socket goes silent right after its only frame
	ws := dial(t, g, nil)
	rec.next(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"method":"slow"}`)))
	assert.Equal(t, KindMessage, rec.next(t).ev.Kind)

	// still writable when the handler returns, swept afterwards
	assert.NoError(t, <-writeErr)
	assert.Equal(t, KindClose, rec.next(t).ev.Kind)
	assert.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestReadFailureReportsError(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{ReadLimit: 32}, rec.handle)
	ws := dial(t, g, nil)
	rec.next(t)

	big := `{"data":"` + strings.Repeat("x", 128) + `"}`
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(big)))

	assert.Equal(t, KindError, rec.next(t).ev.Kind)
	assert.Eventually(t, func() bool { return g.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestClientIPFromForwardedFor(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{}, rec.handle)
	dial(t, g, http.Header{"X-Forwarded-For": []string{"203.0.113.7, 10.0.0.1"}})

	assert.Equal(t, "203.0.113.7", rec.next(t).peer.ClientIP)
}

func TestStopClosesEverySocket(t *testing.T) {
	rec := newRecorder(nil)
	g := New(Config{ListenAddress: "127.0.0.1:0", HeartbeatInterval: time.Hour}, WithLogger(zap.NewNop()))
	require.NoError(t, g.Start(rec.handle))

	dial(t, g, nil)
	dial(t, g, nil)
	rec.next(t)
	rec.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, g.Stop(ctx))

	assert.Equal(t, KindClose, rec.next(t).ev.Kind)
	assert.Equal(t, KindClose, rec.next(t).ev.Kind)
	assert.Equal(t, 0, g.Len())
	assert.NoError(t, g.Stop(ctx))
}

func TestStartErrors(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{}, rec.handle)
	assert.ErrorIs(t, g.Start(rec.handle), ErrStarted)

	other := New(Config{ListenAddress: g.Addr()}, WithLogger(zap.NewNop()))
	assert.Error(t, other.Start(rec.handle))
	assert.ErrorIs(t, New(Config{}).Start(nil), ErrNilHandler)
}

func TestExtraRoutes(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{}, rec.handle, WithRoutes(func(r gin.IRoutes) {
		r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	}))

	resp, err := http.Get("http://" + g.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOriginCheckRejects(t *testing.T) {
	rec := newRecorder(nil)
	g := startGateway(t, Config{}, rec.handle, WithOriginCheck(func(r *http.Request) bool {
		return r.Header.Get("Origin") == "https://app.example.com"
	}))

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+g.Addr()+"/ws",
		http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	rec.none(t, 50*time.Millisecond)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "open", KindOpen.String())
	assert.Equal(t, "message", KindMessage.String())
	assert.Equal(t, "close", KindClose.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
