package gate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"PGateway/logger"
	"PGateway/service/metrics"
	"PGateway/service/rpc"
	"PGateway/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	sampleLimit = 256
	eventQueue  = 64
)

// Config is the listener and liveness setup of a Gateway.
type Config struct {
	ListenAddress     string
	Path              string
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	ReadLimit         int64
}

func (c *Config) norm() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
}

type Option func(*Gateway)

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.log = logger.Or(l) }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithRoutes registers extra HTTP routes next to the WebSocket endpoint.
func WithRoutes(fn func(gin.IRoutes)) Option {
	return func(g *Gateway) { g.routes = append(g.routes, fn) }
}

// WithMiddleware adds gin middlewares in front of every route.
func WithMiddleware(mw ...gin.HandlerFunc) Option {
	return func(g *Gateway) { g.middleware = append(g.middleware, mw...) }
}

// WithOriginCheck sets the upgrader origin policy. The default accepts any origin.
func WithOriginCheck(fn func(*http.Request) bool) Option {
	return func(g *Gateway) { g.upgrader.CheckOrigin = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(g *Gateway) { g.newID = fn }
}

// Gateway terminates WebSocket connections and turns them into a stream of
// events for a single Handler.
type Gateway struct {
	cfg        Config
	log        *zap.Logger
	metrics    *metrics.Collector
	routes     []func(gin.IRoutes)
	middleware []gin.HandlerFunc
	newID      func() string
	upgrader   websocket.Upgrader

	handler Handler
	ln      net.Listener
	srv     *http.Server
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	conns    map[string]*conn
	stopping bool

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, opts ...Option) *Gateway {
	cfg.norm()
	g := &Gateway{
		cfg:   cfg,
		log:   logger.L(),
		newID: uuid.NewString,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*conn),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start binds the listener and begins serving in the background. Bind
// errors are returned synchronously.
func (g *Gateway) Start(handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if !g.started.CompareAndSwap(false, true) {
		return ErrStarted
	}

	ln, err := net.Listen("tcp", g.cfg.ListenAddress)
	if err != nil {
		g.started.Store(false)
		return pkgerrors.Wrapf(err, "listen %s", g.cfg.ListenAddress)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(g.middleware...)
	engine.GET(g.cfg.Path, g.serveWS)
	for _, fn := range g.routes {
		fn(engine)
	}

	g.handler = handler
	g.ln = ln
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.srv = &http.Server{Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	g.wg.Add(1)
	go g.heartbeat()

	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.log.Error("http serve", zap.Error(err))
		}
	}()

	g.log.Info("gateway listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", g.cfg.Path),
		zap.Duration("heartbeat", g.cfg.HeartbeatInterval))
	return nil
}

// Addr is the bound listener address, or "" before Start.
func (g *Gateway) Addr() string {
	if g.ln == nil {
		return ""
	}
	return g.ln.Addr().String()
}

// Len reports how many sockets are tracked.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Stop halts the heartbeat, shuts the HTTP server down, terminates every
// socket and waits until each has run its close path.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.started.Load() {
		return nil
	}
	var err error
	g.stopOnce.Do(func() {
		close(g.stopCh)

		g.mu.Lock()
		g.stopping = true
		live := make([]*conn, 0, len(g.conns))
		for _, c := range g.conns {
			live = append(live, c)
		}
		g.mu.Unlock()

		err = g.srv.Shutdown(ctx)

		for _, c := range live {
			c.goingAway("server shutdown")
			c.terminate(true)
		}

		done := make(chan struct{})
		go func() {
			g.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
		g.cancel()
		g.log.Info("gateway stopped", zap.Int("terminated", len(live)))
	})
	return err
}

func (g *Gateway) serveWS(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		g.log.Debug("upgrade websocket", zap.String("remote", c.Request.RemoteAddr), zap.Error(err))
		return
	}

	cn := newConn(g.newID(), c.ClientIP(), ws, g.cfg.WriteTimeout)
	if !g.track(cn) {
		cn.goingAway("server shutdown")
		cn.terminate(true)
		return
	}
	defer g.wg.Done()
	g.serve(cn)
}

func (g *Gateway) track(c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping {
		return false
	}
	g.conns[c.id] = c
	g.wg.Add(1)
	return true
}

func (g *Gateway) forget(id string) {
	g.mu.Lock()
	delete(g.conns, id)
	g.mu.Unlock()
}

func (g *Gateway) serve(c *conn) {
	log := g.log.With(zap.String("channel_id", c.id))
	peer := Peer{ChannelID: c.id, ClientIP: c.ip}
	pipe := g.pipeFor(c)

	c.ws.SetReadLimit(g.cfg.ReadLimit)
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	g.metrics.ConnectionOpened()
	defer g.metrics.ConnectionClosed()
	log.Debug("socket opened", zap.String("client_ip", c.ip))

	// the reader keeps pulling frames and pongs while a handler call is
	// still running; events reach the handler in arrival order
	events := make(chan Event, eventQueue)
	go func() {
		defer close(events)
		kind := g.readLoop(log, c, events)
		events <- Event{Kind: kind}
	}()

	g.dispatch(log, c, peer, Event{Kind: KindOpen}, pipe)
	last := KindClose
	for ev := range events {
		g.dispatch(log, c, peer, ev, pipe)
		last = ev.Kind
	}

	c.markClosed()
	g.forget(c.id)
	log.Debug("socket closed", zap.Stringer("kind", last))
}

// readLoop pumps frames into out until the socket fails and reports how
// it ended.
func (g *Gateway) readLoop(log *zap.Logger, c *conn, out chan<- Event) Kind {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return g.classify(log, c, err)
		}
		c.touch()
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if !json.Valid(data) {
			sample := data
			if len(sample) > sampleLimit {
				sample = sample[:sampleLimit]
			}
			log.Warn("drop malformed frame",
				zap.Error(errs.ErrParse.WithDetailf("%d bytes", len(data))),
				zap.ByteString("sample", sample))
			g.metrics.FrameMalformed()
			continue
		}
		out <- Event{Kind: KindMessage, Data: data}
	}
}

func (g *Gateway) classify(log *zap.Logger, c *conn, err error) Kind {
	switch {
	case c.local.Load():
		return KindClose
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	):
		log.Debug("peer closed", zap.Error(err))
		return KindClose
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindClose
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		log.Info("read timeout", zap.Error(err))
	} else {
		log.Warn("read failed", zap.Error(err))
	}
	c.terminate(false)
	return KindError
}

// dispatch runs the handler for one event. Failures never escape: they are
// logged, counted and answered with the internal error frame while the
// socket is still writable.
func (g *Gateway) dispatch(log *zap.Logger, c *conn, peer Peer, ev Event, pipe Pipe) {
	c.busy.Store(true)
	err := g.invoke(peer, ev, pipe)
	c.busy.Store(false)
	if err == nil {
		return
	}
	log.Error("handler failed", zap.Stringer("event", ev.Kind), zap.Error(err))
	g.metrics.InternalError()
	if ev.Kind == KindOpen || ev.Kind == KindMessage {
		_ = c.write(rpc.InternalErrorFrame())
	}
}

func (g *Gateway) invoke(peer Peer, ev Event, pipe Pipe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			g.log.Error("handler panic", zap.String("channel_id", peer.ChannelID), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	return g.handler(g.ctx, peer, ev, pipe)
}
