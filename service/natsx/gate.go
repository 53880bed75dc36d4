package natsx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"PGateway/logger"
	"PGateway/service/rpc"
	"PGateway/tools/errs"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HeaderNode carries the id of the gateway that sent a request.
const HeaderNode = "Gateway-Node"

// GateConfig 路由配置. Services maps a backend service name to the subject
// root its actions live under.
type GateConfig struct {
	Prefix         string
	NodeID         string
	RequestTimeout time.Duration
	Services       map[string]string
	DedupTTL       time.Duration
}

// transport is the part of *nats.Conn the gate uses.
type transport interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
}

type GateOption func(*Gate)

func WithLogger(l *zap.Logger) GateOption {
	return func(g *Gate) { g.log = logger.Or(l) }
}

// Gate is the internal RPC gate over NATS request/reply. Outbound calls go
// to <services[service]>.<action>; inbound routes are served on
// <prefix>.gateway.<node>.<route>.
type Gate struct {
	t   transport
	cfg GateConfig
	log *zap.Logger
	mws []Middleware

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewGate(c *Client, cfg GateConfig, opts ...GateOption) *Gate {
	return newGate(c.Conn(), cfg, opts...)
}

func newGate(t transport, cfg GateConfig, opts ...GateOption) *Gate {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	g := &Gate{t: t, cfg: cfg, log: logger.L()}
	for _, opt := range opts {
		opt(g)
	}
	if cfg.DedupTTL > 0 {
		g.mws = append(g.mws, Dedup(cfg.DedupTTL))
	}
	return g
}

// Subject joins a subject root and an action.
func Subject(root, action string) string {
	return root + "." + action
}

// RouteSubject is the subject an inbound route of this node listens on.
func (g *Gate) RouteSubject(route string) string {
	return g.cfg.Prefix + ".gateway." + g.cfg.NodeID + "." + route
}

// SendTo sends payload to service/action and waits for the reply. An
// unconfigured service fails with rpc.ErrUnknownService; no responders,
// timeouts and undecodable replies are transport errors.
func (g *Gate) SendTo(ctx context.Context, service, action string, payload any) (*rpc.Reply, error) {
	root, ok := g.cfg.Services[service]
	if !ok {
		return nil, errors.Wrapf(rpc.ErrUnknownService, "service %q", service)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	msg := nats.NewMsg(Subject(root, action))
	msg.Data = data
	msg.Header.Set(HeaderNode, g.cfg.NodeID)

	resp, err := g.t.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s", msg.Subject)
	}
	return decodeReply(resp.Data)
}

func decodeReply(data []byte) (*rpc.Reply, error) {
	var r rpc.Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode reply")
	}
	if r.Error != nil && r.Error.Message == "" && r.Error.Code == 0 {
		return nil, errors.New("decode reply: empty error object")
	}
	return &r, nil
}

// Serve subscribes every route. Each request runs through recovery,
// logging and the configured middlewares and is answered with
// {"result":..} or {"error":{code,message}}.
func (g *Gate) Serve(routes map[string]rpc.RouteFunc) error {
	for name, fn := range routes {
		subject := g.RouteSubject(name)
		mws := append([]Middleware{Recover(g.log), Logging(g.log)}, g.mws...)
		h := Chain(routeHandler(fn), mws...)

		sub, err := g.t.Subscribe(subject, func(m *nats.Msg) {
			g.answer(m, h)
		})
		if err != nil {
			return errors.Wrapf(err, "subscribe %s", subject)
		}
		if sub != nil {
			_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
		}
		g.mu.Lock()
		g.subs = append(g.subs, sub)
		g.mu.Unlock()
		g.log.Info("nats route ready", zap.String("route", name), zap.String("subject", subject))
	}
	return nil
}

func (g *Gate) answer(m *nats.Msg, h Handler) {
	result, err := h(context.Background(), Message{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	})
	if m.Reply == "" {
		return
	}
	if perr := g.t.Publish(m.Reply, encodeReply(result, err)); perr != nil {
		g.log.Warn("nats reply failed", zap.String("subject", m.Subject), zap.Error(perr))
	}
}

func routeHandler(fn rpc.RouteFunc) Handler {
	return func(ctx context.Context, msg Message) (any, error) {
		return fn(ctx, msg.Data)
	}
}

type replyBody struct {
	Result any             `json:"result,omitempty"`
	Error  *errs.CodeError `json:"error,omitempty"`
}

// encodeReply never fails; anything unencodable becomes an internal error.
func encodeReply(result any, err error) []byte {
	var body replyBody
	if err != nil {
		ce, ok := errs.As(err)
		if !ok || ce.Code == errs.ServerInternalError {
			ce = errs.ErrInternal
		}
		body.Error = &errs.CodeError{Code: ce.Code, Message: ce.Message}
	} else {
		body.Result = result
		if body.Result == nil {
			body.Result = json.RawMessage("null")
		}
	}
	b, merr := json.Marshal(body)
	if merr != nil {
		b, _ = json.Marshal(replyBody{Error: errs.ErrInternal})
	}
	return b
}

// Close unsubscribes every route.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var first error
	for _, sub := range g.subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil && first == nil {
			first = err
		}
	}
	g.subs = nil
	return first
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
