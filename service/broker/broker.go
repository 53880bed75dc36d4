package broker

import (
	"context"
	"sync"

	"PGateway/logger"
	"PGateway/service/auth"
	"PGateway/service/gate"
	"PGateway/service/metrics"
	"PGateway/service/rpc"
	"PGateway/service/storage"
	"PGateway/tools/safe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Protocol method and route names.
const (
	MethodResendChallenge = "resend-challenge"
	MethodAuthenticate    = "authenticate"
	MethodSign            = "sign"

	RouteTransfer = "transfer"
)

// Gate is the internal RPC transport the broker talks to backends through.
type Gate interface {
	SendTo(ctx context.Context, service, action string, payload any) (*rpc.Reply, error)
	Serve(routes map[string]rpc.RouteFunc) error
}

type Config struct {
	NodeID          string
	DefaultService  string
	MethodDelimiter string
	SecretBytes     int
	MaxInflight     int
	OfflineService  string
	OfflineAction   string
}

func (c *Config) norm() {
	if c.MethodDelimiter == "" {
		c.MethodDelimiter = "."
	}
	if c.SecretBytes <= 0 {
		c.SecretBytes = 32
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 256
	}
	if c.OfflineService == "" {
		c.OfflineService = c.DefaultService
	}
	if c.OfflineAction == "" {
		c.OfflineAction = "offline"
	}
}

type Option func(*Broker)

func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) { b.log = logger.Or(l) }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(b *Broker) { b.metrics = m }
}

func WithDirectory(d storage.Directory) Option {
	return func(b *Broker) {
		if d != nil {
			b.dir = d
		}
	}
}

// Broker runs the per channel protocol on top of gateway events: the
// challenge handshake, routing of authenticated calls to backends, and
// push delivery from backends back to a channel.
type Broker struct {
	gate     Gate
	verifier auth.Verifier
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Collector
	dir      storage.Directory

	reg *registry
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func New(g Gate, v auth.Verifier, cfg Config, opts ...Option) *Broker {
	safe.MustNotNil(g, "gate")
	safe.MustNotNil(v, "verifier")
	cfg.norm()
	b := &Broker{
		gate:     g,
		verifier: v,
		cfg:      cfg,
		log:      logger.L(),
		dir:      storage.NopDirectory{},
		reg:      newRegistry(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sem = semaphore.NewWeighted(int64(b.cfg.MaxInflight))
	return b
}

// Start registers the push delivery route on the gate.
func (b *Broker) Start() error {
	return b.gate.Serve(map[string]rpc.RouteFunc{
		RouteTransfer: b.transfer,
	})
}

// Wait blocks until every routed request and offline notification in
// flight has finished, or ctx is done.
func (b *Broker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle is the gate.Handler of the broker.
func (b *Broker) Handle(ctx context.Context, peer gate.Peer, ev gate.Event, pipe gate.Pipe) error {
	switch ev.Kind {
	case gate.KindOpen:
		return b.open(peer, pipe)
	case gate.KindMessage:
		return b.message(ctx, peer, ev.Data, pipe)
	case gate.KindClose, gate.KindError:
		b.release(ctx, peer.ChannelID, ev.Kind)
		return nil
	default:
		return errors.Errorf("unexpected event kind %d", ev.Kind)
	}
}

// Snapshot returns a copy of the channel's state.
func (b *Broker) Snapshot(channelID string) (ChannelInfo, bool) {
	c, ok := b.reg.get(channelID)
	if !ok {
		return ChannelInfo{}, false
	}
	return c.info(), true
}

// Len is the number of live channels.
func (b *Broker) Len() int { return b.reg.len() }

func (b *Broker) open(peer gate.Peer, pipe gate.Pipe) error {
	secret, err := newSecret(b.cfg.SecretBytes)
	if err != nil {
		return err
	}
	c := newChannel(peer.ChannelID, peer.ClientIP)
	if !b.reg.add(c) {
		return errors.Errorf("channel %s already registered", peer.ChannelID)
	}
	c.issue(secret)

	if err := pipe(rpc.Notify(MethodSign, challenge{Secret: secret})); err != nil {
		b.log.Warn("send challenge", zap.String("channel_id", c.id), zap.Error(err))
	}
	return nil
}

// release drops the channel record and, if a user was bound, tells the
// offline service about it.
func (b *Broker) release(ctx context.Context, channelID string, kind gate.Kind) {
	c, ok := b.reg.remove(channelID)
	if !ok {
		return
	}
	user := c.wipe()
	b.log.Debug("channel released",
		zap.String("channel_id", channelID),
		zap.String("user", user),
		zap.Stringer("event", kind))
	if user == "" {
		return
	}

	// the socket is gone; the notification must outlive the gateway context
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	safe.Go(b.log, "offline", func() {
		defer b.wg.Done()
		if err := b.dir.Unbind(ctx, channelID); err != nil {
			b.metrics.DirectoryError()
			b.log.Warn("directory unbind", zap.String("channel_id", channelID), zap.Error(err))
		}
		b.notifyOffline(ctx, channelID, user)
	})
}

func (b *Broker) notifyOffline(ctx context.Context, channelID, user string) {
	if b.cfg.OfflineService == "" {
		return
	}
	reply, err := b.gate.SendTo(ctx, b.cfg.OfflineService, b.cfg.OfflineAction, offlineNotice{
		ChannelID: channelID,
		User:      user,
	})
	if err == nil && reply != nil && reply.Error != nil {
		err = reply.Error
	}
	if err != nil {
		b.metrics.OfflineNotifyError()
		b.log.Warn("offline notification failed",
			zap.String("channel_id", channelID),
			zap.String("user", user),
			zap.String("service", b.cfg.OfflineService),
			zap.Error(err))
	}
}

func (b *Broker) reply(c *Channel, pipe gate.Pipe, resp *rpc.Response) {
	if err := pipe(resp); err != nil {
		b.log.Debug("write reply", zap.String("channel_id", c.id), zap.Error(err))
	}
}

type challenge struct {
	Secret string `json:"secret"`
}

type offlineNotice struct {
	ChannelID string `json:"channelId"`
	User      string `json:"user"`
}
