package natsx

import (
	"strings"
	"time"

	"PGateway/logger"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config 客户端配置
type Config struct {
	Servers       []string
	Name          string
	User          string
	Password      string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Client owns the NATS connection shared by the gate.
type Client struct {
	cfg Config
	nc  *nats.Conn
	log *zap.Logger
}

// Connect dials NATS. The connection reconnects forever; disconnects and
// reconnects are logged.
func Connect(cfg Config, log *zap.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	log = logger.Or(log).With(zap.String("component", "nats"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	log.Info("nats connected", zap.String("url", nc.ConnectedUrl()))
	return &Client{cfg: cfg, nc: nc, log: log}, nil
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *nats.Conn { return c.nc }

// Close 优雅关闭: drains subscriptions and the connection.
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}
