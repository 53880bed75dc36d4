package config

import "time"

const (
	DefaultListenAddress     = ":8080"
	DefaultPath              = "/ws"
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultReadLimit         = int64(1 << 20)
	DefaultNodeID            = "gateway-1"
	DefaultChannelIDs        = "uuid"

	DefaultService         = "facade"
	DefaultMethodDelimiter = "."
	DefaultSecretBytes     = 32
	DefaultMaxInflight     = 256
	DefaultOfflineAction   = "offline"

	DefaultNATSServer     = "nats://127.0.0.1:4222"
	DefaultNATSName       = "gateway"
	DefaultSubjectPrefix  = "svc"
	DefaultRequestTimeout = 30 * time.Second
	DefaultReconnectWait  = 500 * time.Millisecond
	DefaultDedupTTL       = time.Minute

	DefaultVerifier      = "ed25519"
	DefaultRemoteService = "auth"
	DefaultRemoteAction  = "verifySign"

	DefaultDirectoryTTL = 2 * time.Hour

	DefaultMetricsNamespace = "gate"
	DefaultMetricsPath      = "/metrics"

	DefaultGRPCAddress = ":50052"

	DefaultLogLevel    = "info"
	DefaultLogEncoding = "console"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}, Health: HealthConfig{GRPCAddress: DefaultGRPCAddress}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. Booleans and the gRPC health
// address are left alone since their zero value is meaningful.
func ApplyDefaults(cfg *Config) {
	g := &cfg.Gateway
	if g.ListenAddress == "" {
		g.ListenAddress = DefaultListenAddress
	}
	if g.Path == "" {
		g.Path = DefaultPath
	}
	if g.HeartbeatInterval == 0 {
		g.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if g.WriteTimeout == 0 {
		g.WriteTimeout = DefaultWriteTimeout
	}
	if g.ReadLimit == 0 {
		g.ReadLimit = DefaultReadLimit
	}
	if g.NodeID == "" {
		g.NodeID = DefaultNodeID
	}
	if g.ChannelIDs == "" {
		g.ChannelIDs = DefaultChannelIDs
	}

	b := &cfg.Broker
	if b.DefaultService == "" {
		b.DefaultService = DefaultService
	}
	if b.MethodDelimiter == "" {
		b.MethodDelimiter = DefaultMethodDelimiter
	}
	if b.SecretBytes == 0 {
		b.SecretBytes = DefaultSecretBytes
	}
	if b.MaxInflight == 0 {
		b.MaxInflight = DefaultMaxInflight
	}
	if b.OfflineAction == "" {
		b.OfflineAction = DefaultOfflineAction
	}

	n := &cfg.NATS
	if len(n.Servers) == 0 {
		n.Servers = []string{DefaultNATSServer}
	}
	if n.Name == "" {
		n.Name = DefaultNATSName
	}
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = DefaultSubjectPrefix
	}
	if n.RequestTimeout == 0 {
		n.RequestTimeout = DefaultRequestTimeout
	}
	if n.ReconnectWait == 0 {
		n.ReconnectWait = DefaultReconnectWait
	}
	if n.DedupTTL == 0 {
		n.DedupTTL = DefaultDedupTTL
	}
	if n.Services == nil {
		n.Services = map[string]string{}
	}
	for _, svc := range []string{b.DefaultService, b.OfflineTarget(), DefaultRemoteService} {
		if _, ok := n.Services[svc]; !ok {
			n.Services[svc] = n.SubjectPrefix + "." + svc
		}
	}

	a := &cfg.Auth
	if a.Verifier == "" {
		a.Verifier = DefaultVerifier
	}
	if a.RemoteService == "" {
		a.RemoteService = DefaultRemoteService
	}
	if a.RemoteAction == "" {
		a.RemoteAction = DefaultRemoteAction
	}

	if cfg.Redis.DirectoryTTL == 0 {
		cfg.Redis.DirectoryTTL = DefaultDirectoryTTL
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = DefaultLogEncoding
	}
}
