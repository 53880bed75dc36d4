package config

import "time"

// Config is the whole process configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Broker  BrokerConfig  `yaml:"broker"`
	NATS    NATSConfig    `yaml:"nats"`
	Auth    AuthConfig    `yaml:"auth"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Log     LogConfig     `yaml:"log"`
}

// GatewayConfig configures the public WebSocket listener.
type GatewayConfig struct {
	ListenAddress     string        `yaml:"listen_address"`
	Path              string        `yaml:"path"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadLimit         int64         `yaml:"read_limit"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	NodeID            string        `yaml:"node_id"`
	ChannelIDs        string        `yaml:"channel_ids"` // uuid | snowflake
	WorkerID          int64         `yaml:"worker_id"`   // snowflake node, 0..1023
}

// BrokerConfig configures the protocol broker. The offline notification
// goes to OfflineService, which defaults to DefaultService.
type BrokerConfig struct {
	DefaultService  string `yaml:"default_service"`
	MethodDelimiter string `yaml:"method_delimiter"`
	SecretBytes     int    `yaml:"secret_bytes"`
	MaxInflight     int    `yaml:"max_inflight"`
	OfflineService  string `yaml:"offline_service"`
	OfflineAction   string `yaml:"offline_action"`
}

// OfflineTarget is the service that receives offline notifications.
func (b BrokerConfig) OfflineTarget() string {
	if b.OfflineService != "" {
		return b.OfflineService
	}
	return b.DefaultService
}

// NATSConfig configures the internal RPC gate. Services maps a backend
// service name to the subject root its actions are served under. A negative
// DedupTTL turns off de-duplication of redelivered inbound requests.
type NATSConfig struct {
	Servers        []string          `yaml:"servers"`
	Name           string            `yaml:"name"`
	User           string            `yaml:"user"`
	Password       string            `yaml:"password"`
	SubjectPrefix  string            `yaml:"subject_prefix"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	ReconnectWait  time.Duration     `yaml:"reconnect_wait"`
	DedupTTL       time.Duration     `yaml:"dedup_ttl"`
	Services       map[string]string `yaml:"services"`
}

type AuthConfig struct {
	Verifier      string `yaml:"verifier"` // ed25519 | jwt | remote
	KeysFile      string `yaml:"keys_file"`
	RemoteService string `yaml:"remote_service"`
	RemoteAction  string `yaml:"remote_action"`
}

// RedisConfig configures the optional channel directory; an empty Addr
// disables it.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DirectoryTTL time.Duration `yaml:"directory_ttl"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

type HealthConfig struct {
	GRPCAddress string `yaml:"grpc_address"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}
