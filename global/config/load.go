package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, applies defaults and GATE_* environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	// env first so services named there get their default subject roots
	applyEnvOverrides(cfg, os.LookupEnv)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies GATE_SECTION_FIELD variables on top of cfg.
// Malformed values are ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			var out []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			*dst = out
		}
	}

	str("GATE_GATEWAY_LISTEN_ADDRESS", &cfg.Gateway.ListenAddress)
	str("GATE_GATEWAY_PATH", &cfg.Gateway.Path)
	dur("GATE_GATEWAY_HEARTBEAT_INTERVAL", &cfg.Gateway.HeartbeatInterval)
	dur("GATE_GATEWAY_WRITE_TIMEOUT", &cfg.Gateway.WriteTimeout)
	list("GATE_GATEWAY_ALLOWED_ORIGINS", &cfg.Gateway.AllowedOrigins)
	str("GATE_GATEWAY_NODE_ID", &cfg.Gateway.NodeID)
	str("GATE_GATEWAY_CHANNEL_IDS", &cfg.Gateway.ChannelIDs)

	str("GATE_BROKER_DEFAULT_SERVICE", &cfg.Broker.DefaultService)
	num("GATE_BROKER_MAX_INFLIGHT", &cfg.Broker.MaxInflight)
	str("GATE_BROKER_OFFLINE_SERVICE", &cfg.Broker.OfflineService)

	list("GATE_NATS_SERVERS", &cfg.NATS.Servers)
	str("GATE_NATS_NAME", &cfg.NATS.Name)
	str("GATE_NATS_USER", &cfg.NATS.User)
	str("GATE_NATS_PASSWORD", &cfg.NATS.Password)
	dur("GATE_NATS_REQUEST_TIMEOUT", &cfg.NATS.RequestTimeout)

	str("GATE_AUTH_VERIFIER", &cfg.Auth.Verifier)
	str("GATE_AUTH_KEYS_FILE", &cfg.Auth.KeysFile)

	str("GATE_REDIS_ADDR", &cfg.Redis.Addr)
	str("GATE_REDIS_PASSWORD", &cfg.Redis.Password)
	num("GATE_REDIS_DB", &cfg.Redis.DB)

	if v, ok := lookup("GATE_METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v, ok := lookup("GATE_HEALTH_GRPC_ADDRESS"); ok {
		cfg.Health.GRPCAddress = v
	}

	str("GATE_LOG_LEVEL", &cfg.Log.Level)
	str("GATE_LOG_ENCODING", &cfg.Log.Encoding)
}
