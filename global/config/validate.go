package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Gateway.ListenAddress == "" {
		errs = append(errs, errors.New("gateway.listen_address is required"))
	}
	if !strings.HasPrefix(cfg.Gateway.Path, "/") {
		errs = append(errs, fmt.Errorf("gateway.path %q must start with /", cfg.Gateway.Path))
	}
	if cfg.Gateway.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("gateway.heartbeat_interval must be positive"))
	}
	if cfg.Gateway.WriteTimeout <= 0 {
		errs = append(errs, errors.New("gateway.write_timeout must be positive"))
	}
	if cfg.Gateway.ReadLimit < 0 {
		errs = append(errs, errors.New("gateway.read_limit must not be negative"))
	}
	if cfg.Gateway.NodeID == "" {
		errs = append(errs, errors.New("gateway.node_id is required"))
	} else if strings.ContainsAny(cfg.Gateway.NodeID, ".*> \t") {
		errs = append(errs, fmt.Errorf("gateway.node_id %q must be a single subject token", cfg.Gateway.NodeID))
	}
	switch cfg.Gateway.ChannelIDs {
	case "uuid":
	case "snowflake":
		if cfg.Gateway.WorkerID < 0 || cfg.Gateway.WorkerID > 1023 {
			errs = append(errs, fmt.Errorf("gateway.worker_id %d must be within 0..1023", cfg.Gateway.WorkerID))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.channel_ids %q is not one of uuid, snowflake", cfg.Gateway.ChannelIDs))
	}

	if cfg.Broker.MethodDelimiter == "" {
		errs = append(errs, errors.New("broker.method_delimiter is required"))
	}
	if cfg.Broker.SecretBytes < 16 {
		errs = append(errs, fmt.Errorf("broker.secret_bytes must be at least 16, got %d", cfg.Broker.SecretBytes))
	}
	if cfg.Broker.MaxInflight < 1 {
		errs = append(errs, errors.New("broker.max_inflight must be at least 1"))
	}
	if cfg.Broker.DefaultService != "" {
		if _, ok := cfg.NATS.Services[cfg.Broker.DefaultService]; !ok {
			errs = append(errs, fmt.Errorf("broker.default_service %q has no nats.services entry", cfg.Broker.DefaultService))
		}
	}
	if target := cfg.Broker.OfflineTarget(); target != "" {
		if _, ok := cfg.NATS.Services[target]; !ok {
			errs = append(errs, fmt.Errorf("broker.offline_service %q has no nats.services entry", target))
		}
	}

	if len(cfg.NATS.Servers) == 0 {
		errs = append(errs, errors.New("nats.servers is required"))
	}
	if cfg.NATS.RequestTimeout <= 0 {
		errs = append(errs, errors.New("nats.request_timeout must be positive"))
	}
	for name, subject := range cfg.NATS.Services {
		if name == "" || subject == "" {
			errs = append(errs, fmt.Errorf("nats.services entry %q -> %q is incomplete", name, subject))
		}
	}

	switch cfg.Auth.Verifier {
	case "ed25519", "jwt":
		if cfg.Auth.KeysFile == "" {
			errs = append(errs, fmt.Errorf("auth.keys_file is required for verifier %q", cfg.Auth.Verifier))
		}
	case "remote":
		if _, ok := cfg.NATS.Services[cfg.Auth.RemoteService]; !ok {
			errs = append(errs, fmt.Errorf("auth.remote_service %q has no nats.services entry", cfg.Auth.RemoteService))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.verifier %q is not one of ed25519, jwt, remote", cfg.Auth.Verifier))
	}

	if cfg.Redis.DirectoryTTL <= 0 {
		errs = append(errs, errors.New("redis.directory_ttl must be positive"))
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", cfg.Metrics.Path))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path == cfg.Gateway.Path {
		errs = append(errs, errors.New("metrics.path must differ from gateway.path"))
	}

	return errors.Join(errs...)
}
