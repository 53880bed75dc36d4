package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  verifier: jwt
  keys_file: /etc/gate/keys.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.Gateway.ListenAddress)
	assert.Equal(t, DefaultPath, cfg.Gateway.Path)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Gateway.HeartbeatInterval)
	assert.Equal(t, DefaultService, cfg.Broker.DefaultService)
	assert.Equal(t, "svc.facade", cfg.NATS.Services["facade"])
	assert.Equal(t, "svc.auth", cfg.NATS.Services["auth"])
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultGRPCAddress, cfg.Health.GRPCAddress)
	assert.Equal(t, "jwt", cfg.Auth.Verifier)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
gateway:
  listen_address: 127.0.0.1:9000
  heartbeat_interval: 3s
  node_id: edge-7
broker:
  default_service: feed
nats:
  subject_prefix: mesh
  services:
    feed: mesh.feed.v2
auth:
  verifier: remote
metrics:
  enabled: false
health:
  grpc_address: ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Gateway.ListenAddress)
	assert.Equal(t, 3*time.Second, cfg.Gateway.HeartbeatInterval)
	assert.Equal(t, "edge-7", cfg.Gateway.NodeID)
	assert.Equal(t, "feed", cfg.Broker.DefaultService)
	assert.Equal(t, "mesh.feed.v2", cfg.NATS.Services["feed"])
	assert.Equal(t, "feed", cfg.Broker.OfflineTarget())
	assert.Equal(t, DefaultOfflineAction, cfg.Broker.OfflineAction)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Health.GRPCAddress)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read configuration file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
gateway:
  path: ws
  node_id: "a.b"
auth:
  verifier: magic
`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "gateway.path")
	assert.Contains(t, msg, "gateway.node_id")
	assert.Contains(t, msg, "auth.verifier")
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"GATE_GATEWAY_LISTEN_ADDRESS":     ":7000",
		"GATE_GATEWAY_HEARTBEAT_INTERVAL": "2s",
		"GATE_GATEWAY_ALLOWED_ORIGINS":    "https://a.example, https://b.example",
		"GATE_NATS_SERVERS":               "nats://n1:4222,nats://n2:4222",
		"GATE_BROKER_MAX_INFLIGHT":        "not-a-number",
		"GATE_METRICS_ENABLED":            "false",
		"GATE_HEALTH_GRPC_ADDRESS":        "",
	}
	applyEnvOverrides(cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, ":7000", cfg.Gateway.ListenAddress)
	assert.Equal(t, 2*time.Second, cfg.Gateway.HeartbeatInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, []string{"nats://n1:4222", "nats://n2:4222"}, cfg.NATS.Servers)
	assert.Equal(t, DefaultMaxInflight, cfg.Broker.MaxInflight)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Health.GRPCAddress)
}

func TestLoadEnvServiceGetsSubject(t *testing.T) {
	t.Setenv("GATE_BROKER_OFFLINE_SERVICE", "presence")
	t.Setenv("GATE_AUTH_VERIFIER", "remote")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "presence", cfg.Broker.OfflineTarget())
	assert.Equal(t, "svc.presence", cfg.NATS.Services["presence"])
	assert.Equal(t, DefaultDedupTTL, cfg.NATS.DedupTTL)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "gateway.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gateway-1", cfg.Gateway.NodeID)
	assert.Equal(t, "svc.feed", cfg.NATS.Services["feed"])
	assert.Equal(t, "facade", cfg.Broker.OfflineTarget())
	assert.Len(t, cfg.Gateway.AllowedOrigins, 2)
}

func TestChannelIDScheme(t *testing.T) {
	path := writeConfig(t, `
gateway:
  channel_ids: snowflake
  worker_id: 2048
auth:
  verifier: remote
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.worker_id")

	path = writeConfig(t, `
gateway:
  channel_ids: ulid
auth:
  verifier: remote
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.channel_ids")

	cfg, err := Load(writeConfig(t, "auth:\n  verifier: remote\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultChannelIDs, cfg.Gateway.ChannelIDs)
}
