package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  topic_prefix: "site1"
  use_tls: false
dispatch:
  eta_power_factor: 0.2
  priority_power_factor: 0.8
  waiting_time_factor: true
  max_trips_per_cycle: 5
  solver: "lp"
zones:
  lookahead_distance: 8
health:
  heartbeat_timeout_seconds: 20
router:
  queue_size: 16
commands:
  reply_timeout_seconds: 4
metrics:
  sinks:
    - type: "nop"
logging:
  level: debug
  backend: jsonl
  path: logs/dispatch.jsonl
  max_size_mb: 5
site_file: site.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"username", cfg.MQTT.Username, "user"},
		{"password", cfg.MQTT.Password, "pass"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "site1"},
		{"use_tls", cfg.MQTT.UseTLS, false},
		{"eta_power_factor", cfg.Dispatch.EtaPowerFactor, 0.2},
		{"waiting_time_factor", cfg.Dispatch.WaitingTimeFactor, true},
		{"max_trips_per_cycle", cfg.Dispatch.MaxTripsPerCycle, 5},
		{"solver", cfg.Dispatch.Solver, "lp"},
		{"lookahead_distance", cfg.Zones.LookaheadDistance, 8.0},
		{"release_distance default", cfg.Zones.ReleaseDistance, 2.0},
		{"heartbeat_timeout_seconds", cfg.Health.HeartbeatTimeoutSeconds, 20},
		{"check_interval_seconds default", cfg.Health.CheckIntervalSeconds, 5},
		{"queue_size", cfg.Router.QueueSize, 16},
		{"global_workers default", cfg.Router.GlobalWorkers, 4},
		{"reply_timeout_seconds", cfg.Commands.ReplyTimeoutSeconds, 4},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"site_file", cfg.SiteFile, filepath.Join(dir, "site.yaml")},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	store := cfg.Logging.StoreConfig()
	assert.Equal(t, "jsonl_rotating", store.Type)
	assert.Equal(t, 5, store.Conf["max_size_mb"])
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"dispatch": {"solver": "jv"}}`)
	t.Setenv("K_DISPATCH__SOLVER", "lp")
	t.Setenv("K_MQTT__BROKER", "tcp://broker:1883")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lp", cfg.Dispatch.Solver)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "fleet", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "jsonl", cfg.Logging.StoreConfig().Type)
}

func TestLoadRejectsInvalidSections(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"solver":   "dispatch:\n  solver: greedy\n",
		"factor":   "dispatch:\n  eta_power_factor: 1.5\n",
		"zones":    "zones:\n  lookahead_distance: 1\n  release_distance: 3\n",
		"backend":  "logging:\n  backend: csv\n",
		"commands": "commands:\n  reply_timeout_seconds: 1\n  sweep_interval_ms: 5000\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, dir, name+".yaml", data))
			assert.Error(t, err)
		})
	}
	_, err := Load(writeFile(t, dir, "config.toml", ""))
	assert.ErrorContains(t, err, "unsupported config format")
}
