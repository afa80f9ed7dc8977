package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetcore/core/dispatch"
	"github.com/kilianp07/fleetcore/core/health"
	"github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/core/scheduler"
	"github.com/kilianp07/fleetcore/core/zone"
	"github.com/kilianp07/fleetcore/infra/mqtt"
)

// Config is the root configuration of the control plane.
type Config struct {
	MQTT      mqtt.Config      `json:"mqtt"`
	Dispatch  dispatch.Config  `json:"dispatch"`
	Scheduler scheduler.Config `json:"scheduler"`
	Zones     zone.Config      `json:"zones"`
	Health    health.Config    `json:"health"`
	Router    router.Config    `json:"router"`
	Commands  CommandsConfig   `json:"commands"`
	Routing   RoutingConfig    `json:"routing"`
	Metrics   metrics.Config   `json:"metrics"`
	Logging   LoggingConfig    `json:"logging"`
	Sentry    SentryConfig     `json:"sentry"`
	SiteFile  string           `json:"site_file"`
}

// Load reads the configuration file at path, applies K_ environment
// overrides (K_DISPATCH__SOLVER=lp sets dispatch.solver), fills defaults and
// validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if cfg.SiteFile != "" && !filepath.IsAbs(cfg.SiteFile) {
		cfg.SiteFile = filepath.Join(filepath.Dir(path), cfg.SiteFile)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset values of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Zones.SetDefaults()
	c.Health.SetDefaults()
	c.Router.SetDefaults()
	c.Commands.SetDefaults()
	c.Routing.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if c.Zones.ReleaseDistance > c.Zones.LookaheadDistance {
		return fmt.Errorf("zones: release_distance %v exceeds lookahead_distance %v",
			c.Zones.ReleaseDistance, c.Zones.LookaheadDistance)
	}
	if c.Health.CheckIntervalSeconds > c.Health.HeartbeatTimeoutSeconds {
		return fmt.Errorf("health: check_interval_seconds must not exceed heartbeat_timeout_seconds")
	}
	if err := c.Commands.Validate(); err != nil {
		return err
	}
	if err := c.Sentry.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}
