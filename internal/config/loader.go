package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. WATCHPOST_SERVER_ADDR.
const EnvPrefix = "WATCHPOST"

// Load reads configuration from the YAML file at configPath and from
// environment variables, which take precedence over file values. An empty
// path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		return v, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WatchRules re-reads the config file whenever it changes and hands every
// successfully validated result to onChange. Invalid edits are logged and
// the previous configuration stays in effect. viper cannot stop its
// watcher, so once ctx is done changes are ignored instead.
func WatchRules(ctx context.Context, configPath string, logger zerolog.Logger, onChange func(*Config)) error {
	if configPath == "" {
		return nil
	}
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}
		if ctx.Err() != nil {
			return
		}
		logger.Info().Str("file", e.Name).Int("rules", len(cfg.Alerts.Rules)).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.secret", "")
	v.SetDefault("server.auth.token_expiry", 90*24*time.Hour)
	v.SetDefault("server.rate_limit.rps", 100.0)
	v.SetDefault("server.rate_limit.burst", 200)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("cache.ttl_ms", 10000)
	v.SetDefault("cache.warm_start", true)
	v.SetDefault("cache.warm_start_timeout", 20*time.Second)

	v.SetDefault("probes.disk_path", "/")
	v.SetDefault("probes.services", []string{})
	v.SetDefault("probes.docker_socket", "/var/run/docker.sock")
	v.SetDefault("probes.agents_dir", "/var/lib/watchpost/agents")
	v.SetDefault("probes.agent_stale_after", 2*time.Minute)
	v.SetDefault("probes.processes_limit", 20)
	v.SetDefault("probes.system_timeout", 5*time.Second)
	v.SetDefault("probes.services_timeout", 10*time.Second)
	v.SetDefault("probes.containers_timeout", 10*time.Second)
	v.SetDefault("probes.agents_timeout", 5*time.Second)
	v.SetDefault("probes.processes_timeout", 10*time.Second)

	v.SetDefault("snapshot.interval", 10*time.Second)

	v.SetDefault("alerts.interval", 30*time.Second)
	v.SetDefault("alerts.cooldown_minutes", 30)

	v.SetDefault("history.interval", 5*time.Minute)
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.backend", "jsonl")
	v.SetDefault("history.path", "./data/history.jsonl")

	v.SetDefault("notifier.telegram.token", "")
	v.SetDefault("notifier.telegram.chat_id", "")
	v.SetDefault("notifier.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("notifier.telegram.timeout", 10*time.Second)
}
