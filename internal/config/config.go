// Package config provides configuration management for watchpost.
package config

import (
	"time"

	"watchpost/internal/models"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Probes   ProbesConfig   `mapstructure:"probes" yaml:"probes"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Alerts   AlertsConfig   `mapstructure:"alerts" yaml:"alerts"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
	Notifier NotifierConfig `mapstructure:"notifier" yaml:"notifier"`
}

// ServerConfig contains the HTTP read surface settings.
type ServerConfig struct {
	Addr           string          `mapstructure:"addr" yaml:"addr" validate:"required"`
	AllowedOrigins []string        `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Auth           AuthConfig      `mapstructure:"auth" yaml:"auth"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// AuthConfig controls bearer-token protection of /api and /ws.
type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Secret      string        `mapstructure:"secret" yaml:"secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry" yaml:"token_expiry"`
}

// RateLimitConfig is the per-IP token bucket.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps" validate:"gt=0"`
	Burst int     `mapstructure:"burst" yaml:"burst" validate:"gte=1"`
}

// LoggingConfig contains configurations for logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

// CacheConfig controls the revalidating cache in front of the probes.
type CacheConfig struct {
	TTLMs            int           `mapstructure:"ttl_ms" yaml:"ttl_ms" validate:"gte=1"`
	WarmStart        bool          `mapstructure:"warm_start" yaml:"warm_start"`
	WarmStartTimeout time.Duration `mapstructure:"warm_start_timeout" yaml:"warm_start_timeout"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// ProbesConfig contains the data source settings and per-probe timeouts.
type ProbesConfig struct {
	DiskPath          string        `mapstructure:"disk_path" yaml:"disk_path" validate:"required"`
	Services          []string      `mapstructure:"services" yaml:"services"`
	DockerSocket      string        `mapstructure:"docker_socket" yaml:"docker_socket"`
	AgentsDir         string        `mapstructure:"agents_dir" yaml:"agents_dir"`
	AgentStaleAfter   time.Duration `mapstructure:"agent_stale_after" yaml:"agent_stale_after"`
	ProcessesLimit    int           `mapstructure:"processes_limit" yaml:"processes_limit" validate:"gte=0"`
	SystemTimeout     time.Duration `mapstructure:"system_timeout" yaml:"system_timeout"`
	ServicesTimeout   time.Duration `mapstructure:"services_timeout" yaml:"services_timeout"`
	ContainersTimeout time.Duration `mapstructure:"containers_timeout" yaml:"containers_timeout"`
	AgentsTimeout     time.Duration `mapstructure:"agents_timeout" yaml:"agents_timeout"`
	ProcessesTimeout  time.Duration `mapstructure:"processes_timeout" yaml:"processes_timeout"`
}

// SnapshotConfig controls how often the snapshot bus is republished.
type SnapshotConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// AlertsConfig holds the rule set and the evaluation cadence.
type AlertsConfig struct {
	Interval        time.Duration      `mapstructure:"interval" yaml:"interval"`
	CooldownMinutes int                `mapstructure:"cooldown_minutes" yaml:"cooldown_minutes" validate:"gte=0"`
	Rules           []models.AlertRule `mapstructure:"rules" yaml:"rules"`
}

// Cooldown returns the per-rule cooldown as a duration.
func (a AlertsConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownMinutes) * time.Minute
}

// HistoryConfig controls the time-series store.
type HistoryConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
	Backend   string        `mapstructure:"backend" yaml:"backend" validate:"oneof=jsonl sqlite"`
	Path      string        `mapstructure:"path" yaml:"path" validate:"required"`
}

// NotifierConfig selects the alert delivery transport.
type NotifierConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// TelegramConfig contains the Telegram Bot API credentials.
type TelegramConfig struct {
	Token   string        `mapstructure:"token" yaml:"token"`
	ChatID  string        `mapstructure:"chat_id" yaml:"chat_id"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}
