package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TALLY_"

// Storage backends.
const (
	StorageJSONFile = "jsonfile"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

// Config represents the top-level application config.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Log         LogConfig         `koanf:"log"`
	Tracking    TrackingConfig    `koanf:"tracking"`
	Period      PeriodConfig      `koanf:"period"`
	Storage     StorageConfig     `koanf:"storage"`
	Rollover    RolloverConfig    `koanf:"rollover"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"`      // debug | release
	APIToken      string `koanf:"api_token"` // bearer token for POST /v1/commands; empty disables the check
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // text | json
}

type TrackingConfig struct {
	ChannelID    string   `koanf:"channel_id"`
	AdminIDs     []string `koanf:"admin_ids"`
	IgnoreBots   bool     `koanf:"ignore_bots"`
	MaxClockSkew string   `koanf:"max_clock_skew"` // how far occurred_at may run ahead of the server clock
}

type PeriodConfig struct {
	Policy    string `koanf:"policy"`     // calendar | ordinal
	Timezone  string `koanf:"timezone"`   // IANA name or ±HH:MM
	WeekStart string `koanf:"week_start"` // weekday[@hour]
}

type StorageConfig struct {
	Type         string `koanf:"type"`
	Path         string `koanf:"path"` // jsonfile, sqlite
	DSN          string `koanf:"dsn"`  // postgres
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisKey      string `koanf:"redis_key"`

	// InitFresh starts from an empty state when the stored document is
	// corrupt. The corrupt document is preserved where the backend allows.
	InitFresh bool `koanf:"init_fresh"`
}

type RolloverConfig struct {
	SweepEnabled  bool   `koanf:"sweep_enabled"`
	SweepInterval string `koanf:"sweep_interval"` // parsed and validated on startup
}

type LeaderboardConfig struct {
	DefaultTop int `koanf:"default_top"`
}

// Build returns the configured period policy.
func (c PeriodConfig) Build() (period.Policy, error) {
	loc, err := period.LoadLocation(c.Timezone)
	if err != nil {
		return nil, err
	}
	start, err := period.ParseWeekStart(c.WeekStart)
	if err != nil {
		return nil, err
	}
	return period.New(c.Policy, loc, start)
}

func (c RolloverConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// ClockSkew returns tracking.max_clock_skew, falling back to five minutes.
func (c TrackingConfig) ClockSkew() time.Duration {
	d, err := time.ParseDuration(c.MaxClockSkew)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// SlogLevel maps log.level to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}

	if strings.TrimSpace(c.Tracking.ChannelID) == "" {
		return fmt.Errorf("tracking.channel_id is required")
	}
	if skew, err := time.ParseDuration(c.Tracking.MaxClockSkew); err != nil {
		return fmt.Errorf("invalid tracking.max_clock_skew %q: %w", c.Tracking.MaxClockSkew, err)
	} else if skew <= 0 {
		return fmt.Errorf("tracking.max_clock_skew must be > 0")
	}

	if _, err := c.Period.Build(); err != nil {
		return fmt.Errorf("invalid period config: %w", err)
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Rollover.SweepEnabled {
		interval, err := time.ParseDuration(c.Rollover.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid rollover.sweep_interval %q: %w", c.Rollover.SweepInterval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("rollover.sweep_interval must be > 0")
		}
	}

	if c.Leaderboard.DefaultTop < 1 || c.Leaderboard.DefaultTop > 100 {
		return fmt.Errorf("invalid leaderboard.default_top %d (must be 1-100)", c.Leaderboard.DefaultTop)
	}

	return nil
}

func (c StorageConfig) validate() error {
	switch c.Type {
	case StorageJSONFile, StorageSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("storage.path is required for storage.type %s", c.Type)
		}
	case StoragePostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for storage.type postgres")
		}
		if c.MaxOpenConns <= 0 {
			return fmt.Errorf("storage.max_open_conns must be > 0")
		}
		if c.MaxIdleConns <= 0 {
			return fmt.Errorf("storage.max_idle_conns must be > 0")
		}
	case StorageRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("storage.redis_addr is required for storage.type redis")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported storage.type %q", c.Type)
	}
	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"server.api_token":        "",
		"log.level":               "info",
		"log.format":              "text",
		"tracking.channel_id":     "",
		"tracking.admin_ids":      []string{},
		"tracking.ignore_bots":    true,
		"tracking.max_clock_skew": "5m",
		"period.policy":           period.PolicyCalendar,
		"period.timezone":         "UTC",
		"period.week_start":       "monday",
		"storage.type":            StorageJSONFile,
		"storage.path":            "./data/db.json",
		"storage.dsn":             "",
		"storage.max_open_conns":  5,
		"storage.max_idle_conns":  5,
		"storage.auto_migrate":    true,
		"storage.redis_addr":      "localhost:6379",
		"storage.redis_password":  "",
		"storage.redis_db":        0,
		"storage.redis_key":       "tally:state",
		"storage.init_fresh":      false,
		"rollover.sweep_enabled":  true,
		"rollover.sweep_interval": "1m",
		"leaderboard.default_top": 10,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envValue maps TALLY_SECTION__KEY to section.key. List-valued keys take
// comma-separated values.
func envValue(key, value string) (string, interface{}) {
	key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".", -1)
	if key == "tracking.admin_ids" {
		var ids []string
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return key, ids
	}
	return key, value
}
