// Package config loads service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/costing-engine/costing"
)

// EnvPrefix prefixes every environment override, e.g. COSTING_ENGINE_HOLDING_RATE.
const EnvPrefix = "COSTING"

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Engine   EngineConfig
	Cache    CacheConfig
	HTTP     HTTPConfig
	Warmer   WarmerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig points at the SQLite audit trail.
type DatabaseConfig struct {
	Path string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// EngineConfig holds costing knobs.
type EngineConfig struct {
	HoldingRate       decimal.Decimal
	DefaultWindowDays int
	WriteOffsInCOGS   bool
	CancelCheckEvery  int
	Audit             bool
}

// CacheConfig holds Redis summary cache settings.
type CacheConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
}

// WarmerConfig controls periodic precomputation of default-window summaries.
type WarmerConfig struct {
	Enabled  bool
	Interval time.Duration
	// Scopes are "supplier" or "supplier/item" strings; empty means all stock.
	Scopes []string
}

// Load reads configuration. Priority (highest to lowest):
// 1. Environment variables with COSTING_ prefix (e.g. COSTING_DATABASE_PATH)
// 2. The file at path, or config.toml in the usual places when path is empty
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/costing-engine")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rate, err := decimal.NewFromString(strings.TrimSpace(v.GetString("engine.holding_rate")))
	if err != nil {
		return nil, fmt.Errorf("engine.holding_rate: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Engine: EngineConfig{
			HoldingRate:       rate,
			DefaultWindowDays: v.GetInt("engine.default_window_days"),
			WriteOffsInCOGS:   v.GetBool("engine.writeoffs_in_cogs"),
			CancelCheckEvery:  v.GetInt("engine.cancel_check_every"),
			Audit:             v.GetBool("engine.audit"),
		},
		Cache: CacheConfig{
			Enabled:  v.GetBool("cache.enabled"),
			Addr:     v.GetString("cache.addr"),
			Password: v.GetString("cache.password"),
			DB:       v.GetInt("cache.db"),
			TTL:      v.GetDuration("cache.ttl"),
			Prefix:   v.GetString("cache.prefix"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Warmer: WarmerConfig{
			Enabled:  v.GetBool("warmer.enabled"),
			Interval: v.GetDuration("warmer.interval"),
			Scopes:   v.GetStringSlice("warmer.scopes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "costing-engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.path", "./data/costing.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("engine.holding_rate", "0.25")
	v.SetDefault("engine.default_window_days", costing.DefaultWindowDays)
	v.SetDefault("engine.writeoffs_in_cogs", false)
	v.SetDefault("engine.cancel_check_every", costing.DefaultCheckEvery)
	v.SetDefault("engine.audit", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "costing:summary:")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_allow_origins", []string{"*"})

	v.SetDefault("warmer.enabled", false)
	v.SetDefault("warmer.interval", 10*time.Minute)
	v.SetDefault("warmer.scopes", []string{})
}

func (c *Config) validate() error {
	if c.Engine.HoldingRate.IsNegative() {
		return fmt.Errorf("engine.holding_rate must not be negative, got %s", c.Engine.HoldingRate)
	}
	if c.Engine.DefaultWindowDays <= 0 {
		return fmt.Errorf("engine.default_window_days must be positive, got %d", c.Engine.DefaultWindowDays)
	}
	if c.Engine.CancelCheckEvery <= 0 {
		return fmt.Errorf("engine.cancel_check_every must be positive, got %d", c.Engine.CancelCheckEvery)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.Warmer.Enabled && c.Warmer.Interval <= 0 {
		return fmt.Errorf("warmer.interval must be positive, got %s", c.Warmer.Interval)
	}
	if c.App.Port == "" {
		return errors.New("app.port is required")
	}
	return nil
}

// IsProduction reports whether app.env is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Policy converts the engine settings into a costing policy.
func (c *Config) Policy() costing.Policy {
	return costing.Policy{
		HoldingRate:     c.Engine.HoldingRate,
		WriteOffsInCOGS: c.Engine.WriteOffsInCOGS,
	}
}

// WarmerScopes parses Warmer.Scopes. An empty list warms the unscoped summary.
func (c *Config) WarmerScopes() []costing.Scope {
	if len(c.Warmer.Scopes) == 0 {
		return []costing.Scope{{}}
	}
	scopes := make([]costing.Scope, 0, len(c.Warmer.Scopes))
	for _, s := range c.Warmer.Scopes {
		supplier, item, _ := strings.Cut(s, "/")
		scopes = append(scopes, costing.Scope{SupplierID: supplier, ItemID: item}.Normalize())
	}
	return scopes
}
