// Package config provides YAML-based configuration loading for Pressbox.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Pressbox configuration, loaded from config.yaml.
// Secrets (API keys, bot tokens) are never stored here; they come from the
// environment.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Sports     SportsConfig     `yaml:"sports"`
	Completion CompletionConfig `yaml:"completion"`
	Session    SessionConfig    `yaml:"session"`
	Cache      CacheConfig      `yaml:"cache"`
	Notify     NotifyConfig     `yaml:"notify"`
	Blueprint  []CategoryConfig `yaml:"blueprint"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds connection settings for the report archive.
type DatabaseConfig struct {
	Dialect  string `yaml:"dialect"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`    // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
}

// SportsConfig holds settings for the external sports-data API.
// The API key is read from the SPORTS_API_KEY environment variable.
type SportsConfig struct {
	BaseURL           string `yaml:"base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MaxAttempts       int    `yaml:"max_attempts"`
	FallbackSeason    int    `yaml:"fallback_season"`
}

// CompletionConfig holds settings for the LLM completion service.
// The API key is read from the COMPLETION_API_KEY environment variable.
type CompletionConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Workers     int     `yaml:"workers"`
}

// SessionConfig holds session store settings. Backend "redis" reads the
// connection URL from the REDIS_URL environment variable.
type SessionConfig struct {
	Backend    string `yaml:"backend"` // "memory" (default) or "redis"
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// CacheConfig holds TTL cache settings.
type CacheConfig struct {
	MaxEntries    int    `yaml:"max_entries"`
	SweepSchedule string `yaml:"sweep_schedule"` // 5-field cron expression
}

// NotifyConfig enables completion notices. Tokens come from SLACK_BOT_TOKEN
// and DISCORD_BOT_TOKEN; a channel left empty disables that notifier.
type NotifyConfig struct {
	SlackChannel   string `yaml:"slack_channel"`
	DiscordChannel string `yaml:"discord_channel"`
}

// CategoryConfig overrides one category of the built-in blueprint.
type CategoryConfig struct {
	ID      string         `yaml:"id"`
	Title   string         `yaml:"title"`
	Signals []SignalConfig `yaml:"signals"`
}

// SignalConfig declares one analysis signal and its data requirements.
type SignalConfig struct {
	Name     string   `yaml:"name"`
	Focus    string   `yaml:"focus"`
	Requires []string `yaml:"requires"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, for callers that run
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Dialect == "" {
		c.Database.Dialect = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "pressbox.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "pressbox"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Sports.BaseURL == "" {
		c.Sports.BaseURL = "https://v3.football.api-sports.io"
	}
	if c.Sports.RequestsPerMinute == 0 {
		c.Sports.RequestsPerMinute = 30
	}
	if c.Sports.MaxAttempts == 0 {
		c.Sports.MaxAttempts = 3
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if c.Completion.Model == "" {
		c.Completion.Model = "gpt-4o-mini"
	}
	if c.Completion.MaxTokens == 0 {
		c.Completion.MaxTokens = 2048
	}
	if c.Completion.Temperature == 0 {
		c.Completion.Temperature = 0.7
	}
	if c.Completion.Workers == 0 {
		c.Completion.Workers = 2
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTLMinutes == 0 {
		c.Session.TTLMinutes = 60
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.SweepSchedule == "" {
		c.Cache.SweepSchedule = "*/5 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Dialect {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.dialect %q must be sqlite or mysql", c.Database.Dialect))
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("session.backend %q must be memory or redis", c.Session.Backend))
	}
	if c.Sports.RequestsPerMinute < 0 {
		errs = append(errs, "sports.requests_per_minute must not be negative")
	}
	if c.Completion.Workers < 1 {
		errs = append(errs, "completion.workers must be at least 1")
	}
	for i, cat := range c.Blueprint {
		if cat.ID == "" {
			errs = append(errs, fmt.Sprintf("blueprint[%d].id is required", i))
		}
		if len(cat.Signals) == 0 {
			errs = append(errs, fmt.Sprintf("blueprint[%d].signals must not be empty", i))
		}
		for j, sig := range cat.Signals {
			if sig.Name == "" {
				errs = append(errs, fmt.Sprintf("blueprint[%d].signals[%d].name is required", i, j))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
