package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SourceConfig describes one monitored balance source.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"` // "static" or "http"
	Currency string `yaml:"currency"`
	Rate     string `yaml:"rate"`
	Balance  string `yaml:"balance"` // static
	AsOf     string `yaml:"as_of"`   // static, optional statement date
	URL      string `yaml:"url"`     // http
	APIKey   string `yaml:"api_key"` // http
	Disabled bool   `yaml:"disabled"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Group            string         `yaml:"group"`
	Sources          []SourceConfig `yaml:"sources"`
	AdditionalAssets string         `yaml:"additional_assets"`
	Currency         string         `yaml:"currency"`
	Nisab            struct {
		URLs     []string `yaml:"urls"`
		Fallback string   `yaml:"fallback"`
		Min      string   `yaml:"min"`
		Max      string   `yaml:"max"`
	} `yaml:"nisab"`
	Levy struct {
		Rate                      string `yaml:"rate"`
		RequiredConsecutiveMonths int    `yaml:"required_consecutive_months"`
		MaxHistoryMonths          int    `yaml:"max_history_months"`
		// CarriedMonths: months already above nisab before monitoring began (0-11).
		CarriedMonths int `yaml:"carried_months"`
	} `yaml:"levy"`
	History struct {
		File          string `yaml:"file"`
		EncryptionKey string `yaml:"-"`
	} `yaml:"history"`
	Schedule struct {
		MonthlyCron string `yaml:"monthly_cron"`
		StateFile   string `yaml:"state_file"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`
	LogLevel string `yaml:"log_level"`
	Proxy    string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	cfg.History.EncryptionKey = strings.TrimSpace(os.Getenv("ZAKAT_ENCRYPTION_KEY"))
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("NISAB_FALLBACK"); v != "" {
		cfg.Nisab.Fallback = v
	}
	if v := os.Getenv("ADDITIONAL_ASSETS"); v != "" {
		cfg.AdditionalAssets = v
	}
	if v := os.Getenv("HISTORY_FILE"); v != "" {
		cfg.History.File = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CRON_MONTHLY"); v != "" {
		cfg.Schedule.MonthlyCron = v
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Defaults
	if cfg.Group == "" {
		cfg.Group = "combined"
	}
	if cfg.Currency == "" {
		cfg.Currency = "BAM"
	}
	if cfg.AdditionalAssets == "" {
		cfg.AdditionalAssets = "0"
	}
	if cfg.Nisab.Fallback == "" {
		cfg.Nisab.Fallback = "24624"
	}
	if cfg.Nisab.Min == "" {
		cfg.Nisab.Min = "5000"
	}
	if cfg.Nisab.Max == "" {
		cfg.Nisab.Max = "35000"
	}
	if cfg.Levy.Rate == "" {
		cfg.Levy.Rate = "0.025"
	}
	if cfg.Levy.RequiredConsecutiveMonths == 0 {
		cfg.Levy.RequiredConsecutiveMonths = 12
	}
	if cfg.Levy.MaxHistoryMonths == 0 {
		cfg.Levy.MaxHistoryMonths = 24
	}
	if cfg.History.File == "" {
		cfg.History.File = "data/history.enc"
	}
	if cfg.Schedule.MonthlyCron == "" {
		cfg.Schedule.MonthlyCron = "0 0 10 1 * *"
	}
	if cfg.Schedule.StateFile == "" {
		cfg.Schedule.StateFile = "data/scheduler_state.json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Kind == "" {
			cfg.Sources[i].Kind = "static"
		}
		if cfg.Sources[i].Rate == "" {
			cfg.Sources[i].Rate = "1"
		}
	}

	return cfg, nil
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if c.History.EncryptionKey == "" {
		return fmt.Errorf("ZAKAT_ENCRYPTION_KEY is required; refusing to run without an encrypted history")
	}
	for name, v := range map[string]string{
		"additional_assets": c.AdditionalAssets,
		"nisab.fallback":    c.Nisab.Fallback,
		"nisab.min":         c.Nisab.Min,
		"nisab.max":         c.Nisab.Max,
		"levy.rate":         c.Levy.Rate,
	} {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", name, v)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Dec(c.Nisab.Fallback).IsZero() {
		return fmt.Errorf("nisab.fallback must be positive")
	}
	if c.Dec(c.Levy.Rate).GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("levy.rate must be a fraction, got %s", c.Levy.Rate)
	}
	if c.Levy.RequiredConsecutiveMonths < 1 {
		return fmt.Errorf("levy.required_consecutive_months must be positive")
	}
	if c.Levy.MaxHistoryMonths < c.Levy.RequiredConsecutiveMonths {
		return fmt.Errorf("levy.max_history_months must be at least required_consecutive_months")
	}
	if c.Levy.CarriedMonths < 0 || c.Levy.CarriedMonths >= c.Levy.RequiredConsecutiveMonths {
		return fmt.Errorf("levy.carried_months must be between 0 and %d", c.Levy.RequiredConsecutiveMonths-1)
	}
	if len(c.ActiveSources()) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := map[string]bool{}
	for _, s := range c.ActiveSources() {
		if s.ID == "" {
			return fmt.Errorf("every source needs an id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if _, err := decimal.NewFromString(s.Rate); err != nil {
			return fmt.Errorf("source %s: rate %q is not a number", s.ID, s.Rate)
		}
		switch s.Kind {
		case "static":
			if _, err := decimal.NewFromString(s.Balance); err != nil {
				return fmt.Errorf("source %s: balance %q is not a number", s.ID, s.Balance)
			}
		case "http":
			if s.URL == "" {
				return fmt.Errorf("source %s: url is required", s.ID)
			}
		default:
			return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
		}
	}
	return nil
}

// ActiveSources returns the sources that are not disabled.
func (c *Config) ActiveSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Dec parses a decimal that Validate has already checked.
func (c *Config) Dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
