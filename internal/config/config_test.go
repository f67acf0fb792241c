package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
group: combined
currency: BAM
additional_assets: "1500"
sources:
  - id: bam
    kind: static
    currency: BAM
    balance: "20000"
  - id: eur
    kind: http
    currency: EUR
    rate: "1.95583"
    url: https://bank.example/api/balance
nisab:
  urls: [https://izbih.example/zekat]
  fallback: "24624"
levy:
  carried_months: 3
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("ZAKAT_ENCRYPTION_KEY", "  s3cret \n")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("HISTORY_FILE", "/tmp/h.enc")
	t.Setenv("NISAB_FALLBACK", "25000")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.History.EncryptionKey)
	assert.Equal(t, "tok", cfg.Telegram.BotToken)
	assert.Equal(t, "/tmp/h.enc", cfg.History.File)
	assert.Equal(t, "25000", cfg.Nisab.Fallback)
	assert.Equal(t, "0.025", cfg.Levy.Rate)
	assert.Equal(t, 12, cfg.Levy.RequiredConsecutiveMonths)
	assert.Equal(t, 24, cfg.Levy.MaxHistoryMonths)
	assert.Equal(t, 3, cfg.Levy.CarriedMonths)
	assert.Equal(t, "0 0 10 1 * *", cfg.Schedule.MonthlyCron)
	assert.Equal(t, "1", cfg.Sources[0].Rate)
	assert.Equal(t, "http", cfg.Sources[1].Kind)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ZAKAT_ENCRYPTION_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "combined", cfg.Group)
	assert.Equal(t, "data/history.enc", cfg.History.File)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "sources: [oops"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("ZAKAT_ENCRYPTION_KEY", "k")

	cases := map[string]func(c *Config){
		"no key":            func(c *Config) { c.History.EncryptionKey = "" },
		"no sources":        func(c *Config) { c.Sources = nil },
		"all disabled":      func(c *Config) { c.Sources[0].Disabled = true; c.Sources[1].Disabled = true },
		"duplicate id":      func(c *Config) { c.Sources[1].ID = "bam" },
		"bad balance":       func(c *Config) { c.Sources[0].Balance = "lots" },
		"http without url":  func(c *Config) { c.Sources[1].URL = "" },
		"unknown kind":      func(c *Config) { c.Sources[0].Kind = "imap" },
		"rate above one":    func(c *Config) { c.Levy.Rate = "2.5" },
		"negative assets":   func(c *Config) { c.AdditionalAssets = "-1" },
		"zero fallback":     func(c *Config) { c.Nisab.Fallback = "0" },
		"carried too large": func(c *Config) { c.Levy.CarriedMonths = 12 },
		"short retention":   func(c *Config) { c.Levy.MaxHistoryMonths = 6 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestActiveSources(t *testing.T) {
	cfg := &Config{Sources: []SourceConfig{{ID: "a"}, {ID: "b", Disabled: true}}}
	active := cfg.ActiveSources()
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)
}
