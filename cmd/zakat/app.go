package main

import (
	"context"
	"fmt"
	"time"

	"ZakatSentinel/internal/collector"
	"ZakatSentinel/internal/config"
	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/metrics"
	"ZakatSentinel/internal/nisab"
	"ZakatSentinel/internal/notifier"
	"ZakatSentinel/internal/recorder"
	"ZakatSentinel/internal/scheduler"
	"ZakatSentinel/internal/store"
	"ZakatSentinel/internal/tracker"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg      *config.Config
	store    *store.FileStore
	tracker  *tracker.Tracker
	nisab    *nisab.Provider
	telegram *notifier.TelegramNotifier
	recorder recorder.Recorder
	metrics  *metrics.Metrics
	sched    *scheduler.Scheduler
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, metrics: metrics.New()}

	a.store = store.NewFileStore(cfg.History.File)
	a.tracker = tracker.New(a.store, []byte(cfg.History.EncryptionKey), tracker.Options{
		LevyRate:       cfg.Dec(cfg.Levy.Rate),
		RequiredMonths: cfg.Levy.RequiredConsecutiveMonths,
		MaxMonths:      cfg.Levy.MaxHistoryMonths,
		CarriedMonths:  cfg.Levy.CarriedMonths,
	})
	a.nisab = nisab.NewProvider(cfg.Nisab.URLs, cfg.Dec(cfg.Nisab.Fallback), cfg.Dec(cfg.Nisab.Min), cfg.Dec(cfg.Nisab.Max), cfg.Proxy)

	col, err := buildCollector(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warnf("init sqlite recorder failed, using noop: %v", err)
			a.recorder = recorder.NewNoopRecorder()
		} else {
			a.recorder = sr
		}
	} else {
		a.recorder = recorder.NewNoopRecorder()
	}

	var n scheduler.Notifier = notifier.LogNotifier{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		n = a.telegram
	}

	a.sched = scheduler.NewScheduler(ctx, col, a.nisab, a.tracker, n, a.recorder, a.metrics, scheduler.Options{
		GroupID:        cfg.Group,
		Currency:       cfg.Currency,
		RequiredMonths: cfg.Levy.RequiredConsecutiveMonths,
		StateFile:      cfg.Schedule.StateFile,
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		log.Warnf("close recorder: %v", err)
	}
}

func buildCollector(cfg *config.Config) (*collector.Collector, error) {
	var sources []collector.Source
	for _, sc := range cfg.ActiveSources() {
		var f collector.Fetcher
		switch sc.Kind {
		case "http":
			f = collector.NewHTTPFetcher(sc.ID, sc.URL, sc.APIKey, cfg.Proxy)
		default:
			sf := &collector.StaticFetcher{ID: sc.ID, Currency: sc.Currency, Balance: cfg.Dec(sc.Balance)}
			if sc.AsOf != "" {
				d, err := hijri.ParseGregorian(sc.AsOf)
				if err != nil {
					return nil, fmt.Errorf("source %s: as_of: %w", sc.ID, err)
				}
				sf.PeriodEnd = d
			}
			f = sf
		}
		log.Infof("balance source: %s", f.Name())
		sources = append(sources, collector.Source{Fetcher: f, Rate: cfg.Dec(sc.Rate)})
	}
	return collector.NewCollector(cfg.Group, cfg.Dec(cfg.AdditionalAssets), sources...), nil
}

// parseAmount parses a non-negative decimal given on the command line.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must be a non-negative number", s)
	}
	return d, nil
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
