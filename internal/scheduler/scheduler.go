package scheduler

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"ZakatSentinel/internal/collector"
	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/ledger"
	"ZakatSentinel/internal/metrics"
	"ZakatSentinel/internal/model"
	"ZakatSentinel/internal/notifier"
	"ZakatSentinel/internal/recorder"
	"ZakatSentinel/internal/tracker"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// BalanceCollector gathers the combined balance for a run.
type BalanceCollector interface {
	Collect(ctx context.Context) (*collector.Snapshot, error)
	Observation(snap *collector.Snapshot) (model.Observation, error)
}

// ThresholdProvider supplies the nisab for a run.
type ThresholdProvider interface {
	Current(ctx context.Context) model.ThresholdSnapshot
}

// Tracker is the persisted eligibility state.
type Tracker interface {
	Record(obs model.Observation, threshold model.ThresholdSnapshot) (*tracker.Result, error)
	Evaluate(threshold decimal.Decimal) (model.Verdict, *ledger.Ledger, error)
	MarkPaid(date time.Time, amount decimal.Decimal) error
	History() (*ledger.Ledger, error)
}

// Notifier delivers reports.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Options configures report content and state persistence.
type Options struct {
	GroupID        string
	Currency       string
	RequiredMonths int
	StateFile      string
}

// Scheduler owns the monthly job and every entry point that runs an analysis.
type Scheduler struct {
	Cron      *cron.Cron
	Collector BalanceCollector
	Nisab     ThresholdProvider
	Tracker   Tracker
	Notifier  Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics
	Opts      Options
	Ctx       context.Context
	Now       func() time.Time

	mu   sync.RWMutex
	last *Outcome
	wg   sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, col BalanceCollector, np ThresholdProvider, tr Tracker, n Notifier, rec recorder.Recorder, m *metrics.Metrics, opts Options) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Nisab:     np,
		Tracker:   tr,
		Notifier:  n,
		Recorder:  rec,
		Metrics:   m,
		Opts:      opts,
		Ctx:       ctx,
		Now:       time.Now,
	}
}

// Register adds the monthly analysis job.
func (s *Scheduler) Register(monthlyCron string) error {
	if _, err := s.Cron.AddFunc(monthlyCron, s.monthlyTask); err != nil {
		return fmt.Errorf("register monthly task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs, including a
// recovery run started by StartRecovery.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	log.Info("scheduler stopped")
}

// StartRecovery runs RecoverMissedRun in the background. Stop waits for it.
func (s *Scheduler) StartRecovery() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RecoverMissedRun()
	}()
}

// MissedRun reports whether the current lunar month has no successful run yet.
func (s *Scheduler) MissedRun() (bool, error) {
	state, err := LoadState(s.Opts.StateFile)
	if err != nil {
		// A rerun only restates this month's entry, skipping one loses it.
		log.Warnf("unreadable run state, treating this month as missed: %v", err)
		return true, nil
	}
	if state.LastRun.IsZero() {
		return true, nil
	}
	last, err := hijri.FromGregorian(state.LastRun)
	if err != nil {
		return true, nil
	}
	now, err := hijri.FromGregorian(s.Now())
	if err != nil {
		return false, err
	}
	return !last.SameMonth(now), nil
}

// RecoverMissedRun runs the analysis immediately when this month's run was missed.
func (s *Scheduler) RecoverMissedRun() {
	missed, err := s.MissedRun()
	if err != nil {
		log.Warnf("read run state: %v", err)
		return
	}
	if !missed {
		log.Info("this lunar month is already analyzed")
		return
	}
	log.Info("no run yet this lunar month, running now")
	s.monthlyTask()
}

func (s *Scheduler) monthlyTask() {
	log.Info("running monthly analysis")
	if _, err := s.RunNow(s.Ctx); err != nil {
		log.Errorf("monthly analysis: %v", err)
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.Usage()
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/status":
		if o := s.Last(); o != nil {
			return notifier.FormatVerdictReport(s.report(o))
		}
		th := s.Nisab.Current(s.Ctx)
		v, l, err := s.Tracker.Evaluate(th.Value)
		if err != nil {
			return notifier.FormatFailure(tracker.StageLoad, err)
		}
		latest, ok := l.Latest()
		if !ok {
			return "No observations recorded yet. Send /run to analyze now."
		}
		return notifier.FormatVerdictReport(notifier.Report{
			Observation: latest, Threshold: th, Verdict: v,
			RequiredMonths: s.Opts.RequiredMonths, Currency: s.Opts.Currency,
		})
	case "/history":
		l, err := s.Tracker.History()
		if err != nil {
			return notifier.FormatFailure(tracker.StageLoad, err)
		}
		th := s.Nisab.Current(s.Ctx)
		return notifier.FormatHistory(l.Entries, l.Payments, th.Value, s.Opts.Currency)
	case "/run":
		if _, err := s.RunNow(s.Ctx); err != nil {
			return "Run failed: " + html.EscapeString(err.Error())
		}
		return ""
	default:
		return notifier.Usage()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Errorf("send notification: %v", err)
	}
}
