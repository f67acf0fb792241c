package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ZakatSentinel/internal/model"
	"ZakatSentinel/internal/notifier"
	"ZakatSentinel/internal/recorder"
	"ZakatSentinel/internal/tracker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// StageCollect marks failures before the ledger is touched.
const StageCollect = "COLLECT"

// Outcome is the result of one successful run.
type Outcome struct {
	RunID       string
	At          time.Time
	Observation model.Observation
	Balances    []model.SourceBalance
	Threshold   model.ThresholdSnapshot
	Verdict     model.Verdict
}

// RunNow performs collect -> nisab -> record -> audit -> notify.
// The encrypted ledger save inside Record is the only durability point;
// audit and notification failures are logged and do not fail the run.
func (s *Scheduler) RunNow(ctx context.Context) (*Outcome, error) {
	start := s.Now()
	runID := uuid.NewString()
	defer func() { s.Metrics.ObserveRunDuration(s.Now().Sub(start)) }()

	snap, err := s.Collector.Collect(ctx)
	s.Metrics.ObserveCollect(s.Opts.GroupID, s.Now().Sub(start))
	if err != nil {
		return nil, s.fail(runID, StageCollect, err)
	}
	obs, err := s.Collector.Observation(snap)
	if err != nil {
		return nil, s.fail(runID, StageCollect, err)
	}

	th := s.Nisab.Current(ctx)
	res, err := s.Tracker.Record(obs, th)
	if errors.Is(err, tracker.ErrRunInProgress) {
		s.Metrics.IncrementRun("busy")
		return nil, err
	}
	if err != nil {
		stage := tracker.StageSave
		var se *tracker.StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		return nil, s.fail(runID, stage, err)
	}

	out := &Outcome{
		RunID:       runID,
		At:          s.Now(),
		Observation: res.Observation,
		Balances:    snap.Balances,
		Threshold:   res.Threshold,
		Verdict:     res.Verdict,
	}
	s.mu.Lock()
	s.last = out
	s.mu.Unlock()

	s.Metrics.IncrementRun("ok")
	s.Metrics.SetVerdict(out.Verdict, out.Threshold, out.At)

	if err := s.Recorder.RecordRun(&recorder.RunEvent{
		RunID:       runID,
		GroupID:     s.Opts.GroupID,
		Observation: out.Observation,
		Balances:    out.Balances,
		Threshold:   out.Threshold,
		Verdict:     out.Verdict,
	}); err != nil {
		log.Errorf("record run: %v", err)
	}
	if s.Opts.StateFile != "" {
		if err := SaveState(s.Opts.StateFile, &RunState{LastRun: out.At, LastRunID: runID}); err != nil {
			log.Errorf("save run state: %v", err)
		}
	}

	s.trySend(notifier.FormatVerdictReport(s.report(out)))
	return out, nil
}

// MarkPaid records a settled levy in the ledger and the audit trail.
func (s *Scheduler) MarkPaid(date time.Time, amount decimal.Decimal) error {
	if err := s.Tracker.MarkPaid(date, amount); err != nil {
		return err
	}
	if err := s.Recorder.RecordPayment(&recorder.PaymentEvent{
		GroupID: s.Opts.GroupID,
		Date:    date,
		Amount:  amount.StringFixed(2),
	}); err != nil {
		log.Errorf("record payment: %v", err)
	}
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
	return nil
}

// Last returns the most recent successful outcome of this process, if any.
func (s *Scheduler) Last() *Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) fail(runID, stage string, err error) error {
	log.Errorf("run %s failed at %s: %v", runID, stage, err)
	s.Metrics.IncrementRun(fmt.Sprintf("%s_failed", strings.ToLower(stage)))
	if rerr := s.Recorder.RecordFailure(&recorder.FailureEvent{
		RunID:   runID,
		GroupID: s.Opts.GroupID,
		Stage:   stage,
		Err:     err.Error(),
	}); rerr != nil {
		log.Errorf("record failure: %v", rerr)
	}
	s.trySend(notifier.FormatFailure(stage, err))
	return err
}

func (s *Scheduler) report(o *Outcome) notifier.Report {
	return notifier.Report{
		Observation:    o.Observation,
		Balances:       o.Balances,
		Threshold:      o.Threshold,
		Verdict:        o.Verdict,
		RequiredMonths: s.Opts.RequiredMonths,
		Currency:       s.Opts.Currency,
	}
}
