// Package tracker runs one eligibility evaluation against the persisted ledger.
package tracker

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ZakatSentinel/internal/eligibility"
	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/ledger"
	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ErrRunInProgress is returned when a second run overlaps the current one.
var ErrRunInProgress = errors.New("a run is already in progress")

// Persistence stages a run can fail in.
const (
	StageLoad = "LOAD"
	StageSave = "SAVE"
)

// StageError reports which persistence step failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s history: %v", strings.ToLower(e.Stage), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Store persists the ledger.
type Store interface {
	Load(key []byte) (*ledger.Ledger, error)
	Save(key []byte, l *ledger.Ledger) error
}

// Options configures a Tracker.
type Options struct {
	LevyRate       decimal.Decimal
	RequiredMonths int
	MaxMonths      int
	CarriedMonths  int
}

// DefaultOptions mirrors eligibility.DefaultPolicy with the default retention.
func DefaultOptions() Options {
	p := eligibility.DefaultPolicy()
	return Options{
		LevyRate:       p.LevyRate,
		RequiredMonths: p.RequiredMonths,
		MaxMonths:      ledger.DefaultMaxMonths,
	}
}

// Result is the outcome of Record.
type Result struct {
	Observation model.Observation
	Threshold   model.ThresholdSnapshot
	Verdict     model.Verdict
	Ledger      *ledger.Ledger
}

// Tracker serializes load -> merge -> evaluate -> save against one store.
type Tracker struct {
	mu    sync.Mutex
	store Store
	key   []byte
	opts  Options
}

// New creates a Tracker.
func New(store Store, key []byte, opts Options) *Tracker {
	return &Tracker{store: store, key: key, opts: opts}
}

// Record merges obs into the ledger, evaluates eligibility and persists the
// result. Nothing is saved if any step fails.
func (t *Tracker) Record(obs model.Observation, threshold model.ThresholdSnapshot) (*Result, error) {
	if !t.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer t.mu.Unlock()

	l, err := t.store.Load(t.key)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}

	l.Apply(obs, t.opts.MaxMonths)
	verdict := eligibility.Evaluate(l.Entries, threshold.Value, t.policy(l))

	if err := t.store.Save(t.key, l); err != nil {
		return nil, &StageError{Stage: StageSave, Err: err}
	}
	log.Infof("recorded %d-%02d AH for %s: streak=%d levy_due=%v",
		obs.Hijri.Year, obs.Hijri.Month, obs.SourceID, verdict.ConsecutiveMonthsAbove, verdict.LevyDue)

	return &Result{Observation: obs, Threshold: threshold, Verdict: verdict, Ledger: l}, nil
}

// Evaluate computes the verdict over the stored ledger without changing it.
func (t *Tracker) Evaluate(threshold decimal.Decimal) (model.Verdict, *ledger.Ledger, error) {
	l, err := t.History()
	if err != nil {
		return model.Verdict{}, nil, err
	}
	return eligibility.Evaluate(l.Entries, threshold, t.policy(l)), l, nil
}

// MarkPaid records a levy payment; the streak restarts after date.
func (t *Tracker) MarkPaid(date time.Time, amount decimal.Decimal) error {
	if _, err := hijri.FromGregorian(date); err != nil {
		return err
	}
	if !t.mu.TryLock() {
		return ErrRunInProgress
	}
	defer t.mu.Unlock()

	l, err := t.store.Load(t.key)
	if err != nil {
		return &StageError{Stage: StageLoad, Err: err}
	}
	y, m, d := date.Date()
	l.RecordPayment(model.Payment{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Amount: amount})
	if err := t.store.Save(t.key, l); err != nil {
		return &StageError{Stage: StageSave, Err: err}
	}
	log.Infof("recorded levy payment on %s", date.Format(time.DateOnly))
	return nil
}

// History loads the current ledger.
func (t *Tracker) History() (*ledger.Ledger, error) {
	l, err := t.store.Load(t.key)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	return l, nil
}

func (t *Tracker) policy(l *ledger.Ledger) eligibility.Policy {
	p := eligibility.Policy{
		LevyRate:       t.opts.LevyRate,
		RequiredMonths: t.opts.RequiredMonths,
		CarriedMonths:  t.opts.CarriedMonths,
	}
	if last, ok := l.LastPayment(); ok {
		p.CycleStart = last.Date
	}
	return p
}
