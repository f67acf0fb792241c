package recorder

import (
	"time"

	"ZakatSentinel/internal/model"
)

// RunEvent holds everything observed and decided in one monitoring run.
type RunEvent struct {
	RunID       string
	GroupID     string
	Observation model.Observation
	Balances    []model.SourceBalance
	Threshold   model.ThresholdSnapshot
	Verdict     model.Verdict
}

// FailureEvent records a run that stopped before a verdict was reached.
type FailureEvent struct {
	RunID   string
	GroupID string
	Stage   string // "COLLECT", "LOAD", "SAVE"
	Err     string
}

// PaymentEvent records a levy payment.
type PaymentEvent struct {
	GroupID string
	Date    time.Time
	Amount  string
}

// RunRow is a summarized run read back for display.
type RunRow struct {
	RunID         string
	Timestamp     time.Time
	GregorianDate string
	HijriYear     int
	HijriMonth    int
	TotalBalance  string
	Threshold     string
	Streak        int
	LevyDue       bool
	Status        string
}

// Recorder keeps an append-only audit trail. Unlike the ledger, which keeps
// one entry per lunar month, every run is preserved here, so restated
// balances remain traceable.
type Recorder interface {
	RecordRun(evt *RunEvent) error
	RecordFailure(evt *FailureEvent) error
	RecordPayment(evt *PaymentEvent) error
	RecentRuns(limit int) ([]RunRow, error)
	Close() error
}
