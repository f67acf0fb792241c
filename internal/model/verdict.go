package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provenance tells where a threshold value came from.
type Provenance string

const (
	ProvenanceFetched  Provenance = "fetched"
	ProvenanceFallback Provenance = "fallback"
)

// ThresholdSnapshot is the nisab value for the current run. Never persisted by the core.
type ThresholdSnapshot struct {
	Value      decimal.Decimal
	Provenance Provenance
	Source     string
	FetchedAt  time.Time
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	IsAboveThreshold       bool            `json:"is_above_threshold"`
	ConsecutiveMonthsAbove int             `json:"consecutive_months_above"`
	LevyDue                bool            `json:"levy_due"`
	LevyAmount             decimal.Decimal `json:"levy_amount"`
	TotalBalance           decimal.Decimal `json:"total_balance"`
}
