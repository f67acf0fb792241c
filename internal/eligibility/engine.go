// Package eligibility decides whether the levy is due from a balance history.
package eligibility

import (
	"time"

	"ZakatSentinel/internal/ledger"
	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Policy carries the configuration an evaluation runs under.
type Policy struct {
	LevyRate       decimal.Decimal
	RequiredMonths int
	// CarriedMonths is compliance known from before monitoring started (0-11).
	CarriedMonths int
	// CycleStart is the latest levy payment; entries on or before it do not count.
	CycleStart time.Time
}

// DefaultPolicy is 2.5% after 12 consecutive lunar months.
func DefaultPolicy() Policy {
	return Policy{
		LevyRate:       decimal.RequireFromString("0.025"),
		RequiredMonths: 12,
	}
}

// Evaluate computes the verdict for the most recent entry.
//
// The streak counts backward from the latest entry while balances stay at or
// above the threshold and each step back is exactly one lunar month. A
// missing month breaks the streak just like a low balance does.
func Evaluate(entries []model.Observation, threshold decimal.Decimal, p Policy) model.Verdict {
	if len(entries) == 0 {
		return model.Verdict{LevyAmount: decimal.Zero, TotalBalance: decimal.Zero}
	}

	sorted := make([]model.Observation, len(entries))
	copy(sorted, entries)
	ledger.Sort(sorted)
	latest := sorted[len(sorted)-1]

	streak := 0
	reachedStart := false
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		if !p.CycleStart.IsZero() && !e.Date.After(p.CycleStart) {
			break
		}
		if e.Balance.LessThan(threshold) {
			break
		}
		if i < len(sorted)-1 && sorted[i+1].MonthIndex()-e.MonthIndex() != 1 {
			break
		}
		streak++
		if i == 0 {
			reachedStart = true
		}
	}

	// The carried months end where recorded history begins, so they only
	// extend a streak that reaches back to the first recorded entry.
	if p.CarriedMonths > 0 && streak > 0 && reachedStart && p.CycleStart.IsZero() {
		if carried := p.CarriedMonths + streak - 1; carried > streak {
			streak = carried
		}
	}

	v := model.Verdict{
		IsAboveThreshold:       latest.Balance.GreaterThanOrEqual(threshold),
		ConsecutiveMonthsAbove: streak,
		LevyDue:                streak >= p.RequiredMonths,
		LevyAmount:             decimal.Zero,
		TotalBalance:           latest.Balance,
	}
	if v.LevyDue {
		v.LevyAmount = latest.Balance.Mul(p.LevyRate).Round(2)
	}
	return v
}

// MonthsRemaining is how many more qualifying months are needed before the levy is due.
func MonthsRemaining(v model.Verdict, p Policy) int {
	if v.LevyDue {
		return 0
	}
	return p.RequiredMonths - v.ConsecutiveMonthsAbove
}
