package model

import (
	"fmt"
	"time"

	"ZakatSentinel/internal/hijri"

	"github.com/shopspring/decimal"
)

// Observation is one dated balance snapshot for a source group.
type Observation struct {
	Date     time.Time
	Hijri    hijri.Date
	Balance  decimal.Decimal
	SourceID string
}

// NewObservation derives the Hijri date from date so the two can never disagree.
func NewObservation(date time.Time, balance decimal.Decimal, sourceID string) (Observation, error) {
	h, err := hijri.FromGregorian(date)
	if err != nil {
		return Observation{}, fmt.Errorf("observation for %q: %w", sourceID, err)
	}
	y, m, d := date.Date()
	return Observation{
		Date:     time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Hijri:    h,
		Balance:  balance,
		SourceID: sourceID,
	}, nil
}

// MonthIndex is the continuous lunar month number of the observation.
func (o Observation) MonthIndex() int { return o.Hijri.MonthIndex() }

// Payment marks a levy payment; the qualifying streak restarts after it.
type Payment struct {
	Date   time.Time
	Amount decimal.Decimal
}

// Statement is a single source's balance as reported upstream.
type Statement struct {
	SourceID  string
	Currency  string
	Balance   decimal.Decimal
	PeriodEnd time.Time // zero when the source has no statement date
}

// SourceBalance is a statement converted into the reporting currency.
type SourceBalance struct {
	SourceID  string
	Currency  string
	Original  decimal.Decimal
	Rate      decimal.Decimal
	Converted decimal.Decimal
	PeriodEnd time.Time
}
