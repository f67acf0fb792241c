// Package ledger keeps the bounded, month-keyed balance history.
package ledger

import (
	"sort"

	"ZakatSentinel/internal/model"
)

const (
	// DefaultMaxMonths is twice the holding period, so late or missed runs
	// never lose the ability to recompute the trailing year.
	DefaultMaxMonths = 24
	// MaxPayments bounds the payment markers kept alongside the entries.
	MaxPayments = 24
)

// Ledger is the persisted history of one source group.
type Ledger struct {
	Entries  []model.Observation
	Payments []model.Payment
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Merge replaces the entry for obs's lunar month, or appends one, and
// returns the result sorted by month. The input slice is left untouched.
func Merge(entries []model.Observation, obs model.Observation) []model.Observation {
	out := make([]model.Observation, 0, len(entries)+1)
	for _, e := range entries {
		if e.Hijri.SameMonth(obs.Hijri) {
			continue
		}
		out = append(out, e)
	}
	out = append(out, obs)
	Sort(out)
	return out
}

// Prune keeps the most recent maxCount entries by month. maxCount <= 0 keeps everything.
func Prune(entries []model.Observation, maxCount int) []model.Observation {
	if maxCount <= 0 || len(entries) <= maxCount {
		return entries
	}
	sorted := make([]model.Observation, len(entries))
	copy(sorted, entries)
	Sort(sorted)
	return sorted[len(sorted)-maxCount:]
}

// Sort orders entries ascending by (hijri_year, hijri_month).
func Sort(entries []model.Observation) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].MonthIndex() < entries[j].MonthIndex()
	})
}

// Apply merges obs into the ledger and prunes it to maxMonths.
func (l *Ledger) Apply(obs model.Observation, maxMonths int) {
	l.Entries = Prune(Merge(l.Entries, obs), maxMonths)
}

// Latest returns the most recent entry.
func (l *Ledger) Latest() (model.Observation, bool) {
	if len(l.Entries) == 0 {
		return model.Observation{}, false
	}
	sorted := make([]model.Observation, len(l.Entries))
	copy(sorted, l.Entries)
	Sort(sorted)
	return sorted[len(sorted)-1], true
}

// RecordPayment appends a payment marker, keeping markers in date order.
func (l *Ledger) RecordPayment(p model.Payment) {
	l.Payments = append(l.Payments, p)
	sort.SliceStable(l.Payments, func(i, j int) bool {
		return l.Payments[i].Date.Before(l.Payments[j].Date)
	})
	if len(l.Payments) > MaxPayments {
		l.Payments = l.Payments[len(l.Payments)-MaxPayments:]
	}
}

// LastPayment returns the most recent payment marker.
func (l *Ledger) LastPayment() (model.Payment, bool) {
	if len(l.Payments) == 0 {
		return model.Payment{}, false
	}
	return l.Payments[len(l.Payments)-1], true
}
