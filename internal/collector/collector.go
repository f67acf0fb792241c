package collector

import (
	"context"
	"fmt"
	"time"

	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source pairs a fetcher with the rate converting its currency into the
// reporting currency.
type Source struct {
	Fetcher Fetcher
	Rate    decimal.Decimal // zero means 1
}

// Snapshot is the combined balance of every source for one run.
type Snapshot struct {
	Balances         []model.SourceBalance
	AdditionalAssets decimal.Decimal
	Total            decimal.Decimal
	Date             time.Time
}

// Collector gathers balances from all configured sources.
type Collector struct {
	Sources          []Source
	AdditionalAssets decimal.Decimal
	GroupID          string
	Now              func() time.Time
}

// NewCollector creates a Collector for the given source group.
func NewCollector(groupID string, additional decimal.Decimal, sources ...Source) *Collector {
	return &Collector{
		Sources:          sources,
		AdditionalAssets: additional,
		GroupID:          groupID,
		Now:              time.Now,
	}
}

// Collect fetches every source concurrently and sums the converted balances.
// A single failing source fails the run: an unknown balance cannot be
// certified as above the threshold.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	if len(c.Sources) == 0 {
		return nil, fmt.Errorf("no balance sources configured")
	}

	statements := make([]*model.Statement, len(c.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.Sources {
		g.Go(func() error {
			st, err := src.Fetcher.FetchBalance(gctx)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.Fetcher.Name(), err)
			}
			statements[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{AdditionalAssets: c.AdditionalAssets, Total: c.AdditionalAssets}
	for i, st := range statements {
		rate := c.Sources[i].Rate
		if rate.IsZero() {
			rate = decimal.NewFromInt(1)
		}
		converted := st.Balance.Mul(rate).Round(2)
		snap.Balances = append(snap.Balances, model.SourceBalance{
			SourceID:  st.SourceID,
			Currency:  st.Currency,
			Original:  st.Balance,
			Rate:      rate,
			Converted: converted,
			PeriodEnd: st.PeriodEnd,
		})
		snap.Total = snap.Total.Add(converted)
		if st.PeriodEnd.After(snap.Date) {
			snap.Date = st.PeriodEnd
		}
	}
	if snap.Date.IsZero() {
		snap.Date = c.Now()
		log.Warnf("no statement date from any source, using run date %s", snap.Date.Format(time.DateOnly))
	}
	log.Infof("collected %d sources for %s", len(snap.Balances), c.GroupID)
	return snap, nil
}

// Observation turns the snapshot into the ledger's input.
func (c *Collector) Observation(snap *Snapshot) (model.Observation, error) {
	return model.NewObservation(snap.Date, snap.Total, c.GroupID)
}
