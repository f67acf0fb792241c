package collector

import (
	"context"
	"time"

	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// StaticFetcher returns a fixed balance. Used for manually maintained
// holdings and for tests.
type StaticFetcher struct {
	ID        string
	Currency  string
	Balance   decimal.Decimal
	PeriodEnd time.Time
	Err       error
}

func (s *StaticFetcher) Name() string { return "static:" + s.ID }

func (s *StaticFetcher) FetchBalance(_ context.Context) (*model.Statement, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &model.Statement{
		SourceID:  s.ID,
		Currency:  s.Currency,
		Balance:   s.Balance,
		PeriodEnd: s.PeriodEnd,
	}, nil
}
