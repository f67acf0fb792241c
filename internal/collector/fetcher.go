package collector

import (
	"context"

	"ZakatSentinel/internal/model"
)

// Fetcher retrieves the current balance of one monitored source.
type Fetcher interface {
	FetchBalance(ctx context.Context) (*model.Statement, error)
	Name() string
}
