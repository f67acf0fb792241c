package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect_SumsConvertedBalances(t *testing.T) {
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	c := NewCollector("combined", decimal.NewFromInt(1000),
		Source{Fetcher: &StaticFetcher{ID: "bam", Currency: "BAM", Balance: decimal.RequireFromString("10000.50"), PeriodEnd: end}},
		Source{Fetcher: &StaticFetcher{ID: "eur", Currency: "EUR", Balance: decimal.RequireFromString("5000")}, Rate: decimal.RequireFromString("1.95583")},
	)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Balances, 2)
	assert.Equal(t, "9779.15", snap.Balances[1].Converted.StringFixed(2))
	assert.Equal(t, "20779.65", snap.Total.StringFixed(2))
	assert.True(t, snap.Date.Equal(end))

	obs, err := c.Observation(snap)
	require.NoError(t, err)
	assert.Equal(t, "combined", obs.SourceID)
	assert.Equal(t, 1446, obs.Hijri.Year)
	assert.Equal(t, 8, obs.Hijri.Month)
}

func TestCollect_FallsBackToRunDate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector("personal", decimal.Zero, Source{Fetcher: &StaticFetcher{ID: "cash", Balance: decimal.NewFromInt(1)}})
	c.Now = func() time.Time { return now }

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Date.Equal(now))
}

func TestCollect_FailingSourceFailsRun(t *testing.T) {
	c := NewCollector("combined", decimal.Zero,
		Source{Fetcher: &StaticFetcher{ID: "ok", Balance: decimal.NewFromInt(1)}},
		Source{Fetcher: &StaticFetcher{ID: "down", Err: errors.New("imap timeout")}},
	)
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static:down")
}

func TestCollect_NoSources(t *testing.T) {
	_, err := NewCollector("combined", decimal.Zero).Collect(context.Background())
	assert.Error(t, err)
}

func TestHTTPFetcher_FetchBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance":"12345.67","currency":"BAM","period_end":"31.01.2025"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("company", srv.URL, "secret", "")
	st, err := f.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "company", st.SourceID)
	assert.Equal(t, "BAM", st.Currency)
	assert.Equal(t, "12345.67", st.Balance.String())
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), st.PeriodEnd)
}

func TestHTTPFetcher_NumericBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance": 99.5}`))
	}))
	defer srv.Close()

	st, err := NewHTTPFetcher("x", srv.URL, "", "").FetchBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Balance.Equal(decimal.RequireFromString("99.5")))
	assert.True(t, st.PeriodEnd.IsZero())
}

func TestHTTPFetcher_Errors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		},
		"missing balance": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"currency":"BAM"}`))
		},
		"bad date": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"balance":"1","period_end":"soon"}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewHTTPFetcher("x", srv.URL, "", "").FetchBalance(context.Background())
			assert.Error(t, err)
		})
	}
}
