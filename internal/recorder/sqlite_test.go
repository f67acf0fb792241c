package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"ZakatSentinel/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRecorder_RunsAndFailures(t *testing.T) {
	r := openRecorder(t)

	obs, err := model.NewObservation(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("25000"), "combined")
	require.NoError(t, err)
	runID := uuid.NewString()
	require.NoError(t, r.RecordRun(&RunEvent{
		RunID:       runID,
		GroupID:     "combined",
		Observation: obs,
		Balances: []model.SourceBalance{
			{SourceID: "bam", Currency: "BAM", Original: decimal.NewFromInt(15000), Rate: decimal.NewFromInt(1), Converted: decimal.NewFromInt(15000)},
			{SourceID: "eur", Currency: "EUR", Original: decimal.NewFromInt(5113), Rate: decimal.RequireFromString("1.95583"), Converted: decimal.NewFromInt(10000)},
		},
		Threshold: model.ThresholdSnapshot{Value: decimal.NewFromInt(24654), Provenance: model.ProvenanceFetched},
		Verdict: model.Verdict{
			IsAboveThreshold:       true,
			ConsecutiveMonthsAbove: 12,
			LevyDue:                true,
			LevyAmount:             decimal.RequireFromString("625"),
			TotalBalance:           decimal.NewFromInt(25000),
		},
	}))
	require.NoError(t, r.RecordFailure(&FailureEvent{RunID: uuid.NewString(), GroupID: "combined", Stage: "LOAD", Err: "decryption failed"}))

	var sources int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM source_balances WHERE run_id = ?`, runID).Scan(&sources))
	assert.Equal(t, 2, sources)

	runs, err := r.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "FAILED", runs[0].Status)
	ok := runs[1]
	assert.Equal(t, runID, ok.RunID)
	assert.Equal(t, "OK", ok.Status)
	assert.Equal(t, "2025-01-31", ok.GregorianDate)
	assert.Equal(t, 1446, ok.HijriYear)
	assert.Equal(t, 8, ok.HijriMonth)
	assert.Equal(t, 12, ok.Streak)
	assert.True(t, ok.LevyDue)
}

func TestSQLiteRecorder_Payments(t *testing.T) {
	r := openRecorder(t)
	require.NoError(t, r.RecordPayment(&PaymentEvent{GroupID: "combined", Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Amount: "625.00"}))

	var paidOn, amount string
	require.NoError(t, r.db.QueryRow(`SELECT paid_on, amount FROM payments`).Scan(&paidOn, &amount))
	assert.Equal(t, "2025-06-01", paidOn)
	assert.Equal(t, "625.00", amount)
}

func TestSQLiteRecorder_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	r, err := NewSQLiteRecorder(path)
	require.NoError(t, err)
	require.NoError(t, r.RecordFailure(&FailureEvent{RunID: "a", GroupID: "g", Stage: "COLLECT", Err: "x"}))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path)
	require.NoError(t, err)
	defer r.Close()
	runs, err := r.RecentRuns(5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordRun(&RunEvent{}))
	runs, err := r.RecentRuns(1)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}
