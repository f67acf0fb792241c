package tracker

import (
	"errors"
	"path/filepath"
	"testing"

	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/ledger"
	"ZakatSentinel/internal/model"
	"ZakatSentinel/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var key = []byte("tracker-test-key")

func threshold(v int64) model.ThresholdSnapshot {
	return model.ThresholdSnapshot{Value: decimal.NewFromInt(v), Provenance: model.ProvenanceFallback}
}

func observation(t *testing.T, year, month int, balance int64) model.Observation {
	t.Helper()
	date, err := hijri.ToGregorian(hijri.Date{Year: year, Month: month, Day: 15})
	require.NoError(t, err)
	obs, err := model.NewObservation(date, decimal.NewFromInt(balance), "combined")
	require.NoError(t, err)
	return obs
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(key []byte) (*ledger.Ledger, error) {
	args := m.Called(key)
	l, _ := args.Get(0).(*ledger.Ledger)
	return l, args.Error(1)
}

func (m *MockStore) Save(key []byte, l *ledger.Ledger) error {
	return m.Called(key, l).Error(0)
}

func TestRecord_TwelveMonthScenario(t *testing.T) {
	tr := New(store.NewFileStore(filepath.Join(t.TempDir(), "history.enc")), key, DefaultOptions())

	var res *Result
	var err error
	for m := 1; m <= 12; m++ {
		res, err = tr.Record(observation(t, 1446, m, 25000), threshold(24654))
		require.NoError(t, err)
	}
	assert.Equal(t, 12, res.Verdict.ConsecutiveMonthsAbove)
	assert.True(t, res.Verdict.LevyDue)
	assert.Equal(t, "625.00", res.Verdict.LevyAmount.StringFixed(2))

	l, err := tr.History()
	require.NoError(t, err)
	assert.Len(t, l.Entries, 12)
}

func TestRecord_SameMonthTwiceIsIdempotent(t *testing.T) {
	tr := New(store.NewFileStore(filepath.Join(t.TempDir(), "history.enc")), key, DefaultOptions())
	obs := observation(t, 1446, 4, 30000)

	_, err := tr.Record(obs, threshold(24654))
	require.NoError(t, err)
	res, err := tr.Record(obs, threshold(24654))
	require.NoError(t, err)
	assert.Len(t, res.Ledger.Entries, 1)
	assert.Equal(t, 1, res.Verdict.ConsecutiveMonthsAbove)
}

func TestRecord_RetentionBound(t *testing.T) {
	opts := DefaultOptions()
	tr := New(store.NewFileStore(filepath.Join(t.TempDir(), "history.enc")), key, opts)
	for i := 0; i < 30; i++ {
		_, err := tr.Record(observation(t, 1444+i/12, i%12+1, 30000), threshold(24654))
		require.NoError(t, err)
	}
	l, err := tr.History()
	require.NoError(t, err)
	assert.Len(t, l.Entries, opts.MaxMonths)
}

func TestRecord_LoadFailureSavesNothing(t *testing.T) {
	ms := new(MockStore)
	ms.On("Load", key).Return(nil, model.ErrDecryptionFailed)

	tr := New(ms, key, DefaultOptions())
	_, err := tr.Record(observation(t, 1446, 1, 1), threshold(10))
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageLoad, se.Stage)
	ms.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRecord_SaveFailureSurfaces(t *testing.T) {
	ms := new(MockStore)
	ms.On("Load", key).Return(ledger.New(), nil)
	ms.On("Save", key, mock.Anything).Return(errors.New("disk full"))

	tr := New(ms, key, DefaultOptions())
	res, err := tr.Record(observation(t, 1446, 1, 1), threshold(10))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSave, se.Stage)
	assert.EqualError(t, err, "save history: disk full")
	assert.Nil(t, res)
	ms.AssertExpectations(t)
}

func TestRecord_RejectsOverlappingRun(t *testing.T) {
	ms := new(MockStore)
	tr := New(ms, key, DefaultOptions())
	tr.mu.Lock()
	defer tr.mu.Unlock()

	_, err := tr.Record(observation(t, 1446, 1, 1), threshold(10))
	assert.ErrorIs(t, err, ErrRunInProgress)
	ms.AssertNotCalled(t, "Load", mock.Anything)
}

func TestMarkPaid_RestartsStreak(t *testing.T) {
	tr := New(store.NewFileStore(filepath.Join(t.TempDir(), "history.enc")), key, DefaultOptions())
	for m := 1; m <= 12; m++ {
		_, err := tr.Record(observation(t, 1446, m, 25000), threshold(24654))
		require.NoError(t, err)
	}
	last := observation(t, 1446, 12, 25000)
	require.NoError(t, tr.MarkPaid(last.Date, decimal.RequireFromString("625")))

	v, _, err := tr.Evaluate(decimal.NewFromInt(24654))
	require.NoError(t, err)
	assert.Zero(t, v.ConsecutiveMonthsAbove)
	assert.False(t, v.LevyDue)

	res, err := tr.Record(observation(t, 1447, 1, 25000), threshold(24654))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Verdict.ConsecutiveMonthsAbove)
}

func TestMarkPaid_InvalidDate(t *testing.T) {
	tr := New(new(MockStore), key, DefaultOptions())
	err := tr.MarkPaid(observation(t, 1446, 1, 0).Date.AddDate(-2000, 0, 0), decimal.Zero)
	assert.ErrorIs(t, err, model.ErrInvalidDate)
}

func TestEvaluate_WrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.enc")
	_, err := New(store.NewFileStore(path), key, DefaultOptions()).Record(observation(t, 1446, 1, 1), threshold(10))
	require.NoError(t, err)

	_, _, err = New(store.NewFileStore(path), []byte("other"), DefaultOptions()).Evaluate(decimal.NewFromInt(10))
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
}
