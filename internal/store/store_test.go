package store

import (
	"os"
	"path/filepath"
	"testing"

	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/ledger"
	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("correct horse battery staple")

func sampleLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	for m := 1; m <= 3; m++ {
		date, err := hijri.ToGregorian(hijri.Date{Year: 1446, Month: m, Day: 5})
		require.NoError(t, err)
		obs, err := model.NewObservation(date, decimal.NewFromInt(int64(25000+m)), "personal")
		require.NoError(t, err)
		l.Apply(obs, ledger.DefaultMaxMonths)
	}
	return l
}

func TestFileStore_LoadMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "history.enc"))
	l, err := s.Load(testKey)
	require.NoError(t, err)
	assert.Empty(t, l.Entries)
	assert.False(t, s.Exists())
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "data", "history.enc"))
	want := sampleLedger(t)
	require.NoError(t, s.Save(testKey, want))
	assert.True(t, s.Exists())

	got, err := s.Load(testKey)
	require.NoError(t, err)
	require.Len(t, got.Entries, len(want.Entries))
	for i := range want.Entries {
		assert.Equal(t, want.Entries[i].Hijri, got.Entries[i].Hijri)
		assert.True(t, want.Entries[i].Balance.Equal(got.Entries[i].Balance))
	}
}

func TestFileStore_FileIsEncryptedAndPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.enc")
	s := NewFileStore(path)
	require.NoError(t, s.Save(testKey, sampleLedger(t)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "total_balance")
	assert.NotContains(t, string(raw), "25001")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_WrongKey(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "history.enc"))
	require.NoError(t, s.Save(testKey, sampleLedger(t)))

	l, err := s.Load([]byte("not the key"))
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
	assert.Nil(t, l)

	l, err = s.Load(nil)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)
	assert.Nil(t, l)
}

func TestFileStore_TamperedOrTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.enc")
	s := NewFileStore(path)
	require.NoError(t, s.Save(testKey, sampleLedger(t)))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-3] ^= 0x01
	require.NoError(t, os.WriteFile(path, flipped, 0o600))
	_, err = s.Load(testKey)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)

	require.NoError(t, os.WriteFile(path, raw[:20], 0o600))
	_, err = s.Load(testKey)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed)

	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":1,"entries":[]}`), 0o600))
	_, err = s.Load(testKey)
	assert.ErrorIs(t, err, model.ErrDecryptionFailed, "plaintext files are rejected")
}

func TestFileStore_DecryptableButCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.enc")
	envelope, err := seal(testKey, []byte(`{"entries": "nope"}`))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, envelope, 0o600))

	_, err = NewFileStore(path).Load(testKey)
	assert.ErrorIs(t, err, model.ErrCorruptHistory)
	assert.NotErrorIs(t, err, model.ErrDecryptionFailed)
}

func TestFileStore_SaveWithoutKeyWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.enc")
	s := NewFileStore(path)
	err := s.Save(nil, sampleLedger(t))
	assert.ErrorIs(t, err, ErrNoKey)
	assert.False(t, s.Exists())
}

func TestFileStore_SaveReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "history.enc"))
	require.NoError(t, s.Save(testKey, sampleLedger(t)))
	require.NoError(t, s.Save(testKey, ledger.New()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")

	got, err := s.Load(testKey)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)
}

func TestFileStore_Reset(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "history.enc"))
	require.NoError(t, s.Save(testKey, sampleLedger(t)))
	require.NoError(t, s.Reset())
	assert.False(t, s.Exists())
	require.NoError(t, s.Reset())
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
