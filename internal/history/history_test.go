package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	return s
}

func TestStoreAppendAndLoad(t *testing.T) {
	s := openTestStore(t)

	opening := Entry{
		Time:   time.Now().UTC(),
		Symbol: "41",
		Side:   "BUY",
		Qty:    decimal.NewFromInt(10),
		Price:  decimal.RequireFromString("2000.5"),
	}
	closing := Entry{
		Time:        time.Now().UTC(),
		Symbol:      "41",
		Side:        "SELL",
		Qty:         decimal.NewFromInt(10),
		Price:       decimal.RequireFromString("2010.5"),
		RealizedPnL: decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true},
		OrdType:     "2",
	}
	require.NoError(t, s.Append(&opening))
	require.NoError(t, s.Append(&closing))

	entries, err := s.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Append order is preserved; the opening fill has no realized PnL.
	assert.Equal(t, "BUY", entries[0].Side)
	assert.False(t, entries[0].RealizedPnL.Valid)
	assert.True(t, entries[0].Price.Equal(decimal.RequireFromString("2000.5")))

	assert.Equal(t, "SELL", entries[1].Side)
	require.True(t, entries[1].RealizedPnL.Valid)
	assert.True(t, entries[1].RealizedPnL.Decimal.Equal(decimal.NewFromInt(100)))
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(&Entry{
		Time: time.Now().UTC(), Symbol: "1", Side: "BUY",
		Qty: decimal.NewFromInt(1000), Price: decimal.RequireFromString("1.1000"),
	}))

	reopened, err := Open(path)
	require.NoError(t, err)
	entries, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].Symbol)
}

func TestStoreLoadEmpty(t *testing.T) {
	s := openTestStore(t)
	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
