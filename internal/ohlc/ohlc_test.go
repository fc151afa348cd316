package ohlc

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controlplane.db")
	s, err := store.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuildBucketsTicksIntoCandles(t *testing.T) {
	db := newTestStore(t)
	ticks := []struct {
		epoch int64
		price float64
	}{
		{1700000000, 100},
		{1700000030, 110},
		{1700000059, 105},
		{1700000061, 120},
	}
	for _, tk := range ticks {
		_, err := db.AppendTick(models.Tick{
			At:     time.Unix(tk.epoch, 0).UTC().Format(time.RFC3339),
			Market: "BTCUSDT",
			Price:  tk.price,
		})
		require.NoError(t, err)
	}

	candles, err := Build(db, "BTCUSDT", 60, 10)
	require.NoError(t, err)
	require.Equal(t, []models.Candle{
		{T: 1700000000, O: 100, H: 110, L: 100, C: 105},
		{T: 1700000060, O: 120, H: 120, L: 120, C: 120},
	}, candles)
}

func TestBuildUnknownMarketIsEmpty(t *testing.T) {
	db := newTestStore(t)
	candles, err := Build(db, "NOPE", 60, 10)
	require.NoError(t, err)
	require.Empty(t, candles)
}

func TestBucketizeInvariantLowHighBoundOHLC(t *testing.T) {
	ticks := []models.Tick{
		{AtEpoch: 0, Price: 10},
		{AtEpoch: 5, Price: 50},
		{AtEpoch: 9, Price: 1},
	}
	candles := bucketize(ticks, 60)
	require.Len(t, candles, 1)
	c := candles[0]
	require.LessOrEqual(t, c.L, c.O)
	require.LessOrEqual(t, c.L, c.C)
	require.GreaterOrEqual(t, c.H, c.O)
	require.GreaterOrEqual(t, c.H, c.C)
}

func TestClampIntervalBounds(t *testing.T) {
	require.Equal(t, minIntervalSec, ClampInterval(1))
	require.Equal(t, maxIntervalSec, ClampInterval(1_000_000))
	require.Equal(t, 60, ClampInterval(60))
}
