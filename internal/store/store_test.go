package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/controlplane/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controlplane.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestControlDefaultsToActive(t *testing.T) {
	s := newTestStore(t)
	c, err := s.GetControl()
	require.NoError(t, err)
	require.Equal(t, models.StateActive, c.State)
}

func TestAppendTickAndTailAscending(t *testing.T) {
	s := newTestStore(t)
	for _, price := range []float64{100, 110, 105} {
		_, err := s.AppendTick(models.Tick{At: "2024-01-01T00:00:00Z", Market: "BTCUSDT", Price: price})
		require.NoError(t, err)
	}
	ticks, err := s.TicksForMarket("BTCUSDT", 100)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	require.Equal(t, 100.0, ticks[0].Price)
	require.Equal(t, 105.0, ticks[2].Price)
}

func TestPricesFanOutAppendsOneTickPerMarketAndOneSnapshot(t *testing.T) {
	s := newTestStore(t)
	prices := map[string]float64{"BTCUSDT": 1, "ETHUSDT": 2}
	require.NoError(t, s.IngestPrices("2024-01-01T00:00:00Z", prices))

	snap, err := s.LatestPricesSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.Prices, 2)

	ticks, err := s.TailTicks(100)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	for _, tk := range ticks {
		require.Equal(t, "2024-01-01T00:00:00Z", tk.At)
	}
}

func TestResetIsolatesStream(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendTrade(models.Trade{Market: "BTCUSDT", Side: models.SideBuy, PnLUSD: 1})
	require.NoError(t, err)
	_, err = s.AppendEquityPoint(models.EquityPoint{EquityUSD: 100})
	require.NoError(t, err)

	require.NoError(t, s.Truncate("trades"))

	trades, err := s.TailTrades(10)
	require.NoError(t, err)
	require.Empty(t, trades)

	equity, err := s.TailEquity(10)
	require.NoError(t, err)
	require.Len(t, equity, 1)

	c, err := s.GetControl()
	require.NoError(t, err)
	require.Equal(t, models.StateActive, c.State)
}

func TestTruncateUnknownStreamErrors(t *testing.T) {
	s := newTestStore(t)
	err := s.Truncate("not-a-stream")
	require.Error(t, err)
}

func TestUpsertHeartbeatIsSingleton(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertHeartbeat(models.Heartbeat{At: "2024-01-01T00:00:00Z", Status: "running"}))
	require.NoError(t, s.UpsertHeartbeat(models.Heartbeat{At: "2024-01-01T00:01:00Z", Status: "paused"}))

	hb, err := s.LatestHeartbeat()
	require.NoError(t, err)
	require.NotNil(t, hb)
	require.Equal(t, "paused", hb.Status)
}

func TestEmptyTailsAreEmptySliceNotNil(t *testing.T) {
	s := newTestStore(t)
	trades, err := s.TailTrades(10)
	require.NoError(t, err)
	require.NotNil(t, trades)
	require.Len(t, trades, 0)
}
