package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledClientReturnsNoResult(t *testing.T) {
	c := New("", time.Second, time.Second)
	require.False(t, c.Enabled())
	_, ok := c.Spot(context.Background(), "markets=BTCUSDT")
	require.False(t, ok)
}

func TestSpotCachesWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"BTCUSDT":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Minute, time.Minute)
	payload, ok := c.Spot(context.Background(), "markets=BTCUSDT")
	require.True(t, ok)
	require.JSONEq(t, `{"BTCUSDT":1}`, string(payload))

	_, ok = c.Spot(context.Background(), "markets=BTCUSDT")
	require.True(t, ok)
	require.Equal(t, 1, hits, "second call within TTL must be served from cache")
}

func TestSpotFallsBackToCacheOnUpstreamFailure(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"BTCUSDT":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, time.Minute)
	_, ok := c.Spot(context.Background(), "markets=BTCUSDT")
	require.True(t, ok)

	fail = true
	payload, ok := c.Spot(context.Background(), "markets=BTCUSDT")
	require.True(t, ok)
	require.JSONEq(t, `{"BTCUSDT":1}`, string(payload))
}
