package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/controlplane/internal/store"
)

func newTestHandlers(t *testing.T, token string) *Handlers {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controlplane.db")
	db, err := store.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, token, zerolog.Nop(), nil, nil)
}

func postJSON(h http.HandlerFunc, body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest/x", strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-INGEST-TOKEN", token)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestPricesFanOutAcceptsNestedAndFlatShapes(t *testing.T) {
	h := newTestHandlers(t, "")

	rec := postJSON(h.Prices, `{"prices":{"BTCUSDT":42000.5,"ETHUSDT":2200.25}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, float64(2), out["count"])

	rec = postJSON(h.Prices, `{"BTCUSDT":"43000.1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, float64(1), out["count"])
}

func TestHeartbeatToleratesStringlyTypedBooleanAndNumber(t *testing.T) {
	h := newTestHandlers(t, "")
	rec := postJSON(h.Heartbeat, `{"equity_usd":"1234.5","prices_ok":"true","open_positions":"3"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	hb, err := h.db.LatestHeartbeat()
	require.NoError(t, err)
	require.NotNil(t, hb)
	require.Equal(t, 1234.5, hb.EquityUSD)
	require.True(t, hb.PricesOK)
	require.Equal(t, 3, hb.OpenPositions)
}

func TestPetHealthAndHungerAreClamped(t *testing.T) {
	h := newTestHandlers(t, "")
	rec := postJSON(h.Pet, `{"health":150,"hunger":-10}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	p, err := h.db.LatestPet()
	require.NoError(t, err)
	require.Equal(t, 100.0, p.Health)
	require.Equal(t, 0.0, p.Hunger)
}

func TestDeathAlsoAppendsAnEvent(t *testing.T) {
	h := newTestHandlers(t, "")
	rec := postJSON(h.Death, `{"source":"worker","reason":"drawdown"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	deaths, err := h.db.TailDeaths(10)
	require.NoError(t, err)
	require.Len(t, deaths, 1)

	events, err := h.db.TailEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Contains(t, events[0].Message, "drawdown")
}

func TestAuthRejectsMissingOrWrongToken(t *testing.T) {
	h := newTestHandlers(t, "secret")
	mux := h.Auth(http.HandlerFunc(h.Heartbeat))

	req := httptest.NewRequest(http.MethodPost, "/ingest/heartbeat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/ingest/heartbeat", strings.NewReader(`{}`))
	req2.Header.Set("X-INGEST-TOKEN", "secret")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestInvalidJSONBodyIsBadRequest(t *testing.T) {
	h := newTestHandlers(t, "")
	rec := postJSON(h.Trade, `not-json`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
