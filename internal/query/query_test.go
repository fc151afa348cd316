package query

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/controlplane/internal/control"
	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/store"
)

func newTestHandlers(t *testing.T) (*Handlers, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controlplane.db")
	db, err := store.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	fsm := control.New(db)
	return New(db, fsm, nil), db
}

func TestDataSnapshotEmptyStoreYieldsEmptySlicesNotNull(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	h.Data(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, extractArrayField(t, rec.Body.Bytes(), "trades"))
}

func extractArrayField(t *testing.T, body []byte, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	raw, ok := m[field]
	require.True(t, ok, "missing field %q", field)
	return string(raw)
}

func TestEquityAndPnLSanity(t *testing.T) {
	h, db := newTestHandlers(t)
	for _, pnl := range []float64{3, -1, 2, -4} {
		_, err := db.AppendTrade(models.Trade{Market: "BTCUSDT", Side: models.SideBuy, PnLUSD: pnl})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	h.Data(rec, req)

	var snap models.DataSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, 4, snap.Stats.TotalTradesLoaded)

	var total float64
	for _, tr := range snap.Trades {
		total += tr.PnLUSD
	}
	require.InDelta(t, 0, total, 1e-9)
}

func TestResetUnknownStreamIsBadRequest(t *testing.T) {
	h, _ := newTestHandlers(t)
	r := mux.NewRouter()
	r.HandleFunc("/reset/{stream}", func(w http.ResponseWriter, req *http.Request) {
		h.Reset(mux.Vars(req)["stream"])(w, req)
	})

	req := httptest.NewRequest(http.MethodDelete, "/reset/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLimitParamClampsToMax(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/trades?limit=999999", nil)
	require.Equal(t, maxLimit, limitParam(req, defaultLimit))

	req2 := httptest.NewRequest(http.MethodGet, "/trades", nil)
	require.Equal(t, defaultLimit, limitParam(req2, defaultLimit))
}
