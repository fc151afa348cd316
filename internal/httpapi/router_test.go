package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/controlplane/internal/control"
	"github.com/papertrade/controlplane/internal/ingest"
	"github.com/papertrade/controlplane/internal/query"
	"github.com/papertrade/controlplane/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controlplane.db")
	db, err := store.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsm := control.New(db)
	return New(Deps{
		DB:          db,
		FSM:         fsm,
		Ingest:      ingest.New(db, "", zerolog.Nop(), nil, nil),
		Query:       query.New(db, fsm, nil),
		Log:         zerolog.Nop(),
		CORSOrigins: "*",
	})
}

func TestHealthAndServiceMeta(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionsPreflightReturns204(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/data", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOHLCRequiresMarket(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/ohlc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlPauseThenData(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/control/pause", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}
