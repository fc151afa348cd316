package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandlerServesPrometheusFormat(t *testing.T) {
	ObserveRoute("/data", time.Now().Add(-10*time.Millisecond))
	IngestRequests.WithLabelValues("trade").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ingest_requests_total")
}
