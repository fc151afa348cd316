package apierr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteMapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{Unauthorized, http.StatusUnauthorized},
		{NotFound, http.StatusNotFound},
		{StorageFailure, http.StatusInternalServerError},
		{UpstreamUnavailable, http.StatusBadGateway},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		Write(rec, New(c.kind, "detail"))
		require.Equal(t, c.want, rec.Code)
	}
}

func TestWriteTreatsUnclassifiedErrorAsStorageFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteJSONIs200(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, map[string]bool{"ok": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
