// Package apierr is the error taxonomy shared by every HTTP handler:
// BadRequest, Unauthorized, NotFound, StorageFailure, UpstreamUnavailable.
// Every non-200 response carries a {"error","detail"} JSON body.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Kind is one of the taxonomy's error kinds.
type Kind string

const (
	BadRequest         Kind = "bad_request"
	Unauthorized       Kind = "unauthorized"
	NotFound           Kind = "not_found"
	StorageFailure     Kind = "storage_failure"
	UpstreamUnavailable Kind = "upstream_unavailable"
)

var statusByKind = map[Kind]int{
	BadRequest:          http.StatusBadRequest,
	Unauthorized:        http.StatusUnauthorized,
	NotFound:            http.StatusNotFound,
	StorageFailure:      http.StatusInternalServerError,
	UpstreamUnavailable: http.StatusBadGateway,
}

// Error is a typed API error carrying its taxonomy kind and a detail
// message safe to show to a caller.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Detail }

// New builds a typed Error.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a StorageFailure from an underlying error.
func Wrap(err error) *Error {
	return &Error{Kind: StorageFailure, Detail: err.Error()}
}

// body is the wire shape of every non-200 response.
type body struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// WriteJSON writes a 200 JSON response.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// Write renders err as the appropriate non-200 JSON response. Any error
// that isn't already an *Error is treated as a StorageFailure, since an
// unclassified failure from a handler is almost always a Store I/O error.
func Write(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = Wrap(err)
	}
	status, ok := statusByKind[apiErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body{Error: string(apiErr.Kind), Detail: apiErr.Detail})
}
