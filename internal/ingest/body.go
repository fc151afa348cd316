package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/papertrade/controlplane/internal/apierr"
)

// body is a loosely-typed JSON object, tolerant of the numeric-as-string
// and flag-as-string shapes the upstream worker occasionally sends.
type body map[string]interface{}

func parseBody(r *http.Request) (body, error) {
	defer r.Body.Close()
	var m map[string]interface{}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&m); err != nil {
		return nil, apierr.New(apierr.BadRequest, "invalid JSON body")
	}
	return body(m), nil
}

func (b body) str(key string) string {
	v, ok := b[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (b body) float(key string, def float64) float64 {
	v, ok := b[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func (b body) int(key string, def int) int {
	return int(b.float(key, float64(def)))
}

func (b body) boolean(key string, def bool) bool {
	v, ok := b[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true":
			return true
		case "0", "false":
			return false
		}
	}
	return def
}

func (b body) strSlice(key string) []string {
	v, ok := b[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		out = append(out, fmt.Sprint(e))
	}
	return out
}

// rawDetails re-marshals an arbitrary nested value (or absence of one)
// back into json.RawMessage, the shape Event/Death persist their
// free-form details as.
func (b body) rawDetails(key string) json.RawMessage {
	v, ok := b[key]
	if !ok || v == nil {
		return json.RawMessage("{}")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
