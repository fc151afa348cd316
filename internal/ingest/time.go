package ingest

import "time"

// nowRFC3339 stamps the current time for fields missing `at` on ingest
// (spec.md §3 invariant 4).
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
