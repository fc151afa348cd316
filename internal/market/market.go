// Package market implements the optional upstream spot-price/history
// pass-through (spec.md §4.6 last row). It is entirely best-effort:
// upstream failures never propagate as a 5xx, they fall back to the
// last good cached value (possibly stale, possibly empty).
package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var errUpstreamStatus = errors.New("market: upstream returned an error status")

const upstreamTimeout = 12 * time.Second

// Client wraps an upstream HTTP API behind a TTL cache and circuit
// breaker. A zero-value BaseURL disables pass-through entirely; every
// method then just returns the empty cached value.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker

	spotTTL    time.Duration
	historyTTL time.Duration

	mu      sync.Mutex
	spot    cacheEntry
	history map[string]cacheEntry
}

type cacheEntry struct {
	at      time.Time
	payload json.RawMessage
}

func New(baseURL string, spotTTL, historyTTL time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market-upstream",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		breaker:    cb,
		spotTTL:    spotTTL,
		historyTTL: historyTTL,
		history:    make(map[string]cacheEntry),
	}
}

// Enabled reports whether pass-through is configured. A nil *Client
// (no upstream configured at startup) is not enabled, same as a
// zero-value one, so callers never need a separate nil check.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// Spot returns upstream spot prices for the requested markets query
// string, serving the TTL-cached copy when fresh or when upstream is
// unavailable.
func (c *Client) Spot(ctx context.Context, rawQuery string) (json.RawMessage, bool) {
	if !c.Enabled() {
		return nil, false
	}
	c.mu.Lock()
	if time.Since(c.spot.at) < c.spotTTL && c.spot.payload != nil {
		cached := c.spot.payload
		c.mu.Unlock()
		return cached, true
	}
	c.mu.Unlock()

	payload, err := c.fetch(ctx, "/spot?"+rawQuery)
	if err != nil {
		c.mu.Lock()
		cached := c.spot.payload
		c.mu.Unlock()
		return cached, cached != nil
	}

	c.mu.Lock()
	c.spot = cacheEntry{at: time.Now(), payload: payload}
	c.mu.Unlock()
	return payload, true
}

// History returns upstream OHLC history for one market, same
// cache/breaker treatment as Spot.
func (c *Client) History(ctx context.Context, market string, rawQuery string) (json.RawMessage, bool) {
	if !c.Enabled() {
		return nil, false
	}
	c.mu.Lock()
	entry, ok := c.history[market]
	if ok && time.Since(entry.at) < c.historyTTL {
		c.mu.Unlock()
		return entry.payload, true
	}
	c.mu.Unlock()

	payload, err := c.fetch(ctx, "/history?"+rawQuery)
	if err != nil {
		c.mu.Lock()
		entry := c.history[market]
		c.mu.Unlock()
		return entry.payload, entry.payload != nil
	}

	c.mu.Lock()
	c.history[market] = cacheEntry{at: time.Now(), payload: payload}
	c.mu.Unlock()
	return payload, true
}

func (c *Client) fetch(ctx context.Context, path string) (json.RawMessage, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, errUpstreamStatus
		}
		return json.RawMessage(body), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
