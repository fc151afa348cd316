// Package query implements the read side: the composite /data snapshot
// and the per-stream tail endpoints that mirror it.
package query

import (
	"net/http"
	"strconv"

	"github.com/papertrade/controlplane/internal/apierr"
	"github.com/papertrade/controlplane/internal/control"
	"github.com/papertrade/controlplane/internal/market"
	"github.com/papertrade/controlplane/internal/metrics"
	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/store"
)

const (
	defaultLimit = 200
	maxLimit     = 1000

	equityTailCap = 200
	tradesTailCap = 80
	ticksTailCap  = 800
	eventsTailCap = 250
)

// Handlers serves /data and every per-stream read route.
type Handlers struct {
	db     *store.Store
	fsm    *control.FSM
	market *market.Client
}

// New builds the query handler set. market may be nil (no upstream
// pass-through configured); market.Client's methods are nil-safe, so
// Prices never needs a separate nil check.
func New(db *store.Store, fsm *control.FSM, mkt *market.Client) *Handlers {
	return &Handlers{db: db, fsm: fsm, market: mkt}
}

// limitParam reads and clamps the `limit` query parameter, defaulting
// to defaultLimit (spec.md §4.3).
func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// Data serves GET /data, the composite dashboard snapshot.
func (h *Handlers) Data(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.fsm.Get()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	hb, err := h.db.LatestHeartbeat()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	pet, err := h.db.LatestPet()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	equity, err := h.db.TailEquity(equityTailCap)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	trades, err := h.db.TailTrades(tradesTailCap)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	ticks, err := h.db.TailTicks(ticksTailCap)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	events, err := h.db.TailEvents(eventsTailCap)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	deaths, err := h.db.TailDeaths(defaultLimit)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	prices, err := h.db.LatestPricesSnapshot()
	if err != nil {
		apierr.Write(w, err)
		return
	}

	metrics.StoreRows.WithLabelValues("trades").Set(float64(len(trades)))
	metrics.StoreRows.WithLabelValues("ticks").Set(float64(len(ticks)))
	metrics.StoreRows.WithLabelValues("equity").Set(float64(len(equity)))
	metrics.StoreRows.WithLabelValues("events").Set(float64(len(events)))
	metrics.StoreRows.WithLabelValues("deaths").Set(float64(len(deaths)))

	snap := models.DataSnapshot{
		Control:   ctrl,
		State:     ctrl.State,
		Heartbeat: hb,
		Pet:       pet,
		Equity:    equity,
		Trades:    trades,
		Ticks:     ticks,
		Events:    events,
		Deaths:    deaths,
		Prices:    prices,
		Stats: models.Stats{
			State:             ctrl.State,
			Paused:            ctrl.State != models.StateActive,
			PauseUntil:        ctrl.PauseUntil,
			CryoUntil:         ctrl.CryoUntil,
			TotalTradesLoaded: len(trades),
		},
	}
	apierr.WriteJSON(w, snap)
}

// Control serves GET /control.
func (h *Handlers) Control(w http.ResponseWriter, r *http.Request) {
	c, err := h.fsm.Get()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, c)
}

// Heartbeat serves GET /heartbeat.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	hb, err := h.db.LatestHeartbeat()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, hb)
}

// Pet serves GET /pet.
func (h *Handlers) Pet(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.LatestPet()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, p)
}

// Prices serves GET /prices. With a `markets` query parameter and an
// upstream configured, it proxies live prices through market.Client;
// otherwise it serves the stored-snapshot view (spec.md §4.6/§6).
func (h *Handlers) Prices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("markets") && h.market.Enabled() {
		payload, ok := h.market.Spot(r.Context(), r.URL.RawQuery)
		if ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
			return
		}
	}
	p, err := h.db.LatestPricesSnapshot()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, p)
}

// Equity serves GET /equity.
func (h *Handlers) Equity(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.TailEquity(limitParam(r, defaultLimit))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, rows)
}

// Trades serves GET /trades.
func (h *Handlers) Trades(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.TailTrades(limitParam(r, defaultLimit))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, rows)
}

// Events serves GET /events.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.TailEvents(limitParam(r, defaultLimit))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, rows)
}

// Deaths serves GET /deaths.
func (h *Handlers) Deaths(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.TailDeaths(limitParam(r, defaultLimit))
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, rows)
}

// Reset serves DELETE /reset/{stream}, stream coming from the mux path
// variable ("all" included).
func (h *Handlers) Reset(stream string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.db.Truncate(stream); err != nil {
			if _, isTyped := err.(*apierr.Error); isTyped {
				apierr.Write(w, err)
				return
			}
			apierr.Write(w, apierr.New(apierr.BadRequest, err.Error()))
			return
		}
		apierr.WriteJSON(w, map[string]bool{"ok": true})
	}
}
