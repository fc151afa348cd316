// Package ingest implements the /ingest/<stream> HTTP handlers: body
// parsing, tolerant coercion/clamping, persistence, and the optional
// event-bus/broadcast fan-out that rides along successful trade, prices,
// event, and death writes (heartbeat, pet, and equity writes have none).
package ingest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/papertrade/controlplane/internal/apierr"
	"github.com/papertrade/controlplane/internal/metrics"
	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/store"
)

// publisher is the subset of internal/eventbus.Publisher that ingest
// needs; declared locally so ingest depends on a shape, not a package.
type publisher interface {
	PublishEvent(models.Event)
	PublishTrade(models.Trade)
	PublishDeath(models.Death)
}

// notifier is the subset of internal/broadcast.Hub that ingest needs.
type notifier interface {
	Notify(kind string)
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(models.Event) {}
func (nopPublisher) PublishTrade(models.Trade) {}
func (nopPublisher) PublishDeath(models.Death) {}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Handlers serves every /ingest/* route.
type Handlers struct {
	db    *store.Store
	token string
	log   zerolog.Logger
	bus   publisher
	hub   notifier
}

// New builds the ingest handler set. bus/hub may be nil; a nil value is
// replaced with a no-op so callers never need a nil check.
func New(db *store.Store, token string, log zerolog.Logger, bus publisher, hub notifier) *Handlers {
	if bus == nil {
		bus = nopPublisher{}
	}
	if hub == nil {
		hub = nopNotifier{}
	}
	return &Handlers{db: db, token: token, log: log, bus: bus, hub: hub}
}

// Auth enforces the shared-secret X-INGEST-TOKEN header when a token is
// configured; a blank token disables the check entirely (spec.md §4.2).
func (h *Handlers) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && r.Header.Get("X-INGEST-TOKEN") != h.token {
			apierr.Write(w, apierr.New(apierr.Unauthorized, "missing or invalid X-INGEST-TOKEN"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ok(w http.ResponseWriter) {
	apierr.WriteJSON(w, map[string]bool{"ok": true})
}

// Heartbeat handles POST /ingest/heartbeat.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("heartbeat").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	hb := models.Heartbeat{
		At:            b.str("at"),
		Status:        b.str("status"),
		SurvivalMode:  b.str("survival_mode"),
		EquityUSD:     b.float("equity_usd", 0),
		OpenPositions: b.int("open_positions", 0),
		PricesOK:      b.boolean("prices_ok", false),
		Markets:       b.strSlice("markets"),
		Wins:          b.int("wins", 0),
		Losses:        b.int("losses", 0),
		TotalTrades:   b.int("total_trades", 0),
		TotalPnLUSD:   b.float("total_pnl_usd", 0),
		UptimeSec:     int64(b.int("uptime_sec", 0)),
	}
	if hb.At == "" {
		hb.At = nowRFC3339()
	}
	if err := h.db.UpsertHeartbeat(hb); err != nil {
		apierr.Write(w, err)
		return
	}
	ok(w)
}

// Pet handles POST /ingest/pet.
func (h *Handlers) Pet(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("pet").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	p := models.Pet{
		At:           b.str("at"),
		Stage:        b.str("stage"),
		Mood:         b.str("mood"),
		Health:       clamp(b.float("health", 100), 0, 100),
		Hunger:       clamp(b.float("hunger", 50), 0, 100),
		Growth:       b.float("growth", 0),
		FaintedUntil: b.str("fainted_until"),
		Sex:          b.str("sex"),
		SurvivalMode: b.str("survival_mode"),
	}
	if p.At == "" {
		p.At = nowRFC3339()
	}
	if err := h.db.UpsertPet(p); err != nil {
		apierr.Write(w, err)
		return
	}
	ok(w)
}

// Equity handles POST /ingest/equity.
func (h *Handlers) Equity(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("equity").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	p := models.EquityPoint{At: b.str("at"), EquityUSD: b.float("equity_usd", 0)}
	if p.At == "" {
		p.At = nowRFC3339()
	}
	if _, err := h.db.AppendEquityPoint(p); err != nil {
		apierr.Write(w, err)
		return
	}
	ok(w)
}

// Trade handles POST /ingest/trade.
func (h *Handlers) Trade(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("trade").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	side := models.TradeSide(b.str("side"))
	if side != models.SideBuy && side != models.SideSell {
		side = models.SideBuy
	}
	t := models.Trade{
		At:           b.str("at"),
		Market:       b.str("market"),
		SymbolPretty: b.str("symbol_pretty"),
		Side:         side,
		SizeUSD:      b.float("size_usd", 0),
		Price:        b.float("price", 0),
		PnLUSD:       b.float("pnl_usd", 0),
		Confidence:   clamp(b.float("confidence", 0), 0, 1),
		Reason:       b.str("reason"),
	}
	if t.At == "" {
		t.At = nowRFC3339()
	}
	if t.SymbolPretty == "" {
		t.SymbolPretty = t.Market
	}
	if _, err := h.db.AppendTrade(t); err != nil {
		apierr.Write(w, err)
		return
	}
	h.bus.PublishTrade(t)
	h.hub.Notify("trade")
	ok(w)
}

// Prices handles POST /ingest/prices. Accepts either {"prices": {...}}
// or a bare flat map; each entry appends one Tick and the snapshot
// singleton is upserted once as the same side effect (spec.md §4.2.3).
func (h *Handlers) Prices(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("prices").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	at := b.str("time_utc")
	if at == "" {
		at = b.str("at")
	}
	if at == "" {
		at = nowRFC3339()
	}

	raw := b["prices"]
	nested, isNested := raw.(map[string]interface{})
	if !isNested {
		nested = map[string]interface{}(b)
	}

	prices := make(map[string]float64, len(nested))
	for market, v := range nested {
		if market == "at" || market == "time_utc" || market == "prices" {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		prices[market] = f
	}

	if err := h.db.IngestPrices(at, prices); err != nil {
		apierr.Write(w, err)
		return
	}
	h.hub.Notify("prices")
	apierr.WriteJSON(w, map[string]interface{}{"ok": true, "count": len(prices)})
}

// Event handles POST /ingest/event.
func (h *Handlers) Event(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("event").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	e := models.Event{
		At:      b.str("at"),
		Type:    models.EventType(b.str("type")),
		Message: b.str("message"),
		Details: b.rawDetails("details"),
	}
	if e.At == "" {
		e.At = nowRFC3339()
	}
	if e.Type == "" {
		e.Type = models.EventInfo
	}
	id, err := h.db.AppendEvent(e)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	e.ID = id
	h.bus.PublishEvent(e)
	h.hub.Notify("event")
	ok(w)
}

// Death handles POST /ingest/death. Every death is itself summarized as
// an Event row (spec.md §4.2.5).
func (h *Handlers) Death(w http.ResponseWriter, r *http.Request) {
	metrics.IngestRequests.WithLabelValues("death").Inc()
	b, err := parseBody(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	d := models.Death{
		At:      b.str("at"),
		Source:  b.str("source"),
		Reason:  b.str("reason"),
		Details: b.rawDetails("details"),
	}
	if d.At == "" {
		d.At = nowRFC3339()
	}
	id, err := h.db.AppendDeath(d)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	d.ID = id
	h.bus.PublishDeath(d)

	_, _ = h.db.AppendEvent(models.Event{
		At:      d.At,
		Type:    models.EventError,
		Message: "death: " + d.Reason,
		Details: d.Details,
	})
	h.hub.Notify("death")
	ok(w)
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
