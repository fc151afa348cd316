// Package httpapi assembles the full HTTP surface: routing, CORS,
// request logging, and metrics middleware around the ingest/query/
// control/market handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/papertrade/controlplane/internal/apierr"
	"github.com/papertrade/controlplane/internal/broadcast"
	"github.com/papertrade/controlplane/internal/control"
	"github.com/papertrade/controlplane/internal/ingest"
	"github.com/papertrade/controlplane/internal/market"
	"github.com/papertrade/controlplane/internal/metrics"
	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/ohlc"
	"github.com/papertrade/controlplane/internal/query"
	"github.com/papertrade/controlplane/internal/store"
)

const serviceName = "papertrade-controlplane"

var startedAt = time.Now()

// Deps bundles every component the router dispatches into.
type Deps struct {
	DB          *store.Store
	FSM         *control.FSM
	Ingest      *ingest.Handlers
	Query       *query.Handlers
	Market      *market.Client
	Hub         *broadcast.Hub
	Log         zerolog.Logger
	CORSOrigins string
}

// New builds the full mux.Router.
func New(d Deps) http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)

	r.HandleFunc("/", serviceMeta).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", health).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/metrics", metrics.Handler().ServeHTTP).Methods(http.MethodGet)

	r.HandleFunc("/data", d.Query.Data).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/control", d.Query.Control).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/heartbeat", d.Query.Heartbeat).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/pet", d.Query.Pet).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/prices", d.Query.Prices).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/equity", d.Query.Equity).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/trades", d.Query.Trades).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/events", d.Query.Events).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/deaths", d.Query.Deaths).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/ohlc", ohlcHandler(d.DB)).Methods(http.MethodGet, http.MethodOptions)

	ingestRouter := r.PathPrefix("/ingest").Subrouter()
	ingestRouter.Use(d.Ingest.Auth)
	ingestRouter.HandleFunc("/heartbeat", d.Ingest.Heartbeat).Methods(http.MethodPost, http.MethodOptions)
	ingestRouter.HandleFunc("/pet", d.Ingest.Pet).Methods(http.MethodPost, http.MethodOptions)
	ingestRouter.HandleFunc("/equity", d.Ingest.Equity).Methods(http.MethodPost, http.MethodOptions)
	ingestRouter.HandleFunc("/trade", d.Ingest.Trade).Methods(http.MethodPost, http.MethodOptions)
	ingestRouter.HandleFunc("/prices", d.Ingest.Prices).Methods(http.MethodPost, http.MethodOptions)
	ingestRouter.HandleFunc("/event", d.Ingest.Event).Methods(http.MethodPost, http.MethodOptions)
	ingestRouter.HandleFunc("/death", d.Ingest.Death).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/control/pause", controlPause(d.FSM)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/control/cryo", controlCryo(d.FSM)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/control/revive", controlRevive(d.FSM)).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/reset/{stream}", resetStream(d.Query)).Methods(http.MethodDelete, http.MethodOptions)

	if d.Market != nil {
		r.HandleFunc("/history", upstreamHistory(d.Market)).Methods(http.MethodGet, http.MethodOptions)
	}
	if d.Hub != nil {
		r.HandleFunc("/ws", d.Hub.ServeWS).Methods(http.MethodGet)
	}

	var h http.Handler = r
	h = accessLog(d.Log, h)
	h = cors(d.CORSOrigins, h)
	return h
}

func serviceMeta(w http.ResponseWriter, r *http.Request) {
	apierr.WriteJSON(w, map[string]interface{}{
		"name": serviceName,
		"time": time.Now().UTC().Format(time.RFC3339),
		"endpoints": []string{
			"/health", "/data", "/ohlc", "/heartbeat", "/pet", "/events", "/equity",
			"/trades", "/prices", "/deaths", "/control", "/ingest/*", "/control/*", "/reset/*",
		},
	})
}

func health(w http.ResponseWriter, r *http.Request) {
	apierr.WriteJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startedAt).String(),
	})
}

func ohlcHandler(db *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { metrics.OHLCQueryDuration.Observe(time.Since(start).Seconds()) }()

		mkt := r.URL.Query().Get("market")
		if mkt == "" {
			apierr.Write(w, apierr.New(apierr.BadRequest, "market is required"))
			return
		}
		interval, _ := strconv.Atoi(r.URL.Query().Get("interval"))
		if interval == 0 {
			interval = 60
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 500
		}
		candles, err := ohlc.Build(db, mkt, interval, limit)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteJSON(w, candles)
	}
}

func controlPause(fsm *control.FSM) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seconds, reason := parseControlBody(r)
		c, err := fsm.Pause(seconds, reason)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteJSON(w, c)
	}
}

func controlCryo(fsm *control.FSM) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seconds, reason := parseControlBody(r)
		c, err := fsm.Cryo(seconds, reason)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteJSON(w, c)
	}
}

func controlRevive(fsm *control.FSM) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, reason := parseControlBody(r)
		c, err := fsm.Revive(reason)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		apierr.WriteJSON(w, c)
	}
}

func resetStream(q *query.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := mux.Vars(r)["stream"]
		q.Reset(stream)(w, r)
	}
}

func upstreamHistory(m *market.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mkt := r.URL.Query().Get("market")
		payload, ok := m.History(r.Context(), mkt, r.URL.RawQuery)
		if !ok {
			apierr.WriteJSON(w, []models.Candle{})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

func parseControlBody(r *http.Request) (int, string) {
	var b struct {
		Seconds int    `json:"seconds"`
		Reason  string `json:"reason"`
	}
	if r.Body != nil {
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&b)
	}
	return b.Seconds, b.Reason
}

// cors applies a permissive or allow-listed CORS policy depending on
// CORS_ORIGINS, generalizing the teacher's hardcoded corsMiddleware.
func cors(origins string, next http.Handler) http.Handler {
	allowAll := origins == "" || origins == "*"
	allowed := map[string]bool{}
	if !allowAll {
		for _, o := range strings.Split(origins, ",") {
			allowed[strings.TrimSpace(o)] = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-INGEST-TOKEN")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		metrics.ObserveRoute(r.URL.Path, start)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
