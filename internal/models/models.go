// Package models holds the data shapes shared across the control plane.
//
// These are the authoritative definitions for everything persisted by
// the Store and everything serialized back out over the REST API.
package models

import "encoding/json"

// ControlState is one of ACTIVE, PAUSED, CRYO.
type ControlState string

const (
	StateActive ControlState = "ACTIVE"
	StatePaused ControlState = "PAUSED"
	StateCryo   ControlState = "CRYO"
)

// Control is the singleton control-plane state machine row.
type Control struct {
	State       ControlState `json:"state" db:"state"`
	PauseReason string       `json:"pause_reason" db:"pause_reason"`
	PauseUntil  string       `json:"pause_until" db:"pause_until"`
	CryoReason  string       `json:"cryo_reason" db:"cryo_reason"`
	CryoUntil   string       `json:"cryo_until" db:"cryo_until"`
	UpdatedAt   string       `json:"updated_at" db:"updated_at"`
}

// Heartbeat is the latest liveness/telemetry report from the worker.
type Heartbeat struct {
	At            string  `json:"at" db:"at"`
	Status        string  `json:"status" db:"status"`
	SurvivalMode  string  `json:"survival_mode" db:"survival_mode"`
	EquityUSD     float64 `json:"equity_usd" db:"equity_usd"`
	OpenPositions int     `json:"open_positions" db:"open_positions"`
	PricesOK      bool    `json:"prices_ok" db:"prices_ok"`
	Markets       []string `json:"markets" db:"-"`
	MarketsJSON   string  `json:"-" db:"markets_json"`
	Wins          int     `json:"wins" db:"wins"`
	Losses        int     `json:"losses" db:"losses"`
	TotalTrades   int     `json:"total_trades" db:"total_trades"`
	TotalPnLUSD   float64 `json:"total_pnl_usd" db:"total_pnl_usd"`
	UptimeSec     int64   `json:"uptime_sec" db:"uptime_sec"`
}

// Pet is the latest survival/companion state reported by the worker.
type Pet struct {
	At           string  `json:"at" db:"at"`
	Stage        string  `json:"stage" db:"stage"`
	Mood         string  `json:"mood" db:"mood"`
	Health       float64 `json:"health" db:"health"`
	Hunger       float64 `json:"hunger" db:"hunger"`
	Growth       float64 `json:"growth" db:"growth"`
	FaintedUntil string  `json:"fainted_until" db:"fainted_until"`
	Sex          string  `json:"sex" db:"sex"`
	SurvivalMode string  `json:"survival_mode" db:"survival_mode"`
}

// InitialPet is the state revive() resets the Pet singleton to.
func InitialPet(at string) Pet {
	return Pet{
		At:           at,
		Stage:        "egg",
		Mood:         "focused",
		Health:       100,
		Hunger:       50,
		Growth:       0,
		FaintedUntil: "",
		Sex:          "",
		SurvivalMode: "NORMAL",
	}
}

// PricesSnapshot is the latest last-writer-wins market->price map.
type PricesSnapshot struct {
	At     string             `json:"at" db:"at"`
	Prices map[string]float64 `json:"prices" db:"-"`
}

// EquityPoint is one append-only equity-curve sample.
type EquityPoint struct {
	ID        int64   `json:"id" db:"id"`
	At        string  `json:"at" db:"at"`
	EquityUSD float64 `json:"equity_usd" db:"equity_usd"`
}

// Tick is one raw price observation, the input to the OHLC aggregator.
type Tick struct {
	ID      int64   `json:"id" db:"id"`
	At      string  `json:"at" db:"at"`
	AtEpoch int64   `json:"-" db:"at_epoch"`
	Market  string  `json:"market" db:"market"`
	Price   float64 `json:"price" db:"price"`
}

// TradeSide is buy or sell.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is one append-only executed (paper) trade record.
type Trade struct {
	ID           int64     `json:"id" db:"id"`
	At           string    `json:"at" db:"at"`
	Market       string    `json:"market" db:"market"`
	SymbolPretty string    `json:"symbol_pretty" db:"symbol_pretty"`
	Side         TradeSide `json:"side" db:"side"`
	SizeUSD      float64   `json:"size_usd" db:"size_usd"`
	Price        float64   `json:"price" db:"price"`
	PnLUSD       float64   `json:"pnl_usd" db:"pnl_usd"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	Reason       string    `json:"reason" db:"reason"`
}

// EventType classifies an Event row.
type EventType string

const (
	EventInfo    EventType = "info"
	EventWarning EventType = "warning"
	EventError   EventType = "error"
	EventStatus  EventType = "status"
	EventSound   EventType = "sound"
	EventThought EventType = "thought"
)

// Event is one append-only log-style record with an opaque JSON payload.
type Event struct {
	ID      int64           `json:"id" db:"id"`
	At      string          `json:"at" db:"at"`
	Type    EventType       `json:"type" db:"type"`
	Message string          `json:"message" db:"message"`
	Details json.RawMessage `json:"details" db:"-"`
}

// Death is one append-only record of a worker/pet "death" event.
type Death struct {
	ID      int64           `json:"id" db:"id"`
	At      string          `json:"at" db:"at"`
	Source  string          `json:"source" db:"source"`
	Reason  string          `json:"reason" db:"reason"`
	Details json.RawMessage `json:"details" db:"-"`
}

// Candle is one OHLC bucket.
type Candle struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
}

// Stats is the server-computed derived summary returned in /data.
type Stats struct {
	State             ControlState `json:"state"`
	Paused            bool         `json:"paused"`
	PauseUntil        string       `json:"pause_until"`
	CryoUntil         string       `json:"cryo_until"`
	TotalTradesLoaded int          `json:"total_trades_loaded"`
}

// DataSnapshot is the composite shape returned by GET /data.
type DataSnapshot struct {
	Control   Control        `json:"control"`
	State     ControlState   `json:"state"`
	Heartbeat *Heartbeat     `json:"heartbeat"`
	Pet       *Pet           `json:"pet"`
	Equity    []EquityPoint  `json:"equity"`
	Trades    []Trade        `json:"trades"`
	Ticks     []Tick         `json:"ticks"`
	Events    []Event        `json:"events"`
	Deaths    []Death        `json:"deaths"`
	Prices    PricesSnapshot `json:"prices"`
	Stats     Stats          `json:"stats"`
}
