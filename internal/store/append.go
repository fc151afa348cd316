package store

import (
	"encoding/json"
	"time"

	"github.com/papertrade/controlplane/internal/models"
)

// now is overridable in tests.
var now = time.Now

func epochAndAt(at string) (string, int64) {
	if at == "" {
		t := now().UTC()
		return t.Format(time.RFC3339), t.Unix()
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		t = now().UTC()
		return t.Format(time.RFC3339), t.Unix()
	}
	return at, t.Unix()
}

// AppendEquityPoint appends one equity-curve sample and returns its id.
func (s *Store) AppendEquityPoint(p models.EquityPoint) (int64, error) {
	at, epoch := epochAndAt(p.At)
	res, err := s.writeDB.Exec(
		`INSERT INTO equity_points (at, at_epoch, equity_usd) VALUES (?, ?, ?)`,
		at, epoch, p.EquityUSD,
	)
	if err != nil {
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

// AppendTick appends one raw price tick and returns its id.
func (s *Store) AppendTick(t models.Tick) (int64, error) {
	at, epoch := epochAndAt(t.At)
	res, err := s.writeDB.Exec(
		`INSERT INTO ticks (at, at_epoch, market, price) VALUES (?, ?, ?, ?)`,
		at, epoch, t.Market, t.Price,
	)
	if err != nil {
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

// IngestPrices appends one Tick per market and upserts the Prices
// singleton inside a single transaction on the write connection: the
// tick-appends and the snapshot-upsert succeed or fail together (spec
// §4.2.3), so a mid-batch failure never leaves some ticks durable while
// the snapshot silently fails to advance.
func (s *Store) IngestPrices(at string, prices map[string]float64) error {
	tx, err := s.writeDB.Beginx()
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback()

	resolvedAt, epoch := epochAndAt(at)
	for market, price := range prices {
		if _, err := tx.Exec(
			`INSERT INTO ticks (at, at_epoch, market, price) VALUES (?, ?, ?, ?)`,
			resolvedAt, epoch, market, price,
		); err != nil {
			return wrapErr(err)
		}
	}

	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return wrapErr(err)
	}
	if _, err := tx.Exec(
		`INSERT INTO prices_snapshot (id, at, prices_json) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET at=excluded.at, prices_json=excluded.prices_json`,
		resolvedAt, string(pricesJSON),
	); err != nil {
		return wrapErr(err)
	}

	return wrapErr(tx.Commit())
}

// AppendTrade appends one trade record and returns its id.
func (s *Store) AppendTrade(t models.Trade) (int64, error) {
	at, epoch := epochAndAt(t.At)
	res, err := s.writeDB.Exec(
		`INSERT INTO trades (at, at_epoch, market, symbol_pretty, side, size_usd, price, pnl_usd, confidence, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at, epoch, t.Market, t.SymbolPretty, string(t.Side), t.SizeUSD, t.Price, t.PnLUSD, t.Confidence, t.Reason,
	)
	if err != nil {
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

// AppendEvent appends one event record and returns its id.
func (s *Store) AppendEvent(e models.Event) (int64, error) {
	at, epoch := epochAndAt(e.At)
	details := e.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	res, err := s.writeDB.Exec(
		`INSERT INTO events (at, at_epoch, type, message, details) VALUES (?, ?, ?, ?, ?)`,
		at, epoch, string(e.Type), e.Message, string(details),
	)
	if err != nil {
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

// AppendDeath appends one death record and returns its id.
func (s *Store) AppendDeath(d models.Death) (int64, error) {
	at, epoch := epochAndAt(d.At)
	details := d.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	res, err := s.writeDB.Exec(
		`INSERT INTO deaths (at, at_epoch, source, reason, details) VALUES (?, ?, ?, ?, ?)`,
		at, epoch, d.Source, d.Reason, string(details),
	)
	if err != nil {
		return 0, wrapErr(err)
	}
	return res.LastInsertId()
}

// appendHeartbeatHistory records a bounded internal trail behind the
// Heartbeat singleton; never exposed directly over the API.
func (s *Store) appendHeartbeatHistory(h models.Heartbeat) error {
	at, epoch := epochAndAt(h.At)
	marketsJSON, _ := json.Marshal(h.Markets)
	_, err := s.writeDB.Exec(
		`INSERT INTO heartbeat_history
		 (at, at_epoch, status, survival_mode, equity_usd, open_positions, prices_ok, markets_json, wins, losses, total_trades, total_pnl_usd, uptime_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at, epoch, h.Status, h.SurvivalMode, h.EquityUSD, h.OpenPositions, boolToInt(h.PricesOK), string(marketsJSON),
		h.Wins, h.Losses, h.TotalTrades, h.TotalPnLUSD, h.UptimeSec,
	)
	if err != nil {
		return wrapErr(err)
	}
	// Keep the history trail bounded; it exists for debugging only.
	_, err = s.writeDB.Exec(
		`DELETE FROM heartbeat_history WHERE id NOT IN (SELECT id FROM heartbeat_history ORDER BY id DESC LIMIT 1000)`,
	)
	return wrapErr(err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TailEquity returns the most recent `limit` equity points, oldest first.
func (s *Store) TailEquity(limit int) ([]models.EquityPoint, error) {
	var rows []models.EquityPoint
	err := s.readDB.Select(&rows,
		`SELECT id, at, equity_usd FROM (
			SELECT id, at, equity_usd FROM equity_points ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return nonNilEquity(rows), nil
}

// TailTrades returns the most recent `limit` trades, newest first.
func (s *Store) TailTrades(limit int) ([]models.Trade, error) {
	var rows []models.Trade
	err := s.readDB.Select(&rows, `SELECT id, at, market, symbol_pretty, side, size_usd, price, pnl_usd, confidence, reason FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return nonNilTrades(rows), nil
}

// TailTicks returns the most recent `limit` ticks across all markets, oldest first.
func (s *Store) TailTicks(limit int) ([]models.Tick, error) {
	var rows []models.Tick
	err := s.readDB.Select(&rows,
		`SELECT id, at, at_epoch, market, price FROM (
			SELECT id, at, at_epoch, market, price FROM ticks ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return nonNilTicks(rows), nil
}

// TicksForMarket returns up to `limit` of the most recent ticks for a
// single market, ascending by time — the input the OHLC aggregator
// consumes.
func (s *Store) TicksForMarket(market string, limit int) ([]models.Tick, error) {
	var rows []models.Tick
	err := s.readDB.Select(&rows,
		`SELECT id, at, at_epoch, market, price FROM (
			SELECT id, at, at_epoch, market, price FROM ticks WHERE market = ? ORDER BY id DESC LIMIT ?
		) ORDER BY at_epoch ASC, id ASC`, market, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return nonNilTicks(rows), nil
}

// TailEvents returns the most recent `limit` events, newest first, with
// Details parsed back into real JSON.
func (s *Store) TailEvents(limit int) ([]models.Event, error) {
	type row struct {
		ID      int64  `db:"id"`
		At      string `db:"at"`
		Type    string `db:"type"`
		Message string `db:"message"`
		Details string `db:"details"`
	}
	var rows []row
	err := s.readDB.Select(&rows, `SELECT id, at, type, message, details FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Event{
			ID:      r.ID,
			At:      r.At,
			Type:    models.EventType(r.Type),
			Message: r.Message,
			Details: json.RawMessage(r.Details),
		})
	}
	return out, nil
}

// TailDeaths returns the most recent `limit` deaths, newest first, with
// Details parsed back into real JSON.
func (s *Store) TailDeaths(limit int) ([]models.Death, error) {
	type row struct {
		ID      int64  `db:"id"`
		At      string `db:"at"`
		Source  string `db:"source"`
		Reason  string `db:"reason"`
		Details string `db:"details"`
	}
	var rows []row
	err := s.readDB.Select(&rows, `SELECT id, at, source, reason, details FROM deaths ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]models.Death, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Death{
			ID:      r.ID,
			At:      r.At,
			Source:  r.Source,
			Reason:  r.Reason,
			Details: json.RawMessage(r.Details),
		})
	}
	return out, nil
}

func nonNilEquity(v []models.EquityPoint) []models.EquityPoint {
	if v == nil {
		return []models.EquityPoint{}
	}
	return v
}

func nonNilTrades(v []models.Trade) []models.Trade {
	if v == nil {
		return []models.Trade{}
	}
	return v
}

func nonNilTicks(v []models.Tick) []models.Tick {
	if v == nil {
		return []models.Tick{}
	}
	return v
}
