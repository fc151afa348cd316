package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/papertrade/controlplane/internal/models"
)

// GetControl returns the current Control row, applying lazy thaw if
// its deadline has elapsed. The read, the thaw check, and the persist
// all happen under controlMu, so two concurrent callers can never both
// observe-and-persist a thaw, and a thaw can never interleave with an
// explicit transition written through PutControl (§4.4/§9).
func (s *Store) GetControl() (models.Control, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	c, err := s.readControlForWrite()
	if err != nil {
		return models.Control{}, err
	}
	thawed, needsThaw := maybeThaw(c, now())
	if !needsThaw {
		return c, nil
	}
	if err := s.putControlLocked(thawed); err != nil {
		return models.Control{}, err
	}
	return thawed, nil
}

func maybeThaw(c models.Control, at time.Time) (models.Control, bool) {
	deadline := ""
	switch c.State {
	case models.StatePaused:
		deadline = c.PauseUntil
	case models.StateCryo:
		deadline = c.CryoUntil
	default:
		return c, false
	}
	if deadline == "" {
		return c, false
	}
	t, err := time.Parse(time.RFC3339, deadline)
	if err != nil || at.Before(t) {
		return c, false
	}
	thawed := c
	thawed.State = models.StateActive
	thawed.PauseReason, thawed.PauseUntil = "", ""
	thawed.CryoReason, thawed.CryoUntil = "", ""
	thawed.UpdatedAt = at.UTC().Format(time.RFC3339Nano)
	return thawed, true
}

func (s *Store) readControlForWrite() (models.Control, error) {
	return scanControl(s.writeDB.QueryRow(
		`SELECT state, pause_reason, pause_until, cryo_reason, cryo_until, updated_at FROM control WHERE id = 1`))
}

func scanControl(row *sql.Row) (models.Control, error) {
	var c models.Control
	err := row.Scan(&c.State, &c.PauseReason, &c.PauseUntil, &c.CryoReason, &c.CryoUntil, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Control{State: models.StateActive}, nil
	}
	if err != nil {
		return models.Control{}, wrapErr(err)
	}
	if c.State == "" {
		c.State = models.StateActive
	}
	return c, nil
}

// putControlLocked upserts the Control singleton. Callers must already
// hold controlMu; updated_at strictly increasing is the caller's
// responsibility (control.FSM and the lazy-thaw path above).
func (s *Store) putControlLocked(c models.Control) error {
	_, epoch := epochAndAt(c.UpdatedAt)
	_, err := s.writeDB.Exec(`
		INSERT INTO control (id, state, pause_reason, pause_until, cryo_reason, cryo_until, updated_at, updated_at_epoch)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, pause_reason=excluded.pause_reason, pause_until=excluded.pause_until,
			cryo_reason=excluded.cryo_reason, cryo_until=excluded.cryo_until,
			updated_at=excluded.updated_at, updated_at_epoch=excluded.updated_at_epoch`,
		string(c.State), c.PauseReason, c.PauseUntil, c.CryoReason, c.CryoUntil, c.UpdatedAt, epoch,
	)
	return wrapErr(err)
}

// PutControl is the write-side entry point used by internal/control's
// FSM for every explicit pause/cryo/revive transition. It takes
// controlMu itself so an explicit transition can never interleave with
// a concurrent lazy thaw in GetControl.
func (s *Store) PutControl(c models.Control) error {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	return s.putControlLocked(c)
}

// UpsertHeartbeat replaces the Heartbeat singleton and records a bounded
// history trail for debugging (never itself exposed as an endpoint).
func (s *Store) UpsertHeartbeat(h models.Heartbeat) error {
	marketsJSON, _ := json.Marshal(h.Markets)
	_, err := s.writeDB.Exec(`
		INSERT INTO heartbeat (id, at, status, survival_mode, equity_usd, open_positions, prices_ok, markets_json, wins, losses, total_trades, total_pnl_usd, uptime_sec)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			at=excluded.at, status=excluded.status, survival_mode=excluded.survival_mode,
			equity_usd=excluded.equity_usd, open_positions=excluded.open_positions, prices_ok=excluded.prices_ok,
			markets_json=excluded.markets_json, wins=excluded.wins, losses=excluded.losses,
			total_trades=excluded.total_trades, total_pnl_usd=excluded.total_pnl_usd, uptime_sec=excluded.uptime_sec`,
		h.At, h.Status, h.SurvivalMode, h.EquityUSD, h.OpenPositions, boolToInt(h.PricesOK), string(marketsJSON),
		h.Wins, h.Losses, h.TotalTrades, h.TotalPnLUSD, h.UptimeSec,
	)
	if err != nil {
		return wrapErr(err)
	}
	return s.appendHeartbeatHistory(h)
}

// LatestHeartbeat returns the Heartbeat singleton, or nil if none has
// ever been ingested.
func (s *Store) LatestHeartbeat() (*models.Heartbeat, error) {
	var h models.Heartbeat
	var marketsJSON string
	var pricesOK int
	err := s.readDB.QueryRow(`
		SELECT at, status, survival_mode, equity_usd, open_positions, prices_ok, markets_json, wins, losses, total_trades, total_pnl_usd, uptime_sec
		FROM heartbeat WHERE id = 1`).Scan(
		&h.At, &h.Status, &h.SurvivalMode, &h.EquityUSD, &h.OpenPositions, &pricesOK, &marketsJSON,
		&h.Wins, &h.Losses, &h.TotalTrades, &h.TotalPnLUSD, &h.UptimeSec,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	h.PricesOK = pricesOK != 0
	_ = json.Unmarshal([]byte(marketsJSON), &h.Markets)
	return &h, nil
}

// UpsertPet replaces the Pet singleton.
func (s *Store) UpsertPet(p models.Pet) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO pet (id, at, stage, mood, health, hunger, growth, fainted_until, sex, survival_mode)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			at=excluded.at, stage=excluded.stage, mood=excluded.mood, health=excluded.health,
			hunger=excluded.hunger, growth=excluded.growth, fainted_until=excluded.fainted_until,
			sex=excluded.sex, survival_mode=excluded.survival_mode`,
		p.At, p.Stage, p.Mood, p.Health, p.Hunger, p.Growth, p.FaintedUntil, p.Sex, p.SurvivalMode,
	)
	return wrapErr(err)
}

// LatestPet returns the Pet singleton, or nil if none has ever been set.
func (s *Store) LatestPet() (*models.Pet, error) {
	var p models.Pet
	err := s.readDB.QueryRow(`
		SELECT at, stage, mood, health, hunger, growth, fainted_until, sex, survival_mode FROM pet WHERE id = 1`).Scan(
		&p.At, &p.Stage, &p.Mood, &p.Health, &p.Hunger, &p.Growth, &p.FaintedUntil, &p.Sex, &p.SurvivalMode,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

// UpsertPricesSnapshot replaces the Prices singleton.
func (s *Store) UpsertPricesSnapshot(at string, prices map[string]float64) error {
	pricesJSON, _ := json.Marshal(prices)
	_, err := s.writeDB.Exec(`
		INSERT INTO prices_snapshot (id, at, prices_json) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET at=excluded.at, prices_json=excluded.prices_json`,
		at, string(pricesJSON),
	)
	return wrapErr(err)
}

// LatestPricesSnapshot returns the Prices singleton (empty map if none set).
func (s *Store) LatestPricesSnapshot() (models.PricesSnapshot, error) {
	var at, pricesJSON string
	err := s.readDB.QueryRow(`SELECT at, prices_json FROM prices_snapshot WHERE id = 1`).Scan(&at, &pricesJSON)
	if err == sql.ErrNoRows {
		return models.PricesSnapshot{Prices: map[string]float64{}}, nil
	}
	if err != nil {
		return models.PricesSnapshot{}, wrapErr(err)
	}
	prices := map[string]float64{}
	_ = json.Unmarshal([]byte(pricesJSON), &prices)
	return models.PricesSnapshot{At: at, Prices: prices}, nil
}
