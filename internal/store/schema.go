package store

import "fmt"

// streamTable describes every append-only stream: its table name, the
// column list (beyond id/at/at_epoch), and the index columns required
// by §4.1 of the spec.
type streamTable struct {
	name    string
	columns []string // "col TYPE" fragments, in CREATE TABLE order
	indexes [][]string
}

var appendTables = []streamTable{
	{
		name: "equity_points",
		columns: []string{
			"equity_usd REAL NOT NULL",
		},
		indexes: [][]string{{"at_epoch"}},
	},
	{
		name: "ticks",
		columns: []string{
			"market TEXT NOT NULL",
			"price REAL NOT NULL",
		},
		indexes: [][]string{{"market", "at_epoch"}},
	},
	{
		name: "trades",
		columns: []string{
			"market TEXT NOT NULL",
			"symbol_pretty TEXT NOT NULL DEFAULT ''",
			"side TEXT NOT NULL",
			"size_usd REAL NOT NULL",
			"price REAL NOT NULL",
			"pnl_usd REAL NOT NULL",
			"confidence REAL NOT NULL",
			"reason TEXT NOT NULL DEFAULT ''",
		},
		indexes: [][]string{{"market", "at_epoch"}},
	},
	{
		name: "events",
		columns: []string{
			"type TEXT NOT NULL",
			"message TEXT NOT NULL DEFAULT ''",
			"details TEXT NOT NULL DEFAULT '{}'",
		},
		indexes: [][]string{{"at_epoch"}},
	},
	{
		name: "deaths",
		columns: []string{
			"source TEXT NOT NULL DEFAULT ''",
			"reason TEXT NOT NULL DEFAULT ''",
			"details TEXT NOT NULL DEFAULT '{}'",
		},
		indexes: [][]string{{"at_epoch"}},
	},
	{
		// Bounded internal history behind the Heartbeat singleton; never
		// exposed directly (see SPEC_FULL.md §4.1's heartbeat index note).
		name: "heartbeat_history",
		columns: []string{
			"status TEXT NOT NULL DEFAULT ''",
			"survival_mode TEXT NOT NULL DEFAULT ''",
			"equity_usd REAL NOT NULL DEFAULT 0",
			"open_positions INTEGER NOT NULL DEFAULT 0",
			"prices_ok INTEGER NOT NULL DEFAULT 0",
			"markets_json TEXT NOT NULL DEFAULT '[]'",
			"wins INTEGER NOT NULL DEFAULT 0",
			"losses INTEGER NOT NULL DEFAULT 0",
			"total_trades INTEGER NOT NULL DEFAULT 0",
			"total_pnl_usd REAL NOT NULL DEFAULT 0",
			"uptime_sec INTEGER NOT NULL DEFAULT 0",
		},
		indexes: [][]string{{"at_epoch"}},
	},
}

// singletonTables are upsert-keyed on id=1.
var singletonTables = map[string]string{
	"control": `
		state TEXT NOT NULL DEFAULT 'ACTIVE',
		pause_reason TEXT NOT NULL DEFAULT '',
		pause_until TEXT NOT NULL DEFAULT '',
		cryo_reason TEXT NOT NULL DEFAULT '',
		cryo_until TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		updated_at_epoch INTEGER NOT NULL DEFAULT 0
	`,
	"heartbeat": `
		at TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		survival_mode TEXT NOT NULL DEFAULT '',
		equity_usd REAL NOT NULL DEFAULT 0,
		open_positions INTEGER NOT NULL DEFAULT 0,
		prices_ok INTEGER NOT NULL DEFAULT 0,
		markets_json TEXT NOT NULL DEFAULT '[]',
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		total_trades INTEGER NOT NULL DEFAULT 0,
		total_pnl_usd REAL NOT NULL DEFAULT 0,
		uptime_sec INTEGER NOT NULL DEFAULT 0
	`,
	"pet": `
		at TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL DEFAULT 'egg',
		mood TEXT NOT NULL DEFAULT 'focused',
		health REAL NOT NULL DEFAULT 100,
		hunger REAL NOT NULL DEFAULT 50,
		growth REAL NOT NULL DEFAULT 0,
		fainted_until TEXT NOT NULL DEFAULT '',
		sex TEXT NOT NULL DEFAULT '',
		survival_mode TEXT NOT NULL DEFAULT 'NORMAL'
	`,
	"prices_snapshot": `
		at TEXT NOT NULL DEFAULT '',
		prices_json TEXT NOT NULL DEFAULT '{}'
	`,
}

// migrate creates every table/index that doesn't exist yet and adds
// any column present in the target schema but missing from an
// existing table. It never drops or renames a column, matching the
// additive-only versioning in spec.md §6.
func (s *Store) migrate() error {
	for name, cols := range singletonTables {
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY, %s)", name, cols)
		if _, err := s.writeDB.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		if err := s.addMissingColumns(name, cols); err != nil {
			return err
		}
	}

	for _, t := range appendTables {
		cols := "at TEXT NOT NULL, at_epoch INTEGER NOT NULL"
		for _, c := range t.columns {
			cols += ", " + c
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, %s)", t.name, cols)
		if _, err := s.writeDB.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
		for _, idxCols := range t.indexes {
			idxName := fmt.Sprintf("idx_%s_%s", t.name, joinUnderscore(idxCols))
			idxDDL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idxName, t.name, joinComma(idxCols))
			if _, err := s.writeDB.Exec(idxDDL); err != nil {
				return fmt.Errorf("create index %s: %w", idxName, err)
			}
		}
	}
	return nil
}

// addMissingColumns inspects the live schema via PRAGMA table_info and
// issues ALTER TABLE ADD COLUMN for any column declared in `colsDDL`
// that the table doesn't already have.
func (s *Store) addMissingColumns(table, colsDDL string) error {
	existing := map[string]bool{}
	rows, err := s.writeDB.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dflt interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table_info %s: %w", table, err)
		}
		existing[name] = true
	}

	for _, decl := range splitColumnDecls(colsDDL) {
		colName := decl[:indexOfSpace(decl)]
		if existing[colName] {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, decl)
		if _, err := s.writeDB.Exec(ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, colName, err)
		}
	}
	return nil
}
