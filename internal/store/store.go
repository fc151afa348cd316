// Package store is the durable, process-wide persistence layer: an
// append-log for streaming records plus singleton tables for Control,
// Heartbeat, Pet, and Prices, backed by a single SQLite file.
//
// Writes go through a pool pinned to one connection so appends and
// singleton upserts serialize into the total order §4.1 and §5 of the
// spec require without any extra locking. Reads use a separate,
// larger pool so long scans never block a short write (WAL journaling
// makes that safe for SQLite).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/papertrade/controlplane/internal/apierr"
)

// Store is the single process-wide shared mutable resource: every
// ingest, query, and control handler goes through it.
type Store struct {
	writeDB *sqlx.DB
	readDB  *sqlx.DB
	log     zerolog.Logger

	// controlMu serializes the Control singleton's check-then-act: the
	// lazy-thaw read-then-maybe-persist in GetControl, and every
	// explicit transition written through PutControl, share this one
	// lock so two concurrent callers can never both observe-and-persist
	// a thaw, and a thaw can never race an explicit transition either.
	controlMu sync.Mutex
}

// Open creates the parent directory of path if needed, opens (creating
// if absent) the SQLite file, runs migrations, and returns a ready
// Store. A corrupt store is fatal: the caller should treat a non-nil
// error here as unrecoverable, per §4.1's "no silent truncation".
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	writeDB, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store (write pool): %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store (read pool): %w", err)
	}
	readDB.SetMaxOpenConns(8)

	s := &Store{writeDB: writeDB, readDB: readDB, log: log}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close flushes and releases both connection pools.
func (s *Store) Close() error {
	werr := s.writeDB.Close()
	rerr := s.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// wrapErr turns a raw sql/driver error into the StorageFailure taxonomy
// kind so no handler ever leaks a bare *sql.Err*.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return apierr.Wrap(err)
}
