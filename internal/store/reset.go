package store

import "fmt"

// resettableStreams maps the public stream name used in DELETE
// /reset/<stream> to its backing table(s). Control is deliberately
// excluded: resets never touch it (§8 invariant 5).
var resettableStreams = map[string][]string{
	"events": {"events"},
	"trades": {"trades"},
	"equity": {"equity_points"},
	"deaths": {"deaths"},
	"ticks":  {"ticks"},
}

// Truncate deletes all rows of one named stream. "all" truncates every
// resettable stream (still leaving Control, Heartbeat, Pet, and Prices
// untouched — those are singletons, not append streams, and §3's
// lifecycle only describes streams as truncatable).
func (s *Store) Truncate(stream string) error {
	if stream == "all" {
		for _, tables := range resettableStreams {
			for _, t := range tables {
				if err := s.truncateTable(t); err != nil {
					return err
				}
			}
		}
		return nil
	}

	tables, ok := resettableStreams[stream]
	if !ok {
		return fmt.Errorf("unknown stream %q", stream)
	}
	for _, t := range tables {
		if err := s.truncateTable(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) truncateTable(table string) error {
	_, err := s.writeDB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	return wrapErr(err)
}
