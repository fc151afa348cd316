// Package control implements the ACTIVE/PAUSED/CRYO state machine:
// pause, cryo, revive, and the lazy-thaw-on-read behavior, all
// serialized through one critical section so concurrent transitions
// total-order by updated_at (spec.md §4.4, §5, §9).
package control

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/papertrade/controlplane/internal/models"
	"github.com/papertrade/controlplane/internal/store"
)

// FSM owns every explicit Control transition plus reads. Lazy thaw on
// a plain read is handled inside store.Store.GetControl under its own
// controlMu-guarded check-then-act; FSM.mu additionally serializes
// every FSM call (Get, Pause, Cryo, Revive) against every other one, so
// a thaw can never interleave with an explicit transition in flight.
type FSM struct {
	mu sync.Mutex
	db *store.Store
}

// New builds an FSM over the given Store.
func New(db *store.Store) *FSM {
	return &FSM{db: db}
}

// Get returns the current (lazily-thawed) Control row. It takes f.mu
// like every explicit transition, so a read-triggered thaw can never
// interleave with a Pause/Cryo/Revive call's own check-then-act.
func (f *FSM) Get() (models.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.GetControl()
}

// nextUpdatedAt returns a timestamp strictly after prev (parsed as
// RFC-3339), satisfying invariant 3 of spec.md §3 even when two
// transitions land within the same wall-clock tick.
func nextUpdatedAt(prev string) time.Time {
	now := time.Now().UTC()
	if prev == "" {
		return now
	}
	prevT, err := time.Parse(time.RFC3339Nano, prev)
	if err != nil {
		return now
	}
	if !now.After(prevT) {
		return prevT.Add(time.Microsecond)
	}
	return now
}

// Pause transitions to PAUSED. Renewal rule (§8 round-trip law): if
// already PAUSED, a new deadline only takes effect when it is later
// than the current one; an earlier-or-equal deadline is a no-op aside
// from bumping updated_at.
func (f *FSM) Pause(seconds int, reason string) (models.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.db.GetControl()
	if err != nil {
		return models.Control{}, err
	}

	at := nextUpdatedAt(cur.UpdatedAt)
	candidate := at.Add(time.Duration(seconds) * time.Second)

	next := cur
	next.State = models.StatePaused
	next.CryoReason, next.CryoUntil = "", ""
	next.UpdatedAt = at.Format(time.RFC3339Nano)

	if cur.State == models.StatePaused && cur.PauseUntil != "" {
		existing, parseErr := time.Parse(time.RFC3339Nano, cur.PauseUntil)
		if parseErr == nil && !candidate.After(existing) {
			next.PauseUntil = cur.PauseUntil
			next.PauseReason = cur.PauseReason
			if err := f.db.PutControl(next); err != nil {
				return models.Control{}, err
			}
			return next, nil
		}
	}

	next.PauseUntil = candidate.Format(time.RFC3339Nano)
	next.PauseReason = reason

	if err := f.db.PutControl(next); err != nil {
		return models.Control{}, err
	}
	f.emit(models.EventWarning, "paused", reason, next.PauseUntil)
	return next, nil
}

// Cryo transitions to CRYO, same renewal semantics as Pause.
func (f *FSM) Cryo(seconds int, reason string) (models.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.db.GetControl()
	if err != nil {
		return models.Control{}, err
	}

	at := nextUpdatedAt(cur.UpdatedAt)
	candidate := at.Add(time.Duration(seconds) * time.Second)

	next := cur
	next.State = models.StateCryo
	next.PauseReason, next.PauseUntil = "", ""
	next.UpdatedAt = at.Format(time.RFC3339Nano)

	if cur.State == models.StateCryo && cur.CryoUntil != "" {
		existing, parseErr := time.Parse(time.RFC3339Nano, cur.CryoUntil)
		if parseErr == nil && !candidate.After(existing) {
			next.CryoUntil = cur.CryoUntil
			next.CryoReason = cur.CryoReason
			if err := f.db.PutControl(next); err != nil {
				return models.Control{}, err
			}
			return next, nil
		}
	}

	next.CryoUntil = candidate.Format(time.RFC3339Nano)
	next.CryoReason = reason

	if err := f.db.PutControl(next); err != nil {
		return models.Control{}, err
	}
	f.emit(models.EventWarning, "cryo", reason, next.CryoUntil)
	return next, nil
}

// Revive transitions to ACTIVE, clears every timer/reason, and resets
// the Pet singleton to its initial values (spec.md §4.4).
func (f *FSM) Revive(reason string) (models.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.db.GetControl()
	if err != nil {
		return models.Control{}, err
	}

	at := nextUpdatedAt(cur.UpdatedAt)
	next := models.Control{
		State:     models.StateActive,
		UpdatedAt: at.Format(time.RFC3339Nano),
	}

	if err := f.db.PutControl(next); err != nil {
		return models.Control{}, err
	}
	if err := f.db.UpsertPet(models.InitialPet(at.Format(time.RFC3339))); err != nil {
		return models.Control{}, err
	}
	f.emit(models.EventInfo, "revive", reason, "")
	return next, nil
}

// emit appends a summarizing Event row for a control transition. A
// failure here is discarded (not returned or logged) and never
// retroactively undoes the transition itself — the transition is the
// authoritative fact, the Event is a best-effort annotation of it.
func (f *FSM) emit(kind models.EventType, action, reason, until string) {
	details, _ := json.Marshal(map[string]string{"action": action, "reason": reason, "until": until})
	_, _ = f.db.AppendEvent(models.Event{
		Type:    kind,
		Message: action,
		Details: details,
	})
}
