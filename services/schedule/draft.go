package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"showplan/models"
)

// CommitSink persists a single pending placement. The schedule repository
// satisfies it; tests substitute in-memory sinks.
type CommitSink interface {
	InsertInterval(ctx context.Context, interval *models.ScheduledInterval) error
}

// Overlay is the draft staging layer: an explicit in-memory store of pending
// placements keyed by locally generated keys, checked against persisted
// intervals and against each other before a batch commit. It behaves
// identically to the occupancy index with respect to conflicts because it
// delegates to the same one.
type Overlay struct {
	mu         sync.Mutex
	placements map[string]models.PendingPlacement
	order      []string
}

// NewOverlay returns an empty draft overlay.
func NewOverlay() *Overlay {
	return &Overlay{placements: make(map[string]models.PendingPlacement)}
}

// Stage provisionally places a candidate at the given start instant after
// checking the union of persisted intervals and already staged placements.
// On conflict it returns a ConflictError naming the blocking item and time
// range; nothing is staged in that case.
func (ov *Overlay) Stage(cand models.Candidate, start time.Time, persisted []models.ScheduledInterval) (models.PendingPlacement, error) {
	if start.IsZero() {
		return models.PendingPlacement{}, &InvalidDateError{Value: "zero start instant"}
	}
	if cand.DurationMinutes <= 0 {
		return models.PendingPlacement{}, &InvalidDurationError{Minutes: cand.DurationMinutes}
	}

	date, err := ToCalendarDate(start)
	if err != nil {
		return models.PendingPlacement{}, err
	}

	ov.mu.Lock()
	defer ov.mu.Unlock()

	occ := NewOccupancy(date, persisted, ov.listLocked())
	if blocking := occ.FindBlocking(start, cand.DurationMinutes); blocking != nil {
		end := start.Add(time.Duration(cand.DurationMinutes) * time.Minute)
		return models.PendingPlacement{}, newConflictError(*blocking, start, end)
	}

	placement := models.PendingPlacement{
		LocalKey:        uuid.NewString(),
		ContentID:       cand.ContentID,
		Season:          cand.Season,
		Episode:         cand.Episode,
		StartInstant:    start,
		DurationMinutes: cand.DurationMinutes,
		Title:           cand.Title,
		TZOffset:        start.Format("-07:00"),
	}

	ov.placements[placement.LocalKey] = placement
	ov.order = append(ov.order, placement.LocalKey)
	return placement, nil
}

// Unstage removes a staged placement by its local key and reports whether it
// was present. Persisted intervals are unaffected; a subsequent Stage at the
// freed slot succeeds again.
func (ov *Overlay) Unstage(localKey string) bool {
	ov.mu.Lock()
	defer ov.mu.Unlock()

	if _, ok := ov.placements[localKey]; !ok {
		return false
	}

	delete(ov.placements, localKey)
	for i, key := range ov.order {
		if key == localKey {
			ov.order = append(ov.order[:i], ov.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns the staged placements in staging order.
func (ov *Overlay) List() []models.PendingPlacement {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return ov.listLocked()
}

// Len returns the number of staged placements.
func (ov *Overlay) Len() int {
	ov.mu.Lock()
	defer ov.mu.Unlock()
	return len(ov.placements)
}

// CommitAll attempts to persist every staged placement through the sink, in
// staging order, as a bounded sequence of independent writes. A failure on
// one item never rolls back or blocks the others: committed placements are
// removed from the overlay and reported in Committed, failures stay staged
// and are reported individually in Failed.
func (ov *Overlay) CommitAll(ctx context.Context, sink CommitSink) models.CommitOutcome {
	ov.mu.Lock()
	defer ov.mu.Unlock()

	outcome := models.CommitOutcome{
		Committed: []models.ScheduledInterval{},
		Failed:    []models.CommitFailure{},
	}

	remaining := make([]string, 0, len(ov.order))
	for _, key := range ov.order {
		placement := ov.placements[key]

		interval := placement.AsInterval()
		interval.ID = uuid.NewString()
		if err := sink.InsertInterval(ctx, &interval); err != nil {
			outcome.Failed = append(outcome.Failed, models.CommitFailure{
				Placement: placement,
				Error:     err.Error(),
			})
			remaining = append(remaining, key)
			continue
		}

		delete(ov.placements, key)
		outcome.Committed = append(outcome.Committed, interval)
	}
	ov.order = remaining

	return outcome
}

// listLocked snapshots the placements in staging order. Callers hold ov.mu.
func (ov *Overlay) listLocked() []models.PendingPlacement {
	out := make([]models.PendingPlacement, 0, len(ov.order))
	for _, key := range ov.order {
		out = append(out, ov.placements[key])
	}
	return out
}
