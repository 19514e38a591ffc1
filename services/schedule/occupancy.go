package schedule

import (
	"time"

	"showplan/models"
)

// DefaultStepMinutes is the granularity of the free-slot walk. The UI places
// content on quarter-hour boundaries, so the search probes the same grid.
const DefaultStepMinutes = 15

// Occupancy answers conflict queries for one calendar date over the union of
// persisted intervals and staged pending placements. A fresh view is built
// per call from whatever collections the caller passes in; the type holds no
// global state and is cheap enough for speculative hover-preview queries.
//
// Persisted intervals are always consulted before pending ones, so a
// persisted entry wins when both block the same slot.
type Occupancy struct {
	date      models.CalendarDate
	persisted []models.ScheduledInterval
	pending   []models.PendingPlacement
	step      int
}

// NewOccupancy builds an occupancy view for the given date. Neither input
// collection needs to be sorted.
func NewOccupancy(date models.CalendarDate, persisted []models.ScheduledInterval, pending []models.PendingPlacement) *Occupancy {
	return &Occupancy{
		date:      date,
		persisted: persisted,
		pending:   pending,
		step:      DefaultStepMinutes,
	}
}

// WithStep overrides the slot-walk step. Non-positive values keep the
// default.
func (o *Occupancy) WithStep(minutes int) *Occupancy {
	if minutes > 0 {
		o.step = minutes
	}
	return o
}

// FindBlocking returns the first interval overlapping the proposed
// [start, start+duration) window, or nil when the window is free. Persisted
// intervals take priority over pending ones.
func (o *Occupancy) FindBlocking(start time.Time, durationMinutes int) *models.ScheduledInterval {
	proposed := Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}

	for _, iv := range o.persisted {
		if IntervalsOverlap(proposed, Interval{Start: iv.StartInstant, End: iv.End()}) {
			blocking := iv
			return &blocking
		}
	}
	for _, p := range o.pending {
		if IntervalsOverlap(proposed, Interval{Start: p.StartInstant, End: p.End()}) {
			blocking := p.AsInterval()
			return &blocking
		}
	}
	return nil
}

// IsOccupied reports whether any interval overlaps the proposed window.
func (o *Occupancy) IsOccupied(start time.Time, durationMinutes int) bool {
	return o.FindBlocking(start, durationMinutes) != nil
}

// AvailableMinutesFrom returns the whole free minutes between start and the
// earlier of the next interval beginning strictly after start, or the end of
// the day (23:59:59 local). Returns 0 when start itself is occupied; callers
// wanting to distinguish "occupied" from "no room" should check occupancy
// first.
func (o *Occupancy) AvailableMinutesFrom(start time.Time) int {
	if o.occupiedAt(start) {
		return 0
	}

	boundary := EndOfDay(o.date)
	consider := func(ivStart time.Time) {
		if ivStart.After(start) && ivStart.Before(boundary) {
			boundary = ivStart
		}
	}
	for _, iv := range o.persisted {
		consider(iv.StartInstant)
	}
	for _, p := range o.pending {
		consider(p.StartInstant)
	}

	return MinutesBetween(start, boundary)
}

// NextFreeSlot walks forward from the given instant in step increments until
// the full duration window is unoccupied, returning the slot start. It
// returns nil once the window can no longer finish before midnight. The walk
// is bounded by the day length over the step size, at most 96 probes at the
// default step.
func (o *Occupancy) NextFreeSlot(from time.Time, durationMinutes int) *time.Time {
	if durationMinutes <= 0 {
		return nil
	}

	window := time.Duration(durationMinutes) * time.Minute
	stepDur := time.Duration(o.step) * time.Minute
	dayEnd := startOfNextDay(o.date)

	for probe := from; !probe.Add(window).After(dayEnd); probe = probe.Add(stepDur) {
		if !o.IsOccupied(probe, durationMinutes) {
			slot := probe
			return &slot
		}
	}
	return nil
}

// occupiedAt reports whether the instant falls inside any interval.
func (o *Occupancy) occupiedAt(t time.Time) bool {
	for _, iv := range o.persisted {
		if !t.Before(iv.StartInstant) && t.Before(iv.End()) {
			return true
		}
	}
	for _, p := range o.pending {
		if !t.Before(p.StartInstant) && t.Before(p.End()) {
			return true
		}
	}
	return false
}

// fitsDay reports whether a window starting at start can finish before the
// next midnight.
func (o *Occupancy) fitsDay(start time.Time, durationMinutes int) bool {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return !end.After(startOfNextDay(o.date))
}

// add makes a freshly placed interval visible to subsequent queries on this
// view. Used by the generator so a single run never double-books itself.
func (o *Occupancy) add(iv models.ScheduledInterval) {
	o.persisted = append(o.persisted, iv)
}
