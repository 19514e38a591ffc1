package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"showplan/models"
)

// ReasonNoSlotsRemaining is the skip reason recorded when no window large
// enough for a candidate remains before the end of the day.
const ReasonNoSlotsRemaining = "no available time slots remaining"

// GenerateParams bundles the inputs of one generation run. Existing and
// Pending are the day's interval collections; the run builds its own fresh
// occupancy view over them and never mutates the caller's slices.
type GenerateParams struct {
	Candidates []models.Candidate
	Start      time.Time
	Mode       models.RotationMode
	Existing   []models.ScheduledInterval
	Pending    []models.PendingPlacement

	// StepMinutes overrides the free-slot walk granularity. Zero keeps the
	// default quarter-hour grid.
	StepMinutes int
}

// Generate walks the candidates in order and places each onto the day,
// returning what was placed and what was skipped with reasons. The generator
// performs no I/O and never persists anything; the caller stores Placed as a
// single unit.
//
// Sequential mode lays a contiguous block: each candidate is attempted at
// exactly the cursor, and the first conflict (or running out of day) records
// a skip and stops the remaining candidates, mirroring a programming block
// that cannot have gaps inserted mid-stream. Random mode slides each
// candidate forward to the next free slot and keeps going when an individual
// candidate finds no room.
//
// Every successful placement becomes visible to the occupancy checks of
// later iterations within the same call, so a run never double-books itself.
func Generate(p GenerateParams) (models.GenerationResult, error) {
	if p.Start.IsZero() {
		return models.GenerationResult{}, &InvalidDateError{Value: "zero start instant"}
	}
	if !p.Mode.Valid() {
		return models.GenerationResult{}, ErrUnknownRotationMode
	}
	for _, cand := range p.Candidates {
		if cand.DurationMinutes <= 0 {
			return models.GenerationResult{}, &InvalidDurationError{Minutes: cand.DurationMinutes}
		}
	}

	date, err := ToCalendarDate(p.Start)
	if err != nil {
		return models.GenerationResult{}, err
	}

	existing := append([]models.ScheduledInterval{}, p.Existing...)
	occ := NewOccupancy(date, existing, p.Pending).WithStep(p.StepMinutes)

	result := models.GenerationResult{
		Placed:  []models.ScheduledInterval{},
		Skipped: []models.SkippedCandidate{},
	}

	t := p.Start
	tzOffset := p.Start.Format("-07:00")

	for _, cand := range p.Candidates {
		switch p.Mode {
		case models.RotationSequential:
			if !occ.fitsDay(t, cand.DurationMinutes) {
				result.Skipped = append(result.Skipped, models.SkippedCandidate{
					Candidate: cand,
					Reason:    ReasonNoSlotsRemaining,
				})
				// The block is contiguous; later candidates start even later
				// and cannot fit either.
				return result, nil
			}
			if blocking := occ.FindBlocking(t, cand.DurationMinutes); blocking != nil {
				result.Skipped = append(result.Skipped, models.SkippedCandidate{
					Candidate: cand,
					Reason: fmt.Sprintf("occupied by %s [%s-%s]",
						blocking.Title, formatClock(blocking.StartInstant), formatClock(blocking.End())),
				})
				// One conflict invalidates the remaining contiguous
				// placements for this run.
				return result, nil
			}

			placed := newPlacement(cand, t, tzOffset)
			result.Placed = append(result.Placed, placed)
			occ.add(placed)
			t = t.Add(time.Duration(cand.DurationMinutes) * time.Minute)

		case models.RotationRandom:
			slot := occ.NextFreeSlot(t, cand.DurationMinutes)
			if slot == nil {
				result.Skipped = append(result.Skipped, models.SkippedCandidate{
					Candidate: cand,
					Reason:    ReasonNoSlotsRemaining,
				})
				continue
			}

			placed := newPlacement(cand, *slot, tzOffset)
			result.Placed = append(result.Placed, placed)
			occ.add(placed)
			t = slot.Add(time.Duration(cand.DurationMinutes) * time.Minute)
		}
	}

	return result, nil
}

// newPlacement builds the unpersisted interval for a successful placement.
func newPlacement(cand models.Candidate, start time.Time, tzOffset string) models.ScheduledInterval {
	return models.ScheduledInterval{
		ID:              uuid.NewString(),
		ContentID:       cand.ContentID,
		Season:          cand.Season,
		Episode:         cand.Episode,
		StartInstant:    start,
		DurationMinutes: cand.DurationMinutes,
		Title:           cand.Title,
		TZOffset:        tzOffset,
	}
}
