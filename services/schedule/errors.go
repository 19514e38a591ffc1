package schedule

import (
	"errors"
	"fmt"
	"time"

	"showplan/models"
)

// ErrUnknownRotationMode is returned when a rotation mode is neither
// sequential nor random.
var ErrUnknownRotationMode = errors.New("unknown rotation mode")

// InvalidDateError reports a date input that could not be interpreted as a
// calendar date. It is returned synchronously and never silently defaulted.
type InvalidDateError struct {
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date: %q", e.Value)
}

// InvalidDurationError reports a non-positive duration where a positive
// number of minutes is required.
type InvalidDurationError struct {
	Minutes int
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration: %d minutes", e.Minutes)
}

// ConflictError reports that a placement attempt overlaps an existing
// interval. It carries the blocking item's identity and time range so the
// caller can render a human-readable message, and is recoverable: the caller
// may retry at a different time.
type ConflictError struct {
	BlockingTitle string
	BlockingStart time.Time
	BlockingEnd   time.Time

	message string
}

func (e *ConflictError) Error() string {
	return e.message
}

// newConflictError builds a ConflictError for a proposed [newStart, newEnd)
// placement blocked by the given interval. The message picks the first
// matching case: the new item starts inside the blocking interval, the new
// item would end inside it, or a general overlap.
func newConflictError(blocking models.ScheduledInterval, newStart, newEnd time.Time) *ConflictError {
	e := &ConflictError{
		BlockingTitle: blocking.Title,
		BlockingStart: blocking.StartInstant,
		BlockingEnd:   blocking.End(),
	}

	switch {
	case !newStart.Before(blocking.StartInstant) && newStart.Before(blocking.End()):
		e.message = fmt.Sprintf("occupied by '%s' starting at %s", blocking.Title, formatClock(blocking.StartInstant))
	case newEnd.After(blocking.StartInstant) && !newEnd.After(blocking.End()):
		e.message = fmt.Sprintf("occupied by '%s' ending at %s", blocking.Title, formatClock(blocking.End()))
	default:
		e.message = fmt.Sprintf("occupied by '%s' between %s and %s", blocking.Title,
			formatClock(blocking.StartInstant), formatClock(blocking.End()))
	}

	return e
}

// formatClock renders an instant as a local 12-hour clock time, the format
// schedule conflicts are reported in.
func formatClock(t time.Time) string {
	return t.In(time.Local).Format("3:04 PM")
}
