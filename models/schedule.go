package models

import (
	"fmt"
	"time"
)

// RotationMode governs the order in which queued episodes are placed onto the timeline.
type RotationMode string

const (
	// RotationSequential places episodes in season/episode order as one contiguous block.
	RotationSequential RotationMode = "sequential"
	// RotationRandom shuffles episodes and slides each into the next free slot.
	RotationRandom RotationMode = "random"
)

// Valid reports whether the mode is one of the supported rotation modes.
func (m RotationMode) Valid() bool {
	return m == RotationSequential || m == RotationRandom
}

// CalendarDate is a year/month/day triple with no time-of-day or zone attached.
// Comparisons use calendar fields only, never UTC instants, so a picker
// returning midnight in another zone cannot shift the day.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewCalendarDate builds a CalendarDate from calendar fields.
func NewCalendarDate(year int, month time.Month, day int) CalendarDate {
	return CalendarDate{Year: year, Month: month, Day: day}
}

// Time returns local midnight of the date.
func (d CalendarDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.Local)
}

// String formats the date as YYYY-MM-DD.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Equal reports whether both dates name the same calendar day.
func (d CalendarDate) Equal(other CalendarDate) bool {
	return d.Year == other.Year && d.Month == other.Month && d.Day == other.Day
}

// Before reports whether d falls on an earlier calendar day than other.
func (d CalendarDate) Before(other CalendarDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// IsZero reports whether the date is unset.
func (d CalendarDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// MarshalJSON encodes the date as a "YYYY-MM-DD" string.
func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return fmt.Errorf("parse calendar date %q: %w", s, err)
	}
	d.Year, d.Month, d.Day = parsed.Year(), parsed.Month(), parsed.Day()
	return nil
}

// ScheduledInterval is one persisted schedule entry occupying [StartInstant,
// StartInstant+DurationMinutes) on the owner's calendar. DurationMinutes is
// always positive. TZOffset records the UTC offset (±HH:MM) the entry was
// authored in and is used only for redisplay, never for conflict math.
type ScheduledInterval struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId,omitempty"`
	ContentID       string    `json:"contentId"`
	Season          *int      `json:"season"`
	Episode         *int      `json:"episode"`
	StartInstant    time.Time `json:"startInstant"`
	DurationMinutes int       `json:"durationMinutes"`
	Title           string    `json:"title"`
	TZOffset        string    `json:"tzOffset,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

// End returns the exclusive end instant of the interval.
func (si ScheduledInterval) End() time.Time {
	return si.StartInstant.Add(time.Duration(si.DurationMinutes) * time.Minute)
}

// Date returns the calendar date the interval starts on, in local time.
func (si ScheduledInterval) Date() CalendarDate {
	t := si.StartInstant.In(time.Local)
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// PendingPlacement is an unsaved ScheduledInterval-shaped record held only in
// the draft overlay. LocalKey is generated client-side of persistence so the
// placement can be removed before commit; it is not a stored id.
type PendingPlacement struct {
	LocalKey        string    `json:"localKey"`
	ContentID       string    `json:"contentId"`
	Season          *int      `json:"season"`
	Episode         *int      `json:"episode"`
	StartInstant    time.Time `json:"startInstant"`
	DurationMinutes int       `json:"durationMinutes"`
	Title           string    `json:"title"`
	TZOffset        string    `json:"tzOffset,omitempty"`
}

// End returns the exclusive end instant of the pending placement.
func (p PendingPlacement) End() time.Time {
	return p.StartInstant.Add(time.Duration(p.DurationMinutes) * time.Minute)
}

// AsInterval converts the pending placement into an unpersisted interval.
func (p PendingPlacement) AsInterval() ScheduledInterval {
	return ScheduledInterval{
		ContentID:       p.ContentID,
		Season:          p.Season,
		Episode:         p.Episode,
		StartInstant:    p.StartInstant,
		DurationMinutes: p.DurationMinutes,
		Title:           p.Title,
		TZOffset:        p.TZOffset,
	}
}

// Candidate is one placeable unit resolved from the queue: a single episode
// of a show, or a movie. DurationMinutes is always resolved (metadata value
// or the configured default) by the time a Candidate exists.
type Candidate struct {
	ContentID       string      `json:"contentId"`
	ContentType     ContentType `json:"contentType"`
	Title           string      `json:"title"`
	Season          *int        `json:"season"`
	Episode         *int        `json:"episode"`
	DurationMinutes int         `json:"durationMinutes"`
}

// SkippedCandidate records a candidate that could not be placed during a
// generation run together with a human-readable reason. It is a data record,
// not an error: skips are the expected partial-failure channel of generation.
type SkippedCandidate struct {
	Candidate Candidate `json:"candidate"`
	Reason    string    `json:"reason"`
}

// GenerationResult is the outcome of one generation run. It is constructed
// fresh per call and never mutated after return; callers persist Placed and
// surface Skipped to the user.
type GenerationResult struct {
	Placed  []ScheduledInterval `json:"placed"`
	Skipped []SkippedCandidate  `json:"skipped"`
}

// CommitFailure reports one pending placement that could not be persisted.
type CommitFailure struct {
	Placement PendingPlacement `json:"placement"`
	Error     string           `json:"error"`
}

// CommitOutcome reports per-item results of committing a draft overlay.
// Successfully committed placements are kept even when later items fail.
type CommitOutcome struct {
	Committed []ScheduledInterval `json:"committed"`
	Failed    []CommitFailure     `json:"failed"`
}
