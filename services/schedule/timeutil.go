package schedule

import (
	"strings"
	"time"

	"showplan/models"
)

// Interval is a half-open time range [Start, End) occupied by one piece of
// content.
type Interval struct {
	Start time.Time
	End   time.Time
}

// dateLayouts are accepted by ToCalendarDate for string input, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ToCalendarDate normalizes an instant or date-like value to a CalendarDate
// pinned to local midnight. The time-of-day component is stripped using the
// local calendar fields, so an instant that is "yesterday 23:00" in UTC but
// "today" locally lands on the local day. Unparsable input fails with
// InvalidDateError.
func ToCalendarDate(v any) (models.CalendarDate, error) {
	switch value := v.(type) {
	case models.CalendarDate:
		if value.IsZero() {
			return models.CalendarDate{}, &InvalidDateError{Value: "zero date"}
		}
		return value, nil
	case time.Time:
		if value.IsZero() {
			return models.CalendarDate{}, &InvalidDateError{Value: "zero time"}
		}
		local := value.In(time.Local)
		return models.NewCalendarDate(local.Year(), local.Month(), local.Day()), nil
	case *time.Time:
		if value == nil {
			return models.CalendarDate{}, &InvalidDateError{Value: "nil time"}
		}
		return ToCalendarDate(*value)
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return models.CalendarDate{}, &InvalidDateError{Value: value}
		}
		for _, layout := range dateLayouts {
			parsed, err := time.ParseInLocation(layout, trimmed, time.Local)
			if err == nil {
				local := parsed.In(time.Local)
				return models.NewCalendarDate(local.Year(), local.Month(), local.Day()), nil
			}
		}
		return models.CalendarDate{}, &InvalidDateError{Value: value}
	default:
		return models.CalendarDate{}, &InvalidDateError{Value: "unsupported value"}
	}
}

// clockStart validates the clock fields and returns the local instant at
// hour:minute on the given date. Minute values past 59 carry into the hour.
func clockStart(date models.CalendarDate, hour, minute int) (time.Time, error) {
	if date.IsZero() {
		return time.Time{}, &InvalidDateError{Value: "zero date"}
	}
	if hour < 0 || hour > 23 {
		return time.Time{}, &InvalidDateError{Value: "hour out of range"}
	}
	if minute < 0 {
		return time.Time{}, &InvalidDateError{Value: "negative minute"}
	}
	return time.Date(date.Year, date.Month, date.Day, hour, minute, 0, 0, time.Local), nil
}

// BuildInterval constructs the half-open interval [start, start+duration)
// beginning at the given local clock time on the given date. Minutes are
// stored exactly as passed; rounding of user-facing click positions is the
// caller's concern (see RoundToQuarterHour).
func BuildInterval(date models.CalendarDate, hour, minute, durationMinutes int) (Interval, error) {
	start, err := clockStart(date, hour, minute)
	if err != nil {
		return Interval{}, err
	}
	if durationMinutes <= 0 {
		return Interval{}, &InvalidDurationError{Minutes: durationMinutes}
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return Interval{Start: start, End: end}, nil
}

// IntervalsOverlap reports whether two half-open intervals intersect.
// Touching endpoints do not conflict.
func IntervalsOverlap(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// RoundToQuarterHour snaps a minute value to the nearest 15-minute boundary.
// Values round half up, so 53 becomes 60 and the caller carries the hour.
func RoundToQuarterHour(minute int) int {
	if minute < 0 {
		return 0
	}
	return ((minute + 7) / 15) * 15
}

// EndOfDay returns 23:59:59 local on the given date, the upper bound used
// when measuring remaining free minutes.
func EndOfDay(date models.CalendarDate) time.Time {
	return time.Date(date.Year, date.Month, date.Day, 23, 59, 59, 0, time.Local)
}

// startOfNextDay returns local midnight of the day after the given date.
// A placement fits the day iff its end does not pass this instant.
func startOfNextDay(date models.CalendarDate) time.Time {
	return time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)
}

// MinutesBetween returns the whole minutes from one instant to a later one,
// or 0 when to is not after from. Sub-minute precision is not supported
// anywhere in the engine.
func MinutesBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}
