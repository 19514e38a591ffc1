package models

// UserSettings contains per-user customizable settings.
// These override global defaults when set.
type UserSettings struct {
	Scheduling SchedulingOverrides `json:"scheduling"`
	Display    DisplaySettings     `json:"display"`
}

// SchedulingSettings are the effective planner knobs a generation run uses.
// Global config supplies the baseline; per-user overrides resolve on top.
type SchedulingSettings struct {
	DefaultRotation    RotationMode `json:"defaultRotation"`
	ShowEpisodeMinutes int          `json:"showEpisodeMinutes"` // fallback runtime when an episode lacks one
	MovieMinutes       int          `json:"movieMinutes"`       // fallback runtime when a movie lacks one
	SlotStepMinutes    int          `json:"slotStepMinutes"`    // granularity of the free-slot search
	DayStartHour       int          `json:"dayStartHour"`       // earliest hour the planner UI offers
}

// SchedulingOverrides holds a user's scheduling preferences. Nil fields fall
// back to the global settings.
type SchedulingOverrides struct {
	DefaultRotation    *RotationMode `json:"defaultRotation,omitempty"`
	ShowEpisodeMinutes *int          `json:"showEpisodeMinutes,omitempty"`
	MovieMinutes       *int          `json:"movieMinutes,omitempty"`
	SlotStepMinutes    *int          `json:"slotStepMinutes,omitempty"`
	DayStartHour       *int          `json:"dayStartHour,omitempty"`
}

// DisplaySettings control how schedules are rendered for the user.
type DisplaySettings struct {
	TimeFormat       string `json:"timeFormat"` // "12h" | "24h"
	WeekStartsMonday bool   `json:"weekStartsMonday"`
}

// DefaultSchedulingSettings returns the baseline planner behavior: sequential
// rotation, 30/120 minute runtime fallbacks, a quarter-hour slot grid, and an
// 8 AM planning day.
func DefaultSchedulingSettings() SchedulingSettings {
	return SchedulingSettings{
		DefaultRotation:    RotationSequential,
		ShowEpisodeMinutes: 30,
		MovieMinutes:       120,
		SlotStepMinutes:    15,
		DayStartHour:       8,
	}
}

// DefaultUserSettings returns the settings a new user starts with: no
// scheduling overrides and 12-hour clock display.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		Display: DisplaySettings{TimeFormat: "12h"},
	}
}

// ResolveScheduling merges a user's overrides onto the global scheduling
// settings. A nil profile resolves to the global settings unchanged.
func ResolveScheduling(profile *SchedulingOverrides, global SchedulingSettings) SchedulingSettings {
	resolved := global

	if profile == nil {
		return resolved
	}
	if profile.DefaultRotation != nil && profile.DefaultRotation.Valid() {
		resolved.DefaultRotation = *profile.DefaultRotation
	}
	if profile.ShowEpisodeMinutes != nil && *profile.ShowEpisodeMinutes > 0 {
		resolved.ShowEpisodeMinutes = *profile.ShowEpisodeMinutes
	}
	if profile.MovieMinutes != nil && *profile.MovieMinutes > 0 {
		resolved.MovieMinutes = *profile.MovieMinutes
	}
	if profile.SlotStepMinutes != nil && *profile.SlotStepMinutes > 0 {
		resolved.SlotStepMinutes = *profile.SlotStepMinutes
	}
	if profile.DayStartHour != nil && *profile.DayStartHour >= 0 && *profile.DayStartHour <= 23 {
		resolved.DayStartHour = *profile.DayStartHour
	}

	return resolved
}

// IntPtr returns a pointer to the given int, for building overrides.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to the given string.
func StringPtr(v string) *string { return &v }

// RotationPtr returns a pointer to the given rotation mode.
func RotationPtr(m RotationMode) *RotationMode { return &m }
