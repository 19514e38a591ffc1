package models

import "time"

// ContentType distinguishes the two kinds of queueable content.
type ContentType string

const (
	ContentTypeShow  ContentType = "show"
	ContentTypeMovie ContentType = "movie"
)

// Valid reports whether the content type is supported.
func (c ContentType) Valid() bool {
	return c == ContentTypeShow || c == ContentTypeMovie
}

// QueueEntry is one item in a user's watch queue. The scheduling engine
// treats entries as read-only input; the queue service owns their lifecycle.
type QueueEntry struct {
	ContentID   string        `json:"contentId"`
	Title       string        `json:"title"`
	ContentType ContentType   `json:"contentType"`
	TMDBID      *int64        `json:"tmdbId"`
	Position    int           `json:"position"`
	Filter      EpisodeFilter `json:"filter"`
	AddedAt     time.Time     `json:"addedAt,omitempty"`
}

// QueueUpsert is the input for adding or updating a queue entry. A nil Filter
// leaves the stored filter untouched on update and defaults to "all" on
// insert.
type QueueUpsert struct {
	ContentID   string         `json:"contentId"`
	Title       string         `json:"title"`
	ContentType ContentType    `json:"contentType"`
	TMDBID      *int64         `json:"tmdbId,omitempty"`
	Filter      *EpisodeFilter `json:"filter,omitempty"`
}

// Episode is per-episode metadata fetched for a queued show. A nil
// DurationMinutes means the runtime is unknown and the scheduling default
// applies; an explicit zero or negative runtime is rejected as invalid.
type Episode struct {
	Season          int    `json:"season"`
	Episode         int    `json:"episode"`
	DurationMinutes *int   `json:"durationMinutes"`
	Title           string `json:"title"`
}

// FilterMode selects how an EpisodeFilter interprets its episode set.
type FilterMode string

const (
	// FilterAll schedules every known episode; the episode set is ignored.
	FilterAll FilterMode = "all"
	// FilterInclude schedules only episodes named in the set.
	FilterInclude FilterMode = "include"
	// FilterExclude schedules all episodes except those named in the set.
	FilterExclude FilterMode = "exclude"
)

// Valid reports whether the filter mode is supported.
func (m FilterMode) Valid() bool {
	return m == FilterAll || m == FilterInclude || m == FilterExclude
}

// EpisodeKey identifies one episode of a show by season/episode number.
type EpisodeKey struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// EpisodeFilter is a per-show selection rule applied before ordering.
type EpisodeFilter struct {
	Mode     FilterMode   `json:"mode"`
	Episodes []EpisodeKey `json:"episodes,omitempty"`
}

// Matches reports whether the given episode passes the filter.
func (f EpisodeFilter) Matches(season, episode int) bool {
	switch f.Mode {
	case FilterInclude:
		return f.contains(season, episode)
	case FilterExclude:
		return !f.contains(season, episode)
	default:
		return true
	}
}

func (f EpisodeFilter) contains(season, episode int) bool {
	for _, key := range f.Episodes {
		if key.Season == season && key.Episode == episode {
			return true
		}
	}
	return false
}
