package schedule

import (
	"math/rand"
	"sort"

	"showplan/models"
)

// Rand supplies random integers for shuffling. *rand.Rand satisfies it;
// deterministic tests substitute a fixed sequence without touching the
// algorithm.
type Rand interface {
	Intn(n int) int
}

// systemRand shuffles from the runtime's default randomness source.
type systemRand struct{}

func (systemRand) Intn(n int) int { return rand.Intn(n) }

// SelectionConfig carries the fallback runtimes substituted when metadata
// lacks a duration. Zero fields fall back to the package defaults.
type SelectionConfig struct {
	ShowEpisodeMinutes int
	MovieMinutes       int
}

const (
	defaultShowEpisodeMinutes = 30
	defaultMovieMinutes       = 120
)

// DefaultSelectionConfig returns the documented fallback runtimes: 30
// minutes for a show episode, 120 for a movie.
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		ShowEpisodeMinutes: defaultShowEpisodeMinutes,
		MovieMinutes:       defaultMovieMinutes,
	}
}

func (c SelectionConfig) showMinutes() int {
	if c.ShowEpisodeMinutes > 0 {
		return c.ShowEpisodeMinutes
	}
	return defaultShowEpisodeMinutes
}

func (c SelectionConfig) movieMinutes() int {
	if c.MovieMinutes > 0 {
		return c.MovieMinutes
	}
	return defaultMovieMinutes
}

// ResolveEpisodeOrder turns a queue entry plus its episode metadata into the
// ordered candidate list for one show. The entry's filter is applied first,
// then the rotation mode orders what remains:
//
//   - sequential: stable sort by season then episode, ascending. Calling
//     twice on the same input yields the same order.
//   - random: Fisher-Yates shuffle over rng (the runtime's default source
//     when rng is nil). Only the set of outputs is stable across calls.
//
// Episodes without a runtime take the configured show default. An explicit
// zero or negative runtime fails with InvalidDurationError rather than being
// silently defaulted. Movies and shows with no known episodes resolve to a
// single candidate.
func ResolveEpisodeOrder(entry models.QueueEntry, episodes []models.Episode, mode models.RotationMode, cfg SelectionConfig, rng Rand) ([]models.Candidate, error) {
	if !mode.Valid() {
		return nil, ErrUnknownRotationMode
	}

	if entry.ContentType == models.ContentTypeMovie {
		cand, err := movieCandidate(entry, nil, cfg)
		if err != nil {
			return nil, err
		}
		return []models.Candidate{cand}, nil
	}

	var candidates []models.Candidate
	for _, ep := range episodes {
		if !entry.Filter.Matches(ep.Season, ep.Episode) {
			continue
		}

		minutes := cfg.showMinutes()
		if ep.DurationMinutes != nil {
			if *ep.DurationMinutes <= 0 {
				return nil, &InvalidDurationError{Minutes: *ep.DurationMinutes}
			}
			minutes = *ep.DurationMinutes
		}

		season, episode := ep.Season, ep.Episode
		candidates = append(candidates, models.Candidate{
			ContentID:       entry.ContentID,
			ContentType:     models.ContentTypeShow,
			Title:           entry.Title,
			Season:          &season,
			Episode:         &episode,
			DurationMinutes: minutes,
		})
	}

	// A show with no episode metadata still occupies one generic slot.
	if len(episodes) == 0 {
		candidates = append(candidates, models.Candidate{
			ContentID:       entry.ContentID,
			ContentType:     models.ContentTypeShow,
			Title:           entry.Title,
			DurationMinutes: cfg.showMinutes(),
		})
	}

	switch mode {
	case models.RotationSequential:
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			as, bs := seasonOf(a), seasonOf(b)
			if as != bs {
				return as < bs
			}
			return episodeOf(a) < episodeOf(b)
		})
	case models.RotationRandom:
		shuffle(candidates, rng)
	}

	return candidates, nil
}

// movieCandidate resolves a movie entry into its single candidate. A nil
// runtime takes the configured movie default; an explicit zero or negative
// runtime fails with InvalidDurationError.
func movieCandidate(entry models.QueueEntry, runtimeMinutes *int, cfg SelectionConfig) (models.Candidate, error) {
	minutes := cfg.movieMinutes()
	if runtimeMinutes != nil {
		if *runtimeMinutes <= 0 {
			return models.Candidate{}, &InvalidDurationError{Minutes: *runtimeMinutes}
		}
		minutes = *runtimeMinutes
	}

	return models.Candidate{
		ContentID:       entry.ContentID,
		ContentType:     models.ContentTypeMovie,
		Title:           entry.Title,
		DurationMinutes: minutes,
	}, nil
}

// shuffle runs a Fisher-Yates pass over the candidates in place.
func shuffle(candidates []models.Candidate, rng Rand) {
	if rng == nil {
		rng = systemRand{}
	}
	for i := len(candidates) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
}

func seasonOf(c models.Candidate) int {
	if c.Season == nil {
		return 0
	}
	return *c.Season
}

func episodeOf(c models.Candidate) int {
	if c.Episode == nil {
		return 0
	}
	return *c.Episode
}
