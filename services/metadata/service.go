package metadata

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"showplan/models"
)

// maxSeasonFetchers bounds the concurrent season requests per show so a
// long-running series does not flood the TMDB API in one burst.
const maxSeasonFetchers = 4

// Service resolves episode metadata and movie runtimes from TMDB, caching
// responses in memory with a TTL so repeated schedule generations for the
// same shows stay cheap.
type Service struct {
	mu    sync.RWMutex
	tmdb  *tmdbClient
	cache *memCache

	stopCh chan struct{}
}

func NewService(tmdbAPIKey, language string, cacheTTLHours int) *Service {
	return &Service{
		tmdb:  newTMDBClient(tmdbAPIKey, language, nil),
		cache: newMemCache(cacheTTLHours),
	}
}

// UpdateAPIKey swaps in a new TMDB client and clears the cache so nothing
// fetched with the old key keeps serving. Allows hot reload when settings
// change.
func (s *Service) UpdateAPIKey(tmdbAPIKey, language string) {
	s.mu.Lock()
	s.tmdb = newTMDBClient(tmdbAPIKey, language, nil)
	s.mu.Unlock()

	s.cache.clear()
	log.Printf("[metadata] tmdb client reconfigured, cache cleared")
}

// ClearCache drops every cached episode list and runtime.
func (s *Service) ClearCache() {
	s.cache.clear()
	log.Printf("[metadata] cache cleared")
}

func (s *Service) client() *tmdbClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tmdb
}

// Configured reports whether a TMDB API key is set.
func (s *Service) Configured() bool {
	return s.client().isConfigured()
}

// EpisodesForShow returns every non-special episode of a show in season then
// episode order. Episode runtimes fall back to the show's average runtime;
// when TMDB knows neither, DurationMinutes stays nil and the scheduler
// applies its own default.
func (s *Service) EpisodesForShow(ctx context.Context, tmdbID int64) ([]models.Episode, error) {
	if tmdbID <= 0 {
		return nil, fmt.Errorf("tmdb id required")
	}

	key := fmt.Sprintf("show_%d_episodes", tmdbID)
	if cached, ok := s.cache.get(key); ok {
		if episodes, ok := cached.([]models.Episode); ok {
			return cloneEpisodes(episodes), nil
		}
	}

	client := s.client()
	show, err := client.showDetails(ctx, tmdbID)
	if err != nil {
		return nil, err
	}

	seasons := seasonNumbers(show)
	if len(seasons) == 0 {
		s.cache.set(key, []models.Episode{})
		return []models.Episode{}, nil
	}

	var showRuntime *int
	if len(show.EpisodeRunTime) > 0 && show.EpisodeRunTime[0] > 0 {
		showRuntime = models.IntPtr(show.EpisodeRunTime[0])
	}

	// Fetch seasons in parallel, collecting results and errors under
	// their own locks.
	fetchers := pool.New().WithMaxGoroutines(maxSeasonFetchers)

	bySeason := make(map[int][]tmdbEpisode, len(seasons))
	resultsMu := sync.Mutex{}

	var fetchErrs []error
	errsMu := sync.Mutex{}

	for _, seasonNumber := range seasons {
		seasonNumber := seasonNumber
		fetchers.Go(func() {
			episodes, err := client.seasonEpisodes(ctx, tmdbID, seasonNumber)
			if err != nil {
				errsMu.Lock()
				fetchErrs = append(fetchErrs, fmt.Errorf("season %d: %w", seasonNumber, err))
				errsMu.Unlock()
				return
			}
			resultsMu.Lock()
			bySeason[seasonNumber] = episodes
			resultsMu.Unlock()
		})
	}
	fetchers.Wait()

	if len(fetchErrs) > 0 {
		log.Printf("[metadata] episode fetch for show %d failed: %d of %d seasons errored", tmdbID, len(fetchErrs), len(seasons))
		return nil, fetchErrs[0]
	}

	out := make([]models.Episode, 0, 32)
	for _, seasonNumber := range seasons {
		episodes := bySeason[seasonNumber]
		sort.SliceStable(episodes, func(i, j int) bool {
			return episodes[i].EpisodeNumber < episodes[j].EpisodeNumber
		})
		for _, ep := range episodes {
			episode := models.Episode{
				Season:  seasonNumber,
				Episode: ep.EpisodeNumber,
				Title:   ep.Name,
			}
			switch {
			case ep.Runtime > 0:
				episode.DurationMinutes = models.IntPtr(ep.Runtime)
			case showRuntime != nil:
				episode.DurationMinutes = models.IntPtr(*showRuntime)
			}
			out = append(out, episode)
		}
	}

	s.cache.set(key, out)
	return cloneEpisodes(out), nil
}

// movieRuntimeEntry caches a runtime by value so callers never share
// pointers with the cache.
type movieRuntimeEntry struct {
	minutes int
}

// MovieRuntime returns the runtime TMDB reports for a movie, or nil when
// TMDB has none so the scheduler applies its movie default.
func (s *Service) MovieRuntime(ctx context.Context, tmdbID int64) (*int, error) {
	if tmdbID <= 0 {
		return nil, fmt.Errorf("tmdb id required")
	}

	key := fmt.Sprintf("movie_%d_runtime", tmdbID)
	if cached, ok := s.cache.get(key); ok {
		if entry, ok := cached.(movieRuntimeEntry); ok {
			return runtimePtr(entry.minutes), nil
		}
	}

	movie, err := s.client().movieDetails(ctx, tmdbID)
	if err != nil {
		return nil, err
	}

	s.cache.set(key, movieRuntimeEntry{minutes: movie.Runtime})
	return runtimePtr(movie.Runtime), nil
}

// StartCacheJanitor begins periodic eviction of expired cache entries.
func (s *Service) StartCacheJanitor(interval time.Duration) {
	s.stopCh = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := s.cache.pruneExpired(); removed > 0 {
					log.Printf("[metadata] cache janitor evicted %d expired entries, %d remain", removed, s.cache.len())
				}
			case <-s.stopCh:
				log.Println("[metadata] cache janitor stopped")
				return
			}
		}
	}()
}

// Stop shuts down the cache janitor.
func (s *Service) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
}

// seasonNumbers lists the seasons worth fetching. Season 0 holds specials,
// which never enter a watch rotation.
func seasonNumbers(show *tmdbShowResponse) []int {
	numbers := make([]int, 0, len(show.Seasons))
	for _, season := range show.Seasons {
		if season.SeasonNumber > 0 {
			numbers = append(numbers, season.SeasonNumber)
		}
	}
	if len(numbers) == 0 && show.NumberOfSeasons > 0 {
		for n := 1; n <= show.NumberOfSeasons; n++ {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers
}

func cloneEpisodes(episodes []models.Episode) []models.Episode {
	out := make([]models.Episode, len(episodes))
	for i, ep := range episodes {
		out[i] = ep
		if ep.DurationMinutes != nil {
			out[i].DurationMinutes = models.IntPtr(*ep.DurationMinutes)
		}
	}
	return out
}

func runtimePtr(minutes int) *int {
	if minutes <= 0 {
		return nil
	}
	return models.IntPtr(minutes)
}
