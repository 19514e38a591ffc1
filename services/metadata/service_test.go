package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTMDB serves canned TMDB responses and records every request path.
type fakeTMDB struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeTMDB) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		f.mu.Unlock()

		switch r.URL.Path {
		case "/tv/100":
			_, _ = w.Write([]byte(`{
				"id": 100, "name": "Show A", "number_of_seasons": 2,
				"episode_run_time": [25],
				"seasons": [
					{"season_number": 0, "episode_count": 3},
					{"season_number": 1, "episode_count": 2},
					{"season_number": 2, "episode_count": 1}
				]
			}`))
		case "/tv/100/season/1":
			_, _ = w.Write([]byte(`{
				"season_number": 1,
				"episodes": [
					{"season_number": 1, "episode_number": 2, "name": "Second", "runtime": 0},
					{"season_number": 1, "episode_number": 1, "name": "First", "runtime": 24}
				]
			}`))
		case "/tv/100/season/2":
			_, _ = w.Write([]byte(`{
				"season_number": 2,
				"episodes": [
					{"season_number": 2, "episode_number": 1, "name": "Opener", "runtime": 0}
				]
			}`))
		case "/tv/200":
			_, _ = w.Write([]byte(`{"id": 200, "name": "Show B", "number_of_seasons": 1, "episode_run_time": [], "seasons": []}`))
		case "/tv/200/season/1":
			_, _ = w.Write([]byte(`{
				"season_number": 1,
				"episodes": [{"season_number": 1, "episode_number": 1, "name": "Only", "runtime": 0}]
			}`))
		case "/tv/300":
			_, _ = w.Write([]byte(`{"id": 300, "name": "Show C", "number_of_seasons": 1, "seasons": [{"season_number": 1, "episode_count": 1}]}`))
		case "/movie/7":
			_, _ = w.Write([]byte(`{"id": 7, "title": "Big Film", "runtime": 95}`))
		case "/movie/8":
			_, _ = w.Write([]byte(`{"id": 8, "title": "Short Film", "runtime": 0}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

func (f *fakeTMDB) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, p := range f.requests {
		if p == path {
			n++
		}
	}
	return n
}

func (f *fakeTMDB) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestService(t *testing.T, srv *httptest.Server) *Service {
	t.Helper()
	s := NewService("test-key", "en", 1)
	s.tmdb.baseURL = srv.URL
	s.tmdb.retryDelay = time.Millisecond
	s.tmdb.httpc = srv.Client()
	return s
}

func TestEpisodesForShow_OrderedAcrossSeasons(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	episodes, err := s.EpisodesForShow(context.Background(), 100)
	if err != nil {
		t.Fatalf("EpisodesForShow returned error: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(episodes))
	}

	wantOrder := []struct {
		season, episode, minutes int
		title                    string
	}{
		{1, 1, 24, "First"},
		{1, 2, 25, "Second"},
		{2, 1, 25, "Opener"},
	}
	for i, want := range wantOrder {
		got := episodes[i]
		if got.Season != want.season || got.Episode != want.episode {
			t.Errorf("episode %d: got S%dE%d, want S%dE%d", i, got.Season, got.Episode, want.season, want.episode)
		}
		if got.Title != want.title {
			t.Errorf("episode %d: got title %q, want %q", i, got.Title, want.title)
		}
		if got.DurationMinutes == nil || *got.DurationMinutes != want.minutes {
			t.Errorf("episode %d: got duration %v, want %d", i, got.DurationMinutes, want.minutes)
		}
	}

	if fake.count("/tv/100/season/0") != 0 {
		t.Error("expected the specials season to be skipped")
	}
}

func TestEpisodesForShow_NoRuntimeAnywhere(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	episodes, err := s.EpisodesForShow(context.Background(), 200)
	if err != nil {
		t.Fatalf("EpisodesForShow returned error: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}
	if episodes[0].DurationMinutes != nil {
		t.Errorf("expected nil duration when tmdb has no runtime, got %d", *episodes[0].DurationMinutes)
	}
}

func TestEpisodesForShow_CachesResponses(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	first, err := s.EpisodesForShow(context.Background(), 100)
	if err != nil {
		t.Fatalf("EpisodesForShow returned error: %v", err)
	}
	requestsAfterFirst := fake.total()

	// The caller's copy must not reach into the cache.
	*first[0].DurationMinutes = 999
	first[0].Title = "mutated"

	second, err := s.EpisodesForShow(context.Background(), 100)
	if err != nil {
		t.Fatalf("cached EpisodesForShow returned error: %v", err)
	}
	if fake.total() != requestsAfterFirst {
		t.Errorf("expected no extra requests on cache hit, got %d more", fake.total()-requestsAfterFirst)
	}
	if second[0].Title != "First" || *second[0].DurationMinutes != 24 {
		t.Errorf("cache returned a mutated copy: %+v", second[0])
	}
}

func TestEpisodesForShow_SeasonErrorPropagates(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	// /tv/300 resolves but its season endpoint is not routed, so every
	// season fetch fails after retries.
	_, err := s.EpisodesForShow(context.Background(), 300)
	if err == nil {
		t.Fatal("expected season fetch failure to propagate")
	}
	if !strings.Contains(err.Error(), "season 1") {
		t.Errorf("expected failing season in error, got %v", err)
	}
}

func TestEpisodesForShow_RequiresID(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	if _, err := s.EpisodesForShow(context.Background(), 0); err == nil {
		t.Fatal("expected error for missing tmdb id")
	}
}

func TestMovieRuntime(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	runtime, err := s.MovieRuntime(context.Background(), 7)
	if err != nil {
		t.Fatalf("MovieRuntime returned error: %v", err)
	}
	if runtime == nil || *runtime != 95 {
		t.Errorf("expected runtime 95, got %v", runtime)
	}

	// Second lookup serves from cache.
	if _, err := s.MovieRuntime(context.Background(), 7); err != nil {
		t.Fatalf("cached MovieRuntime returned error: %v", err)
	}
	if fake.count("/movie/7") != 1 {
		t.Errorf("expected a single upstream movie request, got %d", fake.count("/movie/7"))
	}
}

func TestMovieRuntime_UnknownStaysNil(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	runtime, err := s.MovieRuntime(context.Background(), 8)
	if err != nil {
		t.Fatalf("MovieRuntime returned error: %v", err)
	}
	if runtime != nil {
		t.Errorf("expected nil runtime for zero-runtime movie, got %d", *runtime)
	}
}

func TestUpdateAPIKeyClearsCache(t *testing.T) {
	fake := &fakeTMDB{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	s := newTestService(t, srv)

	if _, err := s.EpisodesForShow(context.Background(), 100); err != nil {
		t.Fatalf("EpisodesForShow returned error: %v", err)
	}
	requestsBefore := fake.total()

	s.UpdateAPIKey("fresh-key", "en")
	s.tmdb.baseURL = srv.URL
	s.tmdb.retryDelay = time.Millisecond
	s.tmdb.httpc = srv.Client()

	if _, err := s.EpisodesForShow(context.Background(), 100); err != nil {
		t.Fatalf("EpisodesForShow after key change returned error: %v", err)
	}
	if fake.total() == requestsBefore {
		t.Error("expected a key change to invalidate cached episodes")
	}
}
