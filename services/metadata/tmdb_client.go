package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

var errNotConfigured = errors.New("tmdb api key not configured")

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client

	// TMDB has generous rate limits; the limiter just keeps season
	// fan-outs from bursting past them.
	limiter *rate.Limiter

	retryDelay time.Duration
}

func newTMDBClient(apiKey, language string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		apiKey:     strings.TrimSpace(apiKey),
		language:   normalizeLanguage(language),
		baseURL:    tmdbBaseURL,
		httpc:      httpc,
		limiter:    rate.NewLimiter(rate.Every(20*time.Millisecond), 5),
		retryDelay: 300 * time.Millisecond,
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// doGET performs a GET against the TMDB API, retrying transient failures
// (network errors, 429, 5xx) with exponential backoff. Client errors are
// unrecoverable and return immediately.
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, query url.Values, v any) error {
	if !c.isConfigured() {
		return errNotConfigured
	}

	full, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return err
	}

	q := url.Values{}
	for key, values := range query {
		q[key] = values
	}
	q.Set("api_key", c.apiKey)
	q.Set("language", c.language)
	full = full + "?" + q.Encode()

	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("tmdb get %s failed: %s", endpoint, resp.Status)
			}
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return retry.Unrecoverable(fmt.Errorf("tmdb get %s failed: %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body))))
			}

			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("tmdb decode %s: %w", endpoint, err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.Printf("[tmdb] retrying %s (attempt %d/3): %v", endpoint, attempt+1, err)
		}),
	)
}

type tmdbShowResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	NumberOfSeasons int    `json:"number_of_seasons"`
	EpisodeRunTime  []int  `json:"episode_run_time"`
	Seasons         []struct {
		SeasonNumber int `json:"season_number"`
		EpisodeCount int `json:"episode_count"`
	} `json:"seasons"`
}

type tmdbSeasonResponse struct {
	SeasonNumber int           `json:"season_number"`
	Episodes     []tmdbEpisode `json:"episodes"`
}

type tmdbEpisode struct {
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	Name          string `json:"name"`
	Runtime       int    `json:"runtime"`
	AirDate       string `json:"air_date"`
}

type tmdbMovieResponse struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Runtime int    `json:"runtime"`
}

func (c *tmdbClient) showDetails(ctx context.Context, tmdbID int64) (*tmdbShowResponse, error) {
	var show tmdbShowResponse
	endpoint := "tv/" + strconv.FormatInt(tmdbID, 10)
	if err := c.doGET(ctx, endpoint, nil, &show); err != nil {
		return nil, err
	}
	return &show, nil
}

func (c *tmdbClient) seasonEpisodes(ctx context.Context, tmdbID int64, season int) ([]tmdbEpisode, error) {
	var payload tmdbSeasonResponse
	endpoint := fmt.Sprintf("tv/%d/season/%d", tmdbID, season)
	if err := c.doGET(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Episodes, nil
}

func (c *tmdbClient) movieDetails(ctx context.Context, tmdbID int64) (*tmdbMovieResponse, error) {
	var movie tmdbMovieResponse
	endpoint := "movie/" + strconv.FormatInt(tmdbID, 10)
	if err := c.doGET(ctx, endpoint, nil, &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

func normalizeLanguage(lang string) string {
	lang = strings.ReplaceAll(lang, "_", "-")
	if len(lang) == 2 {
		return strings.ToLower(lang) + "-US"
	}
	if len(lang) >= 5 {
		return strings.ToLower(lang[:2]) + "-" + strings.ToUpper(lang[3:])
	}
	return "en-US"
}
