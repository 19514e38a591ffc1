package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"showplan/models"
)

var (
	ErrUserIDRequired    = errors.New("user id is required")
	ErrEmptyQueue        = errors.New("queue is empty")
	ErrNothingToSchedule = errors.New("no candidates matched the selection")
)

// QueueService supplies the user's ordered watch queue.
type QueueService interface {
	List(userID string) ([]models.QueueEntry, error)
	Get(userID, contentID string) (models.QueueEntry, bool)
}

// MetadataService resolves episode metadata and runtimes for queued content.
type MetadataService interface {
	EpisodesForShow(ctx context.Context, tmdbID int64) ([]models.Episode, error)
	MovieRuntime(ctx context.Context, tmdbID int64) (*int, error)
}

// SettingsService resolves the effective scheduling settings for a user.
type SettingsService interface {
	SchedulingFor(userID string) models.SchedulingSettings
}

// Repository persists schedule intervals.
type Repository interface {
	InsertInterval(ctx context.Context, interval *models.ScheduledInterval) error
	InsertIntervals(ctx context.Context, intervals []*models.ScheduledInterval) error
	ListIntervalsForDate(ctx context.Context, userID string, date models.CalendarDate) ([]models.ScheduledInterval, error)
	DeleteInterval(ctx context.Context, userID, intervalID string) error
	DeleteIntervalsForDate(ctx context.Context, userID string, date models.CalendarDate) (int64, error)
}

// Service wires the scheduling engine to its collaborators: the queue, the
// metadata client, per-user settings, and the interval repository. The engine
// itself stays I/O-free; all reads and writes happen here.
type Service struct {
	repo     Repository
	queue    QueueService
	metadata MetadataService
	settings SettingsService
	rng      Rand

	mu       sync.Mutex
	overlays map[string]*Overlay
}

// NewService creates a schedule service.
func NewService(repo Repository, queue QueueService, metadata MetadataService, settings SettingsService) *Service {
	return &Service{
		repo:     repo,
		queue:    queue,
		metadata: metadata,
		settings: settings,
		overlays: make(map[string]*Overlay),
	}
}

// WithRand overrides the randomness source used for random rotation.
func (s *Service) WithRand(rng Rand) *Service {
	s.rng = rng
	return s
}

// GenerateSelection names one queue entry to schedule, optionally overriding
// its stored episode filter for this run.
type GenerateSelection struct {
	ContentID string                `json:"contentId"`
	Filter    *models.EpisodeFilter `json:"filter,omitempty"`
}

// GenerateRequest describes one generation run.
type GenerateRequest struct {
	Date        models.CalendarDate `json:"date"`
	StartHour   int                 `json:"startHour"`
	StartMinute int                 `json:"startMinute"`
	// Mode selects the rotation; empty falls back to the user's default.
	Mode models.RotationMode `json:"mode,omitempty"`
	// Shows limits the run to the named queue entries, in the given order.
	// Empty schedules the entire queue in queue order.
	Shows []GenerateSelection `json:"shows,omitempty"`
}

// Generate resolves the user's queue into candidates, runs the generator
// against the day's persisted and staged intervals, persists everything that
// was placed as a single unit, and returns the full placed/skipped report.
func (s *Service) Generate(ctx context.Context, userID string, req GenerateRequest) (models.GenerationResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.GenerationResult{}, ErrUserIDRequired
	}

	scheduling := s.settings.SchedulingFor(userID)
	mode := req.Mode
	if mode == "" {
		mode = scheduling.DefaultRotation
	}
	if !mode.Valid() {
		return models.GenerationResult{}, ErrUnknownRotationMode
	}

	start, err := clockStart(req.Date, req.StartHour, req.StartMinute)
	if err != nil {
		return models.GenerationResult{}, err
	}

	candidates, err := s.resolveCandidates(ctx, userID, req, mode, scheduling)
	if err != nil {
		return models.GenerationResult{}, err
	}

	existing, err := s.repo.ListIntervalsForDate(ctx, userID, req.Date)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("load intervals for %s: %w", req.Date, err)
	}

	result, err := Generate(GenerateParams{
		Candidates:  candidates,
		Start:       start,
		Mode:        mode,
		Existing:    existing,
		Pending:     s.pendingFor(userID, req.Date),
		StepMinutes: scheduling.SlotStepMinutes,
	})
	if err != nil {
		return models.GenerationResult{}, err
	}

	if len(result.Placed) > 0 {
		toInsert := make([]*models.ScheduledInterval, len(result.Placed))
		for i := range result.Placed {
			result.Placed[i].UserID = userID
			toInsert[i] = &result.Placed[i]
		}
		if err := s.repo.InsertIntervals(ctx, toInsert); err != nil {
			return models.GenerationResult{}, fmt.Errorf("persist placements: %w", err)
		}
	}

	log.Printf("[schedule] generated for user %s on %s: %d placed, %d skipped (%s)",
		userID, req.Date, len(result.Placed), len(result.Skipped), mode)
	return result, nil
}

// DayView returns the persisted intervals for one calendar date sorted by
// start time.
func (s *Service) DayView(ctx context.Context, userID string, date models.CalendarDate) ([]models.ScheduledInterval, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	intervals, err := s.repo.ListIntervalsForDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("load intervals for %s: %w", date, err)
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].StartInstant.Before(intervals[j].StartInstant)
	})

	if intervals == nil {
		intervals = []models.ScheduledInterval{}
	}
	return intervals, nil
}

// SlotCheck is the availability report for one proposed slot, used for UI
// hover and validation feedback.
type SlotCheck struct {
	Occupied         bool                      `json:"occupied"`
	BlockedBy        *models.ScheduledInterval `json:"blockedBy,omitempty"`
	AvailableMinutes int                       `json:"availableMinutes"`
	NextFreeSlot     *time.Time                `json:"nextFreeSlot,omitempty"`
}

// CheckSlot answers whether [start, start+duration) is free on the given
// date, how many minutes remain open from that start, and where the next
// slot large enough begins. Pending placements count as occupied.
func (s *Service) CheckSlot(ctx context.Context, userID string, date models.CalendarDate, hour, minute, durationMinutes int) (SlotCheck, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SlotCheck{}, ErrUserIDRequired
	}

	window, err := BuildInterval(date, hour, minute, durationMinutes)
	if err != nil {
		return SlotCheck{}, err
	}

	existing, err := s.repo.ListIntervalsForDate(ctx, userID, date)
	if err != nil {
		return SlotCheck{}, fmt.Errorf("load intervals for %s: %w", date, err)
	}

	scheduling := s.settings.SchedulingFor(userID)
	occ := NewOccupancy(date, existing, s.pendingFor(userID, date)).WithStep(scheduling.SlotStepMinutes)

	check := SlotCheck{
		BlockedBy:        occ.FindBlocking(window.Start, durationMinutes),
		AvailableMinutes: occ.AvailableMinutesFrom(window.Start),
		NextFreeSlot:     occ.NextFreeSlot(window.Start, durationMinutes),
	}
	check.Occupied = check.BlockedBy != nil
	return check, nil
}

// Unschedule removes one persisted interval.
func (s *Service) Unschedule(ctx context.Context, userID, intervalID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}
	return s.repo.DeleteInterval(ctx, userID, intervalID)
}

// ClearDay removes every persisted interval on the given date and returns
// how many were deleted.
func (s *Service) ClearDay(ctx context.Context, userID string, date models.CalendarDate) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrUserIDRequired
	}
	return s.repo.DeleteIntervalsForDate(ctx, userID, date)
}

// StageRequest describes one draft placement attempt.
type StageRequest struct {
	Date            models.CalendarDate `json:"date"`
	Hour            int                 `json:"hour"`
	Minute          int                 `json:"minute"`
	ContentID       string              `json:"contentId"`
	Title           string              `json:"title,omitempty"`
	Season          *int                `json:"season,omitempty"`
	Episode         *int                `json:"episode,omitempty"`
	DurationMinutes int                 `json:"durationMinutes,omitempty"`
}

// Stage provisionally places a candidate on the user's draft overlay for the
// given date. A zero duration resolves through the user's defaults; unknown
// content falls back to the request title.
func (s *Service) Stage(ctx context.Context, userID string, req StageRequest) (models.PendingPlacement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.PendingPlacement{}, ErrUserIDRequired
	}

	start, err := clockStart(req.Date, req.Hour, req.Minute)
	if err != nil {
		return models.PendingPlacement{}, err
	}

	cand := s.candidateForStage(userID, req)

	existing, err := s.repo.ListIntervalsForDate(ctx, userID, req.Date)
	if err != nil {
		return models.PendingPlacement{}, fmt.Errorf("load intervals for %s: %w", req.Date, err)
	}

	placement, err := s.overlayFor(userID, req.Date).Stage(cand, start, existing)
	if err != nil {
		return models.PendingPlacement{}, err
	}

	log.Printf("[schedule] staged %q at %s for user %s", cand.Title, placement.StartInstant.Format(time.RFC3339), userID)
	return placement, nil
}

// Unstage removes a staged placement by local key and reports whether it
// existed.
func (s *Service) Unstage(userID string, date models.CalendarDate, localKey string) bool {
	return s.overlayFor(userID, date).Unstage(localKey)
}

// Draft lists the staged placements for one date in staging order.
func (s *Service) Draft(userID string, date models.CalendarDate) []models.PendingPlacement {
	return s.overlayFor(userID, date).List()
}

// CommitDraft persists the staged placements for one date, reporting
// per-item success and failure. Committed items leave the overlay; failed
// ones stay staged for retry.
func (s *Service) CommitDraft(ctx context.Context, userID string, date models.CalendarDate) (models.CommitOutcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.CommitOutcome{}, ErrUserIDRequired
	}

	overlay := s.overlayFor(userID, date)
	outcome := overlay.CommitAll(ctx, &userSink{repo: s.repo, userID: userID})

	if len(outcome.Failed) > 0 {
		log.Printf("[schedule] commit for user %s on %s: %d committed, %d failed",
			userID, date, len(outcome.Committed), len(outcome.Failed))
	}
	return outcome, nil
}

// userSink stamps the owning user onto intervals before persisting them.
type userSink struct {
	repo   Repository
	userID string
}

func (s *userSink) InsertInterval(ctx context.Context, interval *models.ScheduledInterval) error {
	interval.UserID = s.userID
	return s.repo.InsertInterval(ctx, interval)
}

// resolveCandidates expands the requested queue entries into the ordered
// candidate list for one run.
func (s *Service) resolveCandidates(ctx context.Context, userID string, req GenerateRequest, mode models.RotationMode, scheduling models.SchedulingSettings) ([]models.Candidate, error) {
	entries, err := s.queue.List(userID)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyQueue
	}

	selected := make([]models.QueueEntry, 0, len(entries))
	if len(req.Shows) == 0 {
		selected = entries
	} else {
		byID := make(map[string]models.QueueEntry, len(entries))
		for _, e := range entries {
			byID[e.ContentID] = e
		}
		for _, sel := range req.Shows {
			entry, ok := byID[sel.ContentID]
			if !ok {
				return nil, fmt.Errorf("content %q is not in the queue", sel.ContentID)
			}
			if sel.Filter != nil {
				entry.Filter = *sel.Filter
			}
			selected = append(selected, entry)
		}
	}

	cfg := SelectionConfig{
		ShowEpisodeMinutes: scheduling.ShowEpisodeMinutes,
		MovieMinutes:       scheduling.MovieMinutes,
	}

	var candidates []models.Candidate
	for _, entry := range selected {
		switch entry.ContentType {
		case models.ContentTypeMovie:
			var runtime *int
			if entry.TMDBID != nil && s.metadata != nil {
				runtime, err = s.metadata.MovieRuntime(ctx, *entry.TMDBID)
				if err != nil {
					return nil, fmt.Errorf("runtime for %q: %w", entry.Title, err)
				}
			}
			cand, err := movieCandidate(entry, runtime, cfg)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, cand)
		default:
			var episodes []models.Episode
			if entry.TMDBID != nil && s.metadata != nil {
				episodes, err = s.metadata.EpisodesForShow(ctx, *entry.TMDBID)
				if err != nil {
					return nil, fmt.Errorf("episodes for %q: %w", entry.Title, err)
				}
			}
			resolved, err := ResolveEpisodeOrder(entry, episodes, mode, cfg, s.rng)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, resolved...)
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNothingToSchedule
	}
	return candidates, nil
}

// candidateForStage builds the candidate for a stage request, filling the
// title from the queue when the content is known there and resolving a
// missing duration through the user's defaults.
func (s *Service) candidateForStage(userID string, req StageRequest) models.Candidate {
	cand := models.Candidate{
		ContentID:       req.ContentID,
		ContentType:     models.ContentTypeShow,
		Title:           strings.TrimSpace(req.Title),
		Season:          req.Season,
		Episode:         req.Episode,
		DurationMinutes: req.DurationMinutes,
	}

	if entry, ok := s.queue.Get(userID, req.ContentID); ok {
		cand.ContentType = entry.ContentType
		if cand.Title == "" {
			cand.Title = entry.Title
		}
	}
	if cand.Title == "" {
		cand.Title = req.ContentID
	}

	if cand.DurationMinutes == 0 {
		scheduling := s.settings.SchedulingFor(userID)
		if cand.ContentType == models.ContentTypeMovie {
			cand.DurationMinutes = scheduling.MovieMinutes
		} else {
			cand.DurationMinutes = scheduling.ShowEpisodeMinutes
		}
	}

	return cand
}

// overlayFor returns the draft overlay for one user and date, creating it on
// first use.
func (s *Service) overlayFor(userID string, date models.CalendarDate) *Overlay {
	key := userID + "|" + date.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	overlay, ok := s.overlays[key]
	if !ok {
		overlay = NewOverlay()
		s.overlays[key] = overlay
	}
	return overlay
}

// pendingFor snapshots the staged placements for one user and date without
// creating an overlay.
func (s *Service) pendingFor(userID string, date models.CalendarDate) []models.PendingPlacement {
	key := userID + "|" + date.String()

	s.mu.Lock()
	overlay, ok := s.overlays[key]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return overlay.List()
}
