package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"

	"showplan/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrUserIDRequired     = errors.New("user id is required")
	ErrContentIDRequired  = errors.New("content id is required")
	ErrTitleRequired      = errors.New("title is required")
	ErrInvalidContentType = errors.New("content type must be show or movie")
	ErrInvalidFilterMode  = errors.New("filter mode must be all, include or exclude")
	ErrNotInQueue         = errors.New("content is not in the queue")
	ErrReorderMismatch    = errors.New("reorder list must name every queue entry exactly once")
)

// Service manages persistence and retrieval of per-user watch queues. Entries
// keep an explicit position; List always returns them in that order.
type Service struct {
	mu      sync.RWMutex
	path    string
	entries map[string][]models.QueueEntry
}

// NewService creates a queue service storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	svc := &Service{
		path:    filepath.Join(storageDir, "queue.json"),
		entries: make(map[string][]models.QueueEntry),
	}

	if err := svc.load(); err != nil {
		return nil, err
	}

	return svc, nil
}

// List returns the user's queue in position order.
func (s *Service) List(userID string) ([]models.QueueEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.QueueEntry{}, s.entries[userID]...), nil
}

// Get returns one queue entry by content id.
func (s *Service) Get(userID, contentID string) (models.QueueEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries[strings.TrimSpace(userID)] {
		if entry.ContentID == contentID {
			return entry, true
		}
	}
	return models.QueueEntry{}, false
}

// AddOrUpdate inserts a new entry at the back of the queue or updates the
// metadata of an existing one in place, keeping its position.
func (s *Service) AddOrUpdate(userID string, input models.QueueUpsert) (models.QueueEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.QueueEntry{}, ErrUserIDRequired
	}
	if strings.TrimSpace(input.ContentID) == "" {
		return models.QueueEntry{}, ErrContentIDRequired
	}
	if !input.ContentType.Valid() {
		return models.QueueEntry{}, ErrInvalidContentType
	}
	if input.Filter != nil && !input.Filter.Mode.Valid() {
		return models.QueueEntry{}, ErrInvalidFilterMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	for i, entry := range list {
		if entry.ContentID != input.ContentID {
			continue
		}

		if strings.TrimSpace(input.Title) != "" {
			entry.Title = input.Title
		}
		entry.ContentType = input.ContentType
		if input.TMDBID != nil {
			entry.TMDBID = input.TMDBID
		}
		if input.Filter != nil {
			entry.Filter = *input.Filter
		}
		list[i] = entry

		if err := s.saveLocked(); err != nil {
			return models.QueueEntry{}, err
		}
		return entry, nil
	}

	if strings.TrimSpace(input.Title) == "" {
		return models.QueueEntry{}, ErrTitleRequired
	}

	entry := models.QueueEntry{
		ContentID:   input.ContentID,
		Title:       input.Title,
		ContentType: input.ContentType,
		TMDBID:      input.TMDBID,
		Position:    len(list),
		Filter:      models.EpisodeFilter{Mode: models.FilterAll},
		AddedAt:     time.Now().UTC(),
	}
	if input.Filter != nil {
		entry.Filter = *input.Filter
	}

	s.entries[userID] = append(list, entry)

	if err := s.saveLocked(); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// Remove deletes an entry and closes the position gap it leaves.
func (s *Service) Remove(userID, contentID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrUserIDRequired
	}
	if strings.TrimSpace(contentID) == "" {
		return false, ErrContentIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	for i, entry := range list {
		if entry.ContentID != contentID {
			continue
		}

		list = append(list[:i], list[i+1:]...)
		for j := range list {
			list[j].Position = j
		}
		s.entries[userID] = list

		if err := s.saveLocked(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Reorder rewrites queue positions to follow orderedIDs, which must name
// every current entry exactly once.
func (s *Service) Reorder(userID string, orderedIDs []string) ([]models.QueueEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	if len(orderedIDs) != len(list) {
		return nil, ErrReorderMismatch
	}

	byID := make(map[string]models.QueueEntry, len(list))
	for _, entry := range list {
		byID[entry.ContentID] = entry
	}

	reordered := make([]models.QueueEntry, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		entry, ok := byID[id]
		if !ok {
			return nil, ErrReorderMismatch
		}
		delete(byID, id)
		entry.Position = i
		reordered = append(reordered, entry)
	}

	s.entries[userID] = reordered

	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return append([]models.QueueEntry{}, reordered...), nil
}

// SetFilter replaces the episode filter on one entry.
func (s *Service) SetFilter(userID, contentID string, filter models.EpisodeFilter) (models.QueueEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.QueueEntry{}, ErrUserIDRequired
	}
	if !filter.Mode.Valid() {
		return models.QueueEntry{}, ErrInvalidFilterMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[userID]
	for i, entry := range list {
		if entry.ContentID != contentID {
			continue
		}

		entry.Filter = filter
		list[i] = entry

		if err := s.saveLocked(); err != nil {
			return models.QueueEntry{}, err
		}
		return entry, nil
	}
	return models.QueueEntry{}, ErrNotInQueue
}

// Search returns the queue entries whose titles match the query under
// case-insensitive, accent-insensitive comparison. An empty query returns the
// whole queue.
func (s *Service) Search(userID, query string) ([]models.QueueEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	needle := normalizeSearch(query)
	if needle == "" {
		return s.List(userID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := []models.QueueEntry{}
	for _, entry := range s.entries[userID] {
		if strings.Contains(normalizeSearch(entry.Title), needle) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

// RemoveUser drops a user's entire queue, used when a profile is deleted.
func (s *Service) RemoveUser(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[userID]; !ok {
		return nil
	}
	delete(s.entries, userID)
	return s.saveLocked()
}

// normalizeSearch folds case, transliterates to ASCII, and collapses
// whitespace so "Pokémon" and "pokemon" compare equal.
func normalizeSearch(value string) string {
	folded := cases.Fold().String(value)
	ascii := strings.TrimSpace(unidecode.Unidecode(folded))
	return strings.Join(strings.Fields(ascii), " ")
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.entries = make(map[string][]models.QueueEntry)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if len(data) == 0 {
		s.entries = make(map[string][]models.QueueEntry)
		return nil
	}

	var byUser map[string][]models.QueueEntry
	if err := json.Unmarshal(data, &byUser); err != nil {
		return fmt.Errorf("decode queue: %w", err)
	}

	s.entries = make(map[string][]models.QueueEntry, len(byUser))
	for userID, list := range byUser {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}

		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
		for i := range list {
			list[i].Position = i
			if !list[i].Filter.Mode.Valid() {
				list[i].Filter = models.EpisodeFilter{Mode: models.FilterAll}
			}
		}
		s.entries[userID] = list
	}

	return nil
}

func (s *Service) saveLocked() error {
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create queue temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.entries); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode queue: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync queue: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close queue temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}

	return nil
}
