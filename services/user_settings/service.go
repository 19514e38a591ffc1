package user_settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"showplan/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrUserIDRequired     = errors.New("user id is required")
)

// Service manages persistence and retrieval of per-user settings.
type Service struct {
	mu       sync.RWMutex
	path     string
	settings map[string]models.UserSettings
}

// NewService creates a user settings service storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create user settings dir: %w", err)
	}

	svc := &Service{
		path:     filepath.Join(storageDir, "user_settings.json"),
		settings: make(map[string]models.UserSettings),
	}

	if err := svc.load(); err != nil {
		return nil, err
	}

	return svc, nil
}

// Get returns the user's stored settings, or nil if they never customized
// anything.
func (s *Service) Get(userID string) (*models.UserSettings, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, ok := s.settings[userID]; ok {
		copy := settings
		return &copy, nil
	}

	return nil, nil
}

// HasOverrides returns true if the user has custom settings stored.
func (s *Service) HasOverrides(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.settings[userID]
	return exists
}

// GetWithDefaults returns the user's settings with unset display fields
// filled from the defaults. Scheduling overrides stay as stored; they resolve
// against global settings via models.ResolveScheduling at the point of use.
func (s *Service) GetWithDefaults(userID string, defaults models.UserSettings) (models.UserSettings, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.UserSettings{}, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[userID]
	if !ok {
		return defaults, nil
	}

	if settings.Display.TimeFormat == "" {
		settings.Display.TimeFormat = defaults.Display.TimeFormat
	}
	return settings, nil
}

// Update saves the user's settings. Settings with no actual overrides delete
// the entry instead, so HasOverrides stays meaningful.
func (s *Service) Update(userID string, settings models.UserSettings) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if isSettingsEmpty(settings) {
		delete(s.settings, userID)
	} else {
		s.settings[userID] = settings
	}

	return s.saveLocked()
}

// isSettingsEmpty checks if user settings carry no actual values.
func isSettingsEmpty(s models.UserSettings) bool {
	sched := s.Scheduling
	if sched.DefaultRotation != nil ||
		sched.ShowEpisodeMinutes != nil ||
		sched.MovieMinutes != nil ||
		sched.SlotStepMinutes != nil ||
		sched.DayStartHour != nil {
		return false
	}

	if s.Display.TimeFormat != "" || s.Display.WeekStartsMonday {
		return false
	}

	return true
}

// Delete removes a user's settings.
func (s *Service) Delete(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settings[userID]; !exists {
		return nil
	}

	delete(s.settings, userID)

	return s.saveLocked()
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.settings = make(map[string]models.UserSettings)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open user settings: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read user settings: %w", err)
	}
	if len(data) == 0 {
		s.settings = make(map[string]models.UserSettings)
		return nil
	}

	var settings map[string]models.UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("decode user settings: %w", err)
	}

	// Normalize: unknown time formats fall back to 12h rather than leaking
	// into clients.
	for userID, us := range settings {
		if us.Display.TimeFormat != "" && us.Display.TimeFormat != "12h" && us.Display.TimeFormat != "24h" {
			us.Display.TimeFormat = "12h"
			settings[userID] = us
		}
	}

	s.settings = settings
	return nil
}

func (s *Service) saveLocked() error {
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create user settings temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.settings); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode user settings: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync user settings: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close user settings temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace user settings file: %w", err)
	}

	return nil
}
