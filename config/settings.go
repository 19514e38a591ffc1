package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"showplan/models"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server     ServerSettings            `json:"server"`
	Storage    StorageSettings           `json:"storage"`
	Metadata   MetadataSettings          `json:"metadata"`
	Scheduling models.SchedulingSettings `json:"scheduling"`
	Display    models.DisplaySettings    `json:"display"`
	Backup     BackupSettings            `json:"backup"`
	Log        LogConfig                 `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StorageSettings locates the directory holding profiles, queues, settings
// overrides, the schedule database, and backups.
type StorageSettings struct {
	DataDir string `json:"dataDir"`
}

type MetadataSettings struct {
	TMDBAPIKey    string `json:"tmdbApiKey"`
	Language      string `json:"language"`
	CacheTTLHours int    `json:"cacheTtlHours"`
}

// BackupFrequency determines how often automatic backups run.
type BackupFrequency string

const (
	BackupFrequencyDisabled BackupFrequency = "disabled"
	BackupFrequencyHourly   BackupFrequency = "hourly"
	BackupFrequency6Hours   BackupFrequency = "6hours"
	BackupFrequency12Hours  BackupFrequency = "12hours"
	BackupFrequencyDaily    BackupFrequency = "daily"
)

// Interval returns the wait between automatic backups. The second return is
// false when the frequency does not schedule any.
func (f BackupFrequency) Interval() (time.Duration, bool) {
	switch f {
	case BackupFrequencyHourly:
		return time.Hour, true
	case BackupFrequency6Hours:
		return 6 * time.Hour, true
	case BackupFrequency12Hours:
		return 12 * time.Hour, true
	case BackupFrequencyDaily:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// BackupSettings controls automatic backups and retention. A retention value
// of zero disables that rule.
type BackupSettings struct {
	Frequency      BackupFrequency `json:"frequency"`
	RetentionDays  int             `json:"retentionDays"`  // delete archives older than this
	RetentionCount int             `json:"retentionCount"` // keep only the newest N archives
}

// LogConfig controls the rotating file log. An empty File disables it.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:     ServerSettings{Host: "0.0.0.0", Port: 7878},
		Storage:    StorageSettings{DataDir: "data"},
		Metadata:   MetadataSettings{TMDBAPIKey: "", Language: "en", CacheTTLHours: 24},
		Scheduling: models.DefaultSchedulingSettings(),
		Display:    models.DisplaySettings{TimeFormat: "12h"},
		Backup:     BackupSettings{Frequency: BackupFrequencyDaily, RetentionCount: 5},
		Log: LogConfig{
			File:       "data/logs/backend.log",
			MaxSize:    50, // 50 MB per file
			MaxBackups: 3,  // keep 3 old files
			MaxAge:     7,  // 7 days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Path returns the config file location.
func (m *Manager) Path() string { return m.path }

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	// Decode into a raw map first so old layouts can be migrated
	var raw map[string]interface{}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return Settings{}, err
	}

	// Early releases kept the TMDB key at the top level
	if key, ok := raw["tmdbApiKey"].(string); ok {
		if metaRaw, ok := raw["metadata"].(map[string]interface{}); ok {
			if _, has := metaRaw["tmdbApiKey"]; !has {
				metaRaw["tmdbApiKey"] = key
			}
		} else {
			raw["metadata"] = map[string]interface{}{"tmdbApiKey": key}
		}
		delete(raw, "tmdbApiKey")
	}

	if schedRaw, ok := raw["scheduling"].(map[string]interface{}); ok {
		// scheduling.rotation was renamed to scheduling.defaultRotation
		if rotation, has := schedRaw["rotation"]; has {
			if _, hasNew := schedRaw["defaultRotation"]; !hasNew {
				schedRaw["defaultRotation"] = rotation
			}
			delete(schedRaw, "rotation")
		}
		// Zero is a valid midnight start, so only absence gets the default
		if _, has := schedRaw["dayStartHour"]; !has {
			schedRaw["dayStartHour"] = 8
		}
	}

	// Re-encode and decode into Settings struct
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(rawJSON, &s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings introduced after the config was written
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7878
	}
	if strings.TrimSpace(s.Storage.DataDir) == "" {
		s.Storage.DataDir = "data"
	}
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = "en"
	}
	if s.Metadata.CacheTTLHours <= 0 {
		s.Metadata.CacheTTLHours = 24
	}

	if !s.Scheduling.DefaultRotation.Valid() && s.Scheduling.ShowEpisodeMinutes == 0 && s.Scheduling.MovieMinutes == 0 && s.Scheduling.SlotStepMinutes == 0 {
		s.Scheduling = models.DefaultSchedulingSettings()
	} else {
		if !s.Scheduling.DefaultRotation.Valid() {
			s.Scheduling.DefaultRotation = models.RotationSequential
		}
		if s.Scheduling.ShowEpisodeMinutes <= 0 {
			s.Scheduling.ShowEpisodeMinutes = 30
		}
		if s.Scheduling.MovieMinutes <= 0 {
			s.Scheduling.MovieMinutes = 120
		}
		if s.Scheduling.SlotStepMinutes <= 0 {
			s.Scheduling.SlotStepMinutes = 15
		}
		if s.Scheduling.DayStartHour < 0 || s.Scheduling.DayStartHour > 23 {
			s.Scheduling.DayStartHour = 8
		}
	}

	if s.Display.TimeFormat != "12h" && s.Display.TimeFormat != "24h" {
		s.Display.TimeFormat = "12h"
	}

	if _, ok := s.Backup.Frequency.Interval(); !ok && s.Backup.Frequency != BackupFrequencyDisabled {
		s.Backup.Frequency = BackupFrequencyDaily
	}
	if s.Backup.RetentionDays < 0 {
		s.Backup.RetentionDays = 0
	}
	if s.Backup.RetentionCount < 0 {
		s.Backup.RetentionCount = 0
	}

	// Backfill Log settings
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "data/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
