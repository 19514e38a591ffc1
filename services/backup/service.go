package backup

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"showplan/config"
)

// BackupType indicates how the backup was created
type BackupType string

const (
	BackupTypeManual     BackupType = "manual"
	BackupTypeScheduled  BackupType = "scheduled"
	BackupTypePreRestore BackupType = "pre_restore"
)

const filenamePrefix = "showplan_backup_"

var (
	ErrInvalidFilename = errors.New("invalid backup filename")
	ErrNotFound        = errors.New("backup not found")
)

// BackupInfo contains metadata about a backup file
type BackupInfo struct {
	Filename  string     `json:"filename"`
	Size      int64      `json:"size"`
	CreatedAt time.Time  `json:"createdAt"`
	Type      BackupType `json:"type"`
	Version   string     `json:"version,omitempty"`
}

// Manifest contains metadata about the backup contents
type Manifest struct {
	Version     string            `json:"version"`
	CreatedAt   time.Time         `json:"createdAt"`
	Type        BackupType        `json:"type"`
	Files       map[string]string `json:"files"` // filename -> sha256 checksum
	Description string            `json:"description,omitempty"`
}

// Service handles backup creation, management, and restoration
type Service struct {
	mu            sync.RWMutex
	fs            afero.Fs
	backupDir     string
	dataDir       string
	configManager *config.Manager
	now           func() time.Time
}

// Files to back up (relative to dataDir)
var backupFiles = []string{
	"settings.json",
	"queue.json",
	"users.json",
	"user_settings.json",
	"showplan.db",
}

// NewService creates a new backup service rooted at dataDir. A nil filesystem
// means the real one.
func NewService(fsys afero.Fs, dataDir string, configManager *config.Manager) (*Service, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	backupDir := filepath.Join(dataDir, "backups")
	if err := fsys.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	return &Service{
		fs:            fsys,
		backupDir:     backupDir,
		dataDir:       dataDir,
		configManager: configManager,
		now:           time.Now,
	}, nil
}

// validFilename rejects traversal attempts and files this service did not create.
func validFilename(name string) bool {
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasPrefix(name, filenamePrefix) && strings.HasSuffix(name, ".zip")
}

// CreateBackup creates a new backup archive
func (s *Service) CreateBackup(backupType BackupType) (*BackupInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBackupLocked(backupType)
}

func (s *Service) createBackupLocked(backupType BackupType) (*BackupInfo, error) {
	createdAt := s.now().UTC()
	filename := fmt.Sprintf("%s%s.zip", filenamePrefix, createdAt.Format("20060102-150405"))
	backupPath := filepath.Join(s.backupDir, filename)

	// Build the archive in a temp file first
	tmpPath := backupPath + ".tmp"
	zipFile, err := s.fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}

	zipWriter := zip.NewWriter(zipFile)

	manifest := Manifest{
		Version:   "1.0",
		CreatedAt: createdAt,
		Type:      backupType,
		Files:     make(map[string]string),
	}

	for _, name := range backupFiles {
		srcPath := filepath.Join(s.dataDir, name)

		stat, err := s.fs.Stat(srcPath)
		if os.IsNotExist(err) {
			log.Printf("[backup] Skipping %s (not found)", name)
			continue
		}
		if err != nil {
			log.Printf("[backup] Error checking %s: %v", name, err)
			continue
		}
		if stat.IsDir() {
			continue
		}

		checksum, err := s.addFileToZip(zipWriter, srcPath, name)
		if err != nil {
			log.Printf("[backup] Warning: failed to back up %s: %v", name, err)
			continue
		}
		manifest.Files[name] = checksum
		log.Printf("[backup] Added %s", name)
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		zipWriter.Close()
		zipFile.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	manifestWriter, err := zipWriter.Create("manifest.json")
	if err != nil {
		zipWriter.Close()
		zipFile.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("create manifest in zip: %w", err)
	}

	if _, err := manifestWriter.Write(manifestJSON); err != nil {
		zipWriter.Close()
		zipFile.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		zipFile.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("close zip writer: %w", err)
	}

	if err := zipFile.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("close zip file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, backupPath); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("finalize backup: %w", err)
	}

	stat, err := s.fs.Stat(backupPath)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	info := &BackupInfo{
		Filename:  filename,
		Size:      stat.Size(),
		CreatedAt: manifest.CreatedAt,
		Type:      backupType,
		Version:   manifest.Version,
	}

	log.Printf("[backup] Created backup: %s (%d bytes, %d files)", filename, info.Size, len(manifest.Files))
	return info, nil
}

// addFileToZip copies a file into the archive, hashing it on the way through
func (s *Service) addFileToZip(zipWriter *zip.Writer, srcPath, destName string) (string, error) {
	file, err := s.fs.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	teeReader := io.TeeReader(file, hasher)

	writer, err := zipWriter.Create(destName)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(writer, teeReader); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ImportBackup stores an uploaded archive in the backup directory after
// verifying it really is a zip carrying a readable manifest. Nothing outside
// the backup directory is touched.
func (s *Service) ImportBackup(data []byte) (*BackupInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}
	if detected := mimetype.Detect(data); !detected.Is("application/zip") {
		return nil, fmt.Errorf("unsupported upload type %s, expected a zip archive", detected)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	manifest, err := manifestFromZip(zr)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	filename := fmt.Sprintf("%s%s_imported.zip", filenamePrefix, s.now().UTC().Format("20060102-150405"))
	backupPath := filepath.Join(s.backupDir, filename)
	if err := afero.WriteFile(s.fs, backupPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	log.Printf("[backup] Imported backup %s (created %s, %d files)", filename, manifest.CreatedAt.Format(time.RFC3339), len(manifest.Files))
	return &BackupInfo{
		Filename:  filename,
		Size:      int64(len(data)),
		CreatedAt: manifest.CreatedAt,
		Type:      manifest.Type,
		Version:   manifest.Version,
	}, nil
}

// ListBackups returns all available backups sorted by creation time (newest first)
func (s *Service) ListBackups() ([]BackupInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := afero.ReadDir(s.fs, s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []BackupInfo

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !validFilename(name) {
			continue
		}

		backup := BackupInfo{
			Filename:  name,
			Size:      entry.Size(),
			CreatedAt: entry.ModTime(),
			Type:      BackupTypeManual, // overwritten when the manifest is readable
		}

		manifest, err := s.readManifest(filepath.Join(s.backupDir, name))
		if err == nil {
			backup.CreatedAt = manifest.CreatedAt
			backup.Type = manifest.Type
			backup.Version = manifest.Version
		}

		backups = append(backups, backup)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// openZip opens an archive for reading through the service filesystem
func (s *Service) openZip(path string) (*zip.Reader, io.Closer, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	zr, err := zip.NewReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return zr, f, nil
}

// readManifest reads the manifest from a backup zip file
func (s *Service) readManifest(zipPath string) (*Manifest, error) {
	zr, closer, err := s.openZip(zipPath)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return manifestFromZip(zr)
}

func manifestFromZip(zr *zip.Reader) (*Manifest, error) {
	for _, file := range zr.File {
		if file.Name == "manifest.json" {
			rc, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()

			var manifest Manifest
			if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
				return nil, err
			}
			return &manifest, nil
		}
	}
	return nil, errors.New("manifest not found in backup")
}

// DeleteBackup removes a backup file
func (s *Service) DeleteBackup(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validFilename(filename) {
		return ErrInvalidFilename
	}

	backupPath := filepath.Join(s.backupDir, filename)
	if _, err := s.fs.Stat(backupPath); os.IsNotExist(err) {
		return ErrNotFound
	}

	if err := s.fs.Remove(backupPath); err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}

	log.Printf("[backup] Deleted backup: %s", filename)
	return nil
}

// RestoreBackup restores the data directory from a backup archive. A
// pre-restore backup of the current state is taken first so the restore
// itself can be undone.
func (s *Service) RestoreBackup(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validFilename(filename) {
		return ErrInvalidFilename
	}

	backupPath := filepath.Join(s.backupDir, filename)
	if _, err := s.fs.Stat(backupPath); os.IsNotExist(err) {
		return ErrNotFound
	}

	manifest, err := s.readManifest(backupPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	if _, err := s.createBackupLocked(BackupTypePreRestore); err != nil {
		return fmt.Errorf("create pre-restore backup: %w", err)
	}

	log.Printf("[backup] Restoring from backup: %s (created %s)", filename, manifest.CreatedAt.Format(time.RFC3339))

	zr, closer, err := s.openZip(backupPath)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer closer.Close()

	restoredCount := 0
	for _, file := range zr.File {
		if file.Name == "manifest.json" {
			continue
		}

		// Only restore files the manifest vouches for
		expectedChecksum, ok := manifest.Files[file.Name]
		if !ok {
			log.Printf("[backup] Skipping unknown file in backup: %s", file.Name)
			continue
		}

		destPath := filepath.Join(s.dataDir, file.Name)

		// Extract next to the destination, verify, then swap in
		tmpPath := destPath + ".restore.tmp"
		checksum, err := s.extractFile(file, tmpPath)
		if err != nil {
			s.fs.Remove(tmpPath)
			return fmt.Errorf("extract %s: %w", file.Name, err)
		}

		if checksum != expectedChecksum {
			s.fs.Remove(tmpPath)
			return fmt.Errorf("checksum mismatch for %s", file.Name)
		}

		if err := s.fs.Rename(tmpPath, destPath); err != nil {
			s.fs.Remove(tmpPath)
			return fmt.Errorf("finalize %s: %w", file.Name, err)
		}

		restoredCount++
		log.Printf("[backup] Restored %s", file.Name)
	}

	log.Printf("[backup] Restore completed: %d files restored from %s", restoredCount, filename)
	return nil
}

// extractFile extracts a file from the zip archive
func (s *Service) extractFile(file *zip.File, destPath string) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	outFile, err := s.fs.Create(destPath)
	if err != nil {
		return "", err
	}
	defer outFile.Close()

	hasher := sha256.New()
	writer := io.MultiWriter(outFile, hasher)

	if _, err := io.Copy(writer, rc); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// GetBackupReader returns a reader for downloading a backup file
func (s *Service) GetBackupReader(filename string) (io.ReadCloser, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !validFilename(filename) {
		return nil, 0, ErrInvalidFilename
	}

	backupPath := filepath.Join(s.backupDir, filename)

	file, err := s.fs.Open(backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}

	return file, stat.Size(), nil
}

// CleanupOldBackups removes old backups based on the retention settings
func (s *Service) CleanupOldBackups() (int, error) {
	settings, err := s.configManager.Load()
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}

	retention := settings.Backup
	if retention.RetentionDays == 0 && retention.RetentionCount == 0 {
		// No cleanup configured
		return 0, nil
	}

	backups, err := s.ListBackups()
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}

	toDelete := make(map[string]bool)

	if retention.RetentionDays > 0 {
		cutoff := s.now().UTC().AddDate(0, 0, -retention.RetentionDays)
		for _, backup := range backups {
			if backup.CreatedAt.Before(cutoff) {
				toDelete[backup.Filename] = true
			}
		}
	}

	// Keep the newest N; ListBackups already sorts newest first
	if retention.RetentionCount > 0 && len(backups) > retention.RetentionCount {
		for i := retention.RetentionCount; i < len(backups); i++ {
			toDelete[backups[i].Filename] = true
		}
	}

	deleted := 0
	for filename := range toDelete {
		if err := s.DeleteBackup(filename); err != nil {
			log.Printf("[backup] Warning: failed to delete old backup %s: %v", filename, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Printf("[backup] Cleaned up %d old backups", deleted)
	}

	return deleted, nil
}

// GetBackupDir returns the backup directory path
func (s *Service) GetBackupDir() string {
	return s.backupDir
}
