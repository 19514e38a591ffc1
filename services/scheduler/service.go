package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"showplan/config"
	"showplan/services/backup"
)

// checkInterval is how often the loop re-reads config and looks for due
// work. The smallest backup frequency is hourly, so a minute is plenty.
const checkInterval = time.Minute

// BackupService is the slice of the backup service the scheduler drives.
type BackupService interface {
	CreateBackup(backupType backup.BackupType) (*backup.BackupInfo, error)
	ListBackups() ([]backup.BackupInfo, error)
	CleanupOldBackups() (int, error)
}

// Service runs background maintenance: scheduled backups with retention
// cleanup. The frequency is read from config on every check, so settings
// changes take effect without a restart.
type Service struct {
	configManager *config.Manager
	backupService BackupService

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a scheduler service.
func NewService(configManager *config.Manager, backupService BackupService) *Service {
	return &Service{
		configManager: configManager,
		backupService: backupService,
	}
}

// Start launches the background loop. Calling Start on a running service is
// a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	log.Println("[scheduler] started")
	return nil
}

// Stop cancels the loop and waits for in-flight work, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] stopped")
	case <-ctx.Done():
		log.Println("[scheduler] stopped (timeout waiting for tasks)")
	}

	s.running = false
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	// Check immediately on start so a long-stopped instance catches up.
	s.checkBackup()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkBackup()
		}
	}
}

// checkBackup creates a scheduled backup when one is due.
func (s *Service) checkBackup() {
	settings, err := s.configManager.Load()
	if err != nil {
		log.Printf("[scheduler] load settings: %v", err)
		return
	}

	interval, enabled := settings.Backup.Frequency.Interval()
	if !enabled {
		return
	}

	due, err := s.backupDue(interval)
	if err != nil {
		log.Printf("[scheduler] check last backup: %v", err)
		return
	}
	if !due {
		return
	}

	s.runBackup()
}

// backupDue reports whether the newest scheduled archive is older than the
// given interval. The last run time comes from the archives themselves, so
// restarts never reset the schedule.
func (s *Service) backupDue(interval time.Duration) (bool, error) {
	backups, err := s.backupService.ListBackups()
	if err != nil {
		return false, err
	}

	// ListBackups returns newest first.
	for _, info := range backups {
		if info.Type != backup.BackupTypeScheduled {
			continue
		}
		return time.Since(info.CreatedAt) >= interval, nil
	}

	// Never backed up on a schedule before.
	return true, nil
}

func (s *Service) runBackup() {
	info, err := s.backupService.CreateBackup(backup.BackupTypeScheduled)
	if err != nil {
		log.Printf("[scheduler] scheduled backup failed: %v", err)
		return
	}

	cleaned, err := s.backupService.CleanupOldBackups()
	if err != nil {
		log.Printf("[scheduler] backup cleanup failed: %v", err)
	}

	if cleaned > 0 {
		log.Printf("[scheduler] scheduled backup created: %s, cleaned %d old archives", info.Filename, cleaned)
	} else {
		log.Printf("[scheduler] scheduled backup created: %s", info.Filename)
	}
}
