package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"showplan/api"
	"showplan/config"
	"showplan/handlers"
	"showplan/internal/database"
	"showplan/models"
	"showplan/services/backup"
	"showplan/services/metadata"
	"showplan/services/queue"
	"showplan/services/schedule"
	"showplan/services/scheduler"
	user_settings "showplan/services/user_settings"
	"showplan/services/users"
	"showplan/utils"
)

func main() {

	portOverride := flag.Int("port", 0, "override server port from config")
	configFlag := flag.String("config", "", "path to settings.json (overrides SHOWPLAN_CONFIG)")
	flag.Parse()

	fmt.Println("🚀 showplan starting...")

	// Determine config path (flag, env or default)
	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("SHOWPLAN_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Mirror standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	dataDir := settings.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	db, err := database.NewDB(database.Config{DatabasePath: filepath.Join(dataDir, "showplan.db")})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	usersService, err := users.NewService(dataDir)
	if err != nil {
		log.Fatalf("failed to initialise profiles: %v", err)
	}

	queueService, err := queue.NewService(dataDir)
	if err != nil {
		log.Fatalf("failed to initialise queue: %v", err)
	}

	userSettingsService, err := user_settings.NewService(dataDir)
	if err != nil {
		log.Fatalf("failed to initialise user settings: %v", err)
	}

	metadataService := metadata.NewService(settings.Metadata.TMDBAPIKey, settings.Metadata.Language, settings.Metadata.CacheTTLHours)
	metadataService.StartCacheJanitor(time.Hour)

	resolver := &schedulingResolver{
		configManager: cfgManager,
		userSettings:  userSettingsService,
		fallback:      settings.Scheduling,
	}
	scheduleService := schedule.NewService(db, queueService, metadataService, resolver)

	backupService, err := backup.NewService(nil, dataDir, cfgManager)
	if err != nil {
		log.Fatalf("failed to initialise backups: %v", err)
	}

	schedulerService := scheduler.NewService(cfgManager, backupService)
	if err := schedulerService.Start(context.Background()); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	// Construct router
	r := utils.NewRouter()

	scheduleHandler := handlers.NewScheduleHandler(scheduleService)
	queueHandler := handlers.NewQueueHandler(queueService)
	profilesHandler := handlers.NewProfilesHandler(usersService, queueService, userSettingsService, db)
	userSettingsHandler := handlers.NewUserSettingsHandler(userSettingsService, cfgManager)
	settingsHandler := handlers.NewSettingsHandler(cfgManager)
	backupHandler := handlers.NewBackupHandler(backupService)
	metadataHandler := handlers.NewMetadataHandler(metadataService)
	imageHandler := handlers.NewImageHandler(dataDir)
	startupHandler := handlers.NewStartupHandler(usersService, userSettingsService, queueService, scheduleService, cfgManager)
	logsHandler := handlers.NewLogsHandler(log.Default(), settings.Log.File)

	// Settings saves hot-swap the TMDB key; the cache clear endpoint reaches
	// both caches through these
	settingsHandler.SetMetadataService(metadataService)
	settingsHandler.SetImageHandler(imageHandler)

	api.Register(
		r,
		scheduleHandler,
		queueHandler,
		profilesHandler,
		userSettingsHandler,
		settingsHandler,
		backupHandler,
		metadataHandler,
		imageHandler,
		startupHandler,
		logsHandler,
		usersService,
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := schedulerService.Stop(shutdownCtx); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	metadataService.Stop()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// schedulingResolver merges a profile's scheduling overrides onto the global
// defaults. Both sides are re-read per call, so settings changes apply to the
// next generation run without a restart.
type schedulingResolver struct {
	configManager *config.Manager
	userSettings  *user_settings.Service
	fallback      models.SchedulingSettings
}

func (r *schedulingResolver) SchedulingFor(userID string) models.SchedulingSettings {
	global := r.fallback
	if settings, err := r.configManager.Load(); err == nil {
		global = settings.Scheduling
	}

	stored, err := r.userSettings.Get(userID)
	if err != nil || stored == nil {
		return models.ResolveScheduling(nil, global)
	}
	return models.ResolveScheduling(&stored.Scheduling, global)
}
