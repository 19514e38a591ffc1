package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"showplan/handlers"
	"showplan/services/users"
)

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	scheduleHandler *handlers.ScheduleHandler,
	queueHandler *handlers.QueueHandler,
	profilesHandler *handlers.ProfilesHandler,
	userSettingsHandler *handlers.UserSettingsHandler,
	settingsHandler *handlers.SettingsHandler,
	backupHandler *handlers.BackupHandler,
	metadataHandler *handlers.MetadataHandler,
	imageHandler *handlers.ImageHandler,
	startupHandler *handlers.StartupHandler,
	logsHandler *handlers.LogsHandler,
	usersSvc *users.Service,
) {
	api := r.PathPrefix("/api").Subrouter()

	// Version endpoint (public)
	versionHandler := handlers.NewVersionHandler()
	api.HandleFunc("/version", versionHandler.GetVersion).Methods(http.MethodGet, http.MethodOptions)

	// Profile management. PIN verification gets per-IP limiting; six digits
	// brute-force too quickly otherwise.
	pinLimiter := NewIPRateLimiter(rate.Every(12*time.Second), 5)
	api.HandleFunc("/profiles", profilesHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/profiles", profilesHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/profiles", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/profiles/{userID}", profilesHandler.Update).Methods(http.MethodPatch)
	api.HandleFunc("/profiles/{userID}", profilesHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{userID}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/profiles/{userID}/pin", profilesHandler.SetPin).Methods(http.MethodPut)
	api.HandleFunc("/profiles/{userID}/pin", profilesHandler.ClearPin).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{userID}/pin", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/profiles/{userID}/pin/verify", RateLimitHandlerFunc(pinLimiter, profilesHandler.VerifyPin)).Methods(http.MethodPost)
	api.HandleFunc("/profiles/{userID}/pin/verify", handleOptions).Methods(http.MethodOptions)

	// Planner routes scoped to one profile; unknown profiles get a 404 from
	// the middleware before any handler runs.
	planner := api.PathPrefix("/users").Subrouter()
	planner.Use(ProfileMiddleware(usersSvc))

	// One round trip for everything the UI needs after profile selection
	planner.HandleFunc("/{userID}/startup", startupHandler.GetStartup).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/startup", handleOptions).Methods(http.MethodOptions)

	planner.HandleFunc("/{userID}/schedule", scheduleHandler.DayView).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/schedule", scheduleHandler.ClearDay).Methods(http.MethodDelete)
	planner.HandleFunc("/{userID}/schedule", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/schedule/generate", scheduleHandler.Generate).Methods(http.MethodPost)
	planner.HandleFunc("/{userID}/schedule/generate", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/schedule/availability", scheduleHandler.Availability).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/schedule/availability", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/schedule/draft", scheduleHandler.Draft).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/schedule/draft", scheduleHandler.Stage).Methods(http.MethodPost)
	planner.HandleFunc("/{userID}/schedule/draft", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/schedule/draft/commit", scheduleHandler.CommitDraft).Methods(http.MethodPost)
	planner.HandleFunc("/{userID}/schedule/draft/commit", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/schedule/draft/{key}", scheduleHandler.Unstage).Methods(http.MethodDelete)
	planner.HandleFunc("/{userID}/schedule/draft/{key}", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/schedule/{intervalID}", scheduleHandler.Unschedule).Methods(http.MethodDelete)
	planner.HandleFunc("/{userID}/schedule/{intervalID}", handleOptions).Methods(http.MethodOptions)

	planner.HandleFunc("/{userID}/queue", queueHandler.List).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/queue", queueHandler.Add).Methods(http.MethodPost)
	planner.HandleFunc("/{userID}/queue", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/queue/order", queueHandler.Reorder).Methods(http.MethodPut)
	planner.HandleFunc("/{userID}/queue/order", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/queue/search", queueHandler.Search).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/queue/search", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/queue/{contentID}", queueHandler.Remove).Methods(http.MethodDelete)
	planner.HandleFunc("/{userID}/queue/{contentID}", handleOptions).Methods(http.MethodOptions)
	planner.HandleFunc("/{userID}/queue/{contentID}/filter", queueHandler.SetFilter).Methods(http.MethodPut)
	planner.HandleFunc("/{userID}/queue/{contentID}/filter", handleOptions).Methods(http.MethodOptions)

	planner.HandleFunc("/{userID}/settings", userSettingsHandler.Get).Methods(http.MethodGet)
	planner.HandleFunc("/{userID}/settings", userSettingsHandler.Put).Methods(http.MethodPut)
	planner.HandleFunc("/{userID}/settings", userSettingsHandler.Reset).Methods(http.MethodDelete)
	planner.HandleFunc("/{userID}/settings", handleOptions).Methods(http.MethodOptions)

	// Episode metadata for the queue's episode picker
	api.HandleFunc("/metadata/episodes", metadataHandler.Episodes).Methods(http.MethodGet)
	api.HandleFunc("/metadata/episodes", handleOptions).Methods(http.MethodOptions)

	// Global settings
	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	api.HandleFunc("/settings", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/settings/cache/clear", settingsHandler.ClearMetadataCache).Methods(http.MethodPost)
	api.HandleFunc("/settings/cache/clear", handleOptions).Methods(http.MethodOptions)

	// Backups. Restore rewrites live data files, so it gets its own limiter.
	// The fixed routes must be registered before the {filename} catch-all.
	restoreLimiter := NewIPRateLimiter(rate.Every(time.Minute), 2)
	api.HandleFunc("/backups", backupHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/backups", backupHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/backups", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/backups/restore", RateLimitHandlerFunc(restoreLimiter, backupHandler.Restore)).Methods(http.MethodPost)
	api.HandleFunc("/backups/restore", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/backups/import", backupHandler.Import).Methods(http.MethodPost)
	api.HandleFunc("/backups/import", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/backups/{filename}", backupHandler.Download).Methods(http.MethodGet)
	api.HandleFunc("/backups/{filename}", backupHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/backups/{filename}", handleOptions).Methods(http.MethodOptions)

	// Server log tail for support diagnostics
	api.HandleFunc("/logs", logsHandler.Recent).Methods(http.MethodGet)
	api.HandleFunc("/logs", logsHandler.Options).Methods(http.MethodOptions)

	// Image proxy endpoint (public - no auth required for image loading)
	if imageHandler != nil {
		api.HandleFunc("/images/proxy", imageHandler.Proxy).Methods(http.MethodGet, http.MethodHead)
		api.HandleFunc("/images/proxy", imageHandler.Options).Methods(http.MethodOptions)
	}
}
