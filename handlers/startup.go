package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"showplan/config"
	"showplan/models"
	"showplan/services/schedule"
)

// startupQueueLimit caps the queue slice in the startup bundle to keep the
// payload small on low-power devices. The full queue is fetched on demand.
const startupQueueLimit = 50

// startupProfileService resolves the requesting profile.
type startupProfileService interface {
	Get(id string) (models.User, bool)
}

// StartupHandler serves a combined startup payload to reduce the number of
// HTTP round-trips required when the frontend initialises. All data fetches
// are performed concurrently.
type StartupHandler struct {
	users        startupProfileService
	userSettings userSettingsService
	queue        queueService
	schedule     scheduleService
	cfgManager   *config.Manager
}

// NewStartupHandler constructs a StartupHandler.
func NewStartupHandler(
	users startupProfileService,
	userSettings userSettingsService,
	queue queueService,
	scheduleSvc scheduleService,
	cfgManager *config.Manager,
) *StartupHandler {
	return &StartupHandler{
		users:        users,
		userSettings: userSettings,
		queue:        queue,
		schedule:     scheduleSvc,
		cfgManager:   cfgManager,
	}
}

// StartupResponse is the combined payload returned by
// GET /api/users/{userID}/startup.
type StartupResponse struct {
	Profile      models.User                `json:"profile"`
	UserSettings *UserSettingsResponse      `json:"userSettings"`
	Queue        []models.QueueEntry        `json:"queue"`
	Date         models.CalendarDate        `json:"date"`
	Schedule     []models.ScheduledInterval `json:"schedule"`
	Draft        []models.PendingPlacement  `json:"draft"`
}

// GetStartup returns all initial planner data in a single response: the
// profile, its settings with effective scheduling values, the watch queue,
// and the day's committed schedule plus staged draft.
func (h *StartupHandler) GetStartup(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])

	profile, ok := h.users.Get(userID)
	if !ok {
		jsonError(w, "profile not found", http.StatusNotFound)
		return
	}

	// Defaults to today; ?date= selects another day.
	date := todayDate()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := schedule.ToCalendarDate(raw)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		date = parsed
	}

	resp := StartupResponse{Profile: profile, Date: date}
	var wg sync.WaitGroup

	// User settings with the effective scheduling values
	wg.Add(1)
	go func() {
		defer wg.Done()
		settings, err := h.userSettings.GetWithDefaults(userID, displayDefaults(h.cfgManager))
		if err != nil {
			log.Printf("[startup] user settings error for %s: %v", userID, err)
			return
		}
		resp.UserSettings = &UserSettingsResponse{
			UserSettings: settings,
			Effective:    models.ResolveScheduling(&settings.Scheduling, globalScheduling(h.cfgManager)),
		}
	}()

	// Queue (capped to startupQueueLimit)
	wg.Add(1)
	go func() {
		defer wg.Done()
		entries, err := h.queue.List(userID)
		if err != nil {
			log.Printf("[startup] queue error for %s: %v", userID, err)
			return
		}
		if len(entries) > startupQueueLimit {
			entries = entries[:startupQueueLimit]
		}
		resp.Queue = entries
	}()

	// The day's committed schedule
	wg.Add(1)
	go func() {
		defer wg.Done()
		intervals, err := h.schedule.DayView(r.Context(), userID, date)
		if err != nil {
			log.Printf("[startup] schedule error for %s: %v", userID, err)
			return
		}
		resp.Schedule = intervals
	}()

	// Staged placements for the same day
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp.Draft = h.schedule.Draft(userID, date)
	}()

	wg.Wait()

	// Ensure nil slices become empty arrays in JSON
	if resp.Queue == nil {
		resp.Queue = []models.QueueEntry{}
	}
	if resp.Schedule == nil {
		resp.Schedule = []models.ScheduledInterval{}
	}
	if resp.Draft == nil {
		resp.Draft = []models.PendingPlacement{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Options handles CORS preflight for the startup endpoint.
func (h *StartupHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func todayDate() models.CalendarDate {
	now := time.Now()
	return models.NewCalendarDate(now.Year(), now.Month(), now.Day())
}
