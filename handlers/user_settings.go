package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"showplan/config"
	"showplan/models"
	user_settings "showplan/services/user_settings"
)

type userSettingsService interface {
	Get(userID string) (*models.UserSettings, error)
	GetWithDefaults(userID string, defaults models.UserSettings) (models.UserSettings, error)
	Update(userID string, settings models.UserSettings) error
	Delete(userID string) error
}

var _ userSettingsService = (*user_settings.Service)(nil)

// UserSettingsHandler serves per-profile planner preferences. Responses carry
// the stored overrides plus the effective scheduling values after resolving
// them against global config, so the UI never has to merge on its own.
type UserSettingsHandler struct {
	Service       userSettingsService
	ConfigManager *config.Manager
}

func NewUserSettingsHandler(service userSettingsService, configManager *config.Manager) *UserSettingsHandler {
	return &UserSettingsHandler{
		Service:       service,
		ConfigManager: configManager,
	}
}

// UserSettingsResponse is a user's stored settings plus the scheduling
// values a generation run would actually use.
type UserSettingsResponse struct {
	models.UserSettings
	Effective models.SchedulingSettings `json:"effective"`
}

// Get returns the user's settings merged with global defaults.
func (h *UserSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	global := globalScheduling(h.ConfigManager)
	settings, err := h.Service.GetWithDefaults(userID, displayDefaults(h.ConfigManager))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserSettingsResponse{
		UserSettings: settings,
		Effective:    models.ResolveScheduling(&settings.Scheduling, global),
	})
}

// Put replaces the user's settings overlay.
func (h *UserSettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var settings models.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if rot := settings.Scheduling.DefaultRotation; rot != nil && !rot.Valid() {
		jsonError(w, "defaultRotation must be sequential or random", http.StatusBadRequest)
		return
	}
	if tf := settings.Display.TimeFormat; tf != "" && tf != "12h" && tf != "24h" {
		jsonError(w, "timeFormat must be 12h or 24h", http.StatusBadRequest)
		return
	}

	if err := h.Service.Update(userID, settings); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserSettingsResponse{
		UserSettings: settings,
		Effective:    models.ResolveScheduling(&settings.Scheduling, globalScheduling(h.ConfigManager)),
	})
}

// Reset drops the user's overrides, returning them to global defaults.
func (h *UserSettingsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	if err := h.Service.Delete(userID); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserSettingsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// globalScheduling loads the global scheduling baseline, falling back to the
// built-in defaults when config is unreadable.
func globalScheduling(m *config.Manager) models.SchedulingSettings {
	if m == nil {
		return models.DefaultSchedulingSettings()
	}
	settings, err := m.Load()
	if err != nil {
		return models.DefaultSchedulingSettings()
	}
	return settings.Scheduling
}

// displayDefaults extracts the display settings from global config as the
// per-user defaults.
func displayDefaults(m *config.Manager) models.UserSettings {
	if m == nil {
		return models.DefaultUserSettings()
	}
	settings, err := m.Load()
	if err != nil {
		return models.DefaultUserSettings()
	}
	return models.UserSettings{Display: settings.Display}
}
