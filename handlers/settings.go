package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"showplan/config"
	"showplan/services/metadata"
)

// SettingsHandler serves the global planner configuration. Saving propagates
// to services that cache config at startup, so changes apply without a
// restart.
type SettingsHandler struct {
	Manager         *config.Manager
	MetadataService *metadata.Service
	ImageHandler    *ImageHandler
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

// SetMetadataService sets the metadata service for hot reloading API keys
func (h *SettingsHandler) SetMetadataService(ms *metadata.Service) {
	h.MetadataService = ms
}

// SetImageHandler sets the image handler for clearing the poster cache
func (h *SettingsHandler) SetImageHandler(ih *ImageHandler) {
	h.ImageHandler = ih
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	// Remember the old metadata config to detect changes worth a reload
	oldSettings, _ := h.Manager.Load()

	var s config.Settings
	dec := json.NewDecoder(r.Body)
	// Allow unknown fields for backward compatibility with old configs
	if err := dec.Decode(&s); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.Scheduling.DefaultRotation.Valid() {
		jsonError(w, "defaultRotation must be sequential or random", http.StatusBadRequest)
		return
	}

	if err := h.Manager.Save(s); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.reloadServices(oldSettings, s)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s)
}

// reloadServices reloads services that cache configuration at startup
func (h *SettingsHandler) reloadServices(old, s config.Settings) {
	if h.MetadataService == nil {
		return
	}

	if old.Metadata.TMDBAPIKey != s.Metadata.TMDBAPIKey || old.Metadata.Language != s.Metadata.Language {
		h.MetadataService.UpdateAPIKey(s.Metadata.TMDBAPIKey, s.Metadata.Language)
		log.Printf("[settings] reloaded metadata service API key")
	}
}

// ClearMetadataCache clears cached episode metadata and poster images
func (h *SettingsHandler) ClearMetadataCache(w http.ResponseWriter, r *http.Request) {
	if h.MetadataService == nil {
		jsonError(w, "metadata service not available", http.StatusInternalServerError)
		return
	}
	h.MetadataService.ClearCache()
	log.Printf("[settings] metadata cache cleared by user request")

	if h.ImageHandler != nil {
		if err := h.ImageHandler.ClearCache(); err != nil {
			log.Printf("[settings] warning: failed to clear image cache: %v", err)
		} else {
			log.Printf("[settings] image cache cleared by user request")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "Metadata and image cache cleared"})
}
