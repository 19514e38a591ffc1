package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"showplan/models"
	metadatapkg "showplan/services/metadata"
)

type metadataService interface {
	EpisodesForShow(ctx context.Context, tmdbID int64) ([]models.Episode, error)
	Configured() bool
}

var _ metadataService = (*metadatapkg.Service)(nil)

// MetadataHandler exposes episode metadata for the queue's episode picker.
// Scheduling itself resolves runtimes internally; this is only for the UI.
type MetadataHandler struct {
	Service metadataService
}

func NewMetadataHandler(s metadataService) *MetadataHandler {
	return &MetadataHandler{Service: s}
}

// Episodes returns every episode of the show named by ?tmdbId= in season
// then episode order.
func (h *MetadataHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	if !h.Service.Configured() {
		jsonError(w, "TMDB API key not configured", http.StatusServiceUnavailable)
		return
	}

	tmdbID, err := strconv.ParseInt(r.URL.Query().Get("tmdbId"), 10, 64)
	if err != nil || tmdbID <= 0 {
		jsonError(w, "tmdbId parameter required", http.StatusBadRequest)
		return
	}

	episodes, err := h.Service.EpisodesForShow(r.Context(), tmdbID)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(episodes)
}
