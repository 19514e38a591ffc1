package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"showplan/models"
	"showplan/services/queue"
)

type queueService interface {
	List(userID string) ([]models.QueueEntry, error)
	AddOrUpdate(userID string, input models.QueueUpsert) (models.QueueEntry, error)
	Remove(userID, contentID string) (bool, error)
	Reorder(userID string, orderedIDs []string) ([]models.QueueEntry, error)
	SetFilter(userID, contentID string, filter models.EpisodeFilter) (models.QueueEntry, error)
	Search(userID, query string) ([]models.QueueEntry, error)
}

var _ queueService = (*queue.Service)(nil)

// QueueHandler serves a profile's ordered watch queue.
type QueueHandler struct {
	Service queueService
}

func NewQueueHandler(service queueService) *QueueHandler {
	return &QueueHandler{Service: service}
}

func queueErrorStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrContentIDRequired),
		errors.Is(err, queue.ErrTitleRequired),
		errors.Is(err, queue.ErrInvalidContentType),
		errors.Is(err, queue.ErrInvalidFilterMode),
		errors.Is(err, queue.ErrReorderMismatch),
		errors.Is(err, queue.ErrUserIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrNotInQueue):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	entries, err := h.Service.List(userID)
	if err != nil {
		jsonError(w, err.Error(), queueErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// Add inserts a queue entry or updates the existing one with the same
// content ID. Position is assigned on insert and preserved on update.
func (h *QueueHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var input models.QueueUpsert
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.Service.AddOrUpdate(userID, input)
	if err != nil {
		jsonError(w, err.Error(), queueErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	contentID := strings.TrimSpace(vars["contentID"])
	if contentID == "" {
		jsonError(w, "content id is required", http.StatusBadRequest)
		return
	}

	removed, err := h.Service.Remove(userID, contentID)
	if err != nil {
		jsonError(w, err.Error(), queueErrorStatus(err))
		return
	}
	if !removed {
		jsonError(w, "content is not in the queue", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reorder rewrites the queue to match the posted order, which must name
// every entry exactly once.
func (h *QueueHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var body struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.Service.Reorder(userID, body.Order)
	if err != nil {
		jsonError(w, err.Error(), queueErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// SetFilter replaces the episode filter on one entry.
func (h *QueueHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	contentID := strings.TrimSpace(vars["contentID"])
	if contentID == "" {
		jsonError(w, "content id is required", http.StatusBadRequest)
		return
	}

	var filter models.EpisodeFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.Service.SetFilter(userID, contentID, filter)
	if err != nil {
		jsonError(w, err.Error(), queueErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// Search matches queue titles against ?q= ignoring case and accents. An
// empty query returns the whole queue.
func (h *QueueHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	entries, err := h.Service.Search(userID, r.URL.Query().Get("q"))
	if err != nil {
		jsonError(w, err.Error(), queueErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
