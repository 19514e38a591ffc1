package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"showplan/models"
	"showplan/services/users"
	"showplan/utils"
)

type profilesService interface {
	List() []models.User
	Create(name string) (models.User, error)
	Update(id string, update users.ProfileUpdate) (models.User, error)
	Delete(id string) error
	SetPin(id, pin string) (models.User, error)
	ClearPin(id string) (models.User, error)
	VerifyPin(id, pin string) error
}

var _ profilesService = (*users.Service)(nil)

// profileQueueService removes a deleted profile's watch queue.
type profileQueueService interface {
	RemoveUser(userID string) error
}

// profileSettingsService removes a deleted profile's settings overrides.
type profileSettingsService interface {
	Delete(userID string) error
}

// profileScheduleStore removes a deleted profile's persisted intervals.
type profileScheduleStore interface {
	DeleteIntervalsForUser(ctx context.Context, userID string) (int64, error)
}

// ProfilesHandler manages planner profiles. Deleting a profile cascades to
// its queue, settings overrides, and scheduled intervals so no orphaned data
// survives under a reusable ID.
type ProfilesHandler struct {
	Service      profilesService
	Queue        profileQueueService
	UserSettings profileSettingsService
	Schedule     profileScheduleStore
}

func NewProfilesHandler(service profilesService, queue profileQueueService, userSettings profileSettingsService, schedule profileScheduleStore) *ProfilesHandler {
	return &ProfilesHandler{
		Service:      service,
		Queue:        queue,
		UserSettings: userSettings,
		Schedule:     schedule,
	}
}

func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.List())
}

func (h *ProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Service.Create(body.Name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, users.ErrNameRequired) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

// Update changes a profile's name and/or color. Absent fields stay as they
// are.
func (h *ProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := strings.TrimSpace(vars["userID"])
	if id == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Service.Update(id, users.ProfileUpdate{Name: body.Name, Color: body.Color})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrNameRequired):
			status = http.StatusBadRequest
		case errors.Is(err, users.ErrUserNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *ProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := strings.TrimSpace(vars["userID"])
	if id == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.Delete(id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, users.ErrLastUser):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	// The profile is gone; clean up what it owned. Failures here leave only
	// unreachable data behind, so log and keep going.
	if h.Queue != nil {
		if err := h.Queue.RemoveUser(id); err != nil {
			log.Printf("[profiles] delete %s: remove queue: %v", id, err)
		}
	}
	if h.UserSettings != nil {
		if err := h.UserSettings.Delete(id); err != nil {
			log.Printf("[profiles] delete %s: remove settings overrides: %v", id, err)
		}
	}
	if h.Schedule != nil {
		if n, err := h.Schedule.DeleteIntervalsForUser(r.Context(), id); err != nil {
			log.Printf("[profiles] delete %s: remove intervals: %v", id, err)
		} else if n > 0 {
			log.Printf("[profiles] delete %s: removed %d scheduled interval(s)", id, n)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetPin sets a profile's PIN. The body carries either an explicit six-digit
// PIN or {"generate": true}, in which case the response includes the
// generated PIN in plaintext. That is the only time it is ever returned.
func (h *ProfilesHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := strings.TrimSpace(vars["userID"])
	if id == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Pin      string `json:"pin"`
		Generate bool   `json:"generate"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pin := body.Pin
	if body.Generate {
		generated, err := utils.GeneratePIN()
		if err != nil {
			http.Error(w, "failed to generate PIN", http.StatusInternalServerError)
			return
		}
		pin = generated
	}

	user, err := h.Service.SetPin(id, pin)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, users.ErrPinRequired), errors.Is(err, users.ErrPinFormat):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if body.Generate {
		// Embedding the user would promote its MarshalJSON and drop the pin,
		// so the generated PIN rides alongside under its own key.
		json.NewEncoder(w).Encode(struct {
			User models.User `json:"user"`
			Pin  string      `json:"pin"`
		}{User: user, Pin: pin})
		return
	}
	json.NewEncoder(w).Encode(user)
}

// ClearPin removes a profile's PIN.
func (h *ProfilesHandler) ClearPin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := strings.TrimSpace(vars["userID"])
	if id == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	user, err := h.Service.ClearPin(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, users.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// VerifyPin checks a profile's PIN.
func (h *ProfilesHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := strings.TrimSpace(vars["userID"])
	if id == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Pin string `json:"pin"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.VerifyPin(id, body.Pin); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, users.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"valid": true})
}

func (h *ProfilesHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
