package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"showplan/internal/database"
	"showplan/models"
	"showplan/services/schedule"
)

type scheduleService interface {
	Generate(ctx context.Context, userID string, req schedule.GenerateRequest) (models.GenerationResult, error)
	DayView(ctx context.Context, userID string, date models.CalendarDate) ([]models.ScheduledInterval, error)
	CheckSlot(ctx context.Context, userID string, date models.CalendarDate, hour, minute, durationMinutes int) (schedule.SlotCheck, error)
	Unschedule(ctx context.Context, userID, intervalID string) error
	ClearDay(ctx context.Context, userID string, date models.CalendarDate) (int64, error)
	Stage(ctx context.Context, userID string, req schedule.StageRequest) (models.PendingPlacement, error)
	Unstage(userID string, date models.CalendarDate, localKey string) bool
	Draft(userID string, date models.CalendarDate) []models.PendingPlacement
	CommitDraft(ctx context.Context, userID string, date models.CalendarDate) (models.CommitOutcome, error)
}

var _ scheduleService = (*schedule.Service)(nil)

// ScheduleHandler serves the planner's day views, generation runs, slot
// probes, and the staged-draft lifecycle.
type ScheduleHandler struct {
	Service scheduleService
}

func NewScheduleHandler(service scheduleService) *ScheduleHandler {
	return &ScheduleHandler{Service: service}
}

// scheduleErrorStatus maps scheduling failures onto HTTP statuses: conflicts
// are 409, bad input is 400, a missing interval is 404, anything else 500.
func scheduleErrorStatus(err error) int {
	var conflict *schedule.ConflictError
	var badDate *schedule.InvalidDateError
	var badDuration *schedule.InvalidDurationError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &badDate), errors.As(err, &badDuration):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrUserIDRequired),
		errors.Is(err, schedule.ErrEmptyQueue),
		errors.Is(err, schedule.ErrNothingToSchedule),
		errors.Is(err, schedule.ErrUnknownRotationMode):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// queryDate reads and parses the required ?date= parameter.
func queryDate(r *http.Request) (models.CalendarDate, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return models.CalendarDate{}, errors.New("date parameter required")
	}
	return schedule.ToCalendarDate(raw)
}

// DayView returns the persisted intervals for ?date=, sorted by start.
func (h *ScheduleHandler) DayView(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	date, err := queryDate(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	intervals, err := h.Service.DayView(r.Context(), userID, date)
	if err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intervals)
}

// Generate runs a generation pass and returns the placed/skipped report.
func (h *ScheduleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req schedule.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.Generate(r.Context(), userID, req)
	if err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Availability probes one slot: ?date=&hour=&minute=&duration=.
func (h *ScheduleHandler) Availability(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	date, err := queryDate(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	hour, err := strconv.Atoi(q.Get("hour"))
	if err != nil {
		jsonError(w, "hour parameter required", http.StatusBadRequest)
		return
	}
	minute := 0
	if raw := q.Get("minute"); raw != "" {
		if minute, err = strconv.Atoi(raw); err != nil {
			jsonError(w, "invalid minute parameter", http.StatusBadRequest)
			return
		}
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		jsonError(w, "duration parameter required", http.StatusBadRequest)
		return
	}

	check, err := h.Service.CheckSlot(r.Context(), userID, date, hour, minute, duration)
	if err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(check)
}

// Unschedule removes one persisted interval by ID.
func (h *ScheduleHandler) Unschedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	intervalID := strings.TrimSpace(vars["intervalID"])
	if intervalID == "" {
		jsonError(w, "interval id is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.Unschedule(r.Context(), userID, intervalID); err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearDay removes every persisted interval on ?date=.
func (h *ScheduleHandler) ClearDay(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	date, err := queryDate(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := h.Service.ClearDay(r.Context(), userID, date)
	if err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}

// Stage provisionally places one item on the draft overlay.
func (h *ScheduleHandler) Stage(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req schedule.StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	placement, err := h.Service.Stage(r.Context(), userID, req)
	if err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(placement)
}

// Draft lists the staged placements for ?date= in staging order.
func (h *ScheduleHandler) Draft(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	date, err := queryDate(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	placements := h.Service.Draft(userID, date)
	if placements == nil {
		placements = []models.PendingPlacement{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(placements)
}

// Unstage removes one staged placement by local key, scoped to ?date=.
func (h *ScheduleHandler) Unstage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["userID"]
	key := strings.TrimSpace(vars["key"])
	if key == "" {
		jsonError(w, "placement key is required", http.StatusBadRequest)
		return
	}

	date, err := queryDate(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.Service.Unstage(userID, date, key) {
		jsonError(w, "placement not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CommitDraft persists the staged placements for one date. The response
// reports per-item outcomes; failed items stay staged.
func (h *ScheduleHandler) CommitDraft(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var body struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	date, err := schedule.ToCalendarDate(body.Date)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	outcome, err := h.Service.CommitDraft(r.Context(), userID, date)
	if err != nil {
		jsonError(w, err.Error(), scheduleErrorStatus(err))
		return
	}

	status := http.StatusOK
	if len(outcome.Failed) > 0 {
		// Partial success still reports everything; 207 signals the mix.
		status = http.StatusMultiStatus
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(outcome)
}

// Helper for JSON error responses
func jsonError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
	})
}
