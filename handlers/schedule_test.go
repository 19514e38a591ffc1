package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"showplan/internal/database"
	"showplan/models"
	"showplan/services/schedule"
)

// mu guards the recorder fields; the startup handler fans out to
// DayView and Draft from separate goroutines.
type mockScheduleService struct {
	mu            sync.Mutex
	dayView       []models.ScheduledInterval
	dayViewErr    error
	generated     models.GenerationResult
	generateErr   error
	slot          schedule.SlotCheck
	slotErr       error
	unscheduleErr error
	cleared       int64
	staged        models.PendingPlacement
	stageErr      error
	unstageOK     bool
	draft         []models.PendingPlacement
	outcome       models.CommitOutcome
	commitErr     error

	lastUserID      string
	lastDate        models.CalendarDate
	lastIntervalID  string
	lastKey         string
	lastGenerateReq schedule.GenerateRequest
	lastStageReq    schedule.StageRequest
	lastHour        int
	lastMinute      int
	lastDuration    int
}

func (m *mockScheduleService) Generate(_ context.Context, userID string, req schedule.GenerateRequest) (models.GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastGenerateReq = req
	return m.generated, m.generateErr
}

func (m *mockScheduleService) DayView(_ context.Context, userID string, date models.CalendarDate) ([]models.ScheduledInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastDate = date
	return m.dayView, m.dayViewErr
}

func (m *mockScheduleService) CheckSlot(_ context.Context, userID string, date models.CalendarDate, hour, minute, durationMinutes int) (schedule.SlotCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastDate = date
	m.lastHour = hour
	m.lastMinute = minute
	m.lastDuration = durationMinutes
	return m.slot, m.slotErr
}

func (m *mockScheduleService) Unschedule(_ context.Context, userID, intervalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastIntervalID = intervalID
	return m.unscheduleErr
}

func (m *mockScheduleService) ClearDay(_ context.Context, userID string, date models.CalendarDate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastDate = date
	return m.cleared, nil
}

func (m *mockScheduleService) Stage(_ context.Context, userID string, req schedule.StageRequest) (models.PendingPlacement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastStageReq = req
	return m.staged, m.stageErr
}

func (m *mockScheduleService) Unstage(userID string, date models.CalendarDate, localKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastDate = date
	m.lastKey = localKey
	return m.unstageOK
}

func (m *mockScheduleService) Draft(userID string, date models.CalendarDate) []models.PendingPlacement {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastDate = date
	return m.draft
}

func (m *mockScheduleService) CommitDraft(_ context.Context, userID string, date models.CalendarDate) (models.CommitOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserID = userID
	m.lastDate = date
	return m.outcome, m.commitErr
}

func plannerRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	return mux.SetURLVars(req, map[string]string{"userID": "default"})
}

func TestScheduleHandler_DayView(t *testing.T) {
	mock := &mockScheduleService{
		dayView: []models.ScheduledInterval{
			{
				ID:              "iv-1",
				ContentID:       "tmdb:1399",
				Season:          models.IntPtr(1),
				Episode:         models.IntPtr(3),
				StartInstant:    time.Date(2026, 3, 14, 20, 0, 0, 0, time.Local),
				DurationMinutes: 30,
				Title:           "Game of Thrones",
			},
		},
	}
	handler := NewScheduleHandler(mock)

	rec := httptest.NewRecorder()
	handler.DayView(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule?date=2026-03-14", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mock.lastUserID != "default" {
		t.Fatalf("expected user default, got %q", mock.lastUserID)
	}
	if mock.lastDate != models.NewCalendarDate(2026, time.March, 14) {
		t.Fatalf("unexpected date: %+v", mock.lastDate)
	}

	var got []models.ScheduledInterval
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "iv-1" {
		t.Fatalf("unexpected intervals: %+v", got)
	}
}

func TestScheduleHandler_DayViewRequiresDate(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{})

	rec := httptest.NewRecorder()
	handler.DayView(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScheduleHandler_DayViewRejectsBadDate(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{})

	rec := httptest.NewRecorder()
	handler.DayView(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule?date=not-a-date", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScheduleHandler_Generate(t *testing.T) {
	mock := &mockScheduleService{
		generated: models.GenerationResult{
			Placed: []models.ScheduledInterval{{ID: "iv-1", Title: "Severance"}},
			Skipped: []models.SkippedCandidate{
				{Reason: "conflict at 8:00 PM"},
			},
		},
	}
	handler := NewScheduleHandler(mock)

	body := `{"date":"2026-03-14","startHour":20,"startMinute":0,"mode":"sequential"}`
	rec := httptest.NewRecorder()
	handler.Generate(rec, plannerRequest(http.MethodPost, "/api/users/default/schedule/generate", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mock.lastGenerateReq.StartHour != 20 || mock.lastGenerateReq.Mode != models.RotationSequential {
		t.Fatalf("request not passed through: %+v", mock.lastGenerateReq)
	}

	var got models.GenerationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Placed) != 1 || len(got.Skipped) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestScheduleHandler_GenerateEmptyQueue(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{generateErr: schedule.ErrEmptyQueue})

	rec := httptest.NewRecorder()
	handler.Generate(rec, plannerRequest(http.MethodPost, "/api/users/default/schedule/generate", `{"date":"2026-03-14"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScheduleHandler_Availability(t *testing.T) {
	next := time.Date(2026, 3, 14, 21, 30, 0, 0, time.Local)
	mock := &mockScheduleService{
		slot: schedule.SlotCheck{Occupied: true, AvailableMinutes: 0, NextFreeSlot: &next},
	}
	handler := NewScheduleHandler(mock)

	rec := httptest.NewRecorder()
	handler.Availability(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule/availability?date=2026-03-14&hour=20&minute=15&duration=45", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mock.lastHour != 20 || mock.lastMinute != 15 || mock.lastDuration != 45 {
		t.Fatalf("slot parameters not passed through: hour=%d minute=%d duration=%d", mock.lastHour, mock.lastMinute, mock.lastDuration)
	}

	var got schedule.SlotCheck
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Occupied || got.NextFreeSlot == nil {
		t.Fatalf("unexpected slot check: %+v", got)
	}
}

func TestScheduleHandler_AvailabilityDefaultsMinute(t *testing.T) {
	mock := &mockScheduleService{lastMinute: -1}
	handler := NewScheduleHandler(mock)

	rec := httptest.NewRecorder()
	handler.Availability(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule/availability?date=2026-03-14&hour=20&duration=30", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mock.lastMinute != 0 {
		t.Fatalf("expected minute to default to 0, got %d", mock.lastMinute)
	}
}

func TestScheduleHandler_AvailabilityRequiresHourAndDuration(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{})

	rec := httptest.NewRecorder()
	handler.Availability(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule/availability?date=2026-03-14&duration=30", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing hour: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Availability(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule/availability?date=2026-03-14&hour=20", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing duration: expected 400, got %d", rec.Code)
	}
}

func TestScheduleHandler_Unschedule(t *testing.T) {
	mock := &mockScheduleService{}
	handler := NewScheduleHandler(mock)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/default/schedule/iv-9", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "default", "intervalID": "iv-9"})
	rec := httptest.NewRecorder()
	handler.Unschedule(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if mock.lastIntervalID != "iv-9" {
		t.Fatalf("expected interval iv-9, got %q", mock.lastIntervalID)
	}
}

func TestScheduleHandler_UnscheduleMissingInterval(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{unscheduleErr: database.ErrNotFound})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/default/schedule/iv-gone", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "default", "intervalID": "iv-gone"})
	rec := httptest.NewRecorder()
	handler.Unschedule(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestScheduleHandler_ClearDay(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{cleared: 3})

	rec := httptest.NewRecorder()
	handler.ClearDay(rec, plannerRequest(http.MethodDelete, "/api/users/default/schedule?date=2026-03-14", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["deleted"] != 3 {
		t.Fatalf("expected 3 deleted, got %+v", got)
	}
}

func TestScheduleHandler_Stage(t *testing.T) {
	mock := &mockScheduleService{
		staged: models.PendingPlacement{
			LocalKey:        "pp-1",
			ContentID:       "tmdb:1399",
			StartInstant:    time.Date(2026, 3, 14, 20, 0, 0, 0, time.Local),
			DurationMinutes: 30,
			Title:           "Game of Thrones",
		},
	}
	handler := NewScheduleHandler(mock)

	body := `{"date":"2026-03-14","hour":20,"minute":0,"contentId":"tmdb:1399"}`
	rec := httptest.NewRecorder()
	handler.Stage(rec, plannerRequest(http.MethodPost, "/api/users/default/schedule/draft", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if mock.lastStageReq.ContentID != "tmdb:1399" || mock.lastStageReq.Hour != 20 {
		t.Fatalf("request not passed through: %+v", mock.lastStageReq)
	}

	var got models.PendingPlacement
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.LocalKey != "pp-1" {
		t.Fatalf("unexpected placement: %+v", got)
	}
}

func TestScheduleHandler_StageConflict(t *testing.T) {
	conflict := &schedule.ConflictError{
		BlockingTitle: "The Bear",
		BlockingStart: time.Date(2026, 3, 14, 20, 0, 0, 0, time.Local),
		BlockingEnd:   time.Date(2026, 3, 14, 20, 30, 0, 0, time.Local),
	}
	handler := NewScheduleHandler(&mockScheduleService{stageErr: conflict})

	body := `{"date":"2026-03-14","hour":20,"minute":15,"contentId":"tmdb:136315"}`
	rec := httptest.NewRecorder()
	handler.Stage(rec, plannerRequest(http.MethodPost, "/api/users/default/schedule/draft", body))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestScheduleHandler_DraftEmptyIsArray(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{})

	rec := httptest.NewRecorder()
	handler.Draft(rec, plannerRequest(http.MethodGet, "/api/users/default/schedule/draft?date=2026-03-14", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}

func TestScheduleHandler_Unstage(t *testing.T) {
	mock := &mockScheduleService{unstageOK: true}
	handler := NewScheduleHandler(mock)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/default/schedule/draft/pp-1?date=2026-03-14", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "default", "key": "pp-1"})
	rec := httptest.NewRecorder()
	handler.Unstage(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if mock.lastKey != "pp-1" {
		t.Fatalf("expected key pp-1, got %q", mock.lastKey)
	}
}

func TestScheduleHandler_UnstageUnknownKey(t *testing.T) {
	handler := NewScheduleHandler(&mockScheduleService{unstageOK: false})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/default/schedule/draft/pp-gone?date=2026-03-14", nil)
	req = mux.SetURLVars(req, map[string]string{"userID": "default", "key": "pp-gone"})
	rec := httptest.NewRecorder()
	handler.Unstage(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestScheduleHandler_CommitDraft(t *testing.T) {
	mock := &mockScheduleService{
		outcome: models.CommitOutcome{
			Committed: []models.ScheduledInterval{{ID: "iv-1"}, {ID: "iv-2"}},
		},
	}
	handler := NewScheduleHandler(mock)

	rec := httptest.NewRecorder()
	handler.CommitDraft(rec, plannerRequest(http.MethodPost, "/api/users/default/schedule/draft/commit", `{"date":"2026-03-14"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mock.lastDate != models.NewCalendarDate(2026, time.March, 14) {
		t.Fatalf("unexpected date: %+v", mock.lastDate)
	}

	var got models.CommitOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Committed) != 2 || len(got.Failed) != 0 {
		t.Fatalf("unexpected outcome: %+v", got)
	}
}

func TestScheduleHandler_CommitDraftPartialFailure(t *testing.T) {
	mock := &mockScheduleService{
		outcome: models.CommitOutcome{
			Committed: []models.ScheduledInterval{{ID: "iv-1"}},
			Failed: []models.CommitFailure{
				{Placement: models.PendingPlacement{LocalKey: "pp-2"}, Error: "occupied by 'The Bear' starting at 8:00 PM"},
			},
		},
	}
	handler := NewScheduleHandler(mock)

	rec := httptest.NewRecorder()
	handler.CommitDraft(rec, plannerRequest(http.MethodPost, "/api/users/default/schedule/draft/commit", `{"date":"2026-03-14"}`))

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", rec.Code, rec.Body.String())
	}
}
