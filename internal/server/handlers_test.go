package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/devotion"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.DisplayName != "Local Dev User" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Local Dev User")
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// resolved identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{UserID: 9, Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.UserID != 9 || info.Login != "alice@example.com" {
		t.Errorf("info = %+v, want resolved user", info)
	}
}

// TestHandleDevotionPreview verifies the standalone scoring endpoint computes
// pillars from a posted session/plan pair without touching the store.
func TestHandleDevotionPreview(t *testing.T) {
	s := &Server{}
	exerciseID := uuid.New()
	exID := uuid.New()
	body := map[string]any{
		"session": models.Session{
			ID:     uuid.New(),
			Status: models.StatusFinished,
			Exercises: []models.SessionExercise{
				{
					ID: exID, ExerciseID: exerciseID, Order: 1,
					Sets: []models.SessionSet{
						{ID: uuid.New(), SessionExerciseID: exID, Type: models.SetNormal, ActualLoadKg: 10, ActualReps: 10, Completed: true, Order: 1},
						{ID: uuid.New(), SessionExerciseID: exID, Type: models.SetNormal, ActualLoadKg: 8, ActualReps: 12, Completed: true, Order: 2},
					},
				},
			},
		},
		"plan": models.PlanSnapshot{
			ID: uuid.New(), Name: "preview",
			Exercises: []models.PlanExercise{
				{
					ExerciseID: exerciseID, Order: 1,
					Sets: []models.PlanSet{
						{Type: models.SetNormal, TargetLoadKg: 10, TargetReps: 10, Order: 1},
						{Type: models.SetNormal, TargetLoadKg: 10, TargetReps: 10, Order: 2},
					},
				},
			},
		},
	}
	raw, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devotion/preview", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.handleDevotionPreview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var result devotion.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Score != 98 {
		t.Errorf("score = %d, want 98", result.Score)
	}
	if result.Grade != "A" {
		t.Errorf("grade = %q, want A", result.Grade)
	}
	if result.LF == nil || *result.LF != 0.9 {
		t.Errorf("lf = %v, want 0.9", result.LF)
	}
}

// TestHandleDevotionPreviewRequiresSession verifies a missing session is a 400.
func TestHandleDevotionPreviewRequiresSession(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devotion/preview", strings.NewReader(`{"plan": null}`))
	rec := httptest.NewRecorder()
	s.handleDevotionPreview(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestWriteErrorMapsKinds verifies engine error kinds map to their HTTP
// statuses and the kind is echoed in the body.
func TestWriteErrorMapsKinds(t *testing.T) {
	s := &Server{log: testLogger()}
	tests := []struct {
		kind       apperr.Kind
		wantStatus int
	}{
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindInvalidState, http.StatusConflict},
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindStore, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeError(rec, apperr.New(tc.kind, "boom"))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if body["kind"] != string(tc.kind) {
				t.Errorf("kind = %q, want %q", body["kind"], tc.kind)
			}
		})
	}
}

// TestWriteErrorUnknown verifies errors outside the taxonomy become a 500.
func TestWriteErrorUnknown(t *testing.T) {
	s := &Server{log: testLogger()}
	rec := httptest.NewRecorder()
	s.writeError(rec, context.DeadlineExceeded)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// TestParseTimeRangeDefault verifies that no parameters default to the last 30 days.
func TestParseTimeRangeDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	start, end, err := parseTimeRange(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := end.Sub(start); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Errorf("range = %v, want ~30 days", d)
	}
}

// TestParseTimeRangeDateOnly verifies date-only params parse and end is
// bumped to end of day.
func TestParseTimeRangeDateOnly(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?start=2025-03-01&end=2025-03-10", nil)
	start, end, err := parseTimeRange(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("start = %v", start)
	}
	if end != time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC) {
		t.Errorf("end = %v, want bumped to end of day", end)
	}
}

// TestParseTimeRangeRFC3339 verifies full timestamps pass through unchanged.
func TestParseTimeRangeRFC3339(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?start=2025-03-01T08:00:00Z&end=2025-03-01T20:00:00Z", nil)
	start, end, err := parseTimeRange(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 8 || end.Hour() != 20 {
		t.Errorf("start = %v, end = %v", start, end)
	}
}

// TestParseTimeRangeBadInput verifies garbage params are rejected.
func TestParseTimeRangeBadInput(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?start=yesterday", nil)
	if _, _, err := parseTimeRange(req); err == nil {
		t.Fatal("expected error for unparseable start")
	}
}

// TestSessionIDParamInvalid verifies a malformed id is a 400 before any
// store access.
func TestSessionIDParamInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	if _, ok := sessionIDParam(rec, req); ok {
		t.Fatal("sessionIDParam accepted a malformed id")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
