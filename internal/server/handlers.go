package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/devotion"
	"github.com/claude/ironvow/internal/importer"
	"github.com/claude/ironvow/internal/models"
	"github.com/claude/ironvow/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkoutID *uuid.UUID `json:"workout_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	info := userInfoFromContext(r.Context())
	sess, err := s.db.StartSession(r.Context(), info.UserID, req.WorkoutID, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleApplyBatch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Operations json.RawMessage `json:"operations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	ops, err := session.ParseOps(req.Operations)
	if err != nil {
		s.writeError(w, err)
		return
	}

	info := userInfoFromContext(r.Context())
	sess, err := s.processor.ApplyBatch(r.Context(), sessionID, info.UserID, ops)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	info := userInfoFromContext(r.Context())
	sess, err := s.lifecycle.Finish(r.Context(), sessionID, info.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSealSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Effort   string `json:"effort"`
		VibeLine string `json:"vibe_line"`
		Note     string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	info := userInfoFromContext(r.Context())
	seal, err := s.lifecycle.Seal(r.Context(), sessionID, info.UserID, models.EffortLevel(req.Effort), req.VibeLine, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seal)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	info := userInfoFromContext(r.Context())
	sess, err := s.db.GetSession(r.Context(), sessionID, info.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	info := userInfoFromContext(r.Context())
	sessions, err := s.db.ListSessions(r.Context(), info.UserID, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	info := userInfoFromContext(r.Context())
	if err := s.db.DeleteSession(r.Context(), sessionID, info.UserID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContinuity(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	info := userInfoFromContext(r.Context())
	current, err := s.db.GetSession(r.Context(), sessionID, info.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	prior, err := s.db.PreviousFinished(r.Context(), info.UserID, current.StartedAt, current.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.analyzer.Analyze(prior, current))
}

func (s *Server) handleDevotionPreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Session *models.Session      `json:"session"`
		Plan    *models.PlanSnapshot `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Session == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session is required"})
		return
	}

	writeJSON(w, http.StatusOK, devotion.Score(req.Session, req.Plan))
}

func (s *Server) handleLegacyIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sessions []importer.LegacySession `json:"sessions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	info := userInfoFromContext(r.Context())
	imp := importer.New(s.db, s.log, false)
	stats, err := imp.InsertSessions(r.Context(), info.UserID, req.Sessions)
	if err != nil {
		s.log.Error("legacy ingest error", "error", err)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r.Context()))
}

// writeError maps engine errors onto HTTP statuses; anything outside the
// taxonomy is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		writeJSON(w, e.HTTPStatus(), map[string]string{
			"error": e.Message,
			"kind":  string(e.Kind),
		})
		return
	}
	s.log.Error("unhandled error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 30 days
		end = time.Now()
		start = end.AddDate(0, 0, -30)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
