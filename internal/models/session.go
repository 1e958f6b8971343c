package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session. ACTIVE sessions accept
// set mutations; FINISHED sessions are frozen and carry a devotion score.
type SessionStatus string

const (
	StatusActive   SessionStatus = "ACTIVE"
	StatusFinished SessionStatus = "FINISHED"
)

// ParseSessionStatus validates a status string from the wire or the database.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch SessionStatus(s) {
	case StatusActive, StatusFinished:
		return SessionStatus(s), nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// SetType distinguishes warmup sets (excluded from scoring) from working sets.
type SetType string

const (
	SetWarmup SetType = "WARMUP"
	SetNormal SetType = "NORMAL"
)

// ParseSetType validates a set type string.
func ParseSetType(s string) (SetType, error) {
	switch SetType(s) {
	case SetWarmup, SetNormal:
		return SetType(s), nil
	}
	return "", fmt.Errorf("unknown set type %q", s)
}

// EffortLevel is the user's self-reported effort on a session seal.
type EffortLevel string

const (
	EffortEasy   EffortLevel = "EASY"
	EffortSteady EffortLevel = "STEADY"
	EffortHard   EffortLevel = "HARD"
	EffortAllIn  EffortLevel = "ALL_IN"
)

// ParseEffortLevel validates an effort level string.
func ParseEffortLevel(s string) (EffortLevel, error) {
	switch EffortLevel(s) {
	case EffortEasy, EffortSteady, EffortHard, EffortAllIn:
		return EffortLevel(s), nil
	}
	return "", fmt.Errorf("unknown effort level %q", s)
}

// Session is one workout attempt. Score, grade and pillars are set exactly
// when Status is FINISHED.
type Session struct {
	ID            uuid.UUID          `json:"id"`
	UserID        int                `json:"user_id"`
	WorkoutID     *uuid.UUID         `json:"workout_id,omitempty"`
	Status        SessionStatus      `json:"status"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	DevotionScore *int               `json:"devotion_score,omitempty"`
	DevotionGrade *string            `json:"devotion_grade,omitempty"`
	Pillars       map[string]float64 `json:"pillars,omitempty"`
	Exercises     []SessionExercise  `json:"exercises"`
	Seal          *SessionSeal       `json:"seal,omitempty"`
}

// SessionExercise is one planned-or-added exercise within a session.
// Alternative marks exercises the user swapped in that were not on the plan.
type SessionExercise struct {
	ID          uuid.UUID    `json:"id"`
	SessionID   uuid.UUID    `json:"session_id"`
	ExerciseID  uuid.UUID    `json:"exercise_id"`
	Order       int          `json:"order"`
	Notes       string       `json:"notes,omitempty"`
	Alternative bool         `json:"alternative"`
	Sets        []SessionSet `json:"sets"`
}

// SessionSet is one set within a session exercise. Order values are unique
// within their owning exercise.
type SessionSet struct {
	ID                uuid.UUID `json:"id"`
	SessionExerciseID uuid.UUID `json:"session_exercise_id"`
	Type              SetType   `json:"type"`
	TargetLoadKg      float64   `json:"target_load_kg"`
	ActualLoadKg      float64   `json:"actual_load_kg"`
	TargetReps        int       `json:"target_reps"`
	ActualReps        int       `json:"actual_reps"`
	Completed         bool      `json:"completed"`
	Order             int       `json:"order"`
	Notes             string    `json:"notes,omitempty"`
}

// SessionSeal is the user's post-session reflection. At most one per session,
// upsertable, and only valid once the session is FINISHED.
type SessionSeal struct {
	SessionID uuid.UUID   `json:"session_id"`
	Effort    EffortLevel `json:"effort"`
	VibeLine  string      `json:"vibe_line"`
	Note      string      `json:"note,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the session. Batch validation applies
// operations to a clone so a failed batch never touches the loaded state.
func (s *Session) Clone() *Session {
	out := *s
	if s.WorkoutID != nil {
		id := *s.WorkoutID
		out.WorkoutID = &id
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	if s.DevotionScore != nil {
		v := *s.DevotionScore
		out.DevotionScore = &v
	}
	if s.DevotionGrade != nil {
		g := *s.DevotionGrade
		out.DevotionGrade = &g
	}
	if s.Pillars != nil {
		out.Pillars = make(map[string]float64, len(s.Pillars))
		for k, v := range s.Pillars {
			out.Pillars[k] = v
		}
	}
	if s.Seal != nil {
		seal := *s.Seal
		out.Seal = &seal
	}
	out.Exercises = make([]SessionExercise, len(s.Exercises))
	for i, ex := range s.Exercises {
		out.Exercises[i] = ex
		out.Exercises[i].Sets = make([]SessionSet, len(ex.Sets))
		copy(out.Exercises[i].Sets, ex.Sets)
	}
	return &out
}

// Exercise returns the session exercise with the given id, or nil.
func (s *Session) Exercise(id uuid.UUID) *SessionExercise {
	for i := range s.Exercises {
		if s.Exercises[i].ID == id {
			return &s.Exercises[i]
		}
	}
	return nil
}

// Set returns the set with the given id and its owning exercise, or nil.
func (s *Session) Set(id uuid.UUID) (*SessionExercise, *SessionSet) {
	for i := range s.Exercises {
		for j := range s.Exercises[i].Sets {
			if s.Exercises[i].Sets[j].ID == id {
				return &s.Exercises[i], &s.Exercises[i].Sets[j]
			}
		}
	}
	return nil, nil
}
