// Package session implements the batch-mutation engine and the session
// lifecycle state machine. It owns the business rules; durable state lives
// behind the Store interface.
package session

import (
	"context"
	"time"

	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// Store is the transactional set store. Implementations must serialize
// concurrent WithSession calls for the same session (a later call observes
// the committed state of the earlier one) and commit all-or-nothing: when fn
// returns an error no write survives.
//
// WithSession resolves the session with ownership checked before invoking fn:
// it returns apperr.KindNotFound when the id is unknown, apperr.KindForbidden
// when the session belongs to another user, and apperr.KindStore when the
// transaction cannot begin or commit.
type Store interface {
	WithSession(ctx context.Context, sessionID uuid.UUID, userID int, fn func(Tx) error) error
}

// Tx is the per-session transaction handed to WithSession callbacks. Session
// returns the state loaded under lock; the mutation methods stage writes that
// commit together when the callback returns nil.
type Tx interface {
	Session() *models.Session
	InsertSet(set models.SessionSet) error
	UpdateSet(set models.SessionSet) error
	DeleteSet(id uuid.UUID) error
	Finish(at time.Time, score int, grade string, pillars map[string]float64) error
	UpsertSeal(seal models.SessionSeal) error
}

// PlanProvider loads the read-only plan snapshot a session was started from.
type PlanProvider interface {
	PlanSnapshot(ctx context.Context, planID uuid.UUID) (*models.PlanSnapshot, error)
}
