package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/models"
	"github.com/claude/ironvow/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Compile-time check: *DB is the engine's set store.
var _ session.Store = (*DB)(nil)

// WithSession runs fn inside one serializable unit of work for a single
// session. The session row is locked with SELECT ... FOR UPDATE, so
// concurrent calls for the same session queue up and each sees the previous
// commit, while different sessions proceed in parallel. Any error from fn
// rolls the whole transaction back.
func (db *DB) WithSession(ctx context.Context, sessionID uuid.UUID, userID int, fn func(session.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "beginning transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	sess, err := loadSession(ctx, tx, sessionID, userID, true)
	if err != nil {
		return err
	}
	if err := loadChildren(ctx, tx, sess); err != nil {
		return err
	}

	if err := fn(&sessionTx{ctx: ctx, tx: tx, sess: sess}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err, "committing session transaction")
	}
	return nil
}

// sessionTx executes engine mutations against the locked session. Writes go
// straight to the transaction; the deferred unique constraint on set order
// makes intra-batch order swaps legal until commit.
type sessionTx struct {
	ctx  context.Context
	tx   pgx.Tx
	sess *models.Session
}

func (t *sessionTx) Session() *models.Session {
	return t.sess
}

func (t *sessionTx) InsertSet(set models.SessionSet) error {
	return insertSet(t.ctx, t.tx, set)
}

func (t *sessionTx) UpdateSet(set models.SessionSet) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE session_sets
		 SET set_type = $2, target_load_kg = $3, actual_load_kg = $4,
		     target_reps = $5, actual_reps = $6, completed = $7, set_order = $8, notes = $9
		 WHERE id = $1`,
		set.ID, set.Type, set.TargetLoadKg, set.ActualLoadKg,
		set.TargetReps, set.ActualReps, set.Completed, set.Order, set.Notes)
	if err != nil {
		return mapPgError(err, "updating session set")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindStore, "set %s vanished mid-transaction", set.ID)
	}
	return nil
}

func (t *sessionTx) DeleteSet(id uuid.UUID) error {
	if _, err := t.tx.Exec(t.ctx, `DELETE FROM session_sets WHERE id = $1`, id); err != nil {
		return mapPgError(err, "deleting session set")
	}
	return nil
}

func (t *sessionTx) Finish(at time.Time, score int, grade string, pillars map[string]float64) error {
	encoded, err := json.Marshal(pillars)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "encoding pillars")
	}
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE sessions
		 SET status = $2, finished_at = $3, devotion_score = $4, devotion_grade = $5, devotion_pillars = $6
		 WHERE id = $1 AND status = $7`,
		t.sess.ID, models.StatusFinished, at, score, grade, encoded, models.StatusActive)
	if err != nil {
		return mapPgError(err, "finishing session")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindInvalidState, "session %s is already finished", t.sess.ID)
	}
	return nil
}

func (t *sessionTx) UpsertSeal(seal models.SessionSeal) error {
	if _, err := t.tx.Exec(t.ctx,
		`INSERT INTO session_seals (session_id, effort, vibe_line, note, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE
		 SET effort = EXCLUDED.effort, vibe_line = EXCLUDED.vibe_line,
		     note = EXCLUDED.note, updated_at = EXCLUDED.updated_at`,
		seal.SessionID, seal.Effort, seal.VibeLine, seal.Note, seal.UpdatedAt); err != nil {
		return mapPgError(err, "upserting session seal")
	}
	return nil
}
