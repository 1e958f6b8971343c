package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/devotion"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// maxVibeLineLen bounds the seal's one-liner; longer reflections go in the
// note field.
const maxVibeLineLen = 140

// Controller enforces the session state machine: ACTIVE → FINISHED, with the
// devotion score persisted in the same transaction as the status flip.
type Controller struct {
	store Store
	plans PlanProvider
	log   *slog.Logger
	now   func() time.Time
}

// NewController creates a lifecycle controller.
func NewController(store Store, plans PlanProvider, log *slog.Logger) *Controller {
	return &Controller{store: store, plans: plans, log: log, now: time.Now}
}

// Finish freezes an ACTIVE session, scores it against its originating plan
// and persists status, finish time, score, grade and pillars atomically.
// Finishing an already-finished session fails with InvalidState; the stored
// score is never recomputed.
func (c *Controller) Finish(ctx context.Context, sessionID uuid.UUID, userID int) (*models.Session, error) {
	var out *models.Session
	err := c.store.WithSession(ctx, sessionID, userID, func(tx Tx) error {
		sess := tx.Session()
		if sess.Status != models.StatusActive {
			return apperr.New(apperr.KindInvalidState, "session %s is already %s", sess.ID, sess.Status)
		}

		// Sessions started ad hoc have no plan; scoring degrades to the
		// lowest meaningful score instead of failing.
		var plan *models.PlanSnapshot
		if sess.WorkoutID != nil {
			var err error
			plan, err = c.plans.PlanSnapshot(ctx, *sess.WorkoutID)
			if err != nil {
				return err
			}
		}

		finishedAt := c.now().UTC()
		result := devotion.Score(sess, plan)
		if err := tx.Finish(finishedAt, result.Score, result.Grade, result.Pillars()); err != nil {
			return err
		}

		out = sess.Clone()
		out.Status = models.StatusFinished
		out.FinishedAt = &finishedAt
		out.DevotionScore = &result.Score
		grade := result.Grade
		out.DevotionGrade = &grade
		out.Pillars = result.Pillars()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortSession(out)
	c.log.Info("session finished",
		"session", sessionID,
		"score", *out.DevotionScore,
		"grade", *out.DevotionGrade,
	)
	return out, nil
}

// Seal upserts the user's post-session reflection. Only finished sessions can
// be sealed; re-sealing overwrites the previous seal.
func (c *Controller) Seal(ctx context.Context, sessionID uuid.UUID, userID int, effort models.EffortLevel, vibeLine, note string) (*models.SessionSeal, error) {
	if _, err := models.ParseEffortLevel(string(effort)); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "bad effort level")
	}
	if vibeLine == "" {
		return nil, apperr.New(apperr.KindValidation, "vibe line is required")
	}
	if len(vibeLine) > maxVibeLineLen {
		return nil, apperr.New(apperr.KindValidation, "vibe line exceeds %d characters", maxVibeLineLen)
	}

	var out *models.SessionSeal
	err := c.store.WithSession(ctx, sessionID, userID, func(tx Tx) error {
		sess := tx.Session()
		if sess.Status != models.StatusFinished {
			return apperr.New(apperr.KindInvalidState, "session %s is %s, sealing requires FINISHED", sess.ID, sess.Status)
		}
		seal := models.SessionSeal{
			SessionID: sess.ID,
			Effort:    effort,
			VibeLine:  vibeLine,
			Note:      note,
			UpdatedAt: c.now().UTC(),
		}
		if err := tx.UpsertSeal(seal); err != nil {
			return err
		}
		out = &seal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
