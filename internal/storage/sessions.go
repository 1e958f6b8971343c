package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, workout_id, status, started_at, finished_at,
	devotion_score, devotion_grade, devotion_pillars`

// StartSession creates an ACTIVE session for the user. When planID is set the
// plan's exercises and target sets are copied into the session; a nil planID
// starts an ad-hoc session with no exercises yet.
func (db *DB) StartSession(ctx context.Context, userID int, planID *uuid.UUID, startedAt time.Time) (*models.Session, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "beginning transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	sess := &models.Session{
		ID:        uuid.New(),
		UserID:    userID,
		WorkoutID: planID,
		Status:    models.StatusActive,
		StartedAt: startedAt.UTC(),
	}

	var plan *models.PlanSnapshot
	if planID != nil {
		plan, err = planSnapshot(ctx, tx, *planID, userID)
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, user_id, workout_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.WorkoutID, sess.Status, sess.StartedAt); err != nil {
		return nil, mapPgError(err, "inserting session")
	}

	if plan != nil {
		for _, pe := range plan.Exercises {
			ex := models.SessionExercise{
				ID:         uuid.New(),
				SessionID:  sess.ID,
				ExerciseID: pe.ExerciseID,
				Order:      pe.Order,
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO session_exercises (id, session_id, exercise_id, exercise_order, notes, alternative)
				 VALUES ($1, $2, $3, $4, '', false)`,
				ex.ID, ex.SessionID, ex.ExerciseID, ex.Order); err != nil {
				return nil, mapPgError(err, "inserting session exercise")
			}
			for _, ps := range pe.Sets {
				set := models.SessionSet{
					ID:                uuid.New(),
					SessionExerciseID: ex.ID,
					Type:              ps.Type,
					TargetLoadKg:      ps.TargetLoadKg,
					ActualLoadKg:      ps.TargetLoadKg,
					TargetReps:        ps.TargetReps,
					ActualReps:        ps.TargetReps,
					Order:             ps.Order,
				}
				if err := insertSet(ctx, tx, set); err != nil {
					return nil, err
				}
				ex.Sets = append(ex.Sets, set)
			}
			sess.Exercises = append(sess.Exercises, ex)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err, "committing session start")
	}
	return sess, nil
}

// GetSession loads a session with all children for reading. Not-found and
// wrong-owner are reported as distinct failures.
func (db *DB) GetSession(ctx context.Context, sessionID uuid.UUID, userID int) (*models.Session, error) {
	sess, err := loadSession(ctx, db.Pool, sessionID, userID, false)
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, db.Pool, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns session summaries (no children) for a user in a time
// range, newest first.
func (db *DB) ListSessions(ctx context.Context, userID int, start, end time.Time) ([]models.Session, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at DESC`,
		userID, start, end)
	if err != nil {
		return nil, mapPgError(err, "querying sessions")
	}
	defer rows.Close()

	var result []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "reading sessions")
	}
	return result, nil
}

// PreviousFinished returns the most recent finished session that started
// before the given instant, excluding one session id, or nil when there is
// none. Children are loaded so the result can feed scoring or continuity.
func (db *DB) PreviousFinished(ctx context.Context, userID int, before time.Time, exclude uuid.UUID) (*models.Session, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND status = $2 AND started_at < $3 AND id <> $4
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID, models.StatusFinished, before, exclude)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapPgError(err, "querying previous session")
	}
	return sess, nil
}

// DeleteSession removes a session; exercises, sets and the seal cascade with
// it.
func (db *DB) DeleteSession(ctx context.Context, sessionID uuid.UUID, userID int) error {
	// Resolve first so not-found and wrong-owner stay distinguishable.
	if _, err := loadSession(ctx, db.Pool, sessionID, userID, false); err != nil {
		return err
	}
	if _, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return mapPgError(err, "deleting session")
	}
	return nil
}

// InsertFinishedSession inserts a fully-formed FINISHED session with its
// children in one transaction. Used by the legacy importer; the session must
// already carry its score, grade and pillars.
func (db *DB) InsertFinishedSession(ctx context.Context, sess *models.Session) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "beginning transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	pillars, err := json.Marshal(sess.Pillars)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "encoding pillars")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, user_id, workout_id, status, started_at, finished_at,
		 devotion_score, devotion_grade, devotion_pillars)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.UserID, sess.WorkoutID, sess.Status, sess.StartedAt, sess.FinishedAt,
		sess.DevotionScore, sess.DevotionGrade, pillars); err != nil {
		return mapPgError(err, "inserting session")
	}

	for _, ex := range sess.Exercises {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_exercises (id, session_id, exercise_id, exercise_order, notes, alternative)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			ex.ID, ex.SessionID, ex.ExerciseID, ex.Order, ex.Notes, ex.Alternative); err != nil {
			return mapPgError(err, "inserting session exercise")
		}
		for _, set := range ex.Sets {
			if err := insertSet(ctx, tx, set); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err, "committing imported session")
	}
	return nil
}

// loadSession fetches and scans one session row, optionally taking a row
// lock. Returns KindNotFound for unknown ids and KindForbidden when the
// session belongs to another user.
func loadSession(ctx context.Context, q querier, sessionID uuid.UUID, userID int, forUpdate bool) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	sess, err := scanSession(q.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "session %s not found", sessionID)
		}
		return nil, mapPgError(err, "querying session")
	}
	if sess.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "session %s does not belong to user %d", sessionID, userID)
	}
	return sess, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		sess    models.Session
		pillars []byte
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.WorkoutID, &sess.Status, &sess.StartedAt,
		&sess.FinishedAt, &sess.DevotionScore, &sess.DevotionGrade, &pillars); err != nil {
		return nil, err
	}
	if len(pillars) > 0 {
		if err := json.Unmarshal(pillars, &sess.Pillars); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "decoding pillars")
		}
	}
	return &sess, nil
}

// loadChildren populates exercises, sets and the seal, ordered the way the
// client renders them.
func loadChildren(ctx context.Context, q querier, sess *models.Session) error {
	exRows, err := q.Query(ctx,
		`SELECT id, session_id, exercise_id, exercise_order, notes, alternative
		 FROM session_exercises
		 WHERE session_id = $1
		 ORDER BY exercise_order ASC`,
		sess.ID)
	if err != nil {
		return mapPgError(err, "querying session exercises")
	}
	defer exRows.Close()

	byID := make(map[uuid.UUID]int)
	for exRows.Next() {
		var ex models.SessionExercise
		if err := exRows.Scan(&ex.ID, &ex.SessionID, &ex.ExerciseID, &ex.Order, &ex.Notes, &ex.Alternative); err != nil {
			return mapPgError(err, "scanning session exercise")
		}
		byID[ex.ID] = len(sess.Exercises)
		sess.Exercises = append(sess.Exercises, ex)
	}
	if err := exRows.Err(); err != nil {
		return mapPgError(err, "reading session exercises")
	}
	exRows.Close()

	setRows, err := q.Query(ctx,
		`SELECT s.id, s.session_exercise_id, s.set_type, s.target_load_kg, s.actual_load_kg,
		        s.target_reps, s.actual_reps, s.completed, s.set_order, s.notes
		 FROM session_sets s
		 JOIN session_exercises e ON e.id = s.session_exercise_id
		 WHERE e.session_id = $1
		 ORDER BY e.exercise_order ASC, s.set_order ASC`,
		sess.ID)
	if err != nil {
		return mapPgError(err, "querying session sets")
	}
	defer setRows.Close()

	for setRows.Next() {
		var set models.SessionSet
		if err := setRows.Scan(&set.ID, &set.SessionExerciseID, &set.Type, &set.TargetLoadKg, &set.ActualLoadKg,
			&set.TargetReps, &set.ActualReps, &set.Completed, &set.Order, &set.Notes); err != nil {
			return mapPgError(err, "scanning session set")
		}
		if idx, ok := byID[set.SessionExerciseID]; ok {
			sess.Exercises[idx].Sets = append(sess.Exercises[idx].Sets, set)
		}
	}
	if err := setRows.Err(); err != nil {
		return mapPgError(err, "reading session sets")
	}

	var seal models.SessionSeal
	err = q.QueryRow(ctx,
		`SELECT session_id, effort, vibe_line, note, updated_at
		 FROM session_seals WHERE session_id = $1`,
		sess.ID).Scan(&seal.SessionID, &seal.Effort, &seal.VibeLine, &seal.Note, &seal.UpdatedAt)
	switch {
	case err == nil:
		sess.Seal = &seal
	case errors.Is(err, pgx.ErrNoRows):
		// no seal yet
	default:
		return mapPgError(err, "querying session seal")
	}
	return nil
}

func insertSet(ctx context.Context, q querier, set models.SessionSet) error {
	if _, err := q.Exec(ctx,
		`INSERT INTO session_sets (id, session_exercise_id, set_type, target_load_kg, actual_load_kg,
		 target_reps, actual_reps, completed, set_order, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		set.ID, set.SessionExerciseID, set.Type, set.TargetLoadKg, set.ActualLoadKg,
		set.TargetReps, set.ActualReps, set.Completed, set.Order, set.Notes); err != nil {
		return mapPgError(err, "inserting session set")
	}
	return nil
}
