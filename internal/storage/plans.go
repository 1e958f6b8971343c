package storage

import (
	"context"
	"errors"

	"github.com/claude/ironvow/internal/apperr"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PlanSnapshot loads a workout plan's ordered exercises and target sets.
// Read-only: plan CRUD belongs to the template service, this engine only
// needs the comparison baseline.
func (db *DB) PlanSnapshot(ctx context.Context, planID uuid.UUID) (*models.PlanSnapshot, error) {
	return planSnapshot(ctx, db.Pool, planID, 0)
}

// planSnapshot loads a plan, optionally enforcing ownership (userID > 0).
func planSnapshot(ctx context.Context, q querier, planID uuid.UUID, userID int) (*models.PlanSnapshot, error) {
	var (
		plan    models.PlanSnapshot
		ownerID int
	)
	err := q.QueryRow(ctx,
		`SELECT id, user_id, name FROM workout_plans WHERE id = $1`,
		planID).Scan(&plan.ID, &ownerID, &plan.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "workout plan %s not found", planID)
		}
		return nil, mapPgError(err, "querying workout plan")
	}
	if userID > 0 && ownerID != userID {
		return nil, apperr.New(apperr.KindForbidden, "workout plan %s does not belong to user %d", planID, userID)
	}

	exRows, err := q.Query(ctx,
		`SELECT id, exercise_id, exercise_order, bodyweight
		 FROM plan_exercises
		 WHERE plan_id = $1
		 ORDER BY exercise_order ASC`,
		planID)
	if err != nil {
		return nil, mapPgError(err, "querying plan exercises")
	}
	defer exRows.Close()

	byID := make(map[uuid.UUID]int)
	for exRows.Next() {
		var (
			id uuid.UUID
			pe models.PlanExercise
		)
		if err := exRows.Scan(&id, &pe.ExerciseID, &pe.Order, &pe.Bodyweight); err != nil {
			return nil, mapPgError(err, "scanning plan exercise")
		}
		byID[id] = len(plan.Exercises)
		plan.Exercises = append(plan.Exercises, pe)
	}
	if err := exRows.Err(); err != nil {
		return nil, mapPgError(err, "reading plan exercises")
	}
	exRows.Close()

	setRows, err := q.Query(ctx,
		`SELECT s.plan_exercise_id, s.set_type, s.target_load_kg, s.target_reps, s.set_order
		 FROM plan_sets s
		 JOIN plan_exercises e ON e.id = s.plan_exercise_id
		 WHERE e.plan_id = $1
		 ORDER BY e.exercise_order ASC, s.set_order ASC`,
		planID)
	if err != nil {
		return nil, mapPgError(err, "querying plan sets")
	}
	defer setRows.Close()

	for setRows.Next() {
		var (
			exID uuid.UUID
			ps   models.PlanSet
		)
		if err := setRows.Scan(&exID, &ps.Type, &ps.TargetLoadKg, &ps.TargetReps, &ps.Order); err != nil {
			return nil, mapPgError(err, "scanning plan set")
		}
		if idx, ok := byID[exID]; ok {
			plan.Exercises[idx].Sets = append(plan.Exercises[idx].Sets, ps)
		}
	}
	if err := setRows.Err(); err != nil {
		return nil, mapPgError(err, "reading plan sets")
	}
	return &plan, nil
}
