package models

import "github.com/google/uuid"

// PlanSnapshot is the read-only view of a workout plan used as the scoring
// baseline. The engine never mutates it; plan CRUD lives outside this service.
type PlanSnapshot struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Exercises []PlanExercise `json:"exercises"`
}

// PlanExercise is one planned exercise with its ordered target sets.
// Bodyweight marks exercises whose equipment is a bodyweight variant; a plan
// where every target set carries zero load scores without the LF pillar.
type PlanExercise struct {
	ExerciseID uuid.UUID `json:"exercise_id"`
	Order      int       `json:"order"`
	Bodyweight bool      `json:"bodyweight"`
	Sets       []PlanSet `json:"sets"`
}

// PlanSet is one target set within a planned exercise.
type PlanSet struct {
	Type         SetType `json:"type"`
	TargetLoadKg float64 `json:"target_load_kg"`
	TargetReps   int     `json:"target_reps"`
	Order        int     `json:"order"`
}

// NormalSets returns the planned working sets in order, skipping warmups.
func (pe PlanExercise) NormalSets() []PlanSet {
	out := make([]PlanSet, 0, len(pe.Sets))
	for _, ps := range pe.Sets {
		if ps.Type == SetNormal {
			out = append(out, ps)
		}
	}
	return out
}
