package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/claude/ironvow/internal/devotion"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// LegacySession is one workout session from a legacy training-log export,
// either read from a SQLite file or posted to the ingest endpoint.
type LegacySession struct {
	Name        string           `json:"name"`
	Date        time.Time        `json:"date"`
	DurationMin int              `json:"duration_min"`
	Exercises   []LegacyExercise `json:"exercises"`
}

// LegacyExercise is one exercise within a legacy session. TargetReps is the
// per-set rep goal the legacy app stored at exercise level.
type LegacyExercise struct {
	Number     int         `json:"number"`
	Name       string      `json:"name"`
	Equipment  string      `json:"equipment"`
	TargetReps int         `json:"target_reps"`
	Sets       []LegacySet `json:"sets"`
}

// LegacySet is one logged set. WeightKg is what was actually lifted; the
// legacy app logged only what happened, so every set counts as completed.
type LegacySet struct {
	Number   int     `json:"number"`
	WeightKg float64 `json:"weight_kg"`
	Reps     int     `json:"reps"`
	IsWarmup bool    `json:"is_warmup"`
}

// legacyNamespace seeds the deterministic ids for imported rows, making
// re-imports idempotent.
var legacyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ironvow/legacy"))

func legacyID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(legacyNamespace, []byte(strings.Join(parts, "/")))
}

func isBodyweight(equipment string) bool {
	return strings.EqualFold(equipment, "bodyweight") || strings.EqualFold(equipment, "none")
}

// convert turns a legacy session into a finished, scored session. The legacy
// export carries its own targets, so the scoring baseline is reconstructed
// from them rather than from a stored plan.
func convert(ls LegacySession, userID int) *models.Session {
	sessionID := legacyID(fmt.Sprint(userID), ls.Date.UTC().Format(time.RFC3339), ls.Name)

	sess := &models.Session{
		ID:        sessionID,
		UserID:    userID,
		Status:    models.StatusFinished,
		StartedAt: ls.Date.UTC(),
	}
	finishedAt := ls.Date.UTC().Add(time.Duration(ls.DurationMin) * time.Minute)
	sess.FinishedAt = &finishedAt

	plan := &models.PlanSnapshot{Name: ls.Name}

	for _, le := range ls.Exercises {
		exerciseID := legacyID("exercise", le.Name)
		ex := models.SessionExercise{
			ID:         legacyID(sessionID.String(), fmt.Sprint(le.Number)),
			SessionID:  sessionID,
			ExerciseID: exerciseID,
			Order:      le.Number,
		}
		pe := models.PlanExercise{
			ExerciseID: exerciseID,
			Order:      le.Number,
			Bodyweight: isBodyweight(le.Equipment),
		}

		for _, set := range le.Sets {
			setType := models.SetNormal
			if set.IsWarmup {
				setType = models.SetWarmup
			}
			targetLoad := set.WeightKg
			if pe.Bodyweight {
				targetLoad = 0
			}
			ex.Sets = append(ex.Sets, models.SessionSet{
				ID:                legacyID(ex.ID.String(), fmt.Sprint(set.Number), string(setType)),
				SessionExerciseID: ex.ID,
				Type:              setType,
				TargetLoadKg:      targetLoad,
				ActualLoadKg:      set.WeightKg,
				TargetReps:        le.TargetReps,
				ActualReps:        set.Reps,
				Completed:         true,
				Order:             set.Number,
			})
			pe.Sets = append(pe.Sets, models.PlanSet{
				Type:         setType,
				TargetLoadKg: targetLoad,
				TargetReps:   le.TargetReps,
				Order:        set.Number,
			})
		}

		sess.Exercises = append(sess.Exercises, ex)
		plan.Exercises = append(plan.Exercises, pe)
	}

	result := devotion.Score(sess, plan)
	sess.DevotionScore = &result.Score
	grade := result.Grade
	sess.DevotionGrade = &grade
	sess.Pillars = result.Pillars()
	return sess
}
