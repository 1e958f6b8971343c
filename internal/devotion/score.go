// Package devotion computes the Devotion Score: a composite 0–100 measure of
// how faithfully a finished session executed its originating plan.
//
// Score is a pure function of its two snapshots. It never fails and never
// mutates its inputs; missing data degrades to zero pillars or an omitted LF,
// not an error.
package devotion

import (
	"math"

	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
)

// Pillar keys as persisted on the session record.
const (
	PillarEC = "EC" // exercise coverage
	PillarSC = "SC" // set completion
	PillarRF = "RF" // rep fidelity
	PillarLF = "LF" // load fidelity, omitted for all-bodyweight plans
)

// Result is the full scoring output for one session.
type Result struct {
	EC      float64  `json:"ec"`
	SC      float64  `json:"sc"`
	RF      float64  `json:"rf"`
	LF      *float64 `json:"lf,omitempty"`
	Score   int      `json:"score"`
	Grade   string   `json:"grade"`
	Verdict string   `json:"verdict"`
	Hint    string   `json:"hint,omitempty"`
}

// Pillars returns the persisted breakdown. LF is absent, not zero, when the
// plan had no loaded target sets.
func (r Result) Pillars() map[string]float64 {
	p := map[string]float64{
		PillarEC: r.EC,
		PillarSC: r.SC,
		PillarRF: r.RF,
	}
	if r.LF != nil {
		p[PillarLF] = *r.LF
	}
	return p
}

// matchedPair is one completed working set aligned 1:1 by order with its
// planned counterpart.
type matchedPair struct {
	plan   models.PlanSet
	actual models.SessionSet
}

// Score computes the four pillars and the composite for a session against its
// plan. A nil or empty plan yields EC 0 and the lowest meaningful score.
func Score(sess *models.Session, plan *models.PlanSnapshot) Result {
	var r Result

	var planExercises []models.PlanExercise
	if plan != nil {
		planExercises = plan.Exercises
	}

	// Index session exercises by catalog exercise id. An exercise logged
	// twice pairs with the plan in session order; ad-hoc exercises never
	// match and stay out of EC/RF/LF.
	sessByExercise := make(map[uuid.UUID][]*models.SessionExercise)
	if sess != nil {
		for i := range sess.Exercises {
			ex := &sess.Exercises[i]
			sessByExercise[ex.ExerciseID] = append(sessByExercise[ex.ExerciseID], ex)
		}
	}

	var (
		covered     int
		plannedSets int
		pairs       []matchedPair
	)
	for _, pe := range planExercises {
		planSets := pe.NormalSets()

		matches := sessByExercise[pe.ExerciseID]
		if len(matches) == 0 {
			continue
		}
		// Only matched plan exercises count toward the SC denominator;
		// a skipped exercise is charged to EC instead.
		plannedSets += len(planSets)
		// Pair against the first session occurrence of the exercise.
		actualSets := completedNormalSets(matches[0])
		if exerciseCovered(matches) {
			covered++
		}
		for _, as := range actualSets {
			if as.pairIndex < len(planSets) {
				pairs = append(pairs, matchedPair{plan: planSets[as.pairIndex], actual: as.set})
			}
		}
	}

	if len(planExercises) > 0 {
		r.EC = float64(covered) / float64(len(planExercises))
	}

	if plannedSets > 0 {
		r.SC = math.Min(float64(completedWorkingSets(sess))/float64(plannedSets), 1)
	}

	if len(pairs) > 0 {
		var repSum float64
		for _, p := range pairs {
			repSum += ratio(float64(p.actual.ActualReps), float64(p.plan.TargetReps))
		}
		r.RF = repSum / float64(len(pairs))
	}

	if loadDefined(pairs) {
		var loadSum float64
		for _, p := range pairs {
			loadSum += ratio(p.actual.ActualLoadKg, p.plan.TargetLoadKg)
		}
		lf := loadSum / float64(len(pairs))
		r.LF = &lf
	}

	sum := r.EC + r.SC + r.RF
	n := 3.0
	if r.LF != nil {
		sum += *r.LF
		n = 4
	}
	r.Score = clamp(int(math.Round(100 * sum / n)))
	r.Grade, r.Verdict, r.Hint = grade(r.Score)
	return r
}

// indexedSet is a completed working set with its position among the
// exercise's working sets, used for 1:1 order matching against the plan.
type indexedSet struct {
	pairIndex int
	set       models.SessionSet
}

// completedNormalSets returns the exercise's completed working sets along
// with their index in set-order among working sets.
func completedNormalSets(ex *models.SessionExercise) []indexedSet {
	sets := make([]models.SessionSet, 0, len(ex.Sets))
	for _, s := range ex.Sets {
		if s.Type == models.SetNormal {
			sets = append(sets, s)
		}
	}
	sortSetsByOrder(sets)

	out := make([]indexedSet, 0, len(sets))
	for i, s := range sets {
		if s.Completed {
			out = append(out, indexedSet{pairIndex: i, set: s})
		}
	}
	return out
}

func exerciseCovered(matches []*models.SessionExercise) bool {
	for _, ex := range matches {
		for _, s := range ex.Sets {
			if s.Type == models.SetNormal && s.Completed {
				return true
			}
		}
	}
	return false
}

func completedWorkingSets(sess *models.Session) int {
	if sess == nil {
		return 0
	}
	var n int
	for _, ex := range sess.Exercises {
		for _, s := range ex.Sets {
			if s.Type == models.SetNormal && s.Completed {
				n++
			}
		}
	}
	return n
}

// loadDefined reports whether the LF pillar applies: false when there are no
// matched sets or every matched target load is zero (pure bodyweight work).
func loadDefined(pairs []matchedPair) bool {
	for _, p := range pairs {
		if p.plan.TargetLoadKg > 0 {
			return true
		}
	}
	return false
}

// ratio is min(actual/target, 1), with a full ratio when there is no target
// to miss.
func ratio(actual, target float64) float64 {
	if target <= 0 {
		return 1
	}
	return math.Min(actual/target, 1)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func sortSetsByOrder(sets []models.SessionSet) {
	// Insertion sort: set counts per exercise are tiny.
	for i := 1; i < len(sets); i++ {
		for j := i; j > 0 && sets[j-1].Order > sets[j].Order; j-- {
			sets[j-1], sets[j] = sets[j], sets[j-1]
		}
	}
}
