// Package continuity derives a short narrative about the gap between two
// consecutive finished sessions. Presentation only: nothing here persists or
// feeds scoring.
package continuity

import (
	"fmt"
	"time"

	"github.com/claude/ironvow/internal/models"
)

// Config holds the day-boundary cutoffs for the gap buckets. The exact
// boundaries are a product decision, so they load from configuration rather
// than being baked in.
type Config struct {
	// ShortGapDays is the upper bound (inclusive) of the "quick turnaround"
	// bucket. Default 2.
	ShortGapDays int `yaml:"short_gap_days"`
	// MediumGapDays is the upper bound (inclusive) of the "normal rest"
	// bucket. Default 6.
	MediumGapDays int `yaml:"medium_gap_days"`
	// MaxGapDays is the largest gap that still draws a connector between
	// two sessions. Default 14.
	MaxGapDays int `yaml:"max_gap_days"`
}

// DefaultConfig returns the four-bucket scheme: same day, 1–2 days,
// 3–6 days, 7+ days.
func DefaultConfig() Config {
	return Config{ShortGapDays: 2, MediumGapDays: 6, MaxGapDays: 14}
}

// Link is the analyzer's output for one session pair.
type Link struct {
	// ShowConnector is false when the sessions are unrelated (different
	// plans) or the gap exceeds the configured maximum.
	ShowConnector bool   `json:"show_connector"`
	GapDays       int    `json:"gap_days"`
	SamePlan      bool   `json:"same_plan"`
	Narrative     string `json:"narrative"`
}

// Analyzer produces rest/continuity narratives for session pairs.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer, filling zero cutoffs with the defaults.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.ShortGapDays == 0 {
		cfg.ShortGapDays = def.ShortGapDays
	}
	if cfg.MediumGapDays == 0 {
		cfg.MediumGapDays = def.MediumGapDays
	}
	if cfg.MaxGapDays == 0 {
		cfg.MaxGapDays = def.MaxGapDays
	}
	return &Analyzer{cfg: cfg}
}

// Analyze describes the gap between a prior finished session and the current
// one. Prior must end before current starts; callers pass them in
// chronological order.
func (a *Analyzer) Analyze(prior, current *models.Session) Link {
	link := Link{SamePlan: samePlan(prior, current)}
	if prior == nil || current == nil {
		return link
	}

	from := current.StartedAt
	anchor := prior.StartedAt
	if prior.FinishedAt != nil {
		anchor = *prior.FinishedAt
	}
	link.GapDays = calendarDays(anchor, from)

	switch {
	case !link.SamePlan:
		link.Narrative = fmt.Sprintf("Different plan after %s.", gapPhrase(link.GapDays))
	case link.GapDays > a.cfg.MaxGapDays:
		link.Narrative = fmt.Sprintf("Back after %d days away.", link.GapDays)
	case link.GapDays == 0:
		link.ShowConnector = true
		link.Narrative = "Same plan, same day. Back for more."
	case link.GapDays <= a.cfg.ShortGapDays:
		link.ShowConnector = true
		link.Narrative = fmt.Sprintf("Same plan, %s later. Quick turnaround.", gapPhrase(link.GapDays))
	case link.GapDays <= a.cfg.MediumGapDays:
		link.ShowConnector = true
		link.Narrative = fmt.Sprintf("Same plan after %s of rest.", gapPhrase(link.GapDays))
	default:
		link.ShowConnector = true
		link.Narrative = fmt.Sprintf("Same plan, first time in %d days.", link.GapDays)
	}
	return link
}

func samePlan(prior, current *models.Session) bool {
	if prior == nil || current == nil {
		return false
	}
	if prior.WorkoutID == nil || current.WorkoutID == nil {
		return false
	}
	return *prior.WorkoutID == *current.WorkoutID
}

// calendarDays counts day boundaries crossed between two instants, so an
// evening session followed by a morning one counts as one day apart.
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func gapPhrase(days int) string {
	switch days {
	case 0:
		return "a few hours"
	case 1:
		return "a day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}
