package devotion

// Verdict lines shown to the user, keyed by the same thresholds as the
// letter grade.
const (
	VerdictNailed = "Nailed it. Disciplined work."
	VerdictStrong = "Strong session. Mostly on script."
	VerdictMessy  = "Work done, a bit messy."
	VerdictReset  = "Off rhythm, small reset next time."

	HintRepeat = "Run the same plan again."
	HintReduce = "Drop one set next time."
)

// grade maps a composite score to its letter grade, verdict and follow-up
// hint. Only the top and bottom bands carry a hint.
func grade(score int) (letter, verdict, hint string) {
	switch {
	case score >= 90:
		return "A", VerdictNailed, HintRepeat
	case score >= 80:
		return "B", VerdictStrong, ""
	case score >= 70:
		return "C", VerdictMessy, ""
	default:
		return "D", VerdictReset, HintReduce
	}
}
