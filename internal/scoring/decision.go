package scoring

// Decision is the routing outcome for a score.
type Decision int

const (
	Reject Decision = iota
	Review
	Verify
)

func (d Decision) String() string {
	switch d {
	case Verify:
		return "verify"
	case Review:
		return "review"
	default:
		return "reject"
	}
}

// Thresholds are inclusive lower bounds: score >= Verify verifies, score >= Review holds for review.
type Thresholds struct {
	Verify int
	Review int
}

// DefaultThresholds are 90 / 50.
var DefaultThresholds = Thresholds{Verify: 90, Review: 50}

// Decide maps a score onto a decision.
func (t Thresholds) Decide(score int) Decision {
	switch {
	case score >= t.Verify:
		return Verify
	case score >= t.Review:
		return Review
	default:
		return Reject
	}
}
