// Package decision holds the threshold vocabulary shared by every scorer:
// score clamping, risk levels, flagging and recommendations.
package decision

import (
	"math"

	"github.com/opensource-finance/quantra/internal/domain"
)

const (
	// HighThreshold is the score at which a result is high risk and flagged.
	HighThreshold = 70.0

	// MediumThreshold is the score at which a result becomes medium risk.
	MediumThreshold = 30.0

	// ReviewThreshold is the score at which a transaction is sent for review.
	ReviewThreshold = 50.0
)

// Recommendation strings.
const (
	RecBlock   = "Block transaction"
	RecNotify  = "Notify user"
	RecVerify  = "Require additional verification"
	RecReview  = "Flag for review"
	RecMonitor = "Monitor user activity"
	RecAllow   = "Allow transaction"
)

// Clamp bounds a score to [0,100]. NaN maps to 0.
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Min(100, math.Max(0, score))
}

// LevelFor maps a score to its risk level.
func LevelFor(score float64) domain.Level {
	score = Clamp(score)
	switch {
	case score >= HighThreshold:
		return domain.LevelHigh
	case score >= MediumThreshold:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

// Flagged reports whether a score is high enough to flag.
func Flagged(score float64) bool {
	return Clamp(score) >= HighThreshold
}

// Probability converts a score to a probability in [0,1].
func Probability(score float64) float64 {
	return Clamp(score) / 100
}

// FraudRecommendations returns the actions for a fraud score. The review band
// starts at 50, above the medium level boundary.
func FraudRecommendations(score float64) []string {
	score = Clamp(score)
	switch {
	case score >= HighThreshold:
		return []string{RecBlock, RecNotify, RecVerify}
	case score >= ReviewThreshold:
		return []string{RecReview, RecMonitor}
	default:
		return []string{RecAllow}
	}
}

// Fraud builds the full fraud result for a score.
func Fraud(score float64, source domain.ScoreSource) domain.ScoreResult {
	score = Clamp(score)
	return domain.ScoreResult{
		Score:           score,
		Flagged:         Flagged(score),
		Level:           LevelFor(score),
		Recommendations: FraudRecommendations(score),
		Source:          source,
	}
}
