package scoring

import "math"

// AnomalyBoost multiplies the base score of wallets flagged as anomalous.
const AnomalyBoost = 1.5

// Band buckets a final score for display and alerting.
type Band string

const (
	BandLow      Band = "low"
	BandMedium   Band = "medium"
	BandHigh     Band = "high"
	BandCritical Band = "critical"
)

// Band thresholds on the final score.
const (
	MediumThreshold   = 250.0
	HighThreshold     = 500.0
	CriticalThreshold = 750.0
)

// BandFor returns the band of a final score.
func BandFor(score float64) Band {
	switch {
	case score >= CriticalThreshold:
		return BandCritical
	case score >= HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// FinalScore blends one wallet's signals. The product is clamped to
// [0, 1000] once and rounded half to even.
func FinalScore(base float64, anomaly bool, clusterAdj float64) float64 {
	boost := 1.0
	if anomaly {
		boost = AnomalyBoost
	}
	score := base * boost * clusterAdj
	score = math.Max(MinScore, math.Min(MaxScore, score))
	return math.RoundToEven(score)
}

// Combine produces the final score for every refined wallet.
func Combine(refined []Refined) []Final {
	out := make([]Final, len(refined))
	for i, r := range refined {
		score := FinalScore(r.BaseRiskScore, r.IsAnomaly, r.ClusterRiskAdjustment)
		out[i] = Final{
			Refined:        r,
			FinalRiskScore: score,
			Band:           BandFor(score),
		}
	}
	return out
}
