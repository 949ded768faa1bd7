package summary

// Tier is a semantic band of the convergence score.
type Tier string

const (
	TierOpposed       Tier = "opposed"
	TierWideGap       Tier = "wide_gap"
	TierPartial       Tier = "partial_convergence"
	TierNearConsensus Tier = "near_consensus"
	TierFullAgreement Tier = "full_agreement"
)

// Tiers lists the bands from lowest to highest score.
var Tiers = []Tier{TierOpposed, TierWideGap, TierPartial, TierNearConsensus, TierFullAgreement}

// TierFor bands a 0..100 score. Out-of-range scores are clamped first.
func TierFor(score int) Tier {
	switch score = clamp(score); {
	case score >= 90:
		return TierFullAgreement
	case score >= 70:
		return TierNearConsensus
	case score >= 50:
		return TierPartial
	case score >= 30:
		return TierWideGap
	default:
		return TierOpposed
	}
}

// Rank is the position of t in Tiers, or -1.
func (t Tier) Rank() int {
	for i, tt := range Tiers {
		if tt == t {
			return i
		}
	}
	return -1
}

func (t Tier) Label() string {
	switch t {
	case TierFullAgreement:
		return "Full agreement"
	case TierNearConsensus:
		return "Near consensus"
	case TierPartial:
		return "Partial convergence"
	case TierWideGap:
		return "Wide gap"
	case TierOpposed:
		return "Opposed"
	}
	return string(t)
}
