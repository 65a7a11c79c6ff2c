package relevance

import "github.com/bdobrica/Kiki/internal/kiki/retrieval"

// Tier names the pass that produced a decision.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
	TierNone     Tier = "none"
)

// Tiers holds the two escalation thresholds. Either may be nil.
type Tiers struct {
	Primary  *float64
	Fallback *float64
}

// DefaultTiers returns the 1.2 / 1.5 thresholds.
func DefaultTiers() Tiers {
	return Tiers{
		Primary:  Threshold(DefaultPrimaryThreshold),
		Fallback: Threshold(DefaultFallbackThreshold),
	}
}

// Escalate evaluates rs at the primary threshold and, if that yields nothing
// usable, once more at the fallback threshold. The returned tier is the one
// whose decision is returned; TierNone means neither pass was usable.
//
// An unset fallback means no gating on the second pass, the same as an unset
// threshold in Evaluate: any non-empty set the primary rejected is accepted.
// With an unset primary there is nothing looser to escalate to.
//
// Both passes look at the same result set: the thresholds do not change what
// retrieval returns, so there is nothing to gain from querying twice.
func Escalate(rs retrieval.ResultSet, t Tiers) (Decision, Tier) {
	d := Evaluate(rs, t.Primary)
	if d.Usable() {
		return d, TierPrimary
	}
	if t.Primary == nil {
		return d, TierNone
	}
	d = Evaluate(rs, t.Fallback)
	if d.Usable() {
		return d, TierFallback
	}
	return d, TierNone
}
