package relevance

import "testing"

func TestEscalate_PrimaryRejectsFallbackAdmits(t *testing.T) {
	// distance 1.3 misses 1.2 but is inside 1.5
	d, tier := Escalate(resultSet(1.3), DefaultTiers())
	if tier != TierFallback {
		t.Fatalf("expected fallback tier, got %q", tier)
	}
	if !d.Relevant || len(d.Chunks) != 1 || d.Distances[0] != 1.3 {
		t.Fatalf("expected the item to be admitted at 1.5, got %+v", d)
	}
}

func TestEscalate_PrimaryAdmits(t *testing.T) {
	d, tier := Escalate(resultSet(0.8, 1.4), DefaultTiers())
	if tier != TierPrimary {
		t.Fatalf("expected primary tier, got %q", tier)
	}
	if len(d.Chunks) != 1 {
		t.Fatalf("primary pass should filter 1.4 out, got %+v", d)
	}
}

func TestEscalate_NothingRelevant(t *testing.T) {
	d, tier := Escalate(resultSet(1.6, 2.0), DefaultTiers())
	if tier != TierNone || d.Usable() {
		t.Fatalf("expected no usable decision, got %q %+v", tier, d)
	}
}

func TestEscalate_Empty(t *testing.T) {
	if _, tier := Escalate(resultSet(), DefaultTiers()); tier != TierNone {
		t.Fatalf("empty result set should not be usable, got %q", tier)
	}
}

func TestEscalate_UnsetPrimaryDisablesGating(t *testing.T) {
	d, tier := Escalate(resultSet(9.0), Tiers{})
	if tier != TierPrimary || !d.Usable() {
		t.Fatalf("unset thresholds should accept everything, got %q %+v", tier, d)
	}
}

func TestEscalate_UnsetFallbackAcceptsPrimaryRejection(t *testing.T) {
	rs := resultSet(1.3)
	d, tier := Escalate(rs, Tiers{Primary: Threshold(1.2)})
	if tier != TierFallback || !d.Usable() {
		t.Fatalf("unset fallback should not gate, got %q %+v", tier, d)
	}
	if !Evaluate(rs, nil).Relevant {
		t.Fatal("Evaluate with no threshold should agree with the fallback pass")
	}
}

func TestEscalate_UnsetFallbackStillNeedsResults(t *testing.T) {
	if _, tier := Escalate(resultSet(), Tiers{Primary: Threshold(1.2)}); tier != TierNone {
		t.Fatalf("empty result set should not be usable, got %q", tier)
	}
}
