package scoring

import "testing"

// --- RICE ---

func TestRICE_KnownValue(t *testing.T) {
	if got := RICE(10, 3, 80, 2); got != 120 {
		t.Errorf("RICE(10, 3, 80, 2) = %d, want 120", got)
	}
}

func TestRICE_ZeroReach(t *testing.T) {
	if got := RICE(0, 5, 90, 3); got != 0 {
		t.Errorf("RICE with zero reach = %d, want 0", got)
	}
}

func TestRICE_ZeroImpact(t *testing.T) {
	if got := RICE(100, 0, 90, 3); got != 0 {
		t.Errorf("RICE with zero impact = %d, want 0", got)
	}
}

func TestRICE_ZeroConfidence(t *testing.T) {
	if got := RICE(100, 3, 0, 3); got != 0 {
		t.Errorf("RICE with zero confidence = %d, want 0", got)
	}
}

func TestRICE_ZeroEffort(t *testing.T) {
	if got := RICE(10, 3, 80, 0); got != 0 {
		t.Errorf("RICE with zero effort = %d, want 0 (no division by zero)", got)
	}
}

func TestRICE_LargeEffortSuppresses(t *testing.T) {
	small := RICE(10, 3, 80, 2)
	large := RICE(10, 3, 80, 20)
	if large >= small {
		t.Errorf("larger effort should suppress the score: effort=2 → %d, effort=20 → %d", small, large)
	}
}

func TestRICE_Rounds(t *testing.T) {
	// 1 * 1 * (50/100) / 3 * 10 = 1.666... → 2
	if got := RICE(1, 1, 50, 3); got != 2 {
		t.Errorf("RICE(1, 1, 50, 3) = %d, want 2", got)
	}
}

// --- WSJF ---

func TestWSJF_KnownValue(t *testing.T) {
	if got := WSJF(8, 5, 3, 4); got != 40 {
		t.Errorf("WSJF(8, 5, 3, 4) = %d, want 40", got)
	}
}

func TestWSJF_HalvingJobSizeDoubles(t *testing.T) {
	full := WSJF(8, 5, 3, 4)
	half := WSJF(8, 5, 3, 2)
	if half != full*2 {
		t.Errorf("halving job size: got %d, want %d", half, full*2)
	}
}

func TestWSJF_ZeroJobSize(t *testing.T) {
	if got := WSJF(8, 5, 3, 0); got != 0 {
		t.Errorf("WSJF with zero job size = %d, want 0", got)
	}
}

// --- Composite ---

func TestComposite_DefaultConfig(t *testing.T) {
	if got := Composite(80, 70, 30, DefaultConfig()); got != 74 {
		t.Errorf("Composite(80, 70, 30) = %d, want 74", got)
	}
}

func TestComposite_Maximum(t *testing.T) {
	if got := Composite(100, 100, 0, DefaultConfig()); got != 100 {
		t.Errorf("Composite(100, 100, 0) = %d, want 100", got)
	}
}

func TestComposite_Minimum(t *testing.T) {
	if got := Composite(0, 0, 100, DefaultConfig()); got != 0 {
		t.Errorf("Composite(0, 0, 100) = %d, want 0", got)
	}
}

func TestComposite_RiskInversion(t *testing.T) {
	lowRisk := Composite(50, 50, 10, DefaultConfig())
	highRisk := Composite(50, 50, 90, DefaultConfig())
	if lowRisk <= highRisk {
		t.Errorf("lower risk should raise the composite: risk=10 → %d, risk=90 → %d", lowRisk, highRisk)
	}
}

func TestComposite_CustomWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Business: 1, Technical: 0, Risk: 0}
	if got := Composite(63, 99, 99, cfg); got != 63 {
		t.Errorf("business-only composite = %d, want 63", got)
	}
}

// --- PriorityLabel ---

func TestPriorityLabel_Bands(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		score float64
		want  string
	}{
		{100, "High"},
		{75, "High"}, // inclusive boundary
		{74, "Medium"},
		{50, "Medium"}, // inclusive boundary
		{49, "Low"},
		{0, "Low"},
	}
	for _, c := range cases {
		if got := PriorityLabel(c.score, cfg); got != c.want {
			t.Errorf("PriorityLabel(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestPriorityLabel_CustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds = Thresholds{HighPriority: 90, MediumPriority: 60}
	if got := PriorityLabel(75, cfg); got != "Medium" {
		t.Errorf("PriorityLabel(75) with 90/60 thresholds = %q, want Medium", got)
	}
}

// --- Resolve ---

func TestResolve_NilFallsBackToDefault(t *testing.T) {
	got := Resolve(nil)
	if got.Weights.Business != 0.4 || got.Thresholds.HighPriority != 75 {
		t.Errorf("Resolve(nil) = %+v, want hard-coded defaults", got)
	}
}

func TestResolve_CallerConfigWins(t *testing.T) {
	cfg := Config{
		Framework:  FrameworkWSJF,
		Weights:    Weights{Business: 0.5, Technical: 0.25, Risk: 0.25},
		Thresholds: Thresholds{HighPriority: 80, MediumPriority: 40},
	}
	got := Resolve(&cfg)
	if got.Framework != FrameworkWSJF || got.Weights.Business != 0.5 {
		t.Errorf("Resolve(&cfg) = %+v, want caller config", got)
	}
}
