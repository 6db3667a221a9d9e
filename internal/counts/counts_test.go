package counts

import (
	"math"
	"testing"
)

func TestCounts_Validate(t *testing.T) {
	cases := []struct {
		name    string
		c       Counts
		width   int
		wantErr bool
	}{
		{"valid two-bit", Counts{"00": 480, "11": 492, "01": 14, "10": 14}, 2, false},
		{"valid empty", Counts{}, 2, false},
		{"valid compound label", Counts{"1 0 111": 10}, 5, false},
		{"wrong width", Counts{"000": 5}, 2, true},
		{"negative count", Counts{"00": -1}, 2, true},
		{"non-binary label", Counts{"0x": 5}, 2, true},
		{"zero width", Counts{"00": 5}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.c.Validate(tc.width)
			if tc.wantErr && err == nil {
				t.Errorf("expected validation error for %v", tc.c)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestCounts_TotalAndProbability(t *testing.T) {
	c := Counts{"00": 300, "11": 500, "01": 200}
	if c.Total() != 1000 {
		t.Errorf("expected total 1000, got %d", c.Total())
	}
	if got := c.Probability("11"); got != 0.5 {
		t.Errorf("expected P(11)=0.5, got %v", got)
	}
	if got := c.Probability("10"); got != 0 {
		t.Errorf("expected P(10)=0 for absent label, got %v", got)
	}
	if got := (Counts{}).Probability("00"); got != 0 {
		t.Errorf("expected 0 probability on empty counts, got %v", got)
	}
}

func TestBellFidelity(t *testing.T) {
	// High fidelity: 972 of 1000 shots in the correlated outcomes.
	good := Counts{"00": 480, "11": 492, "01": 14, "10": 14}
	if got := BellFidelity(good); math.Abs(got-0.972) > 1e-9 {
		t.Errorf("expected fidelity 0.972, got %v", got)
	}

	// Fully mixed: fidelity 0.5.
	bad := Counts{"00": 250, "11": 250, "01": 250, "10": 250}
	if got := BellFidelity(bad); got != 0.5 {
		t.Errorf("expected fidelity 0.5, got %v", got)
	}

	// Zero-weight counts return exactly 0, never divide by zero.
	if got := BellFidelity(Counts{}); got != 0 {
		t.Errorf("expected fidelity 0 on empty counts, got %v", got)
	}
	if got := BellFidelity(Counts{"00": 0, "11": 0}); got != 0 {
		t.Errorf("expected fidelity 0 on zero-weight counts, got %v", got)
	}
}

func TestSurvival(t *testing.T) {
	c := Counts{"111": 900, "011": 60, "101": 40}
	if got := Survival(c, "111"); got != 0.9 {
		t.Errorf("expected survival 0.9, got %v", got)
	}

	// Compound registers: the target may sit at either end of the label.
	compound := Counts{"000 111": 700, "001 111": 100, "010 000": 200}
	if got := Survival(compound, "111"); got != 0.8 {
		t.Errorf("expected survival 0.8 for compound labels, got %v", got)
	}

	if got := Survival(Counts{}, "111"); got != 0 {
		t.Errorf("expected survival 0 on empty counts, got %v", got)
	}
}

func TestParityViolationRate(t *testing.T) {
	// Bare scout registers: all-zero and all-one are parity-consistent.
	safe := Counts{"000": 500, "111": 480, "010": 20}
	if got := ParityViolationRate(safe, 3); got != 0.02 {
		t.Errorf("expected violation rate 0.02, got %v", got)
	}

	// Compound labels carry the scouts in the third register.
	attack := Counts{"1 0 010": 300, "0 1 110": 200, "1 1 000": 500}
	if got := ParityViolationRate(attack, 3); got != 0.5 {
		t.Errorf("expected violation rate 0.5, got %v", got)
	}

	if got := ParityViolationRate(Counts{}, 3); got != 0 {
		t.Errorf("expected 0 on empty counts, got %v", got)
	}
	if got := ParityViolationRate(safe, 0); got != 0 {
		t.Errorf("expected 0 for zero scouts, got %v", got)
	}
}

func TestAnalyzeDetection(t *testing.T) {
	safe := Counts{"000": 990, "010": 10}
	attack := Counts{"010": 400, "110": 350, "000": 250}

	report := AnalyzeDetection(safe, attack, 3)
	if report.FalsePositiveRate != 0.01 {
		t.Errorf("expected false positive rate 0.01, got %v", report.FalsePositiveRate)
	}
	if report.DetectionRate != 0.75 {
		t.Errorf("expected detection rate 0.75, got %v", report.DetectionRate)
	}
}
