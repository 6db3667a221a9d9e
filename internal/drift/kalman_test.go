package drift

import (
	"math"
	"math/rand"
	"testing"
)

func TestNewPhaseFilter(t *testing.T) {
	f, err := NewPhaseFilter(DefaultPhaseFilterConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Estimate() != 0.0 {
		t.Errorf("expected initial estimate 0.0, got %v", f.Estimate())
	}
	if f.Covariance() != 1.0 {
		t.Errorf("expected initial covariance 1.0, got %v", f.Covariance())
	}
}

func TestNewPhaseFilter_InvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  PhaseFilterConfig
	}{
		{"negative process noise", PhaseFilterConfig{ProcessNoise: -0.01, MeasurementNoise: 0.05}},
		{"zero measurement noise", PhaseFilterConfig{ProcessNoise: 0.01, MeasurementNoise: 0}},
		{"negative measurement noise", PhaseFilterConfig{ProcessNoise: 0.01, MeasurementNoise: -0.05}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPhaseFilter(tc.cfg); err == nil {
				t.Errorf("expected construction to fail for %+v", tc.cfg)
			}
		})
	}
}

func TestPhaseFilter_PredictIncreasesCovariance(t *testing.T) {
	f, _ := NewPhaseFilter(PhaseFilterConfig{ProcessNoise: 0.01, MeasurementNoise: 0.05})

	_, pPred := f.Predict()
	if pPred < f.Covariance() {
		t.Errorf("predicted covariance %v below prior %v", pPred, f.Covariance())
	}

	// Q=0 holds covariance equal.
	f0, _ := NewPhaseFilter(PhaseFilterConfig{ProcessNoise: 0, MeasurementNoise: 0.05})
	_, pPred0 := f0.Predict()
	if pPred0 != f0.Covariance() {
		t.Errorf("with Q=0 expected predicted covariance %v to equal prior %v", pPred0, f0.Covariance())
	}
}

func TestPhaseFilter_PredictIsPure(t *testing.T) {
	f, _ := NewPhaseFilter(DefaultPhaseFilterConfig())
	x0, p0 := f.Estimate(), f.Covariance()
	f.Predict()
	f.Predict()
	if f.Estimate() != x0 || f.Covariance() != p0 {
		t.Error("Predict must not mutate filter state")
	}
	if len(f.History()) != 0 {
		t.Error("Predict must not append to history")
	}
}

func TestPhaseFilter_UpdateMovesTowardMeasurement(t *testing.T) {
	f, _ := NewPhaseFilter(DefaultPhaseFilterConfig())

	got := f.Update(0.1)
	if got <= 0 || got >= 0.1 {
		t.Errorf("expected estimate between prior 0 and measurement 0.1, got %v", got)
	}
	if len(f.History()) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(f.History()))
	}
	rec := f.History()[0]
	if rec.Measurement != 0.1 {
		t.Errorf("expected recorded measurement 0.1, got %v", rec.Measurement)
	}
	if rec.Gain <= 0 || rec.Gain >= 1 {
		t.Errorf("expected gain in (0,1), got %v", rec.Gain)
	}
}

func TestPhaseFilter_Convergence(t *testing.T) {
	f, _ := NewPhaseFilter(PhaseFilterConfig{ProcessNoise: 0.001, MeasurementNoise: 0.01})

	const truePhase = 0.5
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		f.Update(truePhase + rng.NormFloat64()*0.01)
	}

	if math.Abs(f.Estimate()-truePhase) >= 0.05 {
		t.Errorf("expected estimate within 0.05 of %v after 100 updates, got %v", truePhase, f.Estimate())
	}
	if len(f.History()) != 100 {
		t.Errorf("expected history length 100, got %d", len(f.History()))
	}
}

func TestPhaseFilter_CovarianceStaysNonNegative(t *testing.T) {
	f, _ := NewPhaseFilter(PhaseFilterConfig{ProcessNoise: 0.01, MeasurementNoise: 0.05})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		f.Update(rng.NormFloat64() * 5)
		if f.Covariance() < 0 {
			t.Fatalf("covariance went negative at step %d: %v", i, f.Covariance())
		}
	}
}

func TestPhaseFilter_Uncertainty(t *testing.T) {
	f, _ := NewPhaseFilter(DefaultPhaseFilterConfig())
	want := math.Sqrt(f.Covariance())
	if got := f.Uncertainty(); got != want {
		t.Errorf("expected uncertainty %v, got %v", want, got)
	}
}

func TestPhaseFilter_Reset(t *testing.T) {
	f, _ := NewPhaseFilter(DefaultPhaseFilterConfig())

	for i := 0; i < 25; i++ {
		f.Update(0.3)
	}
	f.Reset()

	if f.Estimate() != 0.0 {
		t.Errorf("expected estimate 0.0 after reset, got %v", f.Estimate())
	}
	if f.Covariance() != 1.0 {
		t.Errorf("expected covariance 1.0 after reset, got %v", f.Covariance())
	}
	if len(f.History()) != 0 {
		t.Errorf("expected empty history after reset, got %d entries", len(f.History()))
	}

	// Reset must not disturb configuration: behaviour after reset matches
	// a freshly constructed filter.
	fresh, _ := NewPhaseFilter(DefaultPhaseFilterConfig())
	if f.Update(0.2) != fresh.Update(0.2) {
		t.Error("expected reset filter to behave like a fresh one")
	}
}
