package stabilizer

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/eedt-data/drift.report/internal/counts"
)

// Well-known circuit names the stabilizer submits to an Executor.
const (
	CircuitBellMonitor = "bell_monitor"
	CircuitPhaseProbe  = "phase_probe"
	CircuitT1Decay     = "t1_decay"
)

// CircuitSpec describes a measurement request for an Executor. The
// executor is opaque: it runs the named circuit and returns aggregated
// counts. PhaseCorrection is the Z-rotation applied to every qubit
// before execution; DelayUs is the idle delay for decay circuits.
type CircuitSpec struct {
	Name            string
	Qubits          int
	PhaseCorrection float64
	DelayUs         float64
}

// Executor runs a circuit against a backend and returns its measurement
// counts. Implementations wrap a cloud quantum service or a local
// simulator; the stabilizer never sees anything but counts.
type Executor interface {
	Execute(ctx context.Context, spec CircuitSpec, shots int) (counts.Counts, error)
}

// SimExecutor is a deterministic (seeded) simulated backend for dev mode
// and tests. It carries a slowly drifting phase: Bell-pair agreement
// degrades as the uncorrected phase grows, and decay circuits lose
// population with the configured relaxation time.
type SimExecutor struct {
	mu  sync.Mutex
	rng *rand.Rand

	phase      float64 // current drift phase (radians)
	driftRate  float64 // random-walk step per execution (radians)
	visibility float64 // max achievable Bell agreement
	t1Us       float64 // simulated relaxation time
}

// SimOption adjusts a SimExecutor.
type SimOption func(*SimExecutor)

// WithDriftRate sets the per-execution phase random-walk step.
func WithDriftRate(rate float64) SimOption {
	return func(s *SimExecutor) { s.driftRate = rate }
}

// WithVisibility sets the maximum achievable Bell agreement.
func WithVisibility(v float64) SimOption {
	return func(s *SimExecutor) { s.visibility = v }
}

// WithT1 sets the simulated relaxation time in microseconds.
func WithT1(t1Us float64) SimOption {
	return func(s *SimExecutor) { s.t1Us = t1Us }
}

// NewSimExecutor creates a simulated backend seeded for reproducibility.
func NewSimExecutor(seed int64, opts ...SimOption) *SimExecutor {
	s := &SimExecutor{
		rng:        rand.New(rand.NewSource(seed)),
		driftRate:  0.01,
		visibility: 0.98,
		t1Us:       78.0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the simulator's current drift phase, for test assertions.
func (s *SimExecutor) Phase() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Execute simulates the named circuit and returns sampled counts.
func (s *SimExecutor) Execute(ctx context.Context, spec CircuitSpec, shots int) (counts.Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Phase drifts a little on every backend interaction.
	s.phase += s.rng.NormFloat64() * s.driftRate

	switch spec.Name {
	case CircuitT1Decay:
		return s.sampleDecay(spec, shots), nil
	default:
		return s.sampleBell(spec, shots), nil
	}
}

// sampleBell draws two-qubit Bell measurement outcomes. The residual
// phase (drift minus applied correction) rotates population out of the
// correlated outcomes.
func (s *SimExecutor) sampleBell(spec CircuitSpec, shots int) counts.Counts {
	eff := s.phase - spec.PhaseCorrection
	pAgree := s.visibility*(1+math.Cos(eff))/2 + (1-s.visibility)/2

	c := counts.Counts{}
	for i := 0; i < shots; i++ {
		if s.rng.Float64() < pAgree {
			if s.rng.Float64() < 0.5 {
				c["00"]++
			} else {
				c["11"]++
			}
		} else {
			if s.rng.Float64() < 0.5 {
				c["01"]++
			} else {
				c["10"]++
			}
		}
	}
	return c
}

// sampleDecay draws outcomes for a prepare-all-ones, delay, measure
// circuit. Each qubit relaxes independently with the configured T1.
func (s *SimExecutor) sampleDecay(spec CircuitSpec, shots int) counts.Counts {
	qubits := spec.Qubits
	if qubits <= 0 {
		qubits = 3
	}
	pSurvive := math.Exp(-spec.DelayUs / s.t1Us)

	c := counts.Counts{}
	var sb strings.Builder
	for i := 0; i < shots; i++ {
		sb.Reset()
		for q := 0; q < qubits; q++ {
			if s.rng.Float64() < pSurvive {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		c[sb.String()]++
	}
	return c
}
