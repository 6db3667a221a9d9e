// Package stabilizer runs circuits through an adaptive correction loop:
// Bell-pair monitoring feeds a hysteretic mode controller, and a Kalman
// phase filter supplies the correction applied in corrective mode.
package stabilizer

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/eedt-data/drift.report/internal/config"
	"github.com/eedt-data/drift.report/internal/counts"
	"github.com/eedt-data/drift.report/internal/drift"
	"github.com/eedt-data/drift.report/internal/monitoring"
)

// correctiveOverhead is the fractional circuit-depth overhead of the
// correction gates added in corrective mode.
const correctiveOverhead = 0.04

// Config holds the stabilizer's operating parameters.
type Config struct {
	Filter             drift.PhaseFilterConfig
	Controller         drift.ModeControllerConfig
	Shots              int // default shots per user circuit
	MonitoringShots    int // shots per Bell monitor circuit
	MonitoringInterval int // monitor every N circuits
}

// DefaultConfig returns the default stabilizer configuration.
func DefaultConfig() Config {
	return Config{
		Filter:             drift.DefaultPhaseFilterConfig(),
		Controller:         drift.DefaultModeControllerConfig(),
		Shots:              4096,
		MonitoringShots:    1024,
		MonitoringInterval: 5,
	}
}

// ConfigFromTuning builds a stabilizer Config from the loaded tuning file.
func ConfigFromTuning(tc *config.TuningConfig) Config {
	return Config{
		Filter: drift.PhaseFilterConfig{
			ProcessNoise:     tc.GetProcessNoise(),
			MeasurementNoise: tc.GetMeasurementNoise(),
		},
		Controller: drift.ModeControllerConfig{
			Threshold:  tc.GetFidelityThreshold(),
			Hysteresis: tc.GetHysteresis(),
		},
		Shots:              tc.GetShots(),
		MonitoringShots:    tc.GetMonitoringShots(),
		MonitoringInterval: tc.GetMonitoringInterval(),
	}
}

// StepResult is the outcome of one stabilized circuit execution.
type StepResult struct {
	Counts           counts.Counts `json:"counts"`
	Mode             drift.Mode    `json:"mode"`
	Shots            int           `json:"shots"`
	Overhead         float64       `json:"overhead"`
	EstimatedPhase   float64       `json:"estimated_phase,omitempty"`
	PhaseUncertainty float64       `json:"phase_uncertainty,omitempty"`
	Fidelity         *float64      `json:"fidelity,omitempty"` // set on monitored steps
}

// Statistics summarises a stabilizer session.
type Statistics struct {
	SessionID       string               `json:"session_id"`
	TotalCircuits   int                  `json:"total_circuits"`
	NominalCount    int                  `json:"nominal_count"`
	CorrectiveCount int                  `json:"corrective_count"`
	NominalPct      float64              `json:"nominal_pct"`
	CorrectivePct   float64              `json:"corrective_pct"`
	AverageOverhead float64              `json:"average_overhead"`
	CurrentMode     drift.Mode           `json:"current_mode"`
	EstimatedPhase  float64              `json:"estimated_phase"`
	Uncertainty     float64              `json:"uncertainty"`
	FidelityHistory []float64            `json:"fidelity_history"`
	FilterHistory   []drift.FilterRecord `json:"filter_history"`
}

// MeanFidelity averages the monitored fidelity samples. Zero when no
// monitoring step has run yet.
func (st Statistics) MeanFidelity() float64 {
	if len(st.FidelityHistory) == 0 {
		return 0
	}
	var sum float64
	for _, f := range st.FidelityHistory {
		sum += f
	}
	return sum / float64(len(st.FidelityHistory))
}

// Stabilizer owns one phase filter and one mode controller and drives
// them from periodic Bell-pair monitoring. It assumes a single logical
// caller; the mutex only guards against the HTTP status surface reading
// concurrently with the run loop.
type Stabilizer struct {
	mu sync.Mutex

	sessionID string
	cfg       Config
	exec      Executor

	kalman  *drift.PhaseFilter
	monitor *drift.ModeController

	totalCircuits   int
	nominalCount    int
	correctiveCount int
}

// New creates a stabilizer around the given executor. Configuration is
// validated by the underlying filter and controller constructors.
func New(exec Executor, cfg Config) (*Stabilizer, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Shots <= 0 || cfg.MonitoringShots <= 0 || cfg.MonitoringInterval <= 0 {
		return nil, fmt.Errorf("shots, monitoring shots and monitoring interval must be positive")
	}

	kalman, err := drift.NewPhaseFilter(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("phase filter: %w", err)
	}
	monitor, err := drift.NewModeController(cfg.Controller)
	if err != nil {
		return nil, fmt.Errorf("mode controller: %w", err)
	}

	return &Stabilizer{
		sessionID: uuid.New().String(),
		cfg:       cfg,
		exec:      exec,
		kalman:    kalman,
		monitor:   monitor,
	}, nil
}

// SessionID returns the unique identifier of this stabilizer session.
func (s *Stabilizer) SessionID() string {
	return s.sessionID
}

// Run executes one circuit through the adaptive loop. Every
// MonitoringInterval executions it first runs a Bell monitor circuit and
// feeds the resulting fidelity to the mode controller. The nominal path
// executes the request unmodified; the corrective path applies the
// filter's phase estimate as a correction and feeds a fresh phase
// measurement back into the filter.
func (s *Stabilizer) Run(ctx context.Context, spec CircuitSpec, shots int) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shots <= 0 {
		shots = s.cfg.Shots
	}
	s.totalCircuits++

	var monitored *float64
	if s.totalCircuits%s.cfg.MonitoringInterval == 0 {
		fidelity, err := s.monitorFidelity(ctx)
		if err != nil {
			s.totalCircuits--
			return nil, fmt.Errorf("fidelity monitor: %w", err)
		}
		mode := s.monitor.CheckModeSwitch(fidelity)
		monitored = &fidelity
		monitoring.Logf("[monitor] session=%s fidelity=%.4f mode=%s", s.sessionID, fidelity, mode)
	}

	var result *StepResult
	var err error
	if s.monitor.Mode() == drift.ModeNominal {
		result, err = s.executeNominal(ctx, spec, shots)
		if err == nil {
			s.nominalCount++
		}
	} else {
		result, err = s.executeCorrective(ctx, spec, shots)
		if err == nil {
			s.correctiveCount++
		}
	}
	if err != nil {
		s.totalCircuits-- // failed executions don't count against the interval
		return nil, err
	}

	result.Fidelity = monitored
	return result, nil
}

// monitorFidelity runs the Bell pair circuit and derives fidelity from
// its counts.
func (s *Stabilizer) monitorFidelity(ctx context.Context) (float64, error) {
	c, err := s.exec.Execute(ctx, CircuitSpec{Name: CircuitBellMonitor, Qubits: 2}, s.cfg.MonitoringShots)
	if err != nil {
		return 0, err
	}
	if err := c.Validate(2); err != nil {
		return 0, fmt.Errorf("monitor counts: %w", err)
	}
	return counts.BellFidelity(c), nil
}

// executeNominal runs the circuit directly, zero overhead.
func (s *Stabilizer) executeNominal(ctx context.Context, spec CircuitSpec, shots int) (*StepResult, error) {
	c, err := s.exec.Execute(ctx, spec, shots)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Counts:   c,
		Mode:     drift.ModeNominal,
		Shots:    shots,
		Overhead: 0,
	}, nil
}

// executeCorrective applies the current phase estimate as a correction,
// runs the circuit, then probes the residual phase and updates the
// filter with the fresh measurement.
func (s *Stabilizer) executeCorrective(ctx context.Context, spec CircuitSpec, shots int) (*StepResult, error) {
	correction := s.kalman.Estimate()

	corrected := spec
	corrected.PhaseCorrection = correction
	c, err := s.exec.Execute(ctx, corrected, shots)
	if err != nil {
		return nil, err
	}

	// Probe the residual phase left after correction and fold it back
	// into the filter as an absolute phase measurement. A single probe
	// only recovers the magnitude (agreement is even in the phase), so
	// a second probe offset by pi/2 supplies the quadrature component
	// that fixes the sign.
	inPhase, err := s.exec.Execute(ctx, CircuitSpec{
		Name:            CircuitPhaseProbe,
		Qubits:          2,
		PhaseCorrection: correction,
	}, s.cfg.MonitoringShots)
	if err != nil {
		return nil, err
	}
	quadrature, err := s.exec.Execute(ctx, CircuitSpec{
		Name:            CircuitPhaseProbe,
		Qubits:          2,
		PhaseCorrection: correction - math.Pi/2,
	}, s.cfg.MonitoringShots)
	if err != nil {
		return nil, err
	}
	measured := correction + residualPhase(inPhase, quadrature)
	s.kalman.Update(measured)

	return &StepResult{
		Counts:           c,
		Mode:             drift.ModeCorrective,
		Shots:            shots,
		Overhead:         correctiveOverhead,
		EstimatedPhase:   s.kalman.Estimate(),
		PhaseUncertainty: s.kalman.Uncertainty(),
	}, nil
}

// residualPhase recovers the signed residual phase from a probe pair.
// In-phase agreement is (1+cos(phi))/2 and the quadrature probe,
// offset by -pi/2, sees (1-sin(phi))/2, so atan2 of the two components
// gives phi with its sign. Visibility attenuates both components
// equally and cancels in the ratio.
func residualPhase(inPhase, quadrature counts.Counts) float64 {
	cosPhi := 2*counts.BellFidelity(inPhase) - 1
	sinPhi := -(2*counts.BellFidelity(quadrature) - 1)
	if cosPhi == 0 && sinPhi == 0 {
		return 0
	}
	return math.Atan2(sinPhi, cosPhi)
}

// Statistics returns a snapshot of the session counters and histories.
func (s *Stabilizer) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		SessionID:       s.sessionID,
		TotalCircuits:   s.totalCircuits,
		NominalCount:    s.nominalCount,
		CorrectiveCount: s.correctiveCount,
		CurrentMode:     s.monitor.Mode(),
		EstimatedPhase:  s.kalman.Estimate(),
		Uncertainty:     s.kalman.Uncertainty(),
		FidelityHistory: s.monitor.MetricHistory(),
		FilterHistory:   s.kalman.History(),
	}
	if executed := s.nominalCount + s.correctiveCount; executed > 0 {
		stats.NominalPct = float64(s.nominalCount) / float64(executed) * 100
		stats.CorrectivePct = float64(s.correctiveCount) / float64(executed) * 100
		stats.AverageOverhead = float64(s.correctiveCount) / float64(executed) * correctiveOverhead
	}
	return stats
}

// Reset reinitializes the filter, the controller and the counters while
// keeping the configuration and session identity.
func (s *Stabilizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kalman.Reset()
	s.monitor.Reset()
	s.totalCircuits = 0
	s.nominalCount = 0
	s.correctiveCount = 0
	monitoring.Logf("[stabilizer] session=%s reset", s.sessionID)
}
