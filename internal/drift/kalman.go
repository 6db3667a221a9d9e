package drift

import (
	"fmt"
	"math"
)

// Initial priors for the scalar filter. Reset restores these.
const (
	initialPhaseEstimate   = 0.0
	initialPhaseCovariance = 1.0
)

// PhaseFilterConfig holds the noise covariances for the scalar phase filter.
type PhaseFilterConfig struct {
	ProcessNoise     float64 // Process noise covariance Q
	MeasurementNoise float64 // Measurement noise covariance R
}

// DefaultPhaseFilterConfig returns the default phase filter configuration.
func DefaultPhaseFilterConfig() PhaseFilterConfig {
	return PhaseFilterConfig{
		ProcessNoise:     0.01,
		MeasurementNoise: 0.05,
	}
}

// FilterRecord is one entry of a filter's per-update history.
type FilterRecord struct {
	Measurement float64 `json:"measurement"`
	Estimate    float64 `json:"estimate"`
	Covariance  float64 `json:"covariance"`
	Gain        float64 `json:"gain"`
}

// PhaseFilter is a 1-D Kalman filter tracking a slowly drifting phase.
//
// State:       x = [phase]
// Dynamics:    x_{k+1} = x_k + w_k   (random walk)
// Measurement: z_k = x_k + v_k
type PhaseFilter struct {
	q float64 // process noise Q
	r float64 // measurement noise R

	x float64 // estimated phase
	p float64 // error covariance

	history []FilterRecord
}

// NewPhaseFilter creates a phase filter with the given noise configuration.
// Process noise must be non-negative; measurement noise must be positive.
func NewPhaseFilter(cfg PhaseFilterConfig) (*PhaseFilter, error) {
	if cfg.ProcessNoise < 0 {
		return nil, fmt.Errorf("process noise must be non-negative, got %v", cfg.ProcessNoise)
	}
	if cfg.MeasurementNoise <= 0 {
		return nil, fmt.Errorf("measurement noise must be positive, got %v", cfg.MeasurementNoise)
	}
	return &PhaseFilter{
		q: cfg.ProcessNoise,
		r: cfg.MeasurementNoise,
		x: initialPhaseEstimate,
		p: initialPhaseCovariance,
	}, nil
}

// Predict returns the predicted state and covariance under the random walk
// model without mutating the filter.
func (f *PhaseFilter) Predict() (estimate, covariance float64) {
	return f.x, f.p + f.q
}

// Update incorporates a new phase measurement and returns the posterior
// estimate. The update order is fixed: predict, innovation, gain, posterior
// state, posterior covariance, history append.
func (f *PhaseFilter) Update(measurement float64) float64 {
	xPred, pPred := f.Predict()

	// Kalman gain (H = 1)
	k := pPred / (pPred + f.r)

	innovation := measurement - xPred
	f.x = xPred + k*innovation
	f.p = (1 - k) * pPred

	f.history = append(f.history, FilterRecord{
		Measurement: measurement,
		Estimate:    f.x,
		Covariance:  f.p,
		Gain:        k,
	})

	return f.x
}

// Estimate returns the current phase estimate.
func (f *PhaseFilter) Estimate() float64 {
	return f.x
}

// Covariance returns the current error covariance.
func (f *PhaseFilter) Covariance() float64 {
	return f.p
}

// Uncertainty returns the current estimation uncertainty (standard deviation).
func (f *PhaseFilter) Uncertainty() float64 {
	return math.Sqrt(f.p)
}

// Reset restores the construction-time priors and clears the history.
// The noise configuration is retained.
func (f *PhaseFilter) Reset() {
	f.x = initialPhaseEstimate
	f.p = initialPhaseCovariance
	f.history = nil
}

// History returns a copy of the per-update history.
func (f *PhaseFilter) History() []FilterRecord {
	out := make([]FilterRecord, len(f.history))
	copy(out, f.history)
	return out
}
