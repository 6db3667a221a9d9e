package drift

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingularInnovation is returned by MotionFilter.Update when the
// innovation covariance cannot be inverted. The filter state is left
// unmodified; the caller should fall back to the raw measurement for
// that step.
var ErrSingularInnovation = errors.New("innovation covariance is singular")

// minDeterminant is the smallest innovation covariance determinant the
// filter will invert.
const minDeterminant = 1e-9

// MotionFilterConfig holds tuning for the 2-D constant-velocity filter.
type MotionFilterConfig struct {
	Dt                float64 // Timestep between updates (seconds)
	MeasurementNoise  float64 // Observation noise (σ²) per axis
	InitialCovariance float64 // Diagonal covariance at reset
	AdaptiveBase      float64 // Process noise floor
	AdaptiveGain      float64 // Quadratic residual gain
	AdaptiveCap       float64 // Upper bound on the adaptive term
	Lookahead         float64 // Forward prediction horizon (seconds)
}

// DefaultMotionFilterConfig returns the smoothing-biased defaults: large R
// to suppress jitter, a tiny process noise floor that opens up only on
// large residuals, and a lookahead that compensates the smoothing lag.
func DefaultMotionFilterConfig() MotionFilterConfig {
	return MotionFilterConfig{
		Dt:                0.015,
		MeasurementNoise:  100.0,
		InitialCovariance: 100.0,
		AdaptiveBase:      0.001,
		AdaptiveGain:      0.2,
		AdaptiveCap:       80.0,
		Lookahead:         0.08,
	}
}

// MotionRecord is one entry of the motion filter's per-update history.
type MotionRecord struct {
	MeasX  float64 `json:"meas_x"`
	MeasY  float64 `json:"meas_y"`
	EstX   float64 `json:"est_x"`
	EstY   float64 `json:"est_y"`
	QScale float64 `json:"q_scale"`
}

// MotionFilter is a 4-state [x vx y vy] constant-velocity Kalman filter
// observing 2-D position, with process noise adapted to the previous
// step's residual: calm motion trusts the smooth prior, erratic motion
// opens the filter up to follow the measurements.
type MotionFilter struct {
	cfg MotionFilterConfig

	// State [x, vx, y, vy] and covariance (4x4, row-major)
	x [4]float64
	p [16]float64

	qScale       float64 // current adaptive process noise
	lastResidual float64 // residual norm from the previous update
	seeded       bool

	history []MotionRecord
}

// NewMotionFilter creates a motion filter. Noise terms must be
// non-negative; dt, measurement noise and initial covariance must be
// positive; the cap must be at least the base.
func NewMotionFilter(cfg MotionFilterConfig) (*MotionFilter, error) {
	if cfg.Dt <= 0 {
		return nil, fmt.Errorf("dt must be positive, got %v", cfg.Dt)
	}
	if cfg.MeasurementNoise <= 0 {
		return nil, fmt.Errorf("measurement noise must be positive, got %v", cfg.MeasurementNoise)
	}
	if cfg.InitialCovariance <= 0 {
		return nil, fmt.Errorf("initial covariance must be positive, got %v", cfg.InitialCovariance)
	}
	if cfg.AdaptiveBase < 0 || cfg.AdaptiveGain < 0 {
		return nil, fmt.Errorf("adaptive base and gain must be non-negative, got base=%v gain=%v", cfg.AdaptiveBase, cfg.AdaptiveGain)
	}
	if cfg.AdaptiveCap < cfg.AdaptiveBase {
		return nil, fmt.Errorf("adaptive cap %v below base %v", cfg.AdaptiveCap, cfg.AdaptiveBase)
	}
	if cfg.Lookahead < 0 {
		return nil, fmt.Errorf("lookahead must be non-negative, got %v", cfg.Lookahead)
	}
	f := &MotionFilter{cfg: cfg, qScale: cfg.AdaptiveBase}
	f.resetCovariance()
	return f, nil
}

func (f *MotionFilter) resetCovariance() {
	f.p = [16]float64{}
	for i := 0; i < 4; i++ {
		f.p[i*4+i] = f.cfg.InitialCovariance
	}
}

// Reset seeds the filter at a position with zero velocity and restores
// the initial covariance. Configuration is retained.
func (f *MotionFilter) Reset(x, y float64) {
	f.x = [4]float64{x, 0, y, 0}
	f.resetCovariance()
	f.qScale = f.cfg.AdaptiveBase
	f.lastResidual = 0
	f.seeded = true
	f.history = nil
}

// QScale returns the adaptive process noise used by the last update.
func (f *MotionFilter) QScale() float64 {
	return f.qScale
}

// Estimate returns the current [x, vx, y, vy] state.
func (f *MotionFilter) Estimate() (x, vx, y, vy float64) {
	return f.x[0], f.x[1], f.x[2], f.x[3]
}

// Uncertainty returns the covariance trace as a scalar summary.
func (f *MotionFilter) Uncertainty() float64 {
	return f.p[0] + f.p[5] + f.p[10] + f.p[15]
}

// History returns a copy of the per-update history.
func (f *MotionFilter) History() []MotionRecord {
	out := make([]MotionRecord, len(f.history))
	copy(out, f.history)
	return out
}

// adaptiveQScale widens process noise quadratically with the residual
// norm, saturating at the cap so a momentary glitch cannot blow the
// gain up.
func (f *MotionFilter) adaptiveQScale(residual float64) float64 {
	extra := residual * residual * f.cfg.AdaptiveGain
	if extra > f.cfg.AdaptiveCap {
		extra = f.cfg.AdaptiveCap
	}
	return f.cfg.AdaptiveBase + extra
}

// Update incorporates a 2-D position measurement and returns the smoothed
// position projected Lookahead seconds forward. The first call after
// construction seeds the filter at the measurement. On a singular
// innovation covariance it returns ErrSingularInnovation and leaves the
// stored state untouched.
func (f *MotionFilter) Update(mx, my float64) (sx, sy float64, err error) {
	if !f.seeded {
		f.Reset(mx, my)
		return mx, my, nil
	}

	dt := f.cfg.Dt
	q := f.adaptiveQScale(f.lastResidual)

	// Predict state: x' = F * x (constant velocity)
	var xp [4]float64
	xp[0] = f.x[0] + f.x[1]*dt
	xp[1] = f.x[1]
	xp[2] = f.x[2] + f.x[3]*dt
	xp[3] = f.x[3]

	// Predict covariance: P' = F * P * F^T + Q
	// F advances rows 0 and 2 by dt times rows 1 and 3.
	var fp [16]float64
	for j := 0; j < 4; j++ {
		fp[0*4+j] = f.p[0*4+j] + dt*f.p[1*4+j]
		fp[1*4+j] = f.p[1*4+j]
		fp[2*4+j] = f.p[2*4+j] + dt*f.p[3*4+j]
		fp[3*4+j] = f.p[3*4+j]
	}
	var pp [16]float64
	for i := 0; i < 4; i++ {
		pp[i*4+0] = fp[i*4+0] + dt*fp[i*4+1]
		pp[i*4+1] = fp[i*4+1]
		pp[i*4+2] = fp[i*4+2] + dt*fp[i*4+3]
		pp[i*4+3] = fp[i*4+3]
	}
	for i := 0; i < 4; i++ {
		pp[i*4+i] += q
	}

	// Innovation (H selects positions: rows 0 and 2)
	yX := mx - xp[0]
	yY := my - xp[2]

	// Innovation covariance S = H * P' * H^T + R
	r := f.cfg.MeasurementNoise
	s00 := pp[0*4+0] + r
	s01 := pp[0*4+2]
	s10 := pp[2*4+0]
	s11 := pp[2*4+2] + r

	det := s00*s11 - s01*s10
	if math.Abs(det) < minDeterminant {
		return 0, 0, ErrSingularInnovation
	}
	invS00 := s11 / det
	invS01 := -s01 / det
	invS10 := -s10 / det
	invS11 := s00 / det

	// Kalman gain K = P' * H^T * S^-1 (4x2)
	var k [8]float64
	for i := 0; i < 4; i++ {
		k[i*2+0] = pp[i*4+0]*invS00 + pp[i*4+2]*invS10
		k[i*2+1] = pp[i*4+0]*invS01 + pp[i*4+2]*invS11
	}

	// Posterior state: x = x' + K * y
	for i := 0; i < 4; i++ {
		xp[i] += k[i*2+0]*yX + k[i*2+1]*yY
	}

	// Posterior covariance: P = (I - K*H) * P'
	// (K*H)[i][0] = K[i][0], (K*H)[i][2] = K[i][1], zero elsewhere.
	var ikh [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			identity := 0.0
			if i == j {
				identity = 1
			}
			var kh float64
			switch j {
			case 0:
				kh = k[i*2+0]
			case 2:
				kh = k[i*2+1]
			}
			ikh[i*4+j] = identity - kh
		}
	}
	var np [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for l := 0; l < 4; l++ {
				sum += ikh[i*4+l] * pp[l*4+j]
			}
			np[i*4+j] = sum
		}
	}

	// Commit only once the full step has succeeded.
	f.x = xp
	f.p = np
	f.qScale = q
	f.lastResidual = math.Hypot(yX, yY)

	f.history = append(f.history, MotionRecord{
		MeasX:  mx,
		MeasY:  my,
		EstX:   f.x[0],
		EstY:   f.x[2],
		QScale: q,
	})

	sx = f.x[0] + f.x[1]*f.cfg.Lookahead
	sy = f.x[2] + f.x[3]*f.cfg.Lookahead
	return sx, sy, nil
}
