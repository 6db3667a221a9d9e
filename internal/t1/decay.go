// Package t1 fits relaxation-time decay curves and derives adaptive
// correction-interval recommendations from them.
package t1

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Interval clamp and fallback for the recommendation, in microseconds.
const (
	MinIntervalUs      = 5.0
	MaxIntervalUs      = 100.0
	FallbackIntervalUs = 20.0
)

// DecayFit is the result of fitting A*exp(-t/T1) to survival data.
type DecayFit struct {
	T1Us      float64 `json:"t1_us"`     // relaxation time constant
	Amplitude float64 `json:"amplitude"` // survival extrapolated to t=0
}

// Survival returns the fitted survival probability at delay t (µs).
func (f DecayFit) Survival(tUs float64) float64 {
	return f.Amplitude * math.Exp(-tUs/f.T1Us)
}

// FitDecay fits A*exp(-t/T1) to (delay, survival) points by linear
// regression on log survival. Points with non-positive survival carry no
// information about the exponential and are skipped. At least two usable
// points are required, and the fitted decay must actually decay.
func FitDecay(delaysUs, survivals []float64) (DecayFit, error) {
	if len(delaysUs) != len(survivals) {
		return DecayFit{}, fmt.Errorf("mismatched lengths: %d delays, %d survivals", len(delaysUs), len(survivals))
	}

	var ts, logs []float64
	for i, s := range survivals {
		if s <= 0 {
			continue
		}
		ts = append(ts, delaysUs[i])
		logs = append(logs, math.Log(s))
	}
	if len(ts) < 2 {
		return DecayFit{}, fmt.Errorf("need at least 2 positive survival points, got %d", len(ts))
	}

	// log s = log A - t/T1
	alpha, beta := stat.LinearRegression(ts, logs, nil, false)
	if beta >= 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return DecayFit{}, fmt.Errorf("survival data does not decay (slope %v)", beta)
	}

	return DecayFit{
		T1Us:      -1 / beta,
		Amplitude: math.Exp(alpha),
	}, nil
}

// RecommendInterval returns the correction interval at which fitted
// survival falls to the given threshold: -T1*ln(threshold), clamped to
// [MinIntervalUs, MaxIntervalUs]. Invalid inputs fall back to the fixed
// default interval so a failed fit never stalls the correction loop.
func RecommendInterval(t1Us, threshold float64) float64 {
	if t1Us <= 0 || math.IsNaN(t1Us) || threshold <= 0 || threshold >= 1 {
		return FallbackIntervalUs
	}
	interval := -t1Us * math.Log(threshold)
	if interval < MinIntervalUs {
		return MinIntervalUs
	}
	if interval > MaxIntervalUs {
		return MaxIntervalUs
	}
	return interval
}
