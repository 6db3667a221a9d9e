package drift

import "fmt"

// Mode is the discrete execution mode selected by the controller.
type Mode int

const (
	ModeNominal    Mode = 0 // direct execution, no correction
	ModeCorrective Mode = 1 // phase correction active
)

func (m Mode) String() string {
	switch m {
	case ModeNominal:
		return "nominal"
	case ModeCorrective:
		return "corrective"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ModeControllerConfig holds the switching thresholds.
type ModeControllerConfig struct {
	Threshold  float64 // quality metric below this enters corrective mode
	Hysteresis float64 // recovery margin above threshold to leave it
}

// DefaultModeControllerConfig returns the default switching configuration.
func DefaultModeControllerConfig() ModeControllerConfig {
	return ModeControllerConfig{
		Threshold:  0.90,
		Hysteresis: 0.02,
	}
}

// ModeController converts a continuous quality metric into a stable
// discrete mode. The dead zone [threshold, threshold+hysteresis] absorbs
// metric jitter so the mode cannot oscillate at the boundary.
//
// Transitions:
//
//	Nominal    -> Corrective  when metric < threshold
//	Corrective -> Nominal     when metric > threshold + hysteresis
type ModeController struct {
	threshold  float64
	hysteresis float64

	mode          Mode
	metricHistory []float64
}

// NewModeController creates a controller. Threshold must lie in (0, 1)
// and hysteresis must be non-negative.
func NewModeController(cfg ModeControllerConfig) (*ModeController, error) {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1), got %v", cfg.Threshold)
	}
	if cfg.Hysteresis < 0 {
		return nil, fmt.Errorf("hysteresis must be non-negative, got %v", cfg.Hysteresis)
	}
	return &ModeController{
		threshold:  cfg.Threshold,
		hysteresis: cfg.Hysteresis,
		mode:       ModeNominal,
	}, nil
}

// CheckModeSwitch feeds a fresh quality metric to the controller and
// returns the (possibly updated) mode.
func (c *ModeController) CheckModeSwitch(metric float64) Mode {
	switch c.mode {
	case ModeNominal:
		if metric < c.threshold {
			c.mode = ModeCorrective
		}
	case ModeCorrective:
		if metric > c.threshold+c.hysteresis {
			c.mode = ModeNominal
		}
	}
	c.metricHistory = append(c.metricHistory, metric)
	return c.mode
}

// Mode returns the current mode without recording a metric.
func (c *ModeController) Mode() Mode {
	return c.mode
}

// MetricHistory returns a copy of the recorded metric sequence.
func (c *ModeController) MetricHistory() []float64 {
	out := make([]float64, len(c.metricHistory))
	copy(out, c.metricHistory)
	return out
}

// Reset returns the controller to nominal mode and clears the metric
// history. Thresholds are retained.
func (c *ModeController) Reset() {
	c.mode = ModeNominal
	c.metricHistory = nil
}
