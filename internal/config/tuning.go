package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Fields are pointers so a partial JSON file only overrides what it
// names; the Get* accessors supply defaults for everything else.
type TuningConfig struct {
	// Phase filter params
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`

	// Mode controller params
	FidelityThreshold *float64 `json:"fidelity_threshold,omitempty"`
	Hysteresis        *float64 `json:"hysteresis,omitempty"`

	// Execution params
	Shots              *int `json:"shots,omitempty"`
	MonitoringShots    *int `json:"monitoring_shots,omitempty"`
	MonitoringInterval *int `json:"monitoring_interval,omitempty"`

	// Motion filter params
	MotionDt               *float64 `json:"motion_dt,omitempty"`
	MotionMeasurementNoise *float64 `json:"motion_measurement_noise,omitempty"`
	InitialCovariance      *float64 `json:"initial_covariance,omitempty"`
	AdaptiveBase           *float64 `json:"adaptive_base,omitempty"`
	AdaptiveGain           *float64 `json:"adaptive_gain,omitempty"`
	AdaptiveCap            *float64 `json:"adaptive_cap,omitempty"`
	LookaheadSecs          *float64 `json:"lookahead_secs,omitempty"`

	// Drift tracker params
	SurvivalThreshold *float64 `json:"survival_threshold,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields
// omitted from the JSON retain their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ProcessNoise != nil && *c.ProcessNoise < 0 {
		return fmt.Errorf("process_noise must be non-negative, got %f", *c.ProcessNoise)
	}
	if c.MeasurementNoise != nil && *c.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement_noise must be positive, got %f", *c.MeasurementNoise)
	}
	if c.FidelityThreshold != nil {
		if *c.FidelityThreshold <= 0 || *c.FidelityThreshold >= 1 {
			return fmt.Errorf("fidelity_threshold must be in (0, 1), got %f", *c.FidelityThreshold)
		}
	}
	if c.Hysteresis != nil && *c.Hysteresis < 0 {
		return fmt.Errorf("hysteresis must be non-negative, got %f", *c.Hysteresis)
	}
	if c.Shots != nil && *c.Shots <= 0 {
		return fmt.Errorf("shots must be positive, got %d", *c.Shots)
	}
	if c.MonitoringShots != nil && *c.MonitoringShots <= 0 {
		return fmt.Errorf("monitoring_shots must be positive, got %d", *c.MonitoringShots)
	}
	if c.MonitoringInterval != nil && *c.MonitoringInterval <= 0 {
		return fmt.Errorf("monitoring_interval must be positive, got %d", *c.MonitoringInterval)
	}
	if c.MotionDt != nil && *c.MotionDt <= 0 {
		return fmt.Errorf("motion_dt must be positive, got %f", *c.MotionDt)
	}
	if c.MotionMeasurementNoise != nil && *c.MotionMeasurementNoise <= 0 {
		return fmt.Errorf("motion_measurement_noise must be positive, got %f", *c.MotionMeasurementNoise)
	}
	if c.InitialCovariance != nil && *c.InitialCovariance <= 0 {
		return fmt.Errorf("initial_covariance must be positive, got %f", *c.InitialCovariance)
	}
	if c.AdaptiveBase != nil && *c.AdaptiveBase < 0 {
		return fmt.Errorf("adaptive_base must be non-negative, got %f", *c.AdaptiveBase)
	}
	if c.AdaptiveGain != nil && *c.AdaptiveGain < 0 {
		return fmt.Errorf("adaptive_gain must be non-negative, got %f", *c.AdaptiveGain)
	}
	if c.AdaptiveCap != nil && *c.AdaptiveCap < 0 {
		return fmt.Errorf("adaptive_cap must be non-negative, got %f", *c.AdaptiveCap)
	}
	if c.LookaheadSecs != nil && *c.LookaheadSecs < 0 {
		return fmt.Errorf("lookahead_secs must be non-negative, got %f", *c.LookaheadSecs)
	}
	if c.SurvivalThreshold != nil {
		if *c.SurvivalThreshold <= 0 || *c.SurvivalThreshold >= 1 {
			return fmt.Errorf("survival_threshold must be in (0, 1), got %f", *c.SurvivalThreshold)
		}
	}
	return nil
}

// GetProcessNoise returns the process_noise value or the default.
func (c *TuningConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 0.01
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.05
	}
	return *c.MeasurementNoise
}

// GetFidelityThreshold returns the fidelity_threshold value or the default.
func (c *TuningConfig) GetFidelityThreshold() float64 {
	if c.FidelityThreshold == nil {
		return 0.90
	}
	return *c.FidelityThreshold
}

// GetHysteresis returns the hysteresis value or the default.
func (c *TuningConfig) GetHysteresis() float64 {
	if c.Hysteresis == nil {
		return 0.02
	}
	return *c.Hysteresis
}

// GetShots returns the shots value or the default.
func (c *TuningConfig) GetShots() int {
	if c.Shots == nil {
		return 4096
	}
	return *c.Shots
}

// GetMonitoringShots returns the monitoring_shots value or the default.
func (c *TuningConfig) GetMonitoringShots() int {
	if c.MonitoringShots == nil {
		return 1024
	}
	return *c.MonitoringShots
}

// GetMonitoringInterval returns the monitoring_interval value or the default.
func (c *TuningConfig) GetMonitoringInterval() int {
	if c.MonitoringInterval == nil {
		return 5
	}
	return *c.MonitoringInterval
}

// GetMotionDt returns the motion_dt value or the default.
func (c *TuningConfig) GetMotionDt() float64 {
	if c.MotionDt == nil {
		return 0.015
	}
	return *c.MotionDt
}

// GetMotionMeasurementNoise returns the motion_measurement_noise value or the default.
func (c *TuningConfig) GetMotionMeasurementNoise() float64 {
	if c.MotionMeasurementNoise == nil {
		return 100.0
	}
	return *c.MotionMeasurementNoise
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *TuningConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return 100.0
	}
	return *c.InitialCovariance
}

// GetAdaptiveBase returns the adaptive_base value or the default.
func (c *TuningConfig) GetAdaptiveBase() float64 {
	if c.AdaptiveBase == nil {
		return 0.001
	}
	return *c.AdaptiveBase
}

// GetAdaptiveGain returns the adaptive_gain value or the default.
func (c *TuningConfig) GetAdaptiveGain() float64 {
	if c.AdaptiveGain == nil {
		return 0.2
	}
	return *c.AdaptiveGain
}

// GetAdaptiveCap returns the adaptive_cap value or the default.
func (c *TuningConfig) GetAdaptiveCap() float64 {
	if c.AdaptiveCap == nil {
		return 80.0
	}
	return *c.AdaptiveCap
}

// GetLookaheadSecs returns the lookahead_secs value or the default.
func (c *TuningConfig) GetLookaheadSecs() float64 {
	if c.LookaheadSecs == nil {
		return 0.08
	}
	return *c.LookaheadSecs
}

// GetSurvivalThreshold returns the survival_threshold value or the default.
func (c *TuningConfig) GetSurvivalThreshold() float64 {
	if c.SurvivalThreshold == nil {
		return 0.82
	}
	return *c.SurvivalThreshold
}
