package model

import (
	"math"
	"time"
)

// Range is an inclusive numeric bound for a tunable value.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether value lies within the range.
func (r Range) Contains(value float64) bool {
	return !math.IsNaN(value) && value >= r.Min && value <= r.Max
}

// Clamp limits value to the range. NaN maps to Min.
func (r Range) Clamp(value float64) float64 {
	if math.IsNaN(value) || value < r.Min {
		return r.Min
	}
	if value > r.Max {
		return r.Max
	}
	return value
}

var (
	FrequencyRange = Range{Min: 200, Max: 8000}
	ThresholdRange = Range{Min: -90, Max: -20}
	HoldRange      = Range{Min: 20, Max: 300}
)

const (
	MinSensitivity = 1
	MaxSensitivity = 5
)

const (
	DefaultFrequencyHz = 2500
	DefaultThresholdDB = -45
	DefaultHoldMs      = 80
	DefaultSensitivity = 3
)

// SensitivityPreset is the threshold/hold pair a sensitivity level maps to.
type SensitivityPreset struct {
	ThresholdDB float64
	HoldMs      float64
}

var sensitivityPresets = [MaxSensitivity + 1]SensitivityPreset{
	1: {ThresholdDB: -35, HoldMs: 150},
	2: {ThresholdDB: -40, HoldMs: 120},
	3: {ThresholdDB: -45, HoldMs: 80},
	4: {ThresholdDB: -50, HoldMs: 60},
	5: {ThresholdDB: -55, HoldMs: 50},
}

// ClampSensitivity limits level to 1..5.
func ClampSensitivity(level int) int {
	if level < MinSensitivity {
		return MinSensitivity
	}
	if level > MaxSensitivity {
		return MaxSensitivity
	}
	return level
}

// PresetFor returns the preset for a sensitivity level, clamping the level first.
func PresetFor(level int) SensitivityPreset {
	return sensitivityPresets[ClampSensitivity(level)]
}

// DetectorSettings contains the tunable auto-start parameters.
type DetectorSettings struct {
	Enabled           bool
	TargetFrequencyHz float64
	ThresholdDB       float64
	HoldMs            float64
	Sensitivity       int
}

// DefaultDetectorSettings returns the settings used when nothing valid is persisted.
func DefaultDetectorSettings() DetectorSettings {
	return DetectorSettings{
		Enabled:           false,
		TargetFrequencyHz: DefaultFrequencyHz,
		ThresholdDB:       DefaultThresholdDB,
		HoldMs:            DefaultHoldMs,
		Sensitivity:       DefaultSensitivity,
	}
}

// Hold converts HoldMs to a duration.
func (settings DetectorSettings) Hold() time.Duration {
	return time.Duration(settings.HoldMs * float64(time.Millisecond))
}
