// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import "strings"

// Floor severity labels recorded on an Analysis when the alignment safety
// floor fires.
const (
	FloorSevere   = "severe"
	FloorVeryPoor = "very_poor"
	FloorPoor     = "poor"
)

// FloorPolicy holds the alignment thresholds and confidence caps for the
// safety floor. The estimator's progressive cap and the validator presets
// read the same policy so the two mechanisms cannot drift apart.
type FloorPolicy struct {
	// Severe, VeryPoor and Poor are alignment thresholds in rising order.
	Severe   float64 `json:"severe"`
	VeryPoor float64 `json:"very_poor"`
	Poor     float64 `json:"poor"`
	// Caps are the confidence ceilings applied per tier.
	SevereCap   float64 `json:"severe_cap"`
	VeryPoorCap float64 `json:"very_poor_cap"`
	PoorCap     float64 `json:"poor_cap"`
}

// DefaultFloorPolicy returns the built-in floor thresholds.
func DefaultFloorPolicy() FloorPolicy {
	return FloorPolicy{
		Severe:   0.15,
		VeryPoor: 0.20,
		Poor:     0.25,

		SevereCap:   0.30,
		VeryPoorCap: 0.35,
		PoorCap:     0.40,
	}
}

// Cap returns the severity label and confidence cap for an alignment score,
// or ok=false when the score is above every floor tier.
func (p FloorPolicy) Cap(alignment float64) (severity string, cap float64, ok bool) {
	switch {
	case alignment < p.Severe:
		return FloorSevere, p.SevereCap, true
	case alignment < p.VeryPoor:
		return FloorVeryPoor, p.VeryPoorCap, true
	case alignment < p.Poor:
		return FloorPoor, p.PoorCap, true
	}
	return "", 0, false
}

// Calibration adjusts raw confidence for a provider's observed reliability.
// Calibrations are immutable after construction.
type Calibration struct {
	// BaseMultiplier scales the combined signal, within [0.8, 1.0].
	BaseMultiplier float64 `json:"base_multiplier"`
	// MinConfidence and MaxConfidence bound the final value.
	MinConfidence float64 `json:"min_confidence"`
	MaxConfidence float64 `json:"max_confidence"`
	// FreeTemperature is the sampling temperature below which no penalty
	// applies; above it the penalty grows by PenaltySlope per unit of
	// temperature up to MaxTemperaturePenalty.
	FreeTemperature       float64 `json:"free_temperature"`
	PenaltySlope          float64 `json:"penalty_slope"`
	MaxTemperaturePenalty float64 `json:"max_temperature_penalty"`
	// FinishAdjust maps normalized finish reasons to additive adjustments.
	FinishAdjust map[string]float64 `json:"finish_adjust,omitempty"`
}

// TemperaturePenalty returns the confidence penalty for a sampling
// temperature. The penalty is monotonically non-decreasing in temperature.
func (c Calibration) TemperaturePenalty(temperature float64) float64 {
	if temperature <= c.FreeTemperature {
		return 0
	}
	penalty := (temperature - c.FreeTemperature) * c.PenaltySlope
	if penalty > c.MaxTemperaturePenalty {
		penalty = c.MaxTemperaturePenalty
	}
	return penalty
}

// FinishAdjustment returns the additive adjustment for a finish reason.
// Unknown reasons adjust nothing.
func (c Calibration) FinishAdjustment(reason string) float64 {
	if reason == "" || c.FinishAdjust == nil {
		return 0
	}
	return c.FinishAdjust[strings.ToLower(strings.TrimSpace(reason))]
}

// builtinCalibrations returns the default per-provider calibration table.
func builtinCalibrations() map[string]Calibration {
	return map[string]Calibration{
		"openai": {
			BaseMultiplier:        1.0,
			MinConfidence:         0.05,
			MaxConfidence:         0.97,
			FreeTemperature:       0.7,
			PenaltySlope:          0.15,
			MaxTemperaturePenalty: 0.25,
			FinishAdjust: map[string]float64{
				"stop":   0.02,
				"length": -0.10,
			},
		},
		"anthropic": {
			BaseMultiplier:        0.95,
			MinConfidence:         0.05,
			MaxConfidence:         0.95,
			FreeTemperature:       0.7,
			PenaltySlope:          0.15,
			MaxTemperaturePenalty: 0.25,
			FinishAdjust: map[string]float64{
				"end_turn":   0.02,
				"stop":       0.02,
				"max_tokens": -0.10,
				"length":     -0.10,
			},
		},
		"ollama": {
			BaseMultiplier:        0.85,
			MinConfidence:         0.05,
			MaxConfidence:         0.92,
			FreeTemperature:       0.5,
			PenaltySlope:          0.20,
			MaxTemperaturePenalty: 0.30,
			FinishAdjust: map[string]float64{
				"stop":   0.01,
				"length": -0.12,
			},
		},
		defaultProvider: {
			BaseMultiplier:        0.90,
			MinConfidence:         0.05,
			MaxConfidence:         0.95,
			FreeTemperature:       0.7,
			PenaltySlope:          0.15,
			MaxTemperaturePenalty: 0.25,
			FinishAdjust: map[string]float64{
				"stop":   0.01,
				"length": -0.10,
			},
		},
	}
}

const defaultProvider = "default"
