// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/traylinx/cascadegate/internal/complexity"
	"github.com/traylinx/cascadegate/internal/confidence"
)

// Named threshold presets. Thresholds rise with complexity everywhere except
// production, whose per-bucket bars fall as complexity rises.
const (
	PresetProduction  = "production"
	PresetDevelopment = "development"
	PresetStrict      = "strict"
	PresetCascade     = "cascade"
	PresetPermissive  = "permissive"
)

// Preset returns a named threshold profile. Alignment floors are derived
// from the same floor policy the confidence estimator applies.
func Preset(name string) (Profile, error) {
	policy := confidence.DefaultFloorPolicy()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetProduction:
		return Profile{
			Name:          PresetProduction,
			MinConfidence: 0.55,
			Thresholds: map[complexity.Bucket]float64{
				complexity.Trivial:  0.55,
				complexity.Simple:   0.50,
				complexity.Moderate: 0.45,
				complexity.Hard:     0.42,
				complexity.Expert:   0.40,
			},
			MinWordCount:        5,
			MinAlignmentScore:   policy.Severe,
			UseLogprobs:         true,
			UseAlignmentScoring: true,
			FallbackToHeuristic: true,
		}, nil
	case PresetDevelopment:
		return Profile{
			Name:          PresetDevelopment,
			MinConfidence: 0.70,
			Thresholds: map[complexity.Bucket]float64{
				complexity.Trivial:  0.50,
				complexity.Simple:   0.60,
				complexity.Moderate: 0.70,
				complexity.Hard:     0.75,
				complexity.Expert:   0.80,
			},
			MinWordCount:        8,
			MinAlignmentScore:   policy.Severe,
			UseLogprobs:         true,
			UseAlignmentScoring: true,
			FallbackToHeuristic: true,
		}, nil
	case PresetStrict:
		return Profile{
			Name:          PresetStrict,
			MinConfidence: 0.85,
			Thresholds: map[complexity.Bucket]float64{
				complexity.Trivial:  0.70,
				complexity.Simple:   0.80,
				complexity.Moderate: 0.85,
				complexity.Hard:     0.90,
				complexity.Expert:   0.95,
			},
			MinWordCount:          15,
			MinAlignmentScore:     policy.VeryPoor,
			UseLogprobs:           true,
			UseAlignmentScoring:   true,
			UseSemanticValidation: true,
			StrictMode:            true,
			FallbackToHeuristic:   true,
			SemanticThreshold:     0.60,
		}, nil
	case PresetCascade:
		return Profile{
			Name:          PresetCascade,
			MinConfidence: 0.55,
			Thresholds: map[complexity.Bucket]float64{
				complexity.Trivial:  0.25,
				complexity.Simple:   0.40,
				complexity.Moderate: 0.55,
				complexity.Hard:     0.70,
				complexity.Expert:   0.80,
			},
			MinWordCount:        5,
			MinAlignmentScore:   0.12,
			UseLogprobs:         true,
			UseAlignmentScoring: true,
			FallbackToHeuristic: true,
		}, nil
	case PresetPermissive:
		return Profile{
			Name:          PresetPermissive,
			MinConfidence: 0.50,
			Thresholds: map[complexity.Bucket]float64{
				complexity.Trivial:  0.25,
				complexity.Simple:   0.40,
				complexity.Moderate: 0.50,
				complexity.Hard:     0.60,
				complexity.Expert:   0.70,
			},
			MinWordCount:        3,
			MinAlignmentScore:   0.10,
			UseLogprobs:         true,
			UseAlignmentScoring: true,
			FallbackToHeuristic: true,
		}, nil
	default:
		return Profile{}, fmt.Errorf("unknown quality preset %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
}

// MustPreset returns a named preset and panics on unknown names. Intended
// for package-level defaults where the name is a compile-time constant.
func MustPreset(name string) Profile {
	profile, err := Preset(name)
	if err != nil {
		panic(err)
	}
	return profile
}

// PresetNames lists the known preset names in sorted order.
func PresetNames() []string {
	names := []string{
		PresetProduction,
		PresetDevelopment,
		PresetStrict,
		PresetCascade,
		PresetPermissive,
	}
	sort.Strings(names)
	return names
}
