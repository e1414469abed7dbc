// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package quality

import (
	"testing"

	"github.com/traylinx/cascadegate/internal/complexity"
	"github.com/traylinx/cascadegate/internal/confidence"
)

var orderedBuckets = []complexity.Bucket{
	complexity.Trivial,
	complexity.Simple,
	complexity.Moderate,
	complexity.Hard,
	complexity.Expert,
}

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		profile, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%s): %v", name, err)
		}
		if err := profile.Validate(); err != nil {
			t.Errorf("preset %s does not validate: %v", name, err)
		}
		if profile.Name != name {
			t.Errorf("preset %s reports name %s", name, profile.Name)
		}
		if len(profile.Thresholds) != len(orderedBuckets) {
			t.Errorf("preset %s covers %d buckets, want %d", name, len(profile.Thresholds), len(orderedBuckets))
		}
	}
}

func TestPresetThresholdOrdering(t *testing.T) {
	// From most to least demanding at every bucket.
	order := []string{PresetStrict, PresetDevelopment, PresetCascade, PresetPermissive}

	profiles := make([]Profile, len(order))
	for i, name := range order {
		profile, err := Preset(name)
		if err != nil {
			t.Fatal(err)
		}
		profiles[i] = profile
	}

	for _, bucket := range orderedBuckets {
		for i := 1; i < len(profiles); i++ {
			stricter, looser := profiles[i-1], profiles[i]
			if stricter.Threshold(bucket) < looser.Threshold(bucket) {
				t.Errorf("%s %s threshold %.2f below %s %.2f",
					stricter.Name, bucket, stricter.Threshold(bucket), looser.Name, looser.Threshold(bucket))
			}
		}
	}
}

func TestProductionThresholdsFallWithComplexity(t *testing.T) {
	profile, err := Preset(PresetProduction)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(orderedBuckets); i++ {
		prev := profile.Threshold(orderedBuckets[i-1])
		cur := profile.Threshold(orderedBuckets[i])
		if cur > prev {
			t.Errorf("production threshold rises from %s %.2f to %s %.2f",
				orderedBuckets[i-1], prev, orderedBuckets[i], cur)
		}
	}
}

func TestPresetAlignmentFloorsTrackPolicy(t *testing.T) {
	policy := confidence.DefaultFloorPolicy()

	tests := []struct {
		preset string
		want   float64
	}{
		{PresetProduction, policy.Severe},
		{PresetDevelopment, policy.Severe},
		{PresetStrict, policy.VeryPoor},
		{PresetCascade, 0.12},
		{PresetPermissive, 0.10},
	}
	for _, tt := range tests {
		profile, err := Preset(tt.preset)
		if err != nil {
			t.Fatal(err)
		}
		if profile.MinAlignmentScore != tt.want {
			t.Errorf("%s alignment floor = %.2f, want %.2f", tt.preset, profile.MinAlignmentScore, tt.want)
		}
	}
}

func TestPresetUnknownName(t *testing.T) {
	if _, err := Preset("industrial"); err == nil {
		t.Error("expected error for unknown preset")
	}
	if _, err := Preset(""); err == nil {
		t.Error("expected error for empty preset name")
	}
}

func TestPresetNameNormalization(t *testing.T) {
	profile, err := Preset("  Production ")
	if err != nil {
		t.Fatalf("expected case and space insensitive lookup: %v", err)
	}
	if profile.Name != PresetProduction {
		t.Errorf("got %s", profile.Name)
	}
}

func TestMustPresetPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustPreset("industrial")
}
