// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package quality implements the accept-or-escalate gate. A Validator built
// from an immutable threshold profile scores draft responses and returns a
// structured pass/fail verdict with reasons.
package quality

import (
	"fmt"

	"github.com/traylinx/cascadegate/internal/complexity"
)

// Profile is an immutable threshold configuration for a Validator.
// Construct one via a preset or config and validate it before use.
type Profile struct {
	Name string `json:"name"`

	// MinConfidence is the fallback threshold for buckets missing from
	// Thresholds.
	MinConfidence float64 `json:"min_confidence"`

	// Thresholds maps complexity buckets to confidence thresholds.
	Thresholds map[complexity.Bucket]float64 `json:"thresholds"`

	// MinWordCount is the minimum acceptable response length in words.
	MinWordCount int `json:"min_word_count"`

	// MinAlignmentScore is the binary alignment floor checked when
	// UseAlignmentScoring is set.
	MinAlignmentScore float64 `json:"min_alignment_score"`

	UseLogprobs           bool `json:"use_logprobs"`
	UseAlignmentScoring   bool `json:"use_alignment_scoring"`
	UseSemanticValidation bool `json:"use_semantic_validation"`
	StrictMode            bool `json:"strict_mode"`
	FallbackToHeuristic   bool `json:"fallback_to_heuristic"`

	// SemanticThreshold is the minimum external similarity when
	// UseSemanticValidation is set.
	SemanticThreshold float64 `json:"semantic_threshold,omitempty"`
}

// Validate checks the profile for construction-time errors.
func (p Profile) Validate() error {
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("profile %s: min confidence %.2f outside [0,1]", p.Name, p.MinConfidence)
	}
	for bucket, threshold := range p.Thresholds {
		if !bucket.Valid() {
			return fmt.Errorf("profile %s: unknown complexity bucket %q", p.Name, bucket)
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("profile %s: threshold %.2f for %s outside [0,1]", p.Name, threshold, bucket)
		}
	}
	if p.MinWordCount < 0 {
		return fmt.Errorf("profile %s: negative min word count %d", p.Name, p.MinWordCount)
	}
	if p.MinAlignmentScore < 0 || p.MinAlignmentScore > 1 {
		return fmt.Errorf("profile %s: min alignment score %.2f outside [0,1]", p.Name, p.MinAlignmentScore)
	}
	if p.UseSemanticValidation {
		if p.SemanticThreshold <= 0 || p.SemanticThreshold > 1 {
			return fmt.Errorf("profile %s: semantic validation enabled with threshold %.2f", p.Name, p.SemanticThreshold)
		}
	}
	return nil
}

// Threshold returns the confidence threshold for a bucket, falling back to
// MinConfidence for buckets the profile does not map.
func (p Profile) Threshold(bucket complexity.Bucket) float64 {
	if threshold, ok := p.Thresholds[bucket]; ok {
		return threshold
	}
	return p.MinConfidence
}
