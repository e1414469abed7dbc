// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import (
	"fmt"
	"strings"
)

// Explain renders a deterministic human-readable report for an analysis.
// Identical analyses always render identical text.
func Explain(a *Analysis) string {
	if a == nil {
		return "no confidence analysis"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Confidence: %.3f (%s)\n", a.FinalConfidence, qualitativeLabel(a.FinalConfidence))
	fmt.Fprintf(&b, "Method: %s\n", a.Method)
	fmt.Fprintf(&b, "Provider: %s\n", a.Provider)
	b.WriteString("\n")

	b.WriteString("Signals:\n")
	fmt.Fprintf(&b, "  semantic quality: %.3f\n", a.SemanticConfidence)
	if a.LogprobsConfidence != nil {
		fmt.Fprintf(&b, "  logprobs:         %.3f\n", *a.LogprobsConfidence)
	} else {
		b.WriteString("  logprobs:         not available\n")
	}
	if a.AlignmentScore != nil {
		fmt.Fprintf(&b, "  alignment:        %.3f\n", *a.AlignmentScore)
	} else {
		b.WriteString("  alignment:        not available\n")
	}
	if a.QueryDifficulty != nil {
		fmt.Fprintf(&b, "  query difficulty: %.3f\n", *a.QueryDifficulty)
	} else {
		b.WriteString("  query difficulty: not available\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Calibration: base %.3f x %.2f - temperature %.3f + finish %+.3f = %.3f\n",
		a.Components["base"],
		a.Components["base_multiplier"],
		a.Components["temperature_penalty"],
		a.Components["finish_adjustment"],
		a.CalibratedConfidence)

	if a.FloorApplied {
		fmt.Fprintf(&b, "WARNING: alignment floor (%s) capped the confidence, reduced by %.3f\n",
			a.FloorSeverity, a.FloorReduction)
	}

	return b.String()
}

// qualitativeLabel buckets a confidence value for human consumption.
func qualitativeLabel(confidence float64) string {
	switch {
	case confidence >= 0.80:
		return "very high"
	case confidence >= 0.65:
		return "high"
	case confidence >= 0.50:
		return "moderate"
	case confidence >= 0.35:
		return "low"
	default:
		return "very low"
	}
}
