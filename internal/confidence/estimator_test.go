// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package confidence

import (
	"strings"
	"testing"
)

const (
	offTopicQuery    = "What is the boiling point of water at sea level?"
	offTopicResponse = "The Eiffel Tower was completed in 1889 and attracts millions of visitors every year."
	fluentResponse   = "The cache evicts the oldest entry when it is full and stores 128 items by default."
	btreeQuery       = "How does a B-tree split work?"
	btreeResponse    = "A B-tree splits a full node by moving the median key up and dividing the rest into two nodes."
)

func strongLogprobs(n int) []float64 {
	logprobs := make([]float64, n)
	for i := range logprobs {
		logprobs[i] = 0.05
	}
	return logprobs
}

func mustEstimator(t *testing.T, opts ...Option) *Estimator {
	t.Helper()
	e, err := NewEstimator(opts...)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	return e
}

func TestEstimateEmptyResponse(t *testing.T) {
	e := mustEstimator(t)

	got := e.Estimate("", Options{})
	if got.FinalConfidence > 0.3 {
		t.Errorf("FinalConfidence = %.3f, want <= 0.3 for an empty response", got.FinalConfidence)
	}
	if got.Method != MethodSemantic {
		t.Errorf("Method = %q, want %q", got.Method, MethodSemantic)
	}
	if got.FinalConfidence < 0.05 {
		t.Errorf("FinalConfidence = %.3f, want >= provider minimum 0.05", got.FinalConfidence)
	}
}

func TestMethodSelection(t *testing.T) {
	e := mustEstimator(t)

	tests := []struct {
		name string
		opts Options
		want Method
	}{
		{
			name: "no signals",
			opts: Options{},
			want: MethodSemantic,
		},
		{
			name: "logprobs only",
			opts: Options{Logprobs: strongLogprobs(5)},
			want: MethodHybrid,
		},
		{
			name: "query only",
			opts: Options{Query: btreeQuery},
			want: MethodMultiSignalSemantic,
		},
		{
			name: "all signals",
			opts: Options{Query: btreeQuery, Logprobs: strongLogprobs(5)},
			want: MethodMultiSignalHybrid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Estimate(fluentResponse, tt.opts)
			if got.Method != tt.want {
				t.Errorf("Method = %q, want %q", got.Method, tt.want)
			}
		})
	}
}

func TestAlignmentFloorStopsFluentOffTopic(t *testing.T) {
	e := mustEstimator(t)

	got := e.Estimate(offTopicResponse, Options{
		Query:        offTopicQuery,
		Logprobs:     strongLogprobs(20),
		Provider:     "openai",
		FinishReason: "stop",
	})

	if got.AlignmentScore == nil {
		t.Fatal("expected an alignment score")
	}
	if *got.AlignmentScore >= 0.15 {
		t.Fatalf("AlignmentScore = %.3f, want < 0.15 for disjoint topics", *got.AlignmentScore)
	}
	if !got.FloorApplied {
		t.Fatal("expected FloorApplied")
	}
	if got.FloorSeverity != FloorSevere {
		t.Errorf("FloorSeverity = %q, want %q", got.FloorSeverity, FloorSevere)
	}
	if got.FloorReduction <= 0 {
		t.Errorf("FloorReduction = %.3f, want > 0", got.FloorReduction)
	}
	if got.FinalConfidence > 0.35 {
		t.Errorf("FinalConfidence = %.3f, want <= 0.35 despite strong logprobs", got.FinalConfidence)
	}
}

func TestFloorNotAppliedBelowCap(t *testing.T) {
	e := mustEstimator(t)

	// A weak, hedging response never climbs above the severe cap, so there
	// is nothing to reduce.
	got := e.Estimate("I don't know.", Options{Query: offTopicQuery})
	if got.FloorApplied {
		t.Errorf("FloorApplied = true with calibrated %.3f; nothing was reduced",
			got.CalibratedConfidence)
	}
	if got.FinalConfidence >= 0.3 {
		t.Errorf("FinalConfidence = %.3f, want < 0.3", got.FinalConfidence)
	}
}

func TestProviderOrdering(t *testing.T) {
	e := mustEstimator(t)

	logprobs := make([]float64, 10)
	for i := range logprobs {
		logprobs[i] = 0.1
	}

	openai := e.Estimate(fluentResponse, Options{Logprobs: logprobs, Provider: "openai"})
	anthropic := e.Estimate(fluentResponse, Options{Logprobs: logprobs, Provider: "anthropic"})
	ollama := e.Estimate(fluentResponse, Options{Logprobs: logprobs, Provider: "ollama"})

	if !(openai.FinalConfidence > anthropic.FinalConfidence) {
		t.Errorf("openai %.3f should exceed anthropic %.3f",
			openai.FinalConfidence, anthropic.FinalConfidence)
	}
	if !(anthropic.FinalConfidence > ollama.FinalConfidence) {
		t.Errorf("anthropic %.3f should exceed ollama %.3f",
			anthropic.FinalConfidence, ollama.FinalConfidence)
	}
}

func TestUnknownProviderUsesDefault(t *testing.T) {
	e := mustEstimator(t)

	unknown := e.Estimate(fluentResponse, Options{Provider: "mystery-cloud"})
	explicit := e.Estimate(fluentResponse, Options{Provider: "default"})

	if unknown.Provider != "default" {
		t.Errorf("Provider = %q, want %q", unknown.Provider, "default")
	}
	if unknown.FinalConfidence != explicit.FinalConfidence {
		t.Errorf("FinalConfidence = %.3f, want %.3f (default calibration)",
			unknown.FinalConfidence, explicit.FinalConfidence)
	}
}

func TestTemperaturePenaltyIsMonotone(t *testing.T) {
	e := mustEstimator(t)

	temps := []float64{0, 0.5, 0.9, 1.4, 2.0}
	prev := 2.0
	for _, temp := range temps {
		got := e.Estimate(fluentResponse, Options{Provider: "openai", Temperature: temp})
		if got.FinalConfidence > prev {
			t.Errorf("temperature %.1f raised confidence to %.3f from %.3f",
				temp, got.FinalConfidence, prev)
		}
		prev = got.FinalConfidence
	}
}

func TestFinishReasonAdjustment(t *testing.T) {
	e := mustEstimator(t)

	stop := e.Estimate(fluentResponse, Options{Provider: "openai", FinishReason: "stop"})
	none := e.Estimate(fluentResponse, Options{Provider: "openai"})
	truncated := e.Estimate(fluentResponse, Options{Provider: "openai", FinishReason: "length"})

	if !(stop.FinalConfidence > none.FinalConfidence) {
		t.Errorf("clean stop %.3f should exceed no finish reason %.3f",
			stop.FinalConfidence, none.FinalConfidence)
	}
	if !(none.FinalConfidence > truncated.FinalConfidence) {
		t.Errorf("no finish reason %.3f should exceed truncation %.3f",
			none.FinalConfidence, truncated.FinalConfidence)
	}
}

func TestQueryDifficultyOverride(t *testing.T) {
	e := mustEstimator(t)

	easy := 0.0
	hard := 1.0

	easyResult := e.Estimate(btreeResponse, Options{Query: btreeQuery, QueryDifficulty: &easy})
	hardResult := e.Estimate(btreeResponse, Options{Query: btreeQuery, QueryDifficulty: &hard})

	if easyResult.FinalConfidence <= hardResult.FinalConfidence {
		t.Errorf("easy query %.3f should score above hard query %.3f",
			easyResult.FinalConfidence, hardResult.FinalConfidence)
	}
	if *hardResult.QueryDifficulty != 1.0 {
		t.Errorf("QueryDifficulty = %.2f, want the override 1.0", *hardResult.QueryDifficulty)
	}
}

func TestNewEstimatorRejectsBadWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
	}{
		{name: "sum above one", weights: Weights{Logprobs: 0.7, Semantic: 0.4}},
		{name: "sum below one", weights: Weights{Logprobs: 0.5, Semantic: 0.4}},
		{name: "negative weight", weights: Weights{Logprobs: -0.1, Semantic: 1.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEstimator(WithWeights(MethodHybrid, tt.weights)); err == nil {
				t.Fatal("expected a construction error")
			}
		})
	}

	if _, err := NewEstimator(WithWeights(MethodHybrid, Weights{Logprobs: 0.5, Semantic: 0.5})); err != nil {
		t.Fatalf("valid weights rejected: %v", err)
	}
}

func TestNewEstimatorRejectsBadFloorPolicy(t *testing.T) {
	policy := DefaultFloorPolicy()
	policy.VeryPoor = 0.10 // below Severe

	if _, err := NewEstimator(WithFloorPolicy(policy)); err == nil {
		t.Fatal("expected a construction error for unordered floor tiers")
	}
}

func TestNewEstimatorRejectsBadCalibration(t *testing.T) {
	cal := Calibration{BaseMultiplier: 0.5, MinConfidence: 0.05, MaxConfidence: 0.95}
	if _, err := NewEstimator(WithCalibration("custom", cal)); err == nil {
		t.Fatal("expected a construction error for a multiplier outside [0.8,1.0]")
	}
}

func TestEstimateDeterminism(t *testing.T) {
	e := mustEstimator(t)

	opts := Options{
		Query:        btreeQuery,
		Logprobs:     strongLogprobs(8),
		Provider:     "anthropic",
		Temperature:  0.9,
		FinishReason: "end_turn",
	}

	first := e.Estimate(fluentResponse, opts)
	second := e.Estimate(fluentResponse, opts)

	if first.FinalConfidence != second.FinalConfidence {
		t.Errorf("FinalConfidence differs: %.6f vs %.6f",
			first.FinalConfidence, second.FinalConfidence)
	}
	if first.Method != second.Method || first.FloorApplied != second.FloorApplied {
		t.Error("method or floor flag differs between identical estimates")
	}
}

func TestGetMetrics(t *testing.T) {
	e := mustEstimator(t)

	e.Estimate("", Options{})
	e.Estimate(offTopicResponse, Options{
		Query:    offTopicQuery,
		Logprobs: strongLogprobs(20),
		Provider: "openai",
	})

	metrics := e.GetMetrics()
	if metrics["total_estimates"].(int) != 2 {
		t.Errorf("total_estimates = %v, want 2", metrics["total_estimates"])
	}
	if metrics["floor_applied_count"].(int) != 1 {
		t.Errorf("floor_applied_count = %v, want 1", metrics["floor_applied_count"])
	}
}

func TestExplain(t *testing.T) {
	e := mustEstimator(t)

	floored := e.Estimate(offTopicResponse, Options{
		Query:    offTopicQuery,
		Logprobs: strongLogprobs(20),
		Provider: "openai",
	})

	first := Explain(floored)
	second := Explain(floored)
	if first != second {
		t.Error("Explain is not deterministic for the same analysis")
	}
	if !strings.Contains(first, "WARNING") {
		t.Error("expected a floor warning line")
	}
	if !strings.Contains(first, "multi-signal-hybrid") {
		t.Error("expected the method name in the report")
	}

	plain := Explain(e.Estimate(fluentResponse, Options{}))
	if strings.Contains(plain, "WARNING") {
		t.Error("unexpected floor warning without a floor")
	}
	if !strings.Contains(plain, "not available") {
		t.Error("expected absent signals to render as not available")
	}
}
