// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package confidence estimates how trustworthy a draft response is without
// ground truth. It combines per-token log-probabilities, textual quality
// signals, query alignment, and query difficulty into one calibrated scalar
// that the quality gate thresholds against.
package confidence

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/cascadegate/internal/alignment"
	"github.com/traylinx/cascadegate/internal/analysis"
	"github.com/traylinx/cascadegate/internal/complexity"
)

// Method identifies which signal combination produced an estimate.
type Method string

const (
	// MethodSemantic uses textual quality alone.
	MethodSemantic Method = "semantic"
	// MethodHybrid combines logprobs with textual quality.
	MethodHybrid Method = "hybrid"
	// MethodMultiSignalSemantic adds alignment and difficulty, no logprobs.
	MethodMultiSignalSemantic Method = "multi-signal-semantic"
	// MethodMultiSignalHybrid uses every available signal.
	MethodMultiSignalHybrid Method = "multi-signal-hybrid"
)

// Options carries the optional context for one estimate.
type Options struct {
	// Query enables alignment scoring and difficulty estimation.
	Query string
	// Logprobs is the ordered list of per-token negative log-probabilities.
	Logprobs []float64
	// Temperature is the sampling temperature the response was generated at.
	Temperature float64
	// FinishReason is the provider's finish reason ("stop", "length", ...).
	FinishReason string
	// Provider selects the calibration. Unknown values use the default.
	Provider string
	// QueryDifficulty overrides the estimated difficulty, in [0,1].
	QueryDifficulty *float64
	// PriorConfidence, when positive, nudges uncertain-zone alignment
	// scores toward historical acceptance for the drafting model.
	PriorConfidence float64
}

// Analysis is the full result of one confidence estimate.
type Analysis struct {
	// FinalConfidence is clamped into the provider's [min,max] bounds.
	FinalConfidence float64 `json:"final_confidence"`
	// CalibratedConfidence is the calibrated value before the alignment
	// floor and the bounds clamp.
	CalibratedConfidence float64  `json:"calibrated_confidence"`
	SemanticConfidence   float64  `json:"semantic_confidence"`
	LogprobsConfidence   *float64 `json:"logprobs_confidence,omitempty"`
	AlignmentScore       *float64 `json:"alignment_score,omitempty"`
	QueryDifficulty      *float64 `json:"query_difficulty,omitempty"`
	Method               Method   `json:"method"`
	// Provider is the calibration key the estimate resolved to.
	Provider string `json:"provider"`
	// FloorApplied is set when the alignment safety floor reduced the
	// calibrated value; FloorReduction is positive in that case.
	FloorApplied   bool    `json:"floor_applied"`
	FloorSeverity  string  `json:"floor_severity,omitempty"`
	FloorReduction float64 `json:"floor_reduction,omitempty"`
	// Components breaks the estimate down for observability.
	Components map[string]float64 `json:"components,omitempty"`
}

// Weights holds the per-signal weights for one method. Active weights must
// be non-negative and sum to 1.
type Weights struct {
	Logprobs   float64 `json:"logprobs"`
	Semantic   float64 `json:"semantic"`
	Alignment  float64 `json:"alignment"`
	Difficulty float64 `json:"difficulty"`
}

func (w Weights) sum() float64 {
	return w.Logprobs + w.Semantic + w.Alignment + w.Difficulty
}

func defaultWeights() map[Method]Weights {
	return map[Method]Weights{
		MethodSemantic:            {Semantic: 1.0},
		MethodHybrid:              {Logprobs: 0.60, Semantic: 0.40},
		MethodMultiSignalSemantic: {Semantic: 0.45, Alignment: 0.40, Difficulty: 0.15},
		MethodMultiSignalHybrid:   {Logprobs: 0.40, Semantic: 0.25, Alignment: 0.25, Difficulty: 0.10},
	}
}

// Estimator produces confidence analyses. All tables are immutable after
// construction; the embedded metrics are the only mutable state.
type Estimator struct {
	analyzer *analysis.Analyzer
	scorer   *alignment.Scorer

	calibrations map[string]Calibration
	floor        FloorPolicy
	weights      map[Method]Weights

	evasivePattern *regexp.Regexp

	mu             sync.RWMutex
	totalEstimates int
	confidenceSum  float64
	floorCount     int
	lowCount       int // < 0.60
	highCount      int // > 0.90
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithCalibration overrides or adds the calibration for a provider.
func WithCalibration(provider string, cal Calibration) Option {
	return func(e *Estimator) {
		e.calibrations[strings.ToLower(strings.TrimSpace(provider))] = cal
	}
}

// WithFloorPolicy replaces the alignment floor policy.
func WithFloorPolicy(policy FloorPolicy) Option {
	return func(e *Estimator) { e.floor = policy }
}

// WithWeights replaces the weights for one method.
func WithWeights(method Method, w Weights) Option {
	return func(e *Estimator) { e.weights[method] = w }
}

// WithAlignmentScorer sets the scorer used when a query is supplied.
func WithAlignmentScorer(scorer *alignment.Scorer) Option {
	return func(e *Estimator) { e.scorer = scorer }
}

// WithAnalyzer sets the response analyzer.
func WithAnalyzer(analyzer *analysis.Analyzer) Option {
	return func(e *Estimator) { e.analyzer = analyzer }
}

// NewEstimator creates an estimator and validates its configuration.
// Weight tables that are negative or do not sum to 1, floor tiers out of
// order, and calibration bounds out of range are construction errors.
func NewEstimator(opts ...Option) (*Estimator, error) {
	e := &Estimator{
		analyzer:       analysis.NewAnalyzer(),
		scorer:         alignment.NewScorer(alignment.Config{}),
		calibrations:   builtinCalibrations(),
		floor:          DefaultFloorPolicy(),
		weights:        defaultWeights(),
		evasivePattern: regexp.MustCompile(`(?i)^(?:i'?m sorry|i am sorry|i can'?t|i cannot|i (?:will|would) not|as an ai\b|unfortunately[, ])`),
	}
	for _, opt := range opts {
		opt(e)
	}

	for method, w := range e.weights {
		if w.Logprobs < 0 || w.Semantic < 0 || w.Alignment < 0 || w.Difficulty < 0 {
			return nil, fmt.Errorf("confidence weights for %s contain a negative value", method)
		}
		if math.Abs(w.sum()-1.0) > 1e-9 {
			return nil, fmt.Errorf("confidence weights for %s sum to %.6f, want 1.0", method, w.sum())
		}
	}
	if !(e.floor.Severe < e.floor.VeryPoor && e.floor.VeryPoor < e.floor.Poor) {
		return nil, fmt.Errorf("floor thresholds must rise: %.2f/%.2f/%.2f",
			e.floor.Severe, e.floor.VeryPoor, e.floor.Poor)
	}
	if !(e.floor.SevereCap < e.floor.VeryPoorCap && e.floor.VeryPoorCap < e.floor.PoorCap) {
		return nil, fmt.Errorf("floor caps must rise: %.2f/%.2f/%.2f",
			e.floor.SevereCap, e.floor.VeryPoorCap, e.floor.PoorCap)
	}
	for provider, cal := range e.calibrations {
		if cal.BaseMultiplier < 0.8 || cal.BaseMultiplier > 1.0 {
			return nil, fmt.Errorf("calibration %s: base multiplier %.2f outside [0.8,1.0]", provider, cal.BaseMultiplier)
		}
		if cal.MinConfidence >= cal.MaxConfidence {
			return nil, fmt.Errorf("calibration %s: min %.2f >= max %.2f", provider, cal.MinConfidence, cal.MaxConfidence)
		}
	}

	return e, nil
}

// FloorPolicyInUse returns the active floor policy.
func (e *Estimator) FloorPolicyInUse() FloorPolicy {
	return e.floor
}

// Estimate scores one response. Every signal is optional; the method is
// selected from whatever is available.
func (e *Estimator) Estimate(response string, opts Options) *Analysis {
	text := strings.TrimSpace(response)
	query := strings.TrimSpace(opts.Query)

	bucket := complexity.Moderate
	if query != "" {
		bucket = complexity.Classify(query)
	}
	signals := e.analyzer.Analyze(text, bucket)
	semantic := e.semanticConfidence(text, signals)

	result := &Analysis{
		SemanticConfidence: semantic,
		Components:         map[string]float64{"semantic": semantic},
	}

	if len(opts.Logprobs) > 0 {
		lp := logprobsConfidence(opts.Logprobs)
		result.LogprobsConfidence = &lp
		result.Components["logprobs"] = lp
	}

	if query != "" {
		score := e.scorer.Evaluate(alignment.Request{
			Query:           query,
			Response:        text,
			PriorConfidence: opts.PriorConfidence,
		}).Score
		result.AlignmentScore = &score
		result.Components["alignment"] = score

		difficulty := complexity.Difficulty(query)
		if opts.QueryDifficulty != nil {
			difficulty = clamp01(*opts.QueryDifficulty)
		}
		result.QueryDifficulty = &difficulty
		result.Components["difficulty"] = difficulty
	}

	result.Method = selectMethod(result.LogprobsConfidence != nil, query != "")
	w := e.weights[result.Method]

	base := w.Semantic * semantic
	if result.LogprobsConfidence != nil {
		base += w.Logprobs * *result.LogprobsConfidence
	}
	if result.AlignmentScore != nil {
		base += w.Alignment * *result.AlignmentScore
	}
	if result.QueryDifficulty != nil {
		// Easier queries leave more headroom for trusting the draft.
		base += w.Difficulty * (1.0 - *result.QueryDifficulty)
	}
	result.Components["base"] = base

	cal, key := e.calibrationFor(opts.Provider)
	result.Provider = key

	tempPenalty := cal.TemperaturePenalty(opts.Temperature)
	finishAdjust := cal.FinishAdjustment(opts.FinishReason)
	calibrated := base*cal.BaseMultiplier - tempPenalty + finishAdjust

	result.CalibratedConfidence = calibrated
	result.Components["base_multiplier"] = cal.BaseMultiplier
	result.Components["temperature_penalty"] = tempPenalty
	result.Components["finish_adjustment"] = finishAdjust

	// Alignment safety floor. A fluent but off-topic response must not ride
	// its log-probabilities past the cap for its severity tier.
	capped := calibrated
	if result.AlignmentScore != nil {
		if severity, cap, ok := e.floor.Cap(*result.AlignmentScore); ok && calibrated > cap {
			capped = cap
			result.FloorApplied = true
			result.FloorSeverity = severity
			result.FloorReduction = calibrated - cap
			log.Debugf("Confidence: alignment floor (%s) capped %.3f to %.3f",
				severity, calibrated, cap)
		}
	}

	final := capped
	if final < cal.MinConfidence {
		final = cal.MinConfidence
	}
	if final > cal.MaxConfidence {
		final = cal.MaxConfidence
	}
	result.FinalConfidence = final

	e.recordEstimate(result)
	return result
}

// semanticConfidence is a continuous function of hedging, specificity,
// coherence, and directness over the response text.
func (e *Estimator) semanticConfidence(text string, signals *analysis.ResponseAnalysis) float64 {
	if text == "" {
		return 0.10
	}

	score := 0.5

	// Hedging: a clean response earns the full bonus, which decays to zero
	// as the hedge ratio approaches 0.5.
	hedgeLoad := signals.Hedging.Ratio / 0.5
	if hedgeLoad > 1 {
		hedgeLoad = 1
	}
	score += 0.15 * (1 - hedgeLoad)
	if signals.Hedging.Severe {
		score -= 0.25
	}

	// Specificity, centered on its own neutral point.
	score += 0.5 * (signals.Specificity.Score - 0.5)

	// Coherence.
	if signals.Hallucination.HasContradiction {
		score -= 0.20
	}
	families := signals.Hallucination.SuspiciousPatterns
	if families > 2 {
		families = 2
	}
	score -= 0.05 * float64(families)

	// Directness.
	if e.evasivePattern.MatchString(text) {
		score -= 0.10
	}

	switch {
	case signals.Length.TooShort:
		score -= 0.15
	case signals.Length.TooLong:
		score -= 0.05
	default:
		score += 0.05
	}

	if score < 0.05 {
		score = 0.05
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

// calibrationFor resolves a provider identifier to a calibration. Unknown
// providers silently fall back to the default.
func (e *Estimator) calibrationFor(provider string) (Calibration, string) {
	key := strings.ToLower(strings.TrimSpace(provider))
	if key == "" {
		key = defaultProvider
	}
	cal, ok := e.calibrations[key]
	if !ok {
		return e.calibrations[defaultProvider], defaultProvider
	}
	return cal, key
}

func selectMethod(hasLogprobs, hasQuery bool) Method {
	switch {
	case hasLogprobs && hasQuery:
		return MethodMultiSignalHybrid
	case hasLogprobs:
		return MethodHybrid
	case hasQuery:
		return MethodMultiSignalSemantic
	}
	return MethodSemantic
}

func (e *Estimator) recordEstimate(result *Analysis) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalEstimates++
	e.confidenceSum += result.FinalConfidence
	if result.FloorApplied {
		e.floorCount++
	}
	if result.FinalConfidence < 0.60 {
		e.lowCount++
	} else if result.FinalConfidence > 0.90 {
		e.highCount++
	}
}

// GetMetrics returns confidence distribution metrics.
func (e *Estimator) GetMetrics() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	avg := 0.0
	if e.totalEstimates > 0 {
		avg = e.confidenceSum / float64(e.totalEstimates)
	}

	return map[string]interface{}{
		"total_estimates":       e.totalEstimates,
		"average_confidence":    avg,
		"floor_applied_count":   e.floorCount,
		"low_confidence_count":  e.lowCount,
		"high_confidence_count": e.highCount,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
