// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package quality

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/cascadegate/internal/analysis"
	"github.com/traylinx/cascadegate/internal/complexity"
	"github.com/traylinx/cascadegate/internal/confidence"
	"github.com/traylinx/cascadegate/internal/semantic"
)

// Request carries a draft response and the generation context it came from.
type Request struct {
	// Content is the draft response text under evaluation.
	Content string `json:"content"`

	// Query is the originating query. Optional; without it alignment and
	// semantic checks are skipped.
	Query string `json:"query,omitempty"`

	// Logprobs are per-token log probabilities from the draft provider.
	Logprobs []float64 `json:"logprobs,omitempty"`

	// Complexity overrides query classification when set to a valid bucket.
	Complexity complexity.Bucket `json:"complexity,omitempty"`

	Provider     string  `json:"provider,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	FinishReason string  `json:"finish_reason,omitempty"`

	// PriorConfidence, when positive, nudges uncertain-zone alignment
	// scores toward the draft model's historical acceptance rate.
	PriorConfidence float64 `json:"prior_confidence,omitempty"`

	// QueryDifficulty overrides the estimated difficulty, in [0,1].
	QueryDifficulty *float64 `json:"query_difficulty,omitempty"`
}

// Result is the gate verdict for one draft. A failed validation is a value,
// not an error: Passed is false and Reason names the first failing check.
type Result struct {
	Passed bool `json:"passed"`

	// Confidence is the estimator output before strict-mode deductions.
	Confidence float64 `json:"confidence"`

	// Score is the value gated against the threshold. Equal to Confidence
	// unless the profile runs in strict mode.
	Score float64 `json:"score"`

	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`

	// Estimate is the full confidence breakdown behind the verdict.
	Estimate *confidence.Analysis `json:"estimate,omitempty"`
}

// Validator gates draft responses against a threshold profile.
type Validator struct {
	profile   Profile
	estimator *confidence.Estimator
	analyzer  *analysis.Analyzer
	checker   semantic.Checker

	mu               sync.RWMutex
	totalValidations int64
	passedCount      int64
	failedCount      int64
	semanticChecks   int64
	semanticErrors   int64
}

// Option configures a Validator.
type Option func(*Validator)

// WithEstimator replaces the default confidence estimator.
func WithEstimator(estimator *confidence.Estimator) Option {
	return func(v *Validator) {
		v.estimator = estimator
	}
}

// WithAnalyzer replaces the analyzer used for strict-mode hedging checks.
func WithAnalyzer(analyzer *analysis.Analyzer) Option {
	return func(v *Validator) {
		v.analyzer = analyzer
	}
}

// WithChecker attaches an external semantic checker. Without one, profiles
// that enable semantic validation fall back per FallbackToHeuristic.
func WithChecker(checker semantic.Checker) Option {
	return func(v *Validator) {
		v.checker = checker
	}
}

// NewValidator builds a gate for the given profile. Profile errors surface
// here, not at validation time.
func NewValidator(profile Profile, opts ...Option) (*Validator, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	v := &Validator{
		profile:  profile,
		analyzer: analysis.NewAnalyzer(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.estimator == nil {
		estimator, err := confidence.NewEstimator()
		if err != nil {
			return nil, fmt.Errorf("building default estimator: %w", err)
		}
		v.estimator = estimator
	}
	return v, nil
}

// Profile returns the threshold profile the validator gates with.
func (v *Validator) Profile() Profile {
	return v.profile
}

// Validate scores a draft and decides pass or escalate. Checks run in a
// fixed order and Reason reports the first failure: confidence threshold,
// word count, alignment floor, then semantic similarity.
func (v *Validator) Validate(ctx context.Context, req Request) *Result {
	content := strings.TrimSpace(req.Content)
	bucket := v.resolveBucket(req)

	estOpts := confidence.Options{
		Query:           req.Query,
		Provider:        req.Provider,
		Temperature:     req.Temperature,
		FinishReason:    req.FinishReason,
		PriorConfidence: req.PriorConfidence,
		QueryDifficulty: req.QueryDifficulty,
	}
	if v.profile.UseLogprobs {
		estOpts.Logprobs = req.Logprobs
	}
	est := v.estimator.Estimate(req.Content, estOpts)

	threshold := v.profile.Threshold(bucket)
	wordCount := complexity.CountWords(content)

	score := est.FinalConfidence
	details := map[string]interface{}{
		"complexity":     string(bucket),
		"threshold":      threshold,
		"confidence":     est.FinalConfidence,
		"method":         string(est.Method),
		"provider":       est.Provider,
		"word_count":     wordCount,
		"min_word_count": v.profile.MinWordCount,
		"floor_applied":  est.FloorApplied,
		"logprobs_used":  v.profile.UseLogprobs && len(req.Logprobs) > 0,
	}
	if est.FloorApplied {
		details["floor_severity"] = est.FloorSeverity
	}
	if est.AlignmentScore != nil {
		details["alignment_score"] = *est.AlignmentScore
	}
	if v.profile.UseAlignmentScoring {
		details["min_alignment_score"] = v.profile.MinAlignmentScore
	}

	if v.profile.StrictMode {
		hedging := v.analyzer.Hedging(req.Content)
		penalty := strictPenalty(hedging)
		score -= penalty
		if score < 0 {
			score = 0
		}
		details["hedge_count"] = hedging.Count
		details["hedge_severe"] = hedging.Severe
		details["strict_penalty"] = penalty
	}
	details["score"] = score

	var failures []string
	if score < threshold {
		failures = append(failures, fmt.Sprintf("confidence %.3f below %s threshold %.2f", score, bucket, threshold))
	}
	if wordCount < v.profile.MinWordCount {
		failures = append(failures, fmt.Sprintf("response has %d words, need at least %d", wordCount, v.profile.MinWordCount))
	}
	if v.profile.UseAlignmentScoring && est.AlignmentScore != nil && *est.AlignmentScore < v.profile.MinAlignmentScore {
		failures = append(failures, fmt.Sprintf("alignment %.3f below floor %.2f", *est.AlignmentScore, v.profile.MinAlignmentScore))
	}
	if v.profile.UseSemanticValidation && strings.TrimSpace(req.Query) != "" {
		if failure, ok := v.semanticCheck(ctx, req, details); !ok {
			failures = append(failures, failure)
		}
	}

	result := &Result{
		Passed:     len(failures) == 0,
		Confidence: est.FinalConfidence,
		Score:      score,
		Details:    details,
		Estimate:   est,
	}
	if !result.Passed {
		result.Reason = failures[0]
		log.Debugf("Quality gate %s rejected draft: %s", v.profile.Name, result.Reason)
	}
	v.record(result.Passed)
	return result
}

// semanticCheck runs the external similarity check. Checker errors degrade
// to a skipped check; a missing checker fails only when the profile forbids
// falling back to the rule-based signals.
func (v *Validator) semanticCheck(ctx context.Context, req Request, details map[string]interface{}) (string, bool) {
	if !semantic.Available(v.checker) {
		if v.profile.FallbackToHeuristic {
			return "", true
		}
		return "semantic validation required but no checker is available", false
	}

	v.mu.Lock()
	v.semanticChecks++
	v.mu.Unlock()

	similarity, err := v.checker.Similarity(ctx, req.Query, req.Content)
	if err != nil {
		log.Warnf("Semantic check failed, keeping rule-based verdict: %v", err)
		details["semantic_error"] = err.Error()
		v.mu.Lock()
		v.semanticErrors++
		v.mu.Unlock()
		return "", true
	}
	details["semantic_similarity"] = similarity
	if similarity < v.profile.SemanticThreshold {
		return fmt.Sprintf("semantic similarity %.3f below threshold %.2f", similarity, v.profile.SemanticThreshold), false
	}
	return "", true
}

// resolveBucket prefers an explicit bucket, then query classification, then
// the moderate default.
func (v *Validator) resolveBucket(req Request) complexity.Bucket {
	if req.Complexity.Valid() {
		return req.Complexity
	}
	if strings.TrimSpace(req.Query) != "" {
		return complexity.Classify(req.Query)
	}
	return complexity.Moderate
}

// strictPenalty converts hedging signals into a confidence deduction. Each
// distinct hedge costs 0.05 up to 0.15, with a further 0.15 for severe
// uncertainty phrases.
func strictPenalty(hedging analysis.HedgingAnalysis) float64 {
	penalty := 0.05 * float64(hedging.Count)
	if penalty > 0.15 {
		penalty = 0.15
	}
	if hedging.Severe {
		penalty += 0.15
	}
	return penalty
}

func (v *Validator) record(passed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalValidations++
	if passed {
		v.passedCount++
	} else {
		v.failedCount++
	}
}

// GetMetrics returns validation counters.
func (v *Validator) GetMetrics() map[string]interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()

	passRate := 0.0
	if v.totalValidations > 0 {
		passRate = float64(v.passedCount) / float64(v.totalValidations)
	}
	return map[string]interface{}{
		"total_validations": v.totalValidations,
		"passed_count":      v.passedCount,
		"failed_count":      v.failedCount,
		"pass_rate":         passRate,
		"semantic_checks":   v.semanticChecks,
		"semantic_errors":   v.semanticErrors,
	}
}
