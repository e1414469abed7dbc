// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cascade orchestrates the draft/verifier decision flow: generate
// a cheap draft, gate it through the quality validator, and either accept
// it or escalate to the expensive verifier exactly once.
package cascade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/cascadegate/internal/cache"
	"github.com/traylinx/cascadegate/internal/complexity"
	"github.com/traylinx/cascadegate/internal/feedback"
	"github.com/traylinx/cascadegate/internal/policy"
	"github.com/traylinx/cascadegate/internal/provider"
	"github.com/traylinx/cascadegate/internal/quality"
	"github.com/traylinx/cascadegate/internal/retry"
	"github.com/traylinx/cascadegate/internal/tokens"
)

// State identifies a stage in the cascade decision flow.
type State string

const (
	// StateDraftReceived marks the arrival of the draft response.
	StateDraftReceived State = "DRAFT_RECEIVED"
	// StateValidating marks the quality gate evaluation of the draft.
	StateValidating State = "VALIDATING"
	// StateAccepted marks a draft that passed the gate (terminal).
	StateAccepted State = "ACCEPTED"
	// StateEscalating marks a rejected draft being handed to the verifier.
	StateEscalating State = "ESCALATING"
	// StateVerifierReceived marks the arrival of the verifier response.
	StateVerifierReceived State = "VERIFIER_RECEIVED"
	// StateFinalized marks a completed escalation (terminal).
	StateFinalized State = "FINALIZED"
)

// Transition is one timestamped step in the decision trail.
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Query is one question routed through the cascade.
type Query struct {
	Text string `json:"text"`

	// Complexity overrides query classification when set to a valid bucket.
	Complexity complexity.Bucket `json:"complexity,omitempty"`

	// Difficulty overrides the estimated difficulty, in [0,1].
	Difficulty *float64 `json:"difficulty,omitempty"`
}

// Generator produces a model response for a query. Implementations own
// their transport; the orchestrator never performs HTTP calls itself.
type Generator interface {
	Model() string
	Provider() string
	Rates() tokens.Rates
	Generate(ctx context.Context, query string) (*provider.Response, error)
}

// Outcome is the result of one cascade run: the winning response, the
// gate verdict, the state trail, and the cost ledger.
type Outcome struct {
	ID          string            `json:"id"`
	Query       string            `json:"query"`
	Complexity  complexity.Bucket `json:"complexity"`
	State       State             `json:"state"`
	Transitions []Transition      `json:"transitions"`

	Response *provider.Response `json:"response,omitempty"`
	Result   *quality.Result    `json:"result,omitempty"`

	Escalated        bool   `json:"escalated"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	FromCache        bool   `json:"from_cache,omitempty"`

	DraftModel    string `json:"draft_model,omitempty"`
	VerifierModel string `json:"verifier_model,omitempty"`

	// Cost ledger in cents. SavedCents is measured against the
	// always-verifier baseline, so an escalated run reports the wasted
	// draft spend as a negative saving.
	DraftCents    float64 `json:"draft_cents"`
	VerifierCents float64 `json:"verifier_cents"`
	SavedCents    float64 `json:"saved_cents"`

	LatencyMs int64 `json:"latency_ms"`

	// Annotated is the winning raw payload with the gate verdict written
	// under cascade_gate.*.
	Annotated []byte `json:"-"`
}

func (o *Outcome) transition(s State) {
	o.State = s
	o.Transitions = append(o.Transitions, Transition{State: s, At: time.Now()})
}

// cachedDecision is the value stored in the response cache.
type cachedDecision struct {
	Response  *provider.Response
	Result    *quality.Result
	Escalated bool
}

// priorMinSamples is the minimum recorded outcome count before a model's
// acceptance rate is trusted as a confidence prior.
const priorMinSamples = 25

// Config wires an orchestrator. Draft and Verifier are required; every
// other collaborator is optional.
type Config struct {
	Draft    Generator
	Verifier Generator

	// Profile selects the quality gate. Nil uses the cascade preset.
	Profile *quality.Profile

	// GateOptions are passed through to the validator (semantic checker,
	// custom estimator).
	GateOptions []quality.Option

	Cache    *cache.Cache
	Retry    *retry.Executor
	Policy   *policy.Filter
	Recorder *feedback.Recorder
}

// Orchestrator drives the draft/verifier cascade for one generator pair.
type Orchestrator struct {
	draft    Generator
	verifier Generator

	validator *quality.Validator
	counter   *tokens.Counter

	cache    *cache.Cache
	retry    *retry.Executor
	filter   *policy.Filter
	recorder *feedback.Recorder

	// Metrics (atomic for thread safety)
	totalRuns      int64
	acceptedCount  int64
	escalatedCount int64
	cacheHits      int64
	policyBlocks   int64
	draftFailures  int64

	mu         sync.Mutex
	savedCents float64
}

// NewOrchestrator validates the configuration and builds the quality gate
// eagerly, so a malformed profile fails here rather than on the first run.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Draft == nil {
		return nil, fmt.Errorf("draft generator is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier generator is required")
	}

	profile := cfg.Profile
	if profile == nil {
		p := quality.MustPreset(quality.PresetCascade)
		profile = &p
	}

	validator, err := quality.NewValidator(*profile, cfg.GateOptions...)
	if err != nil {
		return nil, fmt.Errorf("building quality gate: %w", err)
	}

	return &Orchestrator{
		draft:     cfg.Draft,
		verifier:  cfg.Verifier,
		validator: validator,
		counter:   tokens.NewCounter(tokens.MethodTiktoken),
		cache:     cfg.Cache,
		retry:     cfg.Retry,
		filter:    cfg.Policy,
		recorder:  cfg.Recorder,
	}, nil
}

// Validator exposes the gate for direct validation calls.
func (o *Orchestrator) Validator() *quality.Validator {
	return o.validator
}

// Run drives one query through the cascade. A failed quality check is a
// decision, not an error: the draft is escalated to the verifier exactly
// once and never retried.
func (o *Orchestrator) Run(ctx context.Context, query Query) (*Outcome, error) {
	start := time.Now()
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("query text cannot be empty")
	}
	atomic.AddInt64(&o.totalRuns, 1)

	bucket := query.Complexity
	if !bucket.Valid() {
		bucket = complexity.Classify(text)
	}
	difficulty := complexity.Difficulty(text)
	if query.Difficulty != nil {
		difficulty = *query.Difficulty
	}

	outcome := &Outcome{
		ID:         uuid.NewString(),
		Query:      text,
		Complexity: bucket,
		DraftModel: o.draft.Model(),
	}

	var key string
	if o.cache != nil {
		key = cache.Key(text, o.draft.Model(), map[string]interface{}{
			"verifier": o.verifier.Model(),
			"profile":  o.validator.Profile().Name,
		})
		if value, ok := o.cache.Get(key); ok {
			if hit, ok := value.(*cachedDecision); ok {
				atomic.AddInt64(&o.cacheHits, 1)
				outcome.FromCache = true
				outcome.Response = hit.Response
				outcome.Result = hit.Result
				outcome.Escalated = hit.Escalated
				outcome.SavedCents = o.estimateVerifierCents(text, hit.Response.Content)
				outcome.transition(StateFinalized)
				outcome.LatencyMs = time.Since(start).Milliseconds()
				o.annotate(outcome)
				return outcome, nil
			}
		}
	}

	draftAllowed, verifierAllowed := true, true
	if o.filter != nil {
		draftAllowed = o.filter.Allows(o.policyEnv(o.draft, "draft", bucket, difficulty))
		verifierAllowed = o.filter.Allows(o.policyEnv(o.verifier, "verifier", bucket, difficulty))
	}
	if !draftAllowed && !verifierAllowed {
		return nil, fmt.Errorf("policy blocks both draft %s and verifier %s", o.draft.Model(), o.verifier.Model())
	}

	if !draftAllowed {
		atomic.AddInt64(&o.policyBlocks, 1)
		outcome.DraftModel = ""
		outcome.Escalated = true
		outcome.EscalationReason = fmt.Sprintf("draft model %s blocked by policy", o.draft.Model())
		outcome.transition(StateEscalating)
		if err := o.runVerifier(ctx, outcome, text); err != nil {
			return nil, err
		}
		o.finalize(ctx, outcome, key, start)
		return outcome, nil
	}

	draftResp, err := o.generate(ctx, o.draft, text)
	if err != nil {
		if !verifierAllowed {
			return nil, fmt.Errorf("draft generation failed with no escalation path: %w", err)
		}
		atomic.AddInt64(&o.draftFailures, 1)
		log.Warnf("Cascade %s: draft generation failed, escalating: %v", outcome.ID, err)
		outcome.Escalated = true
		outcome.EscalationReason = fmt.Sprintf("draft generation failed: %v", err)
		outcome.transition(StateEscalating)
		if err := o.runVerifier(ctx, outcome, text); err != nil {
			return nil, err
		}
		o.finalize(ctx, outcome, key, start)
		return outcome, nil
	}
	outcome.transition(StateDraftReceived)

	outcome.transition(StateValidating)
	req := quality.Request{
		Content:         draftResp.Content,
		Query:           text,
		Logprobs:        draftResp.Logprobs,
		Complexity:      bucket,
		Provider:        draftResp.Provider,
		Temperature:     draftResp.Temperature,
		FinishReason:    draftResp.FinishReason,
		QueryDifficulty: query.Difficulty,
	}
	if o.recorder != nil {
		if rate, n, err := o.recorder.ModelAcceptance(ctx, o.draft.Model()); err == nil && n >= priorMinSamples {
			req.PriorConfidence = rate
		}
	}
	result := o.validator.Validate(ctx, req)
	outcome.Result = result

	draftIn, draftOut := o.usage(draftResp, text)
	outcome.DraftCents = o.draft.Rates().Cost(draftIn, draftOut)
	estVerifierCents := o.estimateVerifierCents(text, draftResp.Content)

	if result.Passed {
		outcome.Response = draftResp
		outcome.SavedCents = estVerifierCents - outcome.DraftCents
		outcome.transition(StateAccepted)
		atomic.AddInt64(&o.acceptedCount, 1)
		o.finalize(ctx, outcome, key, start)
		return outcome, nil
	}

	outcome.Escalated = true
	outcome.EscalationReason = result.Reason
	outcome.transition(StateEscalating)

	if !verifierAllowed {
		log.Warnf("Cascade %s: verifier blocked by policy, returning rejected draft", outcome.ID)
		outcome.Response = draftResp
		outcome.SavedCents = estVerifierCents - outcome.DraftCents
		outcome.transition(StateFinalized)
		o.finalize(ctx, outcome, key, start)
		return outcome, nil
	}

	if err := o.runVerifier(ctx, outcome, text); err != nil {
		return nil, err
	}
	outcome.SavedCents = -outcome.DraftCents
	o.finalize(ctx, outcome, key, start)
	return outcome, nil
}

// runVerifier fetches the verifier response and closes the state trail.
func (o *Orchestrator) runVerifier(ctx context.Context, outcome *Outcome, text string) error {
	resp, err := o.generate(ctx, o.verifier, text)
	if err != nil {
		return fmt.Errorf("verifier generation failed: %w", err)
	}
	outcome.transition(StateVerifierReceived)
	outcome.Response = resp
	outcome.VerifierModel = o.verifier.Model()

	in, out := o.usage(resp, text)
	outcome.VerifierCents = o.verifier.Rates().Cost(in, out)
	atomic.AddInt64(&o.escalatedCount, 1)
	outcome.transition(StateFinalized)
	return nil
}

// generate calls a generator, through the retry executor when one is
// configured. Quality failures never reach this path.
func (o *Orchestrator) generate(ctx context.Context, gen Generator, text string) (*provider.Response, error) {
	if o.retry == nil {
		return gen.Generate(ctx, text)
	}
	var resp *provider.Response
	op := fmt.Sprintf("%s/%s", gen.Provider(), gen.Model())
	err := o.retry.Do(ctx, op, func(ctx context.Context) error {
		var genErr error
		resp, genErr = gen.Generate(ctx, text)
		return genErr
	})
	return resp, err
}

// finalize closes the ledger: annotate the winning payload, populate the
// cache, record the outcome, and fold savings into the metrics.
func (o *Orchestrator) finalize(ctx context.Context, outcome *Outcome, key string, start time.Time) {
	outcome.LatencyMs = time.Since(start).Milliseconds()
	o.annotate(outcome)

	if o.cache != nil && key != "" {
		o.cache.Put(key, &cachedDecision{
			Response:  outcome.Response,
			Result:    outcome.Result,
			Escalated: outcome.Escalated,
		})
	}

	if o.recorder != nil {
		record := &feedback.OutcomeRecord{
			DecisionID:    outcome.ID,
			Query:         outcome.Query,
			Complexity:    string(outcome.Complexity),
			DraftModel:    o.draft.Model(),
			DraftProvider: o.draft.Provider(),
			VerifierModel: outcome.VerifierModel,
			Accepted:      !outcome.Escalated,
			FailureReason: outcome.EscalationReason,
			DraftCents:    outcome.DraftCents,
			VerifierCents: outcome.VerifierCents,
			SavedCents:    outcome.SavedCents,
			LatencyMs:     outcome.LatencyMs,
		}
		if outcome.Result != nil {
			record.Confidence = outcome.Result.Confidence
			if outcome.Result.Estimate != nil {
				record.Method = string(outcome.Result.Estimate.Method)
				record.FloorApplied = outcome.Result.Estimate.FloorApplied
			}
		}
		if err := o.recorder.Record(ctx, record); err != nil {
			log.Warnf("Cascade %s: failed to record outcome: %v", outcome.ID, err)
		}
	}

	o.mu.Lock()
	o.savedCents += outcome.SavedCents
	o.mu.Unlock()
}

// annotate writes the gate verdict into the winning raw payload.
func (o *Orchestrator) annotate(outcome *Outcome) {
	if outcome.Response == nil {
		return
	}
	verdict := provider.Verdict{
		Passed:     !outcome.Escalated,
		Reason:     outcome.EscalationReason,
		DecisionID: outcome.ID,
	}
	if outcome.Result != nil {
		verdict.Confidence = outcome.Result.Confidence
		if outcome.Result.Estimate != nil {
			verdict.Method = string(outcome.Result.Estimate.Method)
		}
		if verdict.Reason == "" && !outcome.Result.Passed {
			verdict.Reason = outcome.Result.Reason
		}
	}
	annotated, err := provider.Annotate(outcome.Response.Raw, verdict)
	if err != nil {
		log.Warnf("Cascade %s: failed to annotate payload: %v", outcome.ID, err)
		return
	}
	outcome.Annotated = annotated
}

// usage resolves token counts, preferring provider-reported usage and
// falling back to local counting.
func (o *Orchestrator) usage(resp *provider.Response, query string) (int, int) {
	in, out := resp.InputTokens, resp.OutputTokens
	if in <= 0 {
		in = o.counter.Count(query)
	}
	if out <= 0 {
		out = o.counter.Count(resp.Content)
	}
	return in, out
}

// estimateVerifierCents prices what the verifier would have charged for
// this query, assuming output of similar length to the draft.
func (o *Orchestrator) estimateVerifierCents(query, draftContent string) float64 {
	in := o.counter.Count(query)
	out := o.counter.Count(draftContent)
	return o.verifier.Rates().Cost(in, out)
}

// policyEnv builds the rule environment for one generator. Zero-rate
// generators are treated as local.
func (o *Orchestrator) policyEnv(gen Generator, role string, bucket complexity.Bucket, difficulty float64) policy.Env {
	rates := gen.Rates()
	return policy.Env{
		Candidate: policy.Candidate{
			Model:       gen.Model(),
			Provider:    gen.Provider(),
			Local:       rates.Free(),
			InputCents:  rates.InputCentsPer1K,
			OutputCents: rates.OutputCentsPer1K,
			Role:        role,
		},
		Complexity: string(bucket),
		Difficulty: difficulty,
	}
}

// GetMetrics returns cascade performance metrics.
func (o *Orchestrator) GetMetrics() map[string]interface{} {
	total := atomic.LoadInt64(&o.totalRuns)
	accepted := atomic.LoadInt64(&o.acceptedCount)
	escalated := atomic.LoadInt64(&o.escalatedCount)

	acceptanceRate := 0.0
	escalationRate := 0.0
	if total > 0 {
		acceptanceRate = float64(accepted) / float64(total)
		escalationRate = float64(escalated) / float64(total)
	}

	o.mu.Lock()
	saved := o.savedCents
	o.mu.Unlock()

	return map[string]interface{}{
		"total_runs":        total,
		"accepted_count":    accepted,
		"escalated_count":   escalated,
		"acceptance_rate":   acceptanceRate,
		"escalation_rate":   escalationRate,
		"cache_hits":        atomic.LoadInt64(&o.cacheHits),
		"policy_blocks":     atomic.LoadInt64(&o.policyBlocks),
		"draft_failures":    atomic.LoadInt64(&o.draftFailures),
		"total_saved_cents": saved,
		"profile":           o.validator.Profile().Name,
	}
}
