// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cascadegate exposes the draft/verifier quality gate as an
// embeddable service. A Gate bundles the validator, confidence estimator,
// cascade orchestrator, response cache, policy filter, and outcome recorder
// behind one handle, built from a YAML config file or an in-memory Config.
package cascadegate

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/cascadegate/internal/alignment"
	"github.com/traylinx/cascadegate/internal/analysis"
	"github.com/traylinx/cascadegate/internal/cache"
	"github.com/traylinx/cascadegate/internal/cascade"
	"github.com/traylinx/cascadegate/internal/complexity"
	"github.com/traylinx/cascadegate/internal/confidence"
	"github.com/traylinx/cascadegate/internal/config"
	"github.com/traylinx/cascadegate/internal/feedback"
	"github.com/traylinx/cascadegate/internal/logging"
	"github.com/traylinx/cascadegate/internal/policy"
	"github.com/traylinx/cascadegate/internal/provider"
	"github.com/traylinx/cascadegate/internal/quality"
	"github.com/traylinx/cascadegate/internal/retry"
	"github.com/traylinx/cascadegate/internal/semantic"
)

// Gate is the embeddable quality gate service. It is safe for concurrent
// use; configuration reloads swap the stateless components atomically while
// the cache and recorder persist across reloads.
type Gate struct {
	// cfg holds the current gate configuration.
	cfg *config.Config

	// configPath is the path to the configuration file, when one was given.
	configPath string

	// draft and verifier generate candidate responses. Both must be set
	// for Run; validation-only gates leave them nil.
	draft    cascade.Generator
	verifier cascade.Generator

	// checker is the optional external similarity capability.
	checker semantic.Checker

	// mu protects the rebuilt components below across config reloads.
	mu sync.RWMutex

	// estimator scores confidence for parsed responses.
	estimator *confidence.Estimator

	// validator applies the threshold profile.
	validator *quality.Validator

	// orchestrator drives draft/verifier cascades. Nil without generators.
	orchestrator *cascade.Orchestrator

	// filter holds the compiled policy rules.
	filter *policy.Filter

	// executor retries transient generation errors.
	executor *retry.Executor

	// responseCache stores finished decisions across runs and reloads.
	responseCache *cache.Cache

	// recorder persists outcomes when feedback is enabled.
	recorder *feedback.Recorder

	// watcher reloads the config file when it changes.
	watcher *config.Watcher

	// scorer and analyzer back the standalone scoring helpers.
	scorer   *alignment.Scorer
	analyzer *analysis.Analyzer

	// shutdownOnce ensures shutdown runs only once.
	shutdownOnce sync.Once
}

// Options configures a Gate.
type Options struct {
	// ConfigPath is an optional YAML configuration file. When set, the
	// gate watches it and applies valid changes without restarting.
	ConfigPath string

	// Config supplies configuration directly, taking precedence over
	// ConfigPath for the initial build. Nil means defaults.
	Config *config.Config

	// Draft and Verifier are the two generators the cascade drives.
	// Leave nil for a validation-only gate.
	Draft    cascade.Generator
	Verifier cascade.Generator

	// Checker plugs in an external similarity capability for profiles
	// with semantic validation enabled.
	Checker semantic.Checker
}

// New builds a Gate from the given options. All configuration errors
// surface here; a returned Gate is ready for use.
//
// Parameters:
//   - opts: Gate options
//
// Returns:
//   - *Gate: The constructed gate
//   - error: Any configuration or construction error
func New(opts Options) (*Gate, error) {
	cfg := opts.Config
	if cfg == nil && opts.ConfigPath != "" {
		loaded, err := config.LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	} else {
		cfg.Sanitize()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logging.SetupBaseLogger()
	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(logging.Options{
		ToFile:     cfg.Logging.ToFile,
		Dir:        cfg.Logging.Dir,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		return nil, err
	}

	g := &Gate{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		draft:      opts.Draft,
		verifier:   opts.Verifier,
		checker:    opts.Checker,
		scorer:     alignment.NewScorer(alignment.Config{}),
		analyzer:   analysis.NewAnalyzer(),
	}

	if cfg.Cache.Enabled {
		g.responseCache = cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL())
	}
	if cfg.Feedback.Enabled {
		recorder, err := feedback.NewRecorder(cfg.Feedback.DBPath, cfg.Feedback.RetentionDays)
		if err != nil {
			return nil, err
		}
		g.recorder = recorder
	}

	if err := g.rebuild(cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// rebuild constructs the stateless components from cfg and swaps them in.
// The response cache and recorder are deliberately left alone.
func (g *Gate) rebuild(cfg *config.Config) error {
	profile, err := cfg.BuildProfile()
	if err != nil {
		return err
	}

	estimator, err := confidence.NewEstimator(cfg.CalibrationOptions()...)
	if err != nil {
		return err
	}

	validatorOpts := []quality.Option{quality.WithEstimator(estimator)}
	if g.checker != nil {
		validatorOpts = append(validatorOpts, quality.WithChecker(g.checker))
	}

	filter, err := policy.NewFilter(cfg.Policy.Rules)
	if err != nil {
		return err
	}

	executor, err := retry.NewExecutor(cfg.BuildRetryPolicy())
	if err != nil {
		return err
	}

	// The orchestrator owns the validator when the gate has generators, so
	// Run and Validate share one set of gate metrics.
	var orchestrator *cascade.Orchestrator
	var validator *quality.Validator
	if g.draft != nil && g.verifier != nil {
		orchestrator, err = cascade.NewOrchestrator(cascade.Config{
			Draft:       g.draft,
			Verifier:    g.verifier,
			Profile:     &profile,
			GateOptions: validatorOpts,
			Cache:       g.responseCache,
			Retry:       executor,
			Policy:      filter,
			Recorder:    g.recorder,
		})
		if err != nil {
			return err
		}
		validator = orchestrator.Validator()
	} else {
		validator, err = quality.NewValidator(profile, validatorOpts...)
		if err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.cfg = cfg
	g.estimator = estimator
	g.validator = validator
	g.filter = filter
	g.executor = executor
	g.orchestrator = orchestrator
	g.mu.Unlock()
	return nil
}

// Initialize starts the gate's background services: the outcome recorder
// and, when a config path was given, the file watcher.
//
// Parameters:
//   - ctx: Context for initialization operations
//
// Returns:
//   - error: Any error encountered during initialization
func (g *Gate) Initialize(ctx context.Context) error {
	if g.recorder != nil {
		if err := g.recorder.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing outcome recorder: %w", err)
		}
	}

	if g.configPath != "" {
		watcher, err := config.NewWatcher(g.configPath, func(cfg *config.Config) {
			if err := g.rebuild(cfg); err != nil {
				log.Errorf("Config reload rejected, keeping previous: %v", err)
				return
			}
			log.Infof("Gate configuration reloaded from %s", g.configPath)
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		g.watcher = watcher
	}

	return nil
}

// Shutdown stops the watcher, releases the semantic checker, and closes
// the recorder. Safe to call more than once.
func (g *Gate) Shutdown(ctx context.Context) error {
	var err error
	g.shutdownOnce.Do(func() {
		if g.watcher != nil {
			g.watcher.Stop()
		}
		if closer, ok := g.checker.(interface{ Shutdown() error }); ok {
			if cerr := closer.Shutdown(); cerr != nil {
				log.Warnf("Semantic checker shutdown: %v", cerr)
			}
		}
		if g.recorder != nil {
			err = g.recorder.Shutdown(ctx)
		}
	})
	return err
}

// Run drives one query through the draft/verifier cascade.
//
// Parameters:
//   - ctx: Context for generation and validation
//   - query: The user query to answer
//
// Returns:
//   - *cascade.Outcome: The full decision record
//   - error: Any error that prevented a decision
func (g *Gate) Run(ctx context.Context, query cascade.Query) (*cascade.Outcome, error) {
	g.mu.RLock()
	orchestrator := g.orchestrator
	g.mu.RUnlock()

	if orchestrator == nil {
		return nil, fmt.Errorf("gate has no generators configured")
	}
	return orchestrator.Run(ctx, query)
}

// Validate applies the active quality profile to a draft response.
func (g *Gate) Validate(ctx context.Context, req quality.Request) *quality.Result {
	g.mu.RLock()
	validator := g.validator
	g.mu.RUnlock()
	return validator.Validate(ctx, req)
}

// ValidatePayload parses a raw provider payload, validates the contained
// response against the query, and returns the verdict along with a copy of
// the payload annotated under the cascade_gate key.
//
// Parameters:
//   - ctx: Context for validation
//   - providerName: The provider the payload came from
//   - raw: The raw response payload
//   - query: The originating query
//
// Returns:
//   - *quality.Result: The gate verdict
//   - []byte: The annotated payload
//   - error: Any parse or annotation error
func (g *Gate) ValidatePayload(ctx context.Context, providerName string, raw []byte, query string) (*quality.Result, []byte, error) {
	resp, err := provider.Parse(providerName, raw)
	if err != nil {
		return nil, nil, err
	}

	result := g.Validate(ctx, quality.Request{
		Content:      resp.Content,
		Query:        query,
		Logprobs:     resp.Logprobs,
		Provider:     resp.Provider,
		Temperature:  resp.Temperature,
		FinishReason: resp.FinishReason,
	})

	verdict := provider.Verdict{
		Passed:     result.Passed,
		Confidence: result.Confidence,
		Reason:     result.Reason,
	}
	if result.Estimate != nil {
		verdict.Method = string(result.Estimate.Method)
	}
	annotated, err := provider.Annotate(raw, verdict)
	if err != nil {
		return result, nil, err
	}
	return result, annotated, nil
}

// Estimate scores confidence for a bare response string.
func (g *Gate) Estimate(response string, opts confidence.Options) *confidence.Analysis {
	g.mu.RLock()
	estimator := g.estimator
	g.mu.RUnlock()
	return estimator.Estimate(response, opts)
}

// Explain renders a human-readable breakdown of a confidence analysis.
func (g *Gate) Explain(a *confidence.Analysis) string {
	return confidence.Explain(a)
}

// Score returns the query/response alignment score in [0,1].
func (g *Gate) Score(query, response string) float64 {
	return g.scorer.Score(query, response)
}

// Analyze runs the text quality heuristics for a response.
func (g *Gate) Analyze(text string, bucket complexity.Bucket) *analysis.ResponseAnalysis {
	return g.analyzer.Analyze(text, bucket)
}

// Classify buckets a query by complexity.
func (g *Gate) Classify(text string) complexity.Bucket {
	return complexity.Classify(text)
}

// Profile returns the active quality profile.
func (g *Gate) Profile() quality.Profile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validator.Profile()
}

// Recorder returns the outcome recorder, or nil when feedback is disabled.
func (g *Gate) Recorder() *feedback.Recorder {
	return g.recorder
}

// GetMetrics merges validator, estimator, cascade, and cache metrics into
// one map, prefixed by component.
func (g *Gate) GetMetrics() map[string]interface{} {
	g.mu.RLock()
	validator := g.validator
	estimator := g.estimator
	orchestrator := g.orchestrator
	g.mu.RUnlock()

	metrics := map[string]interface{}{
		"validator":  validator.GetMetrics(),
		"confidence": estimator.GetMetrics(),
	}
	if orchestrator != nil {
		metrics["cascade"] = orchestrator.GetMetrics()
	}
	if g.responseCache != nil {
		metrics["cache"] = g.responseCache.GetMetrics()
	}
	return metrics
}
