// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the cascade gate.
// It handles loading and parsing YAML configuration files, and provides
// structured access to gate settings including quality profiles, provider
// calibrations, policy rules, caching, retries, feedback persistence, and
// logging.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/traylinx/cascadegate/internal/complexity"
	"github.com/traylinx/cascadegate/internal/confidence"
	"github.com/traylinx/cascadegate/internal/policy"
	"github.com/traylinx/cascadegate/internal/quality"
	"github.com/traylinx/cascadegate/internal/retry"
)

// Config represents the gate's configuration, loaded from a YAML file.
type Config struct {
	// Profile selects the quality gate thresholds, either by preset name
	// or as a fully custom declaration.
	Profile ProfileConfig `yaml:"profile" json:"profile"`

	// Calibrations overrides or adds per-provider confidence calibrations,
	// keyed by provider name.
	Calibrations map[string]CalibrationConfig `yaml:"calibrations,omitempty" json:"calibrations,omitempty"`

	// Policy holds model filter rules evaluated before each cascade run.
	Policy PolicyConfig `yaml:"policy" json:"policy"`

	// Cache controls the response decision cache.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Retry shapes the transient-error retry behavior for generation calls.
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Feedback controls persistent outcome recording.
	Feedback FeedbackConfig `yaml:"feedback" json:"feedback"`

	// Logging controls log destination and rotation.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// ProfileConfig selects the quality profile.
type ProfileConfig struct {
	// Preset is the name of a built-in threshold profile. Ignored when
	// Custom is set.
	Preset string `yaml:"preset" json:"preset"`

	// Custom declares a full profile inline, taking precedence over Preset.
	Custom *CustomProfile `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// CustomProfile declares gate thresholds inline. All fields are explicit;
// a custom profile does not inherit from any preset.
type CustomProfile struct {
	// Name labels the profile in metrics and logs.
	Name string `yaml:"name" json:"name"`

	// MinConfidence is the fallback threshold for buckets missing from
	// Thresholds.
	MinConfidence float64 `yaml:"min-confidence" json:"min-confidence"`

	// Thresholds maps complexity bucket names to confidence thresholds.
	Thresholds map[string]float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`

	// MinWordCount is the minimum acceptable response length in words.
	MinWordCount int `yaml:"min-word-count" json:"min-word-count"`

	// MinAlignmentScore is the binary alignment floor checked when
	// use-alignment-scoring is set.
	MinAlignmentScore float64 `yaml:"min-alignment-score" json:"min-alignment-score"`

	UseLogprobs           bool `yaml:"use-logprobs" json:"use-logprobs"`
	UseAlignmentScoring   bool `yaml:"use-alignment-scoring" json:"use-alignment-scoring"`
	UseSemanticValidation bool `yaml:"use-semantic-validation" json:"use-semantic-validation"`
	StrictMode            bool `yaml:"strict-mode" json:"strict-mode"`
	FallbackToHeuristic   bool `yaml:"fallback-to-heuristic" json:"fallback-to-heuristic"`

	// SemanticThreshold is the minimum external similarity when
	// use-semantic-validation is set.
	SemanticThreshold float64 `yaml:"semantic-threshold,omitempty" json:"semantic-threshold,omitempty"`
}

// CalibrationConfig adjusts raw confidence for one provider.
type CalibrationConfig struct {
	// BaseMultiplier scales the combined signal, within [0.8, 1.0].
	BaseMultiplier float64 `yaml:"base-multiplier" json:"base-multiplier"`

	// MinConfidence and MaxConfidence bound the final value.
	MinConfidence float64 `yaml:"min-confidence" json:"min-confidence"`
	MaxConfidence float64 `yaml:"max-confidence" json:"max-confidence"`

	// FreeTemperature is the sampling temperature below which no penalty
	// applies.
	FreeTemperature float64 `yaml:"free-temperature" json:"free-temperature"`

	// PenaltySlope grows the penalty per unit of temperature above
	// FreeTemperature, up to MaxTemperaturePenalty.
	PenaltySlope          float64 `yaml:"penalty-slope" json:"penalty-slope"`
	MaxTemperaturePenalty float64 `yaml:"max-temperature-penalty" json:"max-temperature-penalty"`

	// FinishAdjust maps finish reasons to additive confidence adjustments.
	FinishAdjust map[string]float64 `yaml:"finish-adjust,omitempty" json:"finish-adjust,omitempty"`
}

// PolicyConfig holds the model filter rules.
type PolicyConfig struct {
	// Rules are evaluated against both the draft and verifier candidates
	// on every run; all rules must allow a candidate for it to be used.
	Rules []policy.Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// CacheConfig controls the response decision cache.
type CacheConfig struct {
	// Enabled toggles caching of cascade decisions.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxSize bounds the number of cached decisions.
	MaxSize int `yaml:"max-size" json:"max-size"`

	// TTLSeconds expires cached decisions. Zero disables expiry.
	TTLSeconds int `yaml:"ttl-seconds" json:"ttl-seconds"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RetryConfig shapes the transient-error retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, first try included.
	MaxAttempts int `yaml:"max-attempts" json:"max-attempts"`

	// BaseDelayMs seeds the exponential backoff.
	BaseDelayMs int64 `yaml:"base-delay-ms" json:"base-delay-ms"`

	// MaxDelayMs caps a single backoff wait.
	MaxDelayMs int64 `yaml:"max-delay-ms" json:"max-delay-ms"`

	// RateLimitDelayMs is the fixed wait after a rate limit response.
	RateLimitDelayMs int64 `yaml:"rate-limit-delay-ms" json:"rate-limit-delay-ms"`

	// JitterFactor spreads backoff by up to this fraction either way.
	JitterFactor float64 `yaml:"jitter-factor" json:"jitter-factor"`
}

// FeedbackConfig controls persistent outcome recording.
type FeedbackConfig struct {
	// Enabled toggles the sqlite outcome recorder.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DBPath is the sqlite database file location.
	DBPath string `yaml:"db-path" json:"db-path"`

	// RetentionDays bounds how long outcomes are kept.
	RetentionDays int `yaml:"retention-days" json:"retention-days"`
}

// LoggingConfig controls log destination and rotation.
type LoggingConfig struct {
	// ToFile routes logs to rotating files instead of stdout.
	ToFile bool `yaml:"to-file" json:"to-file"`

	// Dir is the directory rotated log files are written to.
	Dir string `yaml:"dir" json:"dir"`

	// MaxSizeMB is the size at which the active log file rotates.
	MaxSizeMB int `yaml:"max-size-mb" json:"max-size-mb"`

	// MaxBackups bounds the number of rotated files kept. Zero keeps all.
	MaxBackups int `yaml:"max-backups" json:"max-backups"`

	// MaxAgeDays bounds the age of rotated files. Zero keeps all.
	MaxAgeDays int `yaml:"max-age-days" json:"max-age-days"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Profile: ProfileConfig{Preset: quality.PresetCascade},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    1024,
			TTLSeconds: 300,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseDelayMs:      500,
			MaxDelayMs:       8000,
			RateLimitDelayMs: 2000,
			JitterFactor:     0.2,
		},
		Feedback: FeedbackConfig{
			Enabled:       false,
			DBPath:        "./data/cascade_outcomes.db",
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			ToFile:    false,
			Dir:       "logs",
			MaxSizeMB: 10,
		},
	}
}

// LoadConfig reads YAML from configFile into a Config with defaults applied
// for absent keys. Malformed files and invalid values are errors; nothing is
// deferred to first use.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Set defaults before unmarshal so that absent keys keep defaults.
	cfg := DefaultConfig()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Sanitize()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize normalizes string fields and clamps out-of-range numeric settings
// to safe values. It never rejects; Validate does that.
func (cfg *Config) Sanitize() {
	if cfg == nil {
		return
	}

	cfg.Profile.Preset = strings.ToLower(strings.TrimSpace(cfg.Profile.Preset))

	if cfg.Cache.MaxSize < 0 {
		cfg.Cache.MaxSize = 0
	}
	if cfg.Cache.TTLSeconds < 0 {
		cfg.Cache.TTLSeconds = 0
	}

	if cfg.Feedback.RetentionDays <= 0 {
		cfg.Feedback.RetentionDays = 90
	}
	cfg.Feedback.DBPath = strings.TrimSpace(cfg.Feedback.DBPath)

	cfg.Logging.Dir = strings.TrimSpace(cfg.Logging.Dir)
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.MaxSizeMB < 1 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups < 0 {
		cfg.Logging.MaxBackups = 0
	}
	if cfg.Logging.MaxAgeDays < 0 {
		cfg.Logging.MaxAgeDays = 0
	}

	rules := cfg.Policy.Rules[:0]
	for _, rule := range cfg.Policy.Rules {
		rule.Name = strings.TrimSpace(rule.Name)
		rule.Condition = strings.TrimSpace(rule.Condition)
		if rule.Name == "" && rule.Condition == "" {
			continue
		}
		rules = append(rules, rule)
	}
	cfg.Policy.Rules = rules
}

// Validate surfaces every configuration error at load time: unknown presets,
// out-of-range thresholds, malformed policy conditions, bad retry settings,
// and calibration bounds.
func (cfg *Config) Validate() error {
	if _, err := cfg.BuildProfile(); err != nil {
		return err
	}

	if _, err := policy.NewFilter(cfg.Policy.Rules); err != nil {
		return err
	}

	if err := cfg.BuildRetryPolicy().Validate(); err != nil {
		return err
	}

	providers := make([]string, 0, len(cfg.Calibrations))
	for provider := range cfg.Calibrations {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	for _, provider := range providers {
		cal := cfg.Calibrations[provider]
		if cal.BaseMultiplier < 0.8 || cal.BaseMultiplier > 1.0 {
			return fmt.Errorf("calibration %s: base multiplier %.2f outside [0.8,1.0]", provider, cal.BaseMultiplier)
		}
		if cal.MinConfidence >= cal.MaxConfidence {
			return fmt.Errorf("calibration %s: min %.2f >= max %.2f", provider, cal.MinConfidence, cal.MaxConfidence)
		}
	}

	if cfg.Feedback.Enabled && cfg.Feedback.DBPath == "" {
		return fmt.Errorf("feedback enabled without a db-path")
	}

	return nil
}

// BuildProfile resolves the configured quality profile, validating it.
func (cfg *Config) BuildProfile() (quality.Profile, error) {
	if custom := cfg.Profile.Custom; custom != nil {
		profile := quality.Profile{
			Name:                  strings.TrimSpace(custom.Name),
			MinConfidence:         custom.MinConfidence,
			MinWordCount:          custom.MinWordCount,
			MinAlignmentScore:     custom.MinAlignmentScore,
			UseLogprobs:           custom.UseLogprobs,
			UseAlignmentScoring:   custom.UseAlignmentScoring,
			UseSemanticValidation: custom.UseSemanticValidation,
			StrictMode:            custom.StrictMode,
			FallbackToHeuristic:   custom.FallbackToHeuristic,
			SemanticThreshold:     custom.SemanticThreshold,
		}
		if profile.Name == "" {
			profile.Name = "custom"
		}
		if len(custom.Thresholds) > 0 {
			profile.Thresholds = make(map[complexity.Bucket]float64, len(custom.Thresholds))
			for name, threshold := range custom.Thresholds {
				bucket := complexity.Bucket(strings.ToLower(strings.TrimSpace(name)))
				profile.Thresholds[bucket] = threshold
			}
		}
		if err := profile.Validate(); err != nil {
			return quality.Profile{}, err
		}
		return profile, nil
	}

	preset := cfg.Profile.Preset
	if preset == "" {
		preset = quality.PresetCascade
	}
	return quality.Preset(preset)
}

// CalibrationOptions converts configured calibrations into estimator options,
// in provider name order.
func (cfg *Config) CalibrationOptions() []confidence.Option {
	if len(cfg.Calibrations) == 0 {
		return nil
	}
	providers := make([]string, 0, len(cfg.Calibrations))
	for provider := range cfg.Calibrations {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	opts := make([]confidence.Option, 0, len(providers))
	for _, provider := range providers {
		cal := cfg.Calibrations[provider]
		opts = append(opts, confidence.WithCalibration(provider, confidence.Calibration{
			BaseMultiplier:        cal.BaseMultiplier,
			MinConfidence:         cal.MinConfidence,
			MaxConfidence:         cal.MaxConfidence,
			FreeTemperature:       cal.FreeTemperature,
			PenaltySlope:          cal.PenaltySlope,
			MaxTemperaturePenalty: cal.MaxTemperaturePenalty,
			FinishAdjust:          cal.FinishAdjust,
		}))
	}
	return opts
}

// BuildRetryPolicy converts the retry settings into a policy value.
func (cfg *Config) BuildRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		RateLimitDelay: time.Duration(cfg.Retry.RateLimitDelayMs) * time.Millisecond,
		JitterFactor:   cfg.Retry.JitterFactor,
	}
}
