// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider normalizes raw model payloads into the fields the
// quality gate consumes: content, per-token logprobs, finish reason, and
// token usage. It never performs HTTP calls.
package provider

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Response is the normalized output of one model call.
type Response struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`

	// Logprobs holds per-token negative log-probabilities when the
	// provider exposes them, in token order.
	Logprobs     []float64 `json:"logprobs,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`

	// Raw is the untouched payload the response was parsed from.
	Raw []byte `json:"-"`
}

// Verdict is the gate outcome attached to a payload by Annotate.
type Verdict struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	DecisionID string  `json:"decision_id,omitempty"`
}

// Parse dispatches on the provider identifier. Identifiers are matched
// case-insensitively; "claude" is accepted as an alias for anthropic.
func Parse(providerName string, raw []byte) (*Response, error) {
	switch strings.ToLower(strings.TrimSpace(providerName)) {
	case "openai", "azure", "openrouter":
		return ParseOpenAI(raw)
	case "anthropic", "claude":
		return ParseAnthropic(raw)
	case "ollama":
		return ParseOllama(raw)
	default:
		return nil, fmt.Errorf("unsupported provider %q", providerName)
	}
}

// ParseOpenAI extracts a chat completion response. Logprobs are negated
// into negative log-probability magnitudes when present.
func ParseOpenAI(raw []byte) (*Response, error) {
	root := gjson.ParseBytes(raw)

	content := root.Get("choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("openai payload missing choices.0.message.content")
	}

	resp := &Response{
		Content:      content.String(),
		Model:        root.Get("model").String(),
		Provider:     "openai",
		FinishReason: root.Get("choices.0.finish_reason").String(),
		InputTokens:  int(root.Get("usage.prompt_tokens").Int()),
		OutputTokens: int(root.Get("usage.completion_tokens").Int()),
		Raw:          raw,
	}

	tokens := root.Get("choices.0.logprobs.content")
	if tokens.IsArray() {
		tokens.ForEach(func(_, token gjson.Result) bool {
			nlp := -token.Get("logprob").Float()
			if nlp < 0 {
				nlp = 0
			}
			resp.Logprobs = append(resp.Logprobs, nlp)
			return true
		})
	}

	return resp, nil
}

// ParseAnthropic extracts a messages API response, concatenating text
// blocks. Anthropic stop reasons are mapped onto the openai vocabulary
// ("stop", "length") the gate keys its finish-reason penalty on.
func ParseAnthropic(raw []byte) (*Response, error) {
	root := gjson.ParseBytes(raw)

	blocks := root.Get("content")
	if !blocks.IsArray() {
		return nil, fmt.Errorf("anthropic payload missing content blocks")
	}

	var text strings.Builder
	blocks.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})

	finish := root.Get("stop_reason").String()
	switch finish {
	case "end_turn", "stop_sequence":
		finish = "stop"
	case "max_tokens":
		finish = "length"
	}

	return &Response{
		Content:      text.String(),
		Model:        root.Get("model").String(),
		Provider:     "anthropic",
		FinishReason: finish,
		InputTokens:  int(root.Get("usage.input_tokens").Int()),
		OutputTokens: int(root.Get("usage.output_tokens").Int()),
		Raw:          raw,
	}, nil
}

// ParseOllama extracts either a chat response (message.content) or a
// generate response (response).
func ParseOllama(raw []byte) (*Response, error) {
	root := gjson.ParseBytes(raw)

	content := root.Get("message.content")
	if !content.Exists() {
		content = root.Get("response")
	}
	if !content.Exists() {
		return nil, fmt.Errorf("ollama payload missing message.content and response")
	}

	return &Response{
		Content:      content.String(),
		Model:        root.Get("model").String(),
		Provider:     "ollama",
		FinishReason: root.Get("done_reason").String(),
		InputTokens:  int(root.Get("prompt_eval_count").Int()),
		OutputTokens: int(root.Get("eval_count").Int()),
		Raw:          raw,
	}, nil
}

// Annotate writes the gate verdict into a payload under cascade_gate.*
// so downstream consumers see the decision alongside the raw response.
// An empty payload is annotated as a fresh object.
func Annotate(raw []byte, verdict Verdict) ([]byte, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	updated, err := sjson.SetBytes(raw, "cascade_gate.passed", verdict.Passed)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate payload: %w", err)
	}
	updated, err = sjson.SetBytes(updated, "cascade_gate.confidence", verdict.Confidence)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate payload: %w", err)
	}
	if verdict.Method != "" {
		updated, err = sjson.SetBytes(updated, "cascade_gate.method", verdict.Method)
		if err != nil {
			return nil, fmt.Errorf("failed to annotate payload: %w", err)
		}
	}
	if verdict.Reason != "" {
		updated, err = sjson.SetBytes(updated, "cascade_gate.reason", verdict.Reason)
		if err != nil {
			return nil, fmt.Errorf("failed to annotate payload: %w", err)
		}
	}
	if verdict.DecisionID != "" {
		updated, err = sjson.SetBytes(updated, "cascade_gate.decision_id", verdict.DecisionID)
		if err != nil {
			return nil, fmt.Errorf("failed to annotate payload: %w", err)
		}
	}

	return updated, nil
}
