// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cascadegate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/traylinx/cascadegate/internal/cascade"
	"github.com/traylinx/cascadegate/internal/config"
	"github.com/traylinx/cascadegate/internal/provider"
	"github.com/traylinx/cascadegate/internal/quality"
	"github.com/traylinx/cascadegate/internal/tokens"
)

const (
	btreeQuery    = "How does a B-tree split work?"
	btreeResponse = "A B-tree splits a full node by moving the median key up and dividing the rest into two nodes."
)

type stubGenerator struct {
	model    string
	provider string
	rates    tokens.Rates
	content  string
	calls    int
}

func (g *stubGenerator) Model() string       { return g.model }
func (g *stubGenerator) Provider() string    { return g.provider }
func (g *stubGenerator) Rates() tokens.Rates { return g.rates }

func (g *stubGenerator) Generate(ctx context.Context, query string) (*provider.Response, error) {
	g.calls++
	return &provider.Response{
		Content:      g.content,
		Model:        g.model,
		Provider:     g.provider,
		FinishReason: "stop",
		Raw:          []byte(`{"message": {"content": "ok"}}`),
	}, nil
}

func TestNewValidationOnlyGate(t *testing.T) {
	gate, err := New(Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gate.Shutdown(context.Background())

	if gate.Profile().Name != quality.PresetCascade {
		t.Errorf("default profile should be cascade, got: %s", gate.Profile().Name)
	}

	result := gate.Validate(context.Background(), quality.Request{
		Content:      btreeResponse,
		Query:        btreeQuery,
		Provider:     "ollama",
		FinishReason: "stop",
	})
	if !result.Passed {
		t.Errorf("grounded answer should pass, got: %+v", result)
	}

	if _, err := gate.Run(context.Background(), cascade.Query{Text: btreeQuery}); err == nil {
		t.Error("Run without generators should fail")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Profile.Preset = "turbo"
	if _, err := New(Options{Config: cfg}); err == nil {
		t.Error("unknown preset should fail at construction")
	}
}

func TestNewFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte("profile:\n  preset: strict\ncache:\n  enabled: false"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	gate, err := New(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gate.Shutdown(context.Background())

	if gate.Profile().Name != quality.PresetStrict {
		t.Errorf("profile should be strict, got: %s", gate.Profile().Name)
	}
}

func TestGateRun(t *testing.T) {
	draft := &stubGenerator{
		model:    "llama3.2:3b",
		provider: "ollama",
		rates:    tokens.Rates{InputCentsPer1K: 0.015, OutputCentsPer1K: 0.06},
		content:  btreeResponse,
	}
	verifier := &stubGenerator{
		model:    "claude-3.5-sonnet",
		provider: "anthropic",
		rates:    tokens.Rates{InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
		content:  "A fuller answer.",
	}

	gate, err := New(Options{Draft: draft, Verifier: verifier})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gate.Shutdown(context.Background())

	outcome, err := gate.Run(context.Background(), cascade.Query{Text: btreeQuery})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if outcome.Escalated {
		t.Error("good draft should be accepted")
	}
	if verifier.calls != 0 {
		t.Errorf("verifier should be idle, got %d calls", verifier.calls)
	}

	metrics := gate.GetMetrics()
	cascadeMetrics, ok := metrics["cascade"].(map[string]interface{})
	if !ok {
		t.Fatal("metrics should include a cascade section")
	}
	if cascadeMetrics["total_runs"].(int64) != 1 {
		t.Errorf("total_runs = %v, want 1", cascadeMetrics["total_runs"])
	}
	// Run and Validate share one gate, so the validator saw this run too.
	validatorMetrics := metrics["validator"].(map[string]interface{})
	if validatorMetrics["total_validations"].(int64) != 1 {
		t.Errorf("total_validations = %v, want 1", validatorMetrics["total_validations"])
	}
}

func TestValidatePayload(t *testing.T) {
	gate, err := New(Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gate.Shutdown(context.Background())

	payload := []byte(`{"model": "llama3.2:3b", "message": {"content": "` + btreeResponse + `"}, "done_reason": "stop"}`)
	result, annotated, err := gate.ValidatePayload(context.Background(), "ollama", payload, btreeQuery)
	if err != nil {
		t.Fatalf("ValidatePayload() failed: %v", err)
	}
	if !result.Passed {
		t.Errorf("grounded answer should pass, got: %+v", result)
	}
	if !gjson.GetBytes(annotated, "cascade_gate.passed").Bool() {
		t.Error("annotation should record the pass")
	}
	if gjson.GetBytes(annotated, "message.content").String() != btreeResponse {
		t.Error("original payload should survive annotation")
	}

	if _, _, err := gate.ValidatePayload(context.Background(), "cohere", payload, btreeQuery); err == nil {
		t.Error("unsupported provider should fail")
	}
}

func TestGateReloadsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte("profile:\n  preset: cascade"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	gate, err := New(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()
	if err := gate.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	defer gate.Shutdown(ctx)

	if err := os.WriteFile(path, []byte("profile:\n  preset: strict"), 0o644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if gate.Profile().Name == quality.PresetStrict {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("gate did not pick up the new profile, still: %s", gate.Profile().Name)
}

func TestGateShutdownIdempotent(t *testing.T) {
	gate, err := New(Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	if err := gate.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() failed: %v", err)
	}
	if err := gate.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() failed: %v", err)
	}
}
