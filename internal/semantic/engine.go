// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package semantic

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Embedder computes embedding vectors for similarity checks.
type Embedder interface {
	// Embed computes the embedding vector for a text
	Embed(text string) ([]float32, error)

	// CosineSimilarity computes the cosine similarity between two vectors
	CosineSimilarity(a, b []float32) float64

	// IsEnabled returns whether the engine is ready
	IsEnabled() bool
}

// EngineChecker adapts an embedding engine into a Checker.
type EngineChecker struct {
	engine Embedder

	// metrics for tracking
	mu              sync.RWMutex
	similarityCount int64
	totalLatencyMs  int64
}

// NewEngineChecker creates a checker backed by an embedding engine.
func NewEngineChecker(engine Embedder) *EngineChecker {
	return &EngineChecker{engine: engine}
}

// Similarity embeds both texts and returns their cosine similarity clamped
// into [0,1].
//
// Parameters:
//   - ctx: Cancellation context checked before the embedding work
//   - a, b: The texts to compare
//
// Returns:
//   - float64: Similarity score in [0,1]
//   - error: Any embedding failure or context cancellation
func (c *EngineChecker) Similarity(ctx context.Context, a, b string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !c.IsEnabled() {
		return 0, fmt.Errorf("embedding engine not available")
	}

	start := time.Now()

	vecA, err := c.engine.Embed(a)
	if err != nil {
		return 0, fmt.Errorf("failed to embed first text: %w", err)
	}
	vecB, err := c.engine.Embed(b)
	if err != nil {
		return 0, fmt.Errorf("failed to embed second text: %w", err)
	}

	similarity := c.engine.CosineSimilarity(vecA, vecB)
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	c.mu.Lock()
	c.similarityCount++
	c.totalLatencyMs += time.Since(start).Milliseconds()
	c.mu.Unlock()

	return similarity, nil
}

// IsEnabled reports whether the underlying engine is ready.
func (c *EngineChecker) IsEnabled() bool {
	return c.engine != nil && c.engine.IsEnabled()
}

// Shutdown releases the underlying engine when it holds releasable
// resources, as the ONNX session does.
func (c *EngineChecker) Shutdown() error {
	if closer, ok := c.engine.(interface{ Shutdown() error }); ok {
		return closer.Shutdown()
	}
	return nil
}

// GetMetrics returns similarity call metrics.
func (c *EngineChecker) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	avgLatency := 0.0
	if c.similarityCount > 0 {
		avgLatency = float64(c.totalLatencyMs) / float64(c.similarityCount)
	}

	return map[string]interface{}{
		"similarity_count": c.similarityCount,
		"avg_latency_ms":   avgLatency,
	}
}
