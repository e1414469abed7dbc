// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package semantic defines the injected semantic-similarity capability used
// by the quality gate. The core never computes embeddings itself; it
// consumes this interface and degrades to rule-based behavior when the
// capability is absent.
package semantic

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Checker exposes semantic similarity between two texts.
type Checker interface {
	// Similarity returns a score in [0,1]. Higher means closer meaning.
	Similarity(ctx context.Context, a, b string) (float64, error)

	// IsEnabled reports whether the capability is ready for use.
	IsEnabled() bool
}

// Available reports whether a checker can be used right now.
func Available(checker Checker) bool {
	return checker != nil && checker.IsEnabled()
}

// ScoreFunc adapts a checker into the alignment scorer's fallback callback.
// Errors score neutral so a broken capability cannot swing a decision.
func ScoreFunc(ctx context.Context, checker Checker) func(query, response string) float64 {
	if !Available(checker) {
		return nil
	}
	return func(query, response string) float64 {
		similarity, err := checker.Similarity(ctx, query, response)
		if err != nil {
			log.Warnf("Semantic checker failed, scoring neutral: %v", err)
			return 0.5
		}
		return similarity
	}
}
