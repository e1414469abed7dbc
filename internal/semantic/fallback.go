// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package semantic

import (
	"context"
	"regexp"
	"strings"
)

// Fallback is a lexical checker used when no embedding capability is
// configured. It measures Jaccard overlap of content tokens, which is crude
// but deterministic and dependency free.
type Fallback struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewFallback creates the lexical fallback checker.
func NewFallback() *Fallback {
	return &Fallback{
		tokenPattern: regexp.MustCompile(`[a-z0-9']+`),
		stopwords: map[string]struct{}{
			"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
			"be": {}, "to": {}, "of": {}, "and": {}, "or": {}, "in": {}, "on": {},
			"at": {}, "it": {}, "this": {}, "that": {}, "for": {}, "with": {},
			"as": {}, "by": {}, "from": {}, "but": {}, "what": {}, "how": {},
			"why": {}, "do": {}, "does": {},
		},
	}
}

// Similarity returns the Jaccard overlap of the two texts' content tokens.
func (f *Fallback) Similarity(_ context.Context, a, b string) (float64, error) {
	tokensA := f.contentTokens(a)
	tokensB := f.contentTokens(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1.0, nil
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0, nil
	}

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	return float64(intersection) / float64(union), nil
}

// IsEnabled always reports true; the fallback has no external dependency.
func (f *Fallback) IsEnabled() bool {
	return true
}

func (f *Fallback) contentTokens(text string) map[string]struct{} {
	tokens := f.tokenPattern.FindAllString(strings.ToLower(text), -1)
	content := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, ok := f.stopwords[token]; ok {
			continue
		}
		content[token] = struct{}{}
	}
	return content
}
