// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package complexity classifies query text into complexity buckets and
// estimates scalar query difficulty. Buckets select per-complexity
// thresholds in the quality gate; difficulty feeds the confidence
// estimator as a minor signal.
package complexity

import (
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Bucket is a query complexity class used for threshold selection.
type Bucket string

const (
	// Trivial covers arithmetic and single-fact lookups.
	Trivial Bucket = "trivial"
	// Simple covers short, single-topic questions.
	Simple Bucket = "simple"
	// Moderate is the default bucket for everyday queries.
	Moderate Bucket = "moderate"
	// Hard covers design, debugging, and multi-constraint work.
	Hard Bucket = "hard"
	// Expert covers deep technical or formal reasoning.
	Expert Bucket = "expert"
)

// Buckets returns all buckets in ascending complexity order.
func Buckets() []Bucket {
	return []Bucket{Trivial, Simple, Moderate, Hard, Expert}
}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	switch b {
	case Trivial, Simple, Moderate, Hard, Expert:
		return true
	}
	return false
}

// Parse converts a string into a Bucket.
func Parse(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", fmt.Errorf("unknown complexity bucket: %q", s)
	}
	return b, nil
}

// Classifier infers a complexity bucket from query text using keyword and
// length heuristics.
type Classifier struct {
	arithmeticPattern *regexp.Regexp
	factPattern       *regexp.Regexp

	expertTerms []string
	hardTerms   []string
}

// NewClassifier creates a classifier with the default term tables.
func NewClassifier() *Classifier {
	return &Classifier{
		arithmeticPattern: regexp.MustCompile(`\d+\s*[-+*/x×^%]\s*\d+`),
		factPattern:       regexp.MustCompile(`(?i)^\s*(?:what|who|when|where|which)\s+(?:is|are|was|were)\b`),
		expertTerms: []string{
			"prove",
			"theorem",
			"asymptotic",
			"formal verification",
			"distributed consensus",
			"byzantine",
			"np-hard",
			"np-complete",
			"cryptograph",
			"compiler",
			"memory model",
			"linearizab",
			"cache coherence",
		},
		hardTerms: []string{
			"design",
			"architect",
			"optimize",
			"trade-off",
			"tradeoff",
			"debug",
			"scalab",
			"algorithm",
			"implement",
			"refactor",
			"concurrency",
			"performance",
			"benchmark",
			"migration",
		},
	}
}

// Classify infers the bucket for the given query text.
// Empty text defaults to Moderate.
func (c *Classifier) Classify(text string) Bucket {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Moderate
	}

	lower := strings.ToLower(trimmed)
	words := CountWords(trimmed)

	bucket := Moderate
	switch {
	case c.isTrivial(lower, words):
		bucket = Trivial
	case c.matchesAny(lower, c.expertTerms):
		bucket = Expert
	case c.matchesAny(lower, c.hardTerms) || words > 60:
		bucket = Hard
	case words <= 12:
		bucket = Simple
	}

	log.Debugf("Classified query as %s (words=%d)", bucket, words)
	return bucket
}

// Difficulty estimates scalar query difficulty in [0,1].
// Trivial arithmetic scores low; technical vocabulary and very long
// queries score high.
func (c *Classifier) Difficulty(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0.5
	}

	lower := strings.ToLower(trimmed)
	if c.arithmeticPattern.MatchString(lower) {
		return 0.05
	}

	base := 0.5
	switch c.Classify(trimmed) {
	case Trivial:
		base = 0.1
	case Simple:
		base = 0.3
	case Moderate:
		base = 0.5
	case Hard:
		base = 0.7
	case Expert:
		base = 0.9
	}

	// Long multi-part queries are harder regardless of vocabulary.
	if CountWords(trimmed) > 80 {
		base += 0.05
	}
	if c.termHits(lower, c.expertTerms)+c.termHits(lower, c.hardTerms) >= 2 {
		base += 0.05
	}

	if base > 1.0 {
		base = 1.0
	}
	return base
}

// isTrivial checks for arithmetic expressions and short single-fact lookups.
func (c *Classifier) isTrivial(lower string, words int) bool {
	if c.arithmeticPattern.MatchString(lower) && words <= 10 {
		return true
	}
	return c.factPattern.MatchString(lower) && words <= 8 && !c.matchesAny(lower, c.hardTerms) && !c.matchesAny(lower, c.expertTerms)
}

func (c *Classifier) matchesAny(lower string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func (c *Classifier) termHits(lower string, terms []string) int {
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return hits
}

// CountWords counts whitespace-separated words in text.
func CountWords(text string) int {
	if len(text) == 0 {
		return 0
	}

	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
		} else if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

var defaultClassifier = NewClassifier()

// Classify infers the bucket for text using the default classifier.
func Classify(text string) Bucket {
	return defaultClassifier.Classify(text)
}

// Difficulty estimates difficulty for text using the default classifier.
func Difficulty(text string) float64 {
	return defaultClassifier.Difficulty(text)
}
