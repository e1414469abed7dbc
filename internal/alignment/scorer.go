// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package alignment scores how well a response addresses its query,
// independent of fluency. The scorer is rule-based with an optional
// semantic-similarity fallback for scores in the uncertain zone.
package alignment

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Uncertain zone bounds. The semantic fallback only fires for rule-based
// scores inside this range.
const (
	uncertainLow  = 0.35
	uncertainHigh = 0.55
)

// mcqScore is the fixed score for a bare valid option answering an
// enumerated multiple-choice query. It bypasses lexical scoring and the
// semantic fallback entirely.
const mcqScore = 0.75

// Analysis is the detailed result of one alignment evaluation.
type Analysis struct {
	Score            float64  `json:"score"`
	IsMCQ            bool     `json:"is_mcq"`
	IsMultiTurn      bool     `json:"is_multi_turn"`
	TrivialDirect    bool     `json:"trivial_direct"`
	ReasoningChain   float64  `json:"reasoning_chain"`
	LexicalOverlap   float64  `json:"lexical_overlap"`
	SemanticFallback bool     `json:"semantic_fallback"`
	SemanticScore    *float64 `json:"semantic_score,omitempty"`
}

// Request carries the inputs for one evaluation. PriorConfidence, when
// positive, nudges uncertain-zone scores toward the caller's prior.
type Request struct {
	Query           string
	Response        string
	PriorConfidence float64
}

// Config controls the optional semantic fallback. When UseSemanticFallback
// is false or SemanticScore is nil the fallback is a strict no-op.
type Config struct {
	UseSemanticFallback bool
	SemanticScore       func(query, response string) float64
}

// Scorer evaluates query-response alignment. All patterns are compiled at
// construction; a single Scorer is safe for concurrent use.
type Scorer struct {
	cfg Config

	optionPattern     *regexp.Regexp
	answerCuePattern  *regexp.Regexp
	bareOptionPattern *regexp.Regexp

	arithmeticPattern *regexp.Regexp
	numericPattern    *regexp.Regexp
	factPattern       *regexp.Regexp

	turnPattern        *regexp.Regexp
	explanatoryPattern *regexp.Regexp
	reasoningMarkers   []*regexp.Regexp

	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewScorer creates a scorer with the given fallback configuration.
func NewScorer(cfg Config) *Scorer {
	markerPhrases := []string{
		"first", "second", "third", "next", "then", "finally",
		"therefore", "thus", "because", "consequently",
		"in conclusion", "as a result", "step",
	}
	markers := make([]*regexp.Regexp, 0, len(markerPhrases))
	for _, phrase := range markerPhrases {
		markers = append(markers, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(phrase)+`\b`))
	}

	return &Scorer{
		cfg: cfg,

		optionPattern:     regexp.MustCompile(`(?m)(?:^|\s)([A-Fa-f])[).]\s*\S`),
		answerCuePattern:  regexp.MustCompile(`(?i)\banswer\b`),
		bareOptionPattern: regexp.MustCompile(`^([A-Fa-f])[).]?$`),

		arithmeticPattern: regexp.MustCompile(`\d+\s*[-+*/x×^%]\s*\d+`),
		numericPattern:    regexp.MustCompile(`^-?\d+(?:\.\d+)?$`),
		factPattern:       regexp.MustCompile(`(?i)^\s*(?:what|who|when|where|which)\s+(?:is|are|was|were)\b`),

		turnPattern:        regexp.MustCompile(`(?im)^\s*(user|assistant)\s*:`),
		explanatoryPattern: regexp.MustCompile(`(?i)\b(?:why|how|explain|describe|compare|walk\s+through)\b`),
		reasoningMarkers:   markers,

		tokenPattern: regexp.MustCompile(`[a-z0-9']+`),
		stopwords: map[string]struct{}{
			"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
			"be": {}, "been": {}, "being": {}, "to": {}, "of": {}, "and": {}, "or": {},
			"in": {}, "on": {}, "at": {}, "it": {}, "its": {}, "this": {}, "that": {},
			"these": {}, "those": {}, "for": {}, "with": {}, "as": {}, "by": {},
			"from": {}, "but": {}, "what": {}, "who": {}, "when": {}, "where": {},
			"which": {}, "why": {}, "how": {}, "do": {}, "does": {}, "did": {},
			"can": {}, "could": {}, "would": {}, "should": {}, "will": {}, "shall": {},
			"may": {}, "might": {}, "i": {}, "you": {}, "we": {}, "they": {}, "he": {},
			"she": {}, "me": {}, "my": {}, "your": {}, "their": {}, "please": {},
			"tell": {}, "about": {},
		},
	}
}

// Score returns the alignment score for a query-response pair.
func (s *Scorer) Score(query, response string) float64 {
	return s.Evaluate(Request{Query: query, Response: response}).Score
}

// Evaluate scores a query-response pair and returns the full feature
// breakdown.
//
// Rule order: multiple-choice detection, trivial direct answers, multi-turn
// continuity, reasoning chains, then general lexical overlap. The semantic
// fallback blends in only when the rule-based score lands in the uncertain
// zone and a callback is configured.
func (s *Scorer) Evaluate(req Request) *Analysis {
	query := strings.TrimSpace(req.Query)
	response := strings.TrimSpace(req.Response)

	result := &Analysis{}

	// Multiple choice. A bare valid option token answering an enumerated
	// option list scores a fixed value and skips everything else.
	if letter, ok := s.bareOption(response); ok {
		if options := s.enumeratedOptions(query); len(options) >= 2 && s.answerCuePattern.MatchString(query) {
			if _, valid := options[letter]; valid {
				log.Debugf("Alignment: MCQ option %q accepted", letter)
				result.IsMCQ = true
				result.Score = mcqScore
				return result
			}
		}
	}

	// Trivial direct answers to arithmetic or single-fact queries.
	if s.arithmeticPattern.MatchString(query) && s.numericPattern.MatchString(response) {
		result.TrivialDirect = true
		result.Score = 0.65
		return result
	}
	if s.factPattern.MatchString(query) && wordCount(query) <= 8 {
		if n := wordCount(response); n >= 1 && n <= 4 {
			result.TrivialDirect = true
			result.Score = 0.60
			return result
		}
	}

	switch {
	case len(s.turnPattern.FindAllStringIndex(query, -1)) >= 2:
		// Continuing conversation: score continuity with the latest user
		// turn and apply the contextual boost.
		result.IsMultiTurn = true
		lastTurn := s.lastUserTurn(query)
		result.LexicalOverlap = s.overlap(lastTurn, response)
		result.Score = 0.15 + 0.6*result.LexicalOverlap + 0.15

	default:
		result.LexicalOverlap = s.overlap(query, response)
		if result.LexicalOverlap > 0 {
			result.Score = 0.15 + 0.6*result.LexicalOverlap
		} else {
			// No shared content at all reads as fully off topic.
			result.Score = 0.10
		}

		if chain := s.reasoningChain(query, response); chain > 0 {
			result.ReasoningChain = chain
			if result.Score < 0.55 {
				result.Score = 0.55
			}
			result.Score += 0.1 * chain
		}
	}

	// A caller-supplied prior nudges uncertain scores before any fallback.
	if req.PriorConfidence > 0 && inUncertainZone(result.Score) {
		result.Score = 0.9*result.Score + 0.1*req.PriorConfidence
	}

	if s.cfg.UseSemanticFallback && s.cfg.SemanticScore != nil && inUncertainZone(result.Score) {
		semantic := clamp01(s.cfg.SemanticScore(req.Query, req.Response))
		result.SemanticFallback = true
		result.SemanticScore = &semantic
		result.Score = 0.7*result.Score + 0.3*semantic
		log.Debugf("Alignment: semantic fallback fired, semantic=%.3f", semantic)
	}

	result.Score = clamp01(result.Score)
	return result
}

// enumeratedOptions extracts the option letters from an MCQ-style query.
func (s *Scorer) enumeratedOptions(query string) map[string]struct{} {
	matches := s.optionPattern.FindAllStringSubmatch(query, -1)
	options := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		options[strings.ToUpper(match[1])] = struct{}{}
	}
	return options
}

// bareOption reports whether the response is a single option token.
func (s *Scorer) bareOption(response string) (string, bool) {
	match := s.bareOptionPattern.FindStringSubmatch(response)
	if match == nil {
		return "", false
	}
	return strings.ToUpper(match[1]), true
}

// lastUserTurn returns the content of the final "User:" turn, or the whole
// query when no user turn is found.
func (s *Scorer) lastUserTurn(query string) string {
	matches := s.turnPattern.FindAllStringSubmatchIndex(query, -1)
	lastStart := -1
	lastEnd := -1
	for i, match := range matches {
		role := strings.ToLower(query[match[2]:match[3]])
		if role != "user" {
			continue
		}
		lastStart = match[1]
		lastEnd = len(query)
		if i+1 < len(matches) {
			lastEnd = matches[i+1][0]
		}
	}
	if lastStart < 0 {
		return query
	}
	return strings.TrimSpace(query[lastStart:lastEnd])
}

// reasoningChain returns the chain strength in [0,1] for a long,
// multi-paragraph response to an explanatory query, or 0 when the response
// does not qualify.
func (s *Scorer) reasoningChain(query, response string) float64 {
	if !s.explanatoryPattern.MatchString(query) {
		return 0
	}
	if wordCount(response) < 80 {
		return 0
	}
	if len(splitParagraphs(response)) < 2 {
		return 0
	}

	distinct := 0
	for _, marker := range s.reasoningMarkers {
		if marker.MatchString(response) {
			distinct++
		}
	}
	if distinct < 2 {
		return 0
	}

	strength := float64(distinct) / 4.0
	if strength > 1 {
		strength = 1
	}
	return strength
}

// overlap measures what fraction of the query's content words appear in the
// response.
func (s *Scorer) overlap(query, response string) float64 {
	queryTokens := s.contentTokens(query)
	if len(queryTokens) == 0 {
		return 0
	}
	responseTokens := s.contentTokens(response)

	matched := 0
	for token := range queryTokens {
		if _, ok := responseTokens[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func (s *Scorer) contentTokens(text string) map[string]struct{} {
	tokens := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	content := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, ok := s.stopwords[token]; ok {
			continue
		}
		content[token] = struct{}{}
	}
	return content
}

func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			paragraphs = append(paragraphs, part)
		}
	}
	return paragraphs
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func inUncertainZone(score float64) bool {
	return score >= uncertainLow && score <= uncertainHigh
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
