// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package analysis provides heuristic quality analysis of response text.
// It detects length problems, hedging, vagueness, and hallucination risk
// so the confidence estimator and quality validator can act on them.
package analysis

import (
	"regexp"
	"strings"

	"github.com/traylinx/cascadegate/internal/complexity"
)

// RiskLevel categorizes hallucination risk.
type RiskLevel string

const (
	// RiskLow means no suspicious pattern families matched.
	RiskLow RiskLevel = "low"
	// RiskMedium means exactly one family matched.
	RiskMedium RiskLevel = "medium"
	// RiskHigh means two or more families matched.
	RiskHigh RiskLevel = "high"
)

// LengthAnalysis reports whether a response length fits its complexity bucket.
type LengthAnalysis struct {
	WordCount   int  `json:"word_count"`
	CharCount   int  `json:"char_count"`
	Appropriate bool `json:"appropriate"`
	TooShort    bool `json:"too_short"`
	TooLong     bool `json:"too_long"`
	// ExpectedMin and ExpectedMax are the nominal range for the bucket.
	ExpectedMin int `json:"expected_min"`
	ExpectedMax int `json:"expected_max"`
}

// HedgingAnalysis reports hedging density in a response.
type HedgingAnalysis struct {
	// Count is the number of distinct hedge phrases found anywhere in the text.
	Count int `json:"count"`
	// Ratio is Count divided by the sentence count.
	Ratio float64 `json:"ratio"`
	// Severe is true when any severe uncertainty marker is present.
	Severe bool `json:"severe"`
	// Acceptable is true when not severe and Ratio <= 0.3.
	Acceptable bool     `json:"acceptable"`
	Phrases    []string `json:"phrases,omitempty"`
}

// SpecificityAnalysis reports how concrete a response is.
type SpecificityAnalysis struct {
	HasNumbers       bool    `json:"has_numbers"`
	HasExamples      bool    `json:"has_examples"`
	VaguenessRatio   float64 `json:"vagueness_ratio"`
	Score            float64 `json:"score"`
	RequiredScore    float64 `json:"required_score"`
	MeetsRequirement bool    `json:"meets_requirement"`
}

// HallucinationAnalysis reports hallucination risk signals.
type HallucinationAnalysis struct {
	// SuspiciousPatterns counts distinct matched pattern families.
	SuspiciousPatterns int       `json:"suspicious_patterns"`
	MatchedFamilies    []string  `json:"matched_families,omitempty"`
	HasContradiction   bool      `json:"has_contradiction"`
	RiskLevel          RiskLevel `json:"risk_level"`
}

// ResponseAnalysis bundles all four heuristics for one response.
type ResponseAnalysis struct {
	Length        LengthAnalysis        `json:"length"`
	Hedging       HedgingAnalysis       `json:"hedging"`
	Specificity   SpecificityAnalysis   `json:"specificity"`
	Hallucination HallucinationAnalysis `json:"hallucination"`
}

// Analyzer runs the response text heuristics. All pattern tables are built
// at construction and never mutated, so a single Analyzer is safe for
// concurrent use.
type Analyzer struct {
	hedgeTable  PhraseTable
	severeTable PhraseTable
	vagueTable  PhraseTable

	hedgePatterns  []*regexp.Regexp
	severePatterns []*regexp.Regexp
	vaguePatterns  []*regexp.Regexp

	examplePatterns []*regexp.Regexp
	numberPattern   *regexp.Regexp
	sentenceSplit   *regexp.Regexp
	tokenPattern    *regexp.Regexp

	families []PatternFamily

	lengthRanges      map[complexity.Bucket]LengthRange
	specificityMinima map[complexity.Bucket]float64

	stopwords map[string]struct{}
	negations map[string]struct{}
}

// NewAnalyzer creates an analyzer with the default pattern tables.
func NewAnalyzer() *Analyzer {
	return NewAnalyzerFromPacks(nil)
}

// NewAnalyzerFromPacks creates an analyzer with the default tables extended
// by the given phrase packs.
func NewAnalyzerFromPacks(packs []*PhrasePack) *Analyzer {
	hedges := defaultHedgeTable()
	severe := defaultSevereTable()
	vague := defaultVagueTable()

	for _, pack := range packs {
		if pack == nil {
			continue
		}
		hedges.Phrases = append(hedges.Phrases, pack.Hedges...)
		severe.Phrases = append(severe.Phrases, pack.Severe...)
		vague.Phrases = append(vague.Phrases, pack.Vague...)
	}

	a := &Analyzer{
		hedgeTable:  hedges,
		severeTable: severe,
		vagueTable:  vague,
		examplePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bfor example\b`),
			regexp.MustCompile(`(?i)\bfor instance\b`),
			regexp.MustCompile(`(?i)\be\.g\.`),
			regexp.MustCompile(`(?i)\bsuch as\b`),
			regexp.MustCompile(`(?i)\bas an example\b`),
			regexp.MustCompile("`[^`]+`"),
			regexp.MustCompile("```"),
		},
		numberPattern: regexp.MustCompile(`\d`),
		sentenceSplit: regexp.MustCompile(`[.!?]+`),
		tokenPattern:  regexp.MustCompile(`[a-z0-9']+`),
		families:      defaultHallucinationFamilies(),

		lengthRanges:      defaultLengthRanges(),
		specificityMinima: defaultSpecificityMinima(),

		stopwords: map[string]struct{}{
			"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
			"be": {}, "been": {}, "to": {}, "of": {}, "and": {}, "or": {}, "in": {},
			"on": {}, "at": {}, "it": {}, "this": {}, "that": {}, "for": {}, "with": {},
			"as": {}, "by": {}, "from": {}, "but": {}, "they": {}, "them": {}, "there": {},
		},
		negations: map[string]struct{}{
			"not": {}, "no": {}, "never": {}, "cannot": {}, "can't": {}, "isn't": {},
			"aren't": {}, "wasn't": {}, "weren't": {}, "doesn't": {}, "don't": {},
		},
	}

	a.hedgePatterns = compilePhrases(a.hedgeTable)
	a.severePatterns = compilePhrases(a.severeTable)
	a.vaguePatterns = compilePhrases(a.vagueTable)

	return a
}

// Analyze runs all four heuristics over the response text.
func (a *Analyzer) Analyze(text string, bucket complexity.Bucket) *ResponseAnalysis {
	if !bucket.Valid() {
		bucket = complexity.Moderate
	}
	return &ResponseAnalysis{
		Length:        a.Length(text, bucket),
		Hedging:       a.Hedging(text),
		Specificity:   a.Specificity(text, bucket),
		Hallucination: a.Hallucination(text),
	}
}

// Length checks whether the response word count fits the bucket's range.
func (a *Analyzer) Length(text string, bucket complexity.Bucket) LengthAnalysis {
	rng, ok := a.lengthRanges[bucket]
	if !ok {
		rng = a.lengthRanges[complexity.Moderate]
	}

	trimmed := strings.TrimSpace(text)
	words := complexity.CountWords(trimmed)

	// Harder buckets tighten the minimum; verbosity gets the looser bound.
	effectiveMin := int(float64(rng.MinWords)*rng.ShortFactor + 0.5)
	effectiveMax := int(float64(rng.MaxWords) * rng.LongFactor)

	result := LengthAnalysis{
		WordCount:   words,
		CharCount:   len(trimmed),
		ExpectedMin: rng.MinWords,
		ExpectedMax: rng.MaxWords,
	}
	result.TooShort = words < effectiveMin
	result.TooLong = words > effectiveMax
	result.Appropriate = !result.TooShort && !result.TooLong

	return result
}

// Hedging counts distinct hedge phrases and severe uncertainty markers.
// Empty text is acceptable with zero counts.
func (a *Analyzer) Hedging(text string) HedgingAnalysis {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return HedgingAnalysis{Acceptable: true}
	}

	var matched []string
	for i, pattern := range a.hedgePatterns {
		if pattern.MatchString(trimmed) {
			matched = append(matched, a.hedgeTable.Phrases[i])
		}
	}

	severe := false
	for _, pattern := range a.severePatterns {
		if pattern.MatchString(trimmed) {
			severe = true
			break
		}
	}

	sentences := a.countSentences(trimmed)
	ratio := float64(len(matched)) / float64(sentences)

	return HedgingAnalysis{
		Count:      len(matched),
		Ratio:      ratio,
		Severe:     severe,
		Acceptable: !severe && ratio <= 0.3,
		Phrases:    matched,
	}
}

// Specificity scores how concrete the response is for its bucket.
func (a *Analyzer) Specificity(text string, bucket complexity.Bucket) SpecificityAnalysis {
	required, ok := a.specificityMinima[bucket]
	if !ok {
		required = a.specificityMinima[complexity.Moderate]
	}

	trimmed := strings.TrimSpace(text)
	result := SpecificityAnalysis{RequiredScore: required}
	if trimmed == "" {
		return result
	}

	result.HasNumbers = a.numberPattern.MatchString(trimmed)
	for _, pattern := range a.examplePatterns {
		if pattern.MatchString(trimmed) {
			result.HasExamples = true
			break
		}
	}

	words := complexity.CountWords(trimmed)
	vagueHits := 0
	for _, pattern := range a.vaguePatterns {
		vagueHits += len(pattern.FindAllStringIndex(trimmed, -1))
	}
	if words > 0 {
		result.VaguenessRatio = float64(vagueHits) / float64(words)
	}

	score := 0.5
	if result.HasNumbers {
		score += 0.20
	}
	if result.HasExamples {
		score += 0.15
	}
	if words >= 40 {
		score += 0.05
	}
	penalty := result.VaguenessRatio * 2.0
	if penalty > 0.4 {
		penalty = 0.4
	}
	score -= penalty

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	result.Score = score
	result.MeetsRequirement = score >= required
	return result
}

// Hallucination counts matched suspicious pattern families and detects
// adjacent affirmation/negation contradictions.
func (a *Analyzer) Hallucination(text string) HallucinationAnalysis {
	trimmed := strings.TrimSpace(text)
	result := HallucinationAnalysis{RiskLevel: RiskLow}
	if trimmed == "" {
		return result
	}

	for _, family := range a.families {
		for _, pattern := range family.Patterns {
			if pattern.MatchString(trimmed) {
				result.SuspiciousPatterns++
				result.MatchedFamilies = append(result.MatchedFamilies, family.Name)
				break
			}
		}
	}

	result.HasContradiction = a.detectContradiction(trimmed)

	switch {
	case result.SuspiciousPatterns >= 2:
		result.RiskLevel = RiskHigh
	case result.SuspiciousPatterns == 1:
		result.RiskLevel = RiskMedium
	}

	return result
}

// countSentences counts sentence segments split on terminal punctuation.
// Always returns at least 1 for non-empty text.
func (a *Analyzer) countSentences(text string) int {
	segments := a.sentenceSplit.Split(text, -1)
	count := 0
	for _, segment := range segments {
		if strings.TrimSpace(segment) != "" {
			count++
		}
	}
	if count == 0 {
		count = 1
	}
	return count
}

// detectContradiction looks for adjacent sentences that share most of their
// content words while disagreeing on negation.
func (a *Analyzer) detectContradiction(text string) bool {
	segments := a.sentenceSplit.Split(text, -1)
	sentences := make([]string, 0, len(segments))
	for _, segment := range segments {
		if s := strings.TrimSpace(segment); s != "" {
			sentences = append(sentences, s)
		}
	}

	for i := 1; i < len(sentences); i++ {
		prevTokens, prevNegated := a.contentTokens(sentences[i-1])
		currTokens, currNegated := a.contentTokens(sentences[i])
		if prevNegated == currNegated {
			continue
		}

		smaller := len(prevTokens)
		if len(currTokens) < smaller {
			smaller = len(currTokens)
		}
		if smaller < 2 {
			continue
		}

		shared := 0
		for token := range currTokens {
			if _, ok := prevTokens[token]; ok {
				shared++
			}
		}
		if shared >= 2 && float64(shared)/float64(smaller) >= 0.6 {
			return true
		}
	}

	return false
}

// contentTokens extracts non-stopword tokens and reports whether the
// sentence contains a negation.
func (a *Analyzer) contentTokens(sentence string) (map[string]struct{}, bool) {
	tokens := a.tokenPattern.FindAllString(strings.ToLower(sentence), -1)
	content := make(map[string]struct{}, len(tokens))
	negated := false
	for _, token := range tokens {
		if _, ok := a.negations[token]; ok {
			negated = true
			continue
		}
		if _, ok := a.stopwords[token]; ok {
			continue
		}
		content[token] = struct{}{}
	}
	return content, negated
}

// HedgeTableVersion returns the active hedge table name and version.
func (a *Analyzer) HedgeTableVersion() (string, string) {
	return a.hedgeTable.Name, a.hedgeTable.Version
}
