// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/traylinx/cascadegate/internal/complexity"
)

// PhraseTable is a named, versioned list of phrases matched case-insensitively
// on word boundaries. Tables are data so they can be tuned and tested apart
// from the scoring logic that consumes them.
type PhraseTable struct {
	Name    string
	Version string
	Phrases []string
}

// PatternFamily is a named, versioned group of regular expressions.
// A family counts once toward suspicious-pattern totals no matter how many
// of its member patterns match.
type PatternFamily struct {
	Name     string
	Version  string
	Patterns []*regexp.Regexp
}

// LengthRange holds the nominal word-count range for a complexity bucket.
// ShortFactor tightens the minimum (terse answers to hard questions are more
// suspicious); LongFactor is the generous multiple above which a response
// counts as too long.
type LengthRange struct {
	MinWords    int
	MaxWords    int
	ShortFactor float64
	LongFactor  float64
}

func defaultHedgeTable() PhraseTable {
	return PhraseTable{
		Name:    "soft-hedges",
		Version: "v2",
		Phrases: []string{
			"might",
			"may",
			"could be",
			"perhaps",
			"possibly",
			"probably",
			"likely",
			"seems",
			"appears",
			"suggests",
			"typically",
			"generally",
			"usually",
			"often",
			"sometimes",
			"i think",
			"i believe",
			"i would guess",
			"it's possible",
			"it is possible",
			"in some cases",
			"roughly",
			"approximately",
			"more or less",
		},
	}
}

func defaultSevereTable() PhraseTable {
	return PhraseTable{
		Name:    "severe-uncertainty",
		Version: "v2",
		Phrases: []string{
			"i don't know",
			"i do not know",
			"i'm not sure",
			"i am not sure",
			"i'm unsure",
			"i cannot answer",
			"i can't answer",
			"i'm sorry, but i cannot",
			"i am sorry, but i cannot",
			"i'm not certain",
			"no idea",
			"i have no way of knowing",
		},
	}
}

func defaultVagueTable() PhraseTable {
	return PhraseTable{
		Name:    "vague-fillers",
		Version: "v1",
		Phrases: []string{
			"thing",
			"things",
			"stuff",
			"something",
			"somehow",
			"various",
			"several",
			"some",
			"many",
			"etc",
			"basically",
			"kind of",
			"sort of",
			"a lot",
			"lots",
			"overall",
			"in general",
		},
	}
}

func defaultHallucinationFamilies() []PatternFamily {
	return []PatternFamily{
		{
			Name:    "absolute-claims",
			Version: "v2",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:always|never)\b`),
				regexp.MustCompile(`(?i)\b(?:all|every)\s+\w+\s+(?:are|is|have|has|do|does)\b`),
				regexp.MustCompile(`(?i)\beveryone\s+(?:knows|agrees)\b`),
				regexp.MustCompile(`(?i)\bwithout exception\b`),
				regexp.MustCompile(`(?i)\bguaranteed to\b`),
			},
		},
		{
			Name:    "fabricated-citations",
			Version: "v2",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bstudies (?:show|have shown|prove|confirm)\b`),
				regexp.MustCompile(`(?i)\baccording to (?:research|a study|studies|scientists|experts)\b`),
				regexp.MustCompile(`(?i)\bresearch (?:proves|confirms|shows|has shown)\b`),
				regexp.MustCompile(`(?i)\bscientists (?:confirm|agree|have proven)\b`),
				regexp.MustCompile(`(?i)\bit is well documented\b`),
			},
		},
		{
			Name:    "overprecise-statistics",
			Version: "v1",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{1,3}\.\d{2,}\s*(?:%|percent)`),
				regexp.MustCompile(`(?i)\bexactly\s+\d+(?:\.\d+)?\s*(?:%|percent)`),
				regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?%\s+of\s+(?:all|people|users|cases|developers)\b`),
			},
		},
	}
}

func defaultLengthRanges() map[complexity.Bucket]LengthRange {
	return map[complexity.Bucket]LengthRange{
		complexity.Trivial:  {MinWords: 1, MaxWords: 50, ShortFactor: 1.0, LongFactor: 7.0},
		complexity.Simple:   {MinWords: 5, MaxWords: 100, ShortFactor: 1.0, LongFactor: 6.0},
		complexity.Moderate: {MinWords: 10, MaxWords: 200, ShortFactor: 1.0, LongFactor: 5.0},
		complexity.Hard:     {MinWords: 20, MaxWords: 400, ShortFactor: 1.25, LongFactor: 4.0},
		complexity.Expert:   {MinWords: 30, MaxWords: 600, ShortFactor: 1.5, LongFactor: 3.0},
	}
}

func defaultSpecificityMinima() map[complexity.Bucket]float64 {
	return map[complexity.Bucket]float64{
		complexity.Trivial:  0.30,
		complexity.Simple:   0.40,
		complexity.Moderate: 0.50,
		complexity.Hard:     0.55,
		complexity.Expert:   0.60,
	}
}

// PhrasePack is an on-disk extension to the built-in phrase tables.
// Packs only add phrases; the built-in tables are never replaced.
type PhrasePack struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Hedges  []string `yaml:"hedges"`
	Severe  []string `yaml:"severe"`
	Vague   []string `yaml:"vague"`
}

// LoadPhrasePack reads a phrase pack from a YAML file.
func LoadPhrasePack(path string) (*PhrasePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase pack: %w", err)
	}

	var pack PhrasePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse phrase pack %s: %w", path, err)
	}
	if pack.Name == "" {
		return nil, fmt.Errorf("phrase pack %s has no name", path)
	}

	return &pack, nil
}

// compilePhrases builds case-insensitive word-boundary matchers for a table.
func compilePhrases(table PhraseTable) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(table.Phrases))
	for _, phrase := range table.Phrases {
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(phrase)+`\b`))
	}
	return patterns
}
