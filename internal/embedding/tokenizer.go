// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// TokenizedInput is one model-ready input sequence.
type TokenizedInput struct {
	// InputIDs are the WordPiece token IDs.
	InputIDs []int64

	// AttentionMask marks real tokens (1) versus padding (0).
	AttentionMask []int64

	// TokenTypeIDs are segment IDs, all zero for single-segment input.
	TokenTypeIDs []int64
}

// Tokenizer is a WordPiece tokenizer for BERT-style models. It loads a
// one-token-per-line vocabulary file and falls back to a small built-in
// vocabulary when none is available.
type Tokenizer struct {
	vocab map[string]int64

	clsID int64
	sepID int64
	padID int64
	unkID int64
}

// NewTokenizer creates a tokenizer from a vocabulary file. An empty path or
// an unreadable file selects the built-in minimal vocabulary.
func NewTokenizer(vocabPath string) (*Tokenizer, error) {
	t := &Tokenizer{vocab: make(map[string]int64)}

	if vocabPath == "" {
		t.loadBuiltinVocab()
		return t, nil
	}

	file, err := os.Open(vocabPath)
	if err != nil {
		t.loadBuiltinVocab()
		return t, nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var id int64
	for scanner.Scan() {
		t.vocab[scanner.Text()] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}

	t.bindSpecialTokens()
	return t, nil
}

// loadBuiltinVocab installs a minimal vocabulary: special tokens, function
// words, the terms queries and verdicts use most, and common suffix pieces.
func (t *Tokenizer) loadBuiltinVocab() {
	builtin := []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
		"the", "a", "an", "is", "are", "was", "were", "be", "been",
		"to", "of", "in", "for", "on", "with", "at", "by", "from",
		"as", "or", "and", "but", "not", "no", "yes",
		"this", "that", "these", "those", "it", "its",
		"do", "does", "did", "will", "would", "could", "should",
		"can", "may", "might", "must",
		"i", "you", "he", "she", "we", "they", "them", "their",
		"what", "which", "who", "where", "when", "why", "how",
		"all", "each", "some", "such", "more", "most", "other",
		"than", "then", "there", "here", "now", "also", "only",
		"answer", "question", "query", "response", "respond",
		"model", "draft", "verify", "check", "valid", "correct",
		"wrong", "true", "false", "because", "therefore", "first",
		"second", "explain", "describe", "compare", "example",
		"number", "word", "text", "step", "result", "reason",
		"data", "code", "function", "error", "test", "write",
		"##s", "##ed", "##ing", "##er", "##ly", "##tion", "##ment", "##ness",
	}
	for i, token := range builtin {
		t.vocab[token] = int64(i)
	}
	t.bindSpecialTokens()
}

func (t *Tokenizer) bindSpecialTokens() {
	t.clsID = t.vocab["[CLS]"]
	t.sepID = t.vocab["[SEP]"]
	t.padID = t.vocab["[PAD]"]
	t.unkID = t.vocab["[UNK]"]
}

// Tokenize converts text into model input, bounded by maxLength including
// the [CLS] and [SEP] markers.
func (t *Tokenizer) Tokenize(text string, maxLength int) (*TokenizedInput, error) {
	words := strings.Fields(normalize(strings.ToLower(text)))

	ids := []int64{t.clsID}
	for _, word := range words {
		ids = append(ids, t.wordIDs(word)...)
		if len(ids) >= maxLength-1 {
			break
		}
	}
	if len(ids) > maxLength-1 {
		ids = ids[:maxLength-1]
	}
	ids = append(ids, t.sepID)

	seqLen := len(ids)
	attention := make([]int64, seqLen)
	segments := make([]int64, seqLen)
	for i := range attention {
		attention[i] = 1
	}

	return &TokenizedInput{
		InputIDs:      ids,
		AttentionMask: attention,
		TokenTypeIDs:  segments,
	}, nil
}

// wordIDs applies greedy longest-match WordPiece to one word. Continuation
// pieces carry the ## prefix; unmatched bytes map to [UNK] one at a time.
func (t *Tokenizer) wordIDs(word string) []int64 {
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	var ids []int64
	start := 0
	for start < len(word) {
		matched := int64(-1)
		end := len(word)
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			ids = append(ids, t.unkID)
			start++
			continue
		}
		ids = append(ids, matched)
		start = end
	}

	if len(ids) == 0 {
		return []int64{t.unkID}
	}
	return ids
}

// VocabSize returns the number of known tokens.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// normalize collapses whitespace and spaces out punctuation so it tokenizes
// separately from adjacent words.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsPunct(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
