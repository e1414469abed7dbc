// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenizerBuiltinVocab(t *testing.T) {
	tokenizer, err := NewTokenizer("")
	require.NoError(t, err)
	assert.Greater(t, tokenizer.VocabSize(), 0)

	// Unreadable path falls back to the builtin vocabulary too.
	fallback, err := NewTokenizer(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, tokenizer.VocabSize(), fallback.VocabSize())
}

func TestNewTokenizerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	content := "[PAD]\n[UNK]\n[CLS]\n[SEP]\nhello\nworld\n##s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tokenizer, err := NewTokenizer(path)
	require.NoError(t, err)
	assert.Equal(t, 7, tokenizer.VocabSize())
	assert.Equal(t, int64(2), tokenizer.clsID)
	assert.Equal(t, int64(3), tokenizer.sepID)

	result, err := tokenizer.Tokenize("hello worlds", 16)
	require.NoError(t, err)
	// [CLS] hello world ##s [SEP]
	assert.Equal(t, []int64{2, 4, 5, 6, 3}, result.InputIDs)
}

func TestTokenizeShape(t *testing.T) {
	tokenizer, err := NewTokenizer("")
	require.NoError(t, err)

	tests := []struct {
		name      string
		text      string
		maxLength int
	}{
		{"simple", "what is the answer", 128},
		{"empty", "", 128},
		{"punctuation", "Is this correct? Yes, it is!", 128},
		{"truncated", "the answer to the question is that the answer is correct and the model is valid", 8},
		{"tiny budget", "hello world", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tokenizer.Tokenize(tt.text, tt.maxLength)
			require.NoError(t, err)

			assert.LessOrEqual(t, len(result.InputIDs), tt.maxLength)
			assert.Equal(t, len(result.InputIDs), len(result.AttentionMask))
			assert.Equal(t, len(result.InputIDs), len(result.TokenTypeIDs))

			require.NotEmpty(t, result.InputIDs)
			assert.Equal(t, tokenizer.clsID, result.InputIDs[0], "sequence starts with [CLS]")
			assert.Equal(t, tokenizer.sepID, result.InputIDs[len(result.InputIDs)-1], "sequence ends with [SEP]")

			for i, mask := range result.AttentionMask {
				assert.Equal(t, int64(1), mask, "token %d should be unmasked", i)
				assert.Equal(t, int64(0), result.TokenTypeIDs[i])
			}
		})
	}
}

func TestWordPieceSplitsSuffixes(t *testing.T) {
	tokenizer, err := NewTokenizer("")
	require.NoError(t, err)

	tests := []struct {
		word string
		want []string
	}{
		{"answer", []string{"answer"}},
		{"answers", []string{"answer", "##s"}},
		{"testing", []string{"test", "##ing"}},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			ids := tokenizer.wordIDs(tt.word)
			require.Len(t, ids, len(tt.want))
			for i, piece := range tt.want {
				assert.Equal(t, tokenizer.vocab[piece], ids[i], "piece %d of %s", i, tt.word)
			}
		})
	}
}

func TestWordPieceUnknownFallsBack(t *testing.T) {
	tokenizer, err := NewTokenizer("")
	require.NoError(t, err)

	ids := tokenizer.wordIDs("zzz")
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Equal(t, tokenizer.unkID, id)
	}
}

func TestNormalizeSpacesPunctuation(t *testing.T) {
	assert.Equal(t, "is this right ?", normalize("is   this right?"))
	assert.Equal(t, "a , b", normalize("a,b"))
	assert.Equal(t, "", normalize("   "))
}
