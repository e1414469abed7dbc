// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package embedding runs a local MiniLM model through ONNX runtime to embed
// queries and draft responses for semantic comparison. The engine satisfies
// the checker's Embedder contract and is entirely optional: when no model is
// installed the gate falls back to its rule-based signals.
package embedding

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// DefaultModelName is the embedding model the locator looks for.
	DefaultModelName = "all-MiniLM-L6-v2"

	// Dimension is the MiniLM output width.
	Dimension = 384

	// MaxSequenceLength caps tokenized input, special tokens included.
	MaxSequenceLength = 256
)

// Config holds the file locations an Engine needs.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string

	// VocabPath is the WordPiece vocabulary file. Empty selects the
	// built-in minimal vocabulary.
	VocabPath string
}

// Engine embeds text with a local ONNX session. Zero value is disabled;
// call Initialize before use.
type Engine struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	modelPath string
	vocabPath string
	dimension int
	enabled   bool

	mu sync.RWMutex
}

// NewEngine creates an engine for the given model files. The ONNX session
// is not created until Initialize.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	return &Engine{
		modelPath: cfg.ModelPath,
		vocabPath: cfg.VocabPath,
		dimension: Dimension,
	}, nil
}

// Initialize loads the model and prepares the runtime. sharedLibPath may be
// empty when the ONNX runtime library is on the default search path.
func (e *Engine) Initialize(sharedLibPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(e.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", e.modelPath)
	}

	if sharedLibPath != "" {
		ort.SetSharedLibraryPath(sharedLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("creating session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		e.modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		options,
	)
	if err != nil {
		return fmt.Errorf("loading ONNX model: %w", err)
	}

	tokenizer, err := NewTokenizer(e.vocabPath)
	if err != nil {
		session.Destroy()
		return fmt.Errorf("loading tokenizer: %w", err)
	}

	e.session = session
	e.tokenizer = tokenizer
	e.enabled = true
	log.Infof("Embedding engine ready: %s", filepath.Base(e.modelPath))
	return nil
}

// IsEnabled reports whether the engine can serve Embed calls.
func (e *Engine) IsEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Dimension returns the embedding width.
func (e *Engine) Dimension() int {
	return e.dimension
}

// Embed returns the L2-normalized mean-pooled embedding for text.
func (e *Engine) Embed(text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled {
		return nil, fmt.Errorf("embedding engine not initialized")
	}

	tokens, err := e.tokenizer.Tokenize(text, MaxSequenceLength)
	if err != nil {
		return nil, fmt.Errorf("tokenization failed: %w", err)
	}
	vector, err := e.infer(tokens)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return vector, nil
}

// BatchEmbed embeds each text in order.
func (e *Engine) BatchEmbed(texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.enabled {
		return nil, fmt.Errorf("embedding engine not initialized")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		tokens, err := e.tokenizer.Tokenize(text, MaxSequenceLength)
		if err != nil {
			return nil, fmt.Errorf("tokenization failed for text %d: %w", i, err)
		}
		vector, err := e.infer(tokens)
		if err != nil {
			return nil, fmt.Errorf("inference failed for text %d: %w", i, err)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// infer runs the session on one tokenized input. Must be called with the
// read lock held.
func (e *Engine) infer(tokens *TokenizedInput) ([]float32, error) {
	seqLen := int64(len(tokens.InputIDs))

	inputIDs, err := ort.NewTensor(ort.NewShape(1, seqLen), tokens.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor(ort.NewShape(1, seqLen), tokens.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()

	tokenTypes, err := ort.NewTensor(ort.NewShape(1, seqLen), tokens.TokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	defer tokenTypes.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, int64(e.dimension)))
	if err != nil {
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}
	defer output.Destroy()

	err = e.session.Run(
		[]ort.ArbitraryTensor{inputIDs, attentionMask, tokenTypes},
		[]ort.ArbitraryTensor{output},
	)
	if err != nil {
		return nil, fmt.Errorf("ONNX inference: %w", err)
	}

	return e.pool(output.GetData(), tokens.AttentionMask), nil
}

// pool mean-pools token states weighted by the attention mask, then
// L2-normalizes the result.
func (e *Engine) pool(hidden []float32, attentionMask []int64) []float32 {
	vector := make([]float32, e.dimension)
	var weight float32
	for i, mask := range attentionMask {
		if mask != 1 {
			continue
		}
		row := hidden[i*e.dimension : (i+1)*e.dimension]
		for j, v := range row {
			vector[j] += v
		}
		weight++
	}
	if weight > 0 {
		for j := range vector {
			vector[j] /= weight
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for j := range vector {
			vector[j] *= scale
		}
	}
	return vector
}

// CosineSimilarity computes cosine similarity between two vectors. Length
// mismatches and zero vectors score 0.
func (e *Engine) CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Shutdown releases the ONNX session. Safe to call on a disabled engine.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return nil
	}
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.enabled = false
	log.Info("Embedding engine shut down")
	return nil
}

// Discover builds and initializes an engine from the default model layout.
// Missing model files or runtime libraries return an error rather than a
// half-initialized engine.
func Discover(modelName string) (*Engine, error) {
	if modelName == "" {
		modelName = DefaultModelName
	}

	locator := NewLocator()
	if !locator.ModelExists(modelName) {
		return nil, fmt.Errorf("embedding model %s not installed under %s", modelName, locator.BaseDir)
	}

	engine, err := NewEngine(Config{
		ModelPath: locator.ModelPath(modelName),
		VocabPath: locator.VocabPath(modelName),
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Initialize(locator.SharedLibraryPath()); err != nil {
		return nil, err
	}
	return engine, nil
}
