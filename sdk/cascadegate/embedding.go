// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cascadegate

import (
	"github.com/traylinx/cascadegate/internal/embedding"
	"github.com/traylinx/cascadegate/internal/semantic"
)

// NewEmbeddingChecker builds a semantic checker backed by a local ONNX
// embedding model for Options.Checker. modelName selects an installed model
// under the default model store; empty uses the MiniLM default. The engine
// is loaded eagerly, so a missing model or runtime library fails here. A
// gate given the checker releases the ONNX session on Shutdown.
//
// Parameters:
//   - modelName: The installed embedding model to load
//
// Returns:
//   - semantic.Checker: The ready checker
//   - error: Any model discovery or runtime initialization error
func NewEmbeddingChecker(modelName string) (semantic.Checker, error) {
	engine, err := embedding.Discover(modelName)
	if err != nil {
		return nil, err
	}
	return semantic.NewEngineChecker(engine), nil
}
