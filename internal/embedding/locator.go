// Copyright 2026 The cascadegate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"os"
	"path/filepath"
	"runtime"
)

// Locator resolves model files and the ONNX runtime shared library.
type Locator struct {
	// BaseDir is the root of the model store.
	BaseDir string
}

// NewLocator returns a locator rooted at ~/.cascadegate/models.
func NewLocator() *Locator {
	homeDir, _ := os.UserHomeDir()
	return &Locator{
		BaseDir: filepath.Join(homeDir, ".cascadegate", "models"),
	}
}

// ModelPath returns the ONNX model file for a model name.
func (l *Locator) ModelPath(modelName string) string {
	return filepath.Join(l.BaseDir, modelName, "model.onnx")
}

// VocabPath returns the vocabulary file for a model name.
func (l *Locator) VocabPath(modelName string) string {
	return filepath.Join(l.BaseDir, modelName, "vocab.txt")
}

// ModelExists reports whether the model file is installed.
func (l *Locator) ModelExists(modelName string) bool {
	_, err := os.Stat(l.ModelPath(modelName))
	return err == nil
}

// EnsureModelDir creates the directory for a model.
func (l *Locator) EnsureModelDir(modelName string) error {
	return os.MkdirAll(filepath.Join(l.BaseDir, modelName), 0755)
}

// SharedLibraryPath finds the ONNX runtime shared library, preferring the
// CASCADEGATE_ONNX_LIB and ONNXRUNTIME_LIB_PATH environment variables over
// the OS defaults. Returns empty when nothing is found, which leaves the
// runtime's own search path in charge.
func (l *Locator) SharedLibraryPath() string {
	for _, env := range []string{"CASCADEGATE_ONNX_LIB", "ONNXRUNTIME_LIB_PATH"} {
		if path := os.Getenv(env); path != "" {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			filepath.Join(l.BaseDir, "..", "lib", "libonnxruntime.dylib"),
		}
	case "linux":
		paths = []string{
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
			filepath.Join(l.BaseDir, "..", "lib", "libonnxruntime.so"),
		}
	case "windows":
		paths = []string{
			`C:\Program Files\onnxruntime\lib\onnxruntime.dll`,
			filepath.Join(l.BaseDir, "..", "lib", "onnxruntime.dll"),
		}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
