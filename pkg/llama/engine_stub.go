//go:build !cgo || !(darwin || linux)

// Package llama provides CGO bindings to llama.cpp for local GGUF chat
// completion. This file is the stub used when CGO is disabled or the
// platform has no native library build (see engine.go for the real
// implementation).
package llama

import "errors"

var errNotSupported = errors.New("llama: native inference not supported in this build (requires cgo on linux/darwin)")

// ModelParams controls how a GGUF file is loaded.
type ModelParams struct {
	NGPULayers int32
	UseMmap    bool
	UseMlock   bool
}

// ModelLoad is raised when model loading fails.
type ModelLoad struct {
	Path   string
	Reason string
}

func (e ModelLoad) Error() string { return "llama: " + e.Reason + ": " + e.Path }

// Model is a stub handle; LoadModel never returns one, and its accessors
// return zero values.
type Model struct{}

// LoadModel always fails on this build.
func LoadModel(path string, params ModelParams) (*Model, error) {
	return nil, ModelLoad{Path: path, Reason: "native inference not supported in this build"}
}

func (m *Model) NCtxTrain() int32 { return 0 }
func (m *Model) NVocab() int32    { return 0 }
func (m *Model) Path() string     { return "" }
func (m *Model) Close() error     { return nil }

// ContextParams controls KV-cache and batch sizing for a Context.
type ContextParams struct {
	NCtx          int32
	NBatch        int32
	NThreads      int32
	NThreadsBatch int32
	Embeddings    bool
}

// ContextCreation is raised when context creation fails.
type ContextCreation struct {
	Reason string
}

func (e ContextCreation) Error() string { return "llama: " + e.Reason }

// Context is a stub handle; Tokenize, Decode, GetLogits and Detokenize
// return errNotSupported, while ClearKVCache and Close do nothing.
type Context struct{}

// CreateContext always fails on this build.
func CreateContext(model *Model, params ContextParams) (*Context, error) {
	return nil, ContextCreation{Reason: "native inference not supported in this build"}
}

type Tokenization struct{ Reason string }

func (e Tokenization) Error() string { return "llama: " + e.Reason }

func (c *Context) Tokenize(text string, addSpecial, parseSpecial bool) ([]int32, error) {
	return nil, errNotSupported
}

type ContextWindowExceeded struct {
	Used int32
	Max  int32
}

func (e ContextWindowExceeded) Error() string { return "llama: context window exceeded" }

func (c *Context) Decode(tokens []int32, startPos int32) error { return errNotSupported }

func (c *Context) GetLogits(idx int32) ([]float32, error) { return nil, errNotSupported }

func (c *Context) ClearKVCache() {}

type Detokenization struct{ Reason string }

func (e Detokenization) Error() string { return "llama: " + e.Reason }

func (c *Context) Detokenize(tokens []int32) (string, error) { return "", errNotSupported }

func (c *Context) Close() error { return nil }
