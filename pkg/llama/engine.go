//go:build cgo && (darwin || linux)

// Package llama provides CGO bindings to llama.cpp for local GGUF chat
// completion. It wraps the native library's Model/Context/Sampler/Batch
// resources behind a safety layer that never lets a Go string containing
// an interior NUL cross into C, always frees transient native allocations
// (including on panic), and keeps Model and Context drop order correct
// even though a Context outliving its Model is only a runtime invariant,
// not one the type system enforces.
package llama

/*
#cgo CFLAGS: -I${SRCDIR}/../../lib/llama

// Linux with CUDA (GPU primary)
#cgo linux,amd64,cuda LDFLAGS: -L${SRCDIR}/../../lib/llama -lllama_linux_amd64_cuda -lcudart -lcublas -lm -lstdc++ -lpthread
// Linux CPU fallback
#cgo linux,amd64,!cuda LDFLAGS: -L${SRCDIR}/../../lib/llama -lllama_linux_amd64 -lm -lstdc++ -lpthread
#cgo linux,arm64 LDFLAGS: -L${SRCDIR}/../../lib/llama -lllama_linux_arm64 -lm -lstdc++ -lpthread

// macOS with Metal (GPU primary on Apple Silicon)
#cgo darwin,arm64 LDFLAGS: -L${SRCDIR}/../../lib/llama -lllama_darwin_arm64 -lm -lc++ -framework Accelerate -framework Metal -framework MetalPerformanceShaders -framework Foundation
#cgo darwin,amd64 LDFLAGS: -L${SRCDIR}/../../lib/llama -lllama_darwin_amd64 -lm -lc++ -framework Accelerate

#include <stdlib.h>
#include <string.h>
#include <limits.h>
#include "llama.h"

static int g_backend_initialized = 0;
void init_backend(void) {
    if (!g_backend_initialized) {
        llama_backend_init();
        g_backend_initialized = 1;
    }
}

struct llama_model* load_model(const char* path, int n_gpu_layers, int use_mmap, int use_mlock) {
    init_backend();
    struct llama_model_params params = llama_model_default_params();
    params.use_mmap = use_mmap ? 1 : 0;
    params.use_mlock = use_mlock ? 1 : 0;
    if (n_gpu_layers < 0) {
        params.n_gpu_layers = 999; // clamped to the model's actual layer count
    } else {
        params.n_gpu_layers = n_gpu_layers;
    }
    return llama_model_load_from_file(path, params);
}

struct llama_context* create_context(struct llama_model* model, int n_ctx, int n_batch,
                                      int n_threads, int n_threads_batch, int embeddings) {
    struct llama_context_params params = llama_context_default_params();
    params.n_ctx = n_ctx;
    params.n_batch = n_batch;
    params.n_ubatch = n_batch;
    params.n_threads = n_threads;
    params.n_threads_batch = n_threads_batch;
    params.embeddings = embeddings ? 1 : 0;
    return llama_init_from_model(model, params);
}

int model_n_ctx_train(struct llama_model* model) { return llama_model_n_ctx_train(model); }
int model_n_vocab(struct llama_model* model) { return llama_vocab_n_tokens(llama_model_get_vocab(model)); }

// tokenize_into runs the library's two-call pattern: callers pass
// max_tokens=0 and tokens=NULL first to discover the required length as a
// negated count, then call again with a sized buffer.
int tokenize_into(struct llama_model* model, const char* text, int text_len,
                   int add_special, int parse_special, int32_t* tokens, int max_tokens) {
    const struct llama_vocab* vocab = llama_model_get_vocab(model);
    return llama_tokenize(vocab, text, text_len, tokens, max_tokens, add_special, parse_special);
}

int detokenize_into(struct llama_model* model, const int32_t* tokens, int n_tokens,
                     char* buf, int buf_size, int skip_special) {
    const struct llama_vocab* vocab = llama_model_get_vocab(model);
    return llama_detokenize(vocab, tokens, n_tokens, buf, buf_size, 0, skip_special);
}

// decode_prompt ingests a prompt, enabling logits output only on the final
// token (intermediate logits would be computed and then discarded, wasting
// GPU time). The batch is freed on every exit path.
int decode_prompt(struct llama_context* ctx, const int32_t* tokens, int n_tokens, int start_pos) {
    struct llama_batch batch = llama_batch_init(n_tokens, 0, 1);
    for (int i = 0; i < n_tokens; i++) {
        batch.token[i] = tokens[i];
        batch.pos[i] = start_pos + i;
        batch.n_seq_id[i] = 1;
        batch.seq_id[i][0] = 0;
        batch.logits[i] = (i == n_tokens - 1) ? 1 : 0;
    }
    batch.n_tokens = n_tokens;

    int rc = llama_decode(ctx, batch);
    llama_batch_free(batch);
    return rc;
}

// decode_one feeds a single already-sampled token back in, for the
// token-by-token generation loop after the initial prompt decode.
int decode_one(struct llama_context* ctx, int32_t token, int pos) {
    struct llama_batch batch = llama_batch_init(1, 0, 1);
    batch.token[0] = token;
    batch.pos[0] = pos;
    batch.n_seq_id[0] = 1;
    batch.seq_id[0][0] = 0;
    batch.logits[0] = 1;
    batch.n_tokens = 1;

    int rc = llama_decode(ctx, batch);
    llama_batch_free(batch);
    return rc;
}

int get_logits(struct llama_context* ctx, int idx, int n_vocab, float* out) {
    float* logits = llama_get_logits_ith(ctx, idx);
    if (!logits) {
        return -1;
    }
    memcpy(out, logits, n_vocab * sizeof(float));
    return 0;
}

void clear_kv_cache(struct llama_context* ctx) { llama_kv_cache_clear(ctx); }

void free_ctx(struct llama_context* ctx) { if (ctx) llama_free(ctx); }
void free_model(struct llama_model* model) { if (model) llama_model_free(model); }
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/tsukumogami/tsuku/pkg/pool"
)

// ModelParams controls how a GGUF file is loaded.
type ModelParams struct {
	NGPULayers int32 // -1 = all layers on GPU, 0 = CPU only
	UseMmap    bool
	UseMlock   bool
}

// ModelLoad is raised when the native library returns a null Model.
type ModelLoad struct {
	Path   string
	Reason string
}

func (e ModelLoad) Error() string {
	return fmt.Sprintf("llama: failed to load model %s: %s", e.Path, e.Reason)
}

// Model is a shared-ownership handle to a loaded GGUF model. Every Context
// created from it holds one share for its entire lifetime; the native
// model is only freed once every share, including the loader's own, has
// been released. Safe to call from any thread.
type Model struct {
	ptr       *C.struct_llama_model
	path      string
	nCtxTrain int32
	nVocab    int32
	refCount  int32 // 1 for the caller's own reference, +1 per live Context
}

// LoadModel loads path with the given parameters.
func LoadModel(path string, params ModelParams) (*Model, error) {
	if strings.ContainsRune(path, 0) {
		return nil, ModelLoad{Path: path, Reason: "path contains a NUL byte"}
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ptr := C.load_model(cPath, C.int(params.NGPULayers), boolToInt(params.UseMmap), boolToInt(params.UseMlock))
	if ptr == nil {
		return nil, ModelLoad{Path: path, Reason: "native loader returned null"}
	}

	return &Model{
		ptr:       ptr,
		path:      path,
		nCtxTrain: int32(C.model_n_ctx_train(ptr)),
		nVocab:    int32(C.model_n_vocab(ptr)),
		refCount:  1,
	}, nil
}

// NCtxTrain returns the context length the model was trained with; the
// daemon uses this as both n_ctx and n_batch to ingest long prompts in a
// single pass.
func (m *Model) NCtxTrain() int32 { return m.nCtxTrain }

// NVocab returns the model's vocabulary size.
func (m *Model) NVocab() int32 { return m.nVocab }

// Path returns the file path the model was loaded from.
func (m *Model) Path() string { return m.path }

func (m *Model) acquire() { atomic.AddInt32(&m.refCount, 1) }

// release drops one share; the native model is freed only when the last
// share (whether the loader's own or a Context's) is released.
func (m *Model) release() {
	if atomic.AddInt32(&m.refCount, -1) == 0 {
		C.free_model(m.ptr)
		m.ptr = nil
	}
}

// Close releases the loader's own share. If Contexts are still alive, the
// native model is kept around until they release theirs too — Close does
// not block on open Contexts.
func (m *Model) Close() error {
	m.release()
	return nil
}

// ContextParams controls KV-cache and batch sizing for a Context.
type ContextParams struct {
	NCtx          int32
	NBatch        int32
	NThreads      int32
	NThreadsBatch int32
	Embeddings    bool
}

// ContextCreation is raised when the native library returns a null Context.
type ContextCreation struct {
	Reason string
}

func (e ContextCreation) Error() string {
	return fmt.Sprintf("llama: failed to create context: %s", e.Reason)
}

// Context is inference state (KV cache, scratch buffers) created from a
// Model. Not safe for concurrent use — callers must serialize access
// (the daemon does this with a single mutex in pkg/handler). Holds one
// share of its Model for its entire lifetime.
type Context struct {
	ptr    *C.struct_llama_context
	model  *Model
	nCtx   int32
	mu     sync.Mutex
	closed bool
}

// CreateContext creates a Context from model, acquiring one share of it.
func CreateContext(model *Model, params ContextParams) (*Context, error) {
	ptr := C.create_context(model.ptr, C.int(params.NCtx), C.int(params.NBatch),
		C.int(params.NThreads), C.int(params.NThreadsBatch), boolToInt(params.Embeddings))
	if ptr == nil {
		return nil, ContextCreation{Reason: "native context creation returned null"}
	}

	model.acquire()
	return &Context{ptr: ptr, model: model, nCtx: params.NCtx}, nil
}

// Tokenization is raised by Tokenize on overflow or a native tokenizer
// failure.
type Tokenization struct {
	Reason string
}

func (e Tokenization) Error() string { return fmt.Sprintf("llama: tokenization failed: %s", e.Reason) }

// Tokenize converts text to token ids using the two-call length-probe
// pattern: a zero-length call first discovers the required buffer size.
func (c *Context) Tokenize(text string, addSpecial, parseSpecial bool) ([]int32, error) {
	if text == "" {
		return nil, nil
	}

	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	n := C.tokenize_into(c.model.ptr, cText, C.int(len(text)), boolToInt(addSpecial), boolToInt(parseSpecial), nil, 0)
	if int32(n) == minInt32 {
		return nil, Tokenization{Reason: "token count overflow"}
	}
	if n >= 0 {
		// Already fit in a zero-length buffer: only possible for empty
		// output, which the text=="" guard above already handles, but
		// treat defensively as "no tokens" rather than erroring.
		return nil, nil
	}

	required := int(-n)
	tokens := make([]int32, required)
	written := C.tokenize_into(c.model.ptr, cText, C.int(len(text)), boolToInt(addSpecial), boolToInt(parseSpecial),
		(*C.int32_t)(unsafe.Pointer(&tokens[0])), C.int(required))
	if written < 0 {
		return nil, Tokenization{Reason: "buffer still too small after length probe"}
	}

	return tokens[:int(written)], nil
}

// ContextWindowExceeded is raised by Decode when start_pos+len(tokens)
// would exceed the context's KV-cache capacity.
type ContextWindowExceeded struct {
	Used int32
	Max  int32
}

func (e ContextWindowExceeded) Error() string {
	return fmt.Sprintf("llama: context window exceeded: used=%d max=%d", e.Used, e.Max)
}

// Decode ingests tokens starting at startPos. Only the final token's
// logits are enabled — intermediate-position logits during prompt
// ingestion are never read, so computing them would waste GPU time.
func (c *Context) Decode(tokens []int32, startPos int32) error {
	if len(tokens) == 0 {
		return nil
	}

	used := startPos + int32(len(tokens))
	if used > c.nCtx {
		return ContextWindowExceeded{Used: used, Max: c.nCtx}
	}

	var rc C.int
	if len(tokens) == 1 {
		rc = C.decode_one(c.ptr, C.int32_t(tokens[0]), C.int(startPos))
	} else {
		rc = C.decode_prompt(c.ptr, (*C.int32_t)(unsafe.Pointer(&tokens[0])), C.int(len(tokens)), C.int(startPos))
	}
	if rc != 0 {
		return fmt.Errorf("llama: decode failed (code %d)", int(rc))
	}
	return nil
}

// GetLogits returns the vocabulary-sized logits vector at idx. After a
// prompt decode the valid index is len(prompt)-1; after each subsequent
// single-token decode the valid index is 0.
// GetLogits's returned slice is drawn from pool.GetLogitsSlice and is only
// valid until the caller's next GetLogits or Sample call — callers that
// need to retain it past that point must copy it.
func (c *Context) GetLogits(idx int32) ([]float32, error) {
	out := pool.GetLogitsSlice(int(c.model.nVocab))
	rc := C.get_logits(c.ptr, C.int(idx), C.int(c.model.nVocab), (*C.float)(unsafe.Pointer(&out[0])))
	if rc != 0 {
		pool.PutLogitsSlice(out)
		return nil, fmt.Errorf("llama: no logits available at index %d", idx)
	}
	return out, nil
}

// ClearKVCache wipes the KV cache between independent generations.
func (c *Context) ClearKVCache() { C.clear_kv_cache(c.ptr) }

// Detokenization is raised by Detokenize on a native detokenizer failure.
type Detokenization struct {
	Reason string
}

func (e Detokenization) Error() string {
	return fmt.Sprintf("llama: detokenization failed: %s", e.Reason)
}

// Detokenize renders tokens back to text, retrying once with a larger
// buffer if the initial 256-byte guess is too small, and skipping the
// rendering of special tokens. Invalid UTF-8 (a token split mid
// codepoint) is replaced lossily rather than failing the request.
func (c *Context) Detokenize(tokens []int32) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}

	buf := pool.GetByteBuffer(256)
	defer pool.PutByteBuffer(buf)

	n := C.detokenize_into(c.model.ptr, (*C.int32_t)(unsafe.Pointer(&tokens[0])), C.int(len(tokens)),
		(*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf)), 1)
	if n < 0 {
		required := int(-n)
		buf = pool.GetByteBuffer(required)
		defer pool.PutByteBuffer(buf)
		n = C.detokenize_into(c.model.ptr, (*C.int32_t)(unsafe.Pointer(&tokens[0])), C.int(len(tokens)),
			(*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf)), 1)
		if n < 0 {
			return "", Detokenization{Reason: "buffer still too small after resize"}
		}
	}

	return strings.ToValidUTF8(string(buf[:int(n)]), "�"), nil
}

// Close releases the native context and this Context's share of its Model.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	C.free_ctx(c.ptr)
	c.ptr = nil
	c.model.release()
	c.closed = true
	return nil
}

const minInt32 = -1 << 31

func boolToInt(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

// contextCancelled is a small helper so callers can bail out of a
// generation loop promptly without plumbing context.Context through cgo.
func contextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
