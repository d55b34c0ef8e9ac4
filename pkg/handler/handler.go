// Package handler implements RequestHandler, the per-completion-request
// pipeline: prompt construction, tokenize, the bounded generation loop, and
// response assembly. DaemonSupervisor (pkg/daemon) owns process lifecycle
// and drains RequestHandler's in-flight counter on shutdown; RequestHandler
// itself only tracks whether it should still admit new work.
package handler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/tsukumogami/tsuku/pkg/config"
	"github.com/tsukumogami/tsuku/pkg/llama"
	"github.com/tsukumogami/tsuku/pkg/pool"
	"github.com/tsukumogami/tsuku/pkg/prompt"
	"github.com/tsukumogami/tsuku/pkg/rpcapi"
	"github.com/tsukumogami/tsuku/pkg/toolcall"
)

// Engine is the subset of *llama.Context a RequestHandler drives. Declaring
// it locally (rather than depending on the concrete type) lets tests supply
// a fake without needing a cgo build — llama.Context, real or stubbed,
// already satisfies this interface structurally.
type Engine interface {
	ClearKVCache()
	Tokenize(text string, addSpecial, parseSpecial bool) ([]int32, error)
	Decode(tokens []int32, startPos int32) error
	GetLogits(idx int32) ([]float32, error)
	Detokenize(tokens []int32) (string, error)
}

// DefaultMaxTokens is the generation-loop bound absent an explicit
// CompletionRequest.MaxTokens.
const DefaultMaxTokens int32 = 512

// DefaultGenerationTimeout is the hard wall-clock bound on a single
// completion's generation loop, regardless of max_tokens.
const DefaultGenerationTimeout = 300 * time.Second

// eosTokenA and eosTokenB are the common end-of-sequence ids most chat
// GGUF vocabularies agree on; a real per-model EOS id is a refinement this
// build does not attempt.
const (
	eosTokenA int32 = 0
	eosTokenB int32 = 2
)

// Unavailable is returned by Complete when the handler is draining ahead of
// shutdown; it never starts new work once BeginShutdown has been called.
type Unavailable struct{}

func (Unavailable) Error() string { return "handler: unavailable, daemon is shutting down" }

// RequestHandler serializes all inference against a single Engine behind
// a mutex and runs the bounded generation loop described for Complete.
// Safe for concurrent Complete calls — only one runs inference at a time,
// the rest block on the mutex.
type RequestHandler struct {
	engine Engine
	mu     sync.Mutex

	shuttingDown atomic.Bool
	inFlight     atomic.Int64

	// activity receives a non-blocking signal on every admitted request,
	// for the daemon's idle-timeout reset. Overflow on a full channel is
	// dropped by design — a missed reset is harmless, it only shortens
	// the next idle-timeout window slightly.
	activity chan<- struct{}

	maxTokens         int32
	generationTimeout time.Duration
	sampleParams      llama.SampleParams

	now func() time.Time

	requestCount   metric.Int64Counter
	requestLatency metric.Float64Histogram
}

// Option configures a RequestHandler at construction.
type Option func(*RequestHandler)

// WithMaxTokens overrides DefaultMaxTokens as the generation bound used
// when a CompletionRequest leaves MaxTokens unset.
func WithMaxTokens(n int32) Option {
	return func(h *RequestHandler) { h.maxTokens = n }
}

// WithGenerationTimeout overrides DefaultGenerationTimeout.
func WithGenerationTimeout(d time.Duration) Option {
	return func(h *RequestHandler) { h.generationTimeout = d }
}

// WithSampleParams overrides the default greedy sampler.
func WithSampleParams(p llama.SampleParams) Option {
	return func(h *RequestHandler) { h.sampleParams = p }
}

// withNow overrides the wall-clock source; test-only.
func withNow(now func() time.Time) Option {
	return func(h *RequestHandler) { h.now = now }
}

// New builds a RequestHandler driving engine. activity is the daemon's
// bounded activity channel (capacity 16 per the concurrency model);
// Complete never blocks sending to it.
func New(engine Engine, activity chan<- struct{}, opts ...Option) *RequestHandler {
	meter := otel.Meter("github.com/tsukumogami/tsuku/pkg/handler")
	requestCount, _ := meter.Int64Counter("llm_requests_total",
		metric.WithDescription("completed Complete RPC calls, including failures"))
	requestLatency, _ := meter.Float64Histogram("llm_request_duration_seconds",
		metric.WithDescription("wall-clock duration of a single Complete call"))

	h := &RequestHandler{
		engine:            engine,
		activity:          activity,
		maxTokens:         DefaultMaxTokens,
		generationTimeout: DefaultGenerationTimeout,
		sampleParams:      llama.SampleParams{Mode: llama.SampleGreedy},
		now:               time.Now,
		requestCount:      requestCount,
		requestLatency:    requestLatency,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// BeginShutdown stops Complete from admitting further requests. Requests
// already in flight are unaffected — the daemon drains them by polling
// InFlight, not by cancelling them.
func (h *RequestHandler) BeginShutdown() { h.shuttingDown.Store(true) }

// InFlight reports the number of Complete calls currently executing.
func (h *RequestHandler) InFlight() int64 { return h.inFlight.Load() }

// Complete runs one completion request end to end: reject-if-shutting-down,
// activity signal, in-flight accounting, prompt build, the generation loop,
// and response assembly.
func (h *RequestHandler) Complete(req rpcapi.CompletionRequest) (rpcapi.CompletionResponse, error) {
	if h.shuttingDown.Load() {
		return rpcapi.CompletionResponse{}, Unavailable{}
	}

	select {
	case h.activity <- struct{}{}:
	default:
	}

	h.inFlight.Add(1)
	defer h.inFlight.Add(-1)

	start := h.now()
	resp, err := h.complete(req)
	elapsed := h.now().Sub(start)

	ctx := context.Background()
	if h.requestLatency != nil {
		h.requestLatency.Record(ctx, elapsed.Seconds())
	}
	if h.requestCount != nil {
		h.requestCount.Add(ctx, 1)
	}

	return resp, err
}

func (h *RequestHandler) complete(req rpcapi.CompletionRequest) (rpcapi.CompletionResponse, error) {
	promptText := prompt.Build(toPromptRequest(req))

	if config.GrammarConstrainedGenerationEnabled() && req.JSONSchema != "" {
		slog.Warn("grammar-constrained generation requested but not implemented; falling back to unconstrained sampling")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.engine.ClearKVCache()

	tokens, err := h.engine.Tokenize(promptText, true, true)
	if err != nil {
		return rpcapi.CompletionResponse{}, err
	}
	inputTokens := int32(len(tokens))

	if err := h.engine.Decode(tokens, 0); err != nil {
		return rpcapi.CompletionResponse{}, err
	}
	logitsIdx := inputTokens - 1
	pos := inputTokens

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = h.maxTokens
	}

	deadline := h.now().Add(h.generationTimeout)

	output := pool.GetTokenSlice()
	defer pool.PutTokenSlice(output)
	timedOut := false

	for int32(len(output)) < maxTokens {
		if h.now().After(deadline) {
			timedOut = true
			break
		}

		logits, err := h.engine.GetLogits(logitsIdx)
		if err != nil {
			return rpcapi.CompletionResponse{}, err
		}

		token := llama.Sample(logits, h.sampleParams)
		pool.PutLogitsSlice(logits)
		if token == eosTokenA || token == eosTokenB {
			break
		}

		output = append(output, token)

		if err := h.engine.Decode([]int32{token}, pos); err != nil {
			return rpcapi.CompletionResponse{}, err
		}
		pos++
		logitsIdx = 0
	}
	hitMaxTokens := !timedOut && int32(len(output)) >= maxTokens

	content, err := h.engine.Detokenize(output)
	if err != nil {
		return rpcapi.CompletionResponse{}, err
	}

	var toolCalls []rpcapi.ToolCallResult
	toolUse := false
	if len(req.Tools) > 0 {
		if call, ok := toolcall.ParseToolCall(content); ok {
			toolUse = true
			toolCalls = []rpcapi.ToolCallResult{{ID: call.ID, Name: call.Name, ArgumentsJSON: call.ArgumentsJSON}}
		}
	}

	stopReason := rpcapi.StopReasonEndTurn
	switch {
	case timedOut:
		stopReason = rpcapi.StopReasonTimeout
	case hitMaxTokens:
		stopReason = rpcapi.StopReasonMaxTokens
	case toolUse:
		stopReason = rpcapi.StopReasonToolUse
	}

	return rpcapi.CompletionResponse{
		Content:    content,
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage: rpcapi.Usage{
			InputTokens:  inputTokens,
			OutputTokens: int32(len(output)),
		},
	}, nil
}

func toPromptRequest(req rpcapi.CompletionRequest) prompt.Request {
	messages := make([]prompt.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = prompt.Message{Role: parseRole(m.Role), Content: m.Content}
	}

	tools := make([]prompt.Tool, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = prompt.Tool{Name: t.Name, Description: t.Description}
	}

	return prompt.Request{
		SystemPrompt: req.SystemPrompt,
		Messages:     messages,
		Tools:        tools,
	}
}

func parseRole(role string) prompt.Role {
	switch role {
	case "assistant":
		return prompt.RoleAssistant
	case "tool":
		return prompt.RoleTool
	default:
		return prompt.RoleUser
	}
}
