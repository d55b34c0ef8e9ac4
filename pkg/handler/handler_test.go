package handler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsukumogami/tsuku/pkg/llama"
	"github.com/tsukumogami/tsuku/pkg/rpcapi"
)

// fakeEngine drives the generation loop deterministically: each GetLogits
// call consumes the next entry of logitsSequence (looping the last entry
// forever once exhausted), and onDecodeOne (if set) fires for every
// single-token Decode call, letting tests simulate wall-clock passage.
type fakeEngine struct {
	tokenizeTokens []int32
	tokenizeErr    error
	decodeErr      error
	logitsSequence [][]float32
	logitsErr      error
	detokenizeText string
	detokenizeErr  error
	onDecodeOne    func()
}

func (f *fakeEngine) ClearKVCache() {}

func (f *fakeEngine) Tokenize(text string, addSpecial, parseSpecial bool) ([]int32, error) {
	return f.tokenizeTokens, f.tokenizeErr
}

func (f *fakeEngine) Decode(tokens []int32, startPos int32) error {
	if len(tokens) == 1 && f.onDecodeOne != nil {
		f.onDecodeOne()
	}
	return f.decodeErr
}

func (f *fakeEngine) GetLogits(idx int32) ([]float32, error) {
	if f.logitsErr != nil {
		return nil, f.logitsErr
	}
	if len(f.logitsSequence) == 0 {
		return []float32{1, 0, 0, 0}, nil
	}
	next := f.logitsSequence[0]
	if len(f.logitsSequence) > 1 {
		f.logitsSequence = f.logitsSequence[1:]
	}
	return next, nil
}

func (f *fakeEngine) Detokenize(tokens []int32) (string, error) {
	return f.detokenizeText, f.detokenizeErr
}

func newTestHandler(engine Engine, opts ...Option) *RequestHandler {
	activity := make(chan struct{}, 16)
	return New(engine, activity, opts...)
}

func TestCompleteStopsImmediatelyOnLeadingEOS(t *testing.T) {
	engine := &fakeEngine{
		tokenizeTokens: []int32{10, 11, 12},
		logitsSequence: [][]float32{{5, 0, 0, 0}}, // argmax -> token 0, an EOS id
		detokenizeText: "",
	}
	h := newTestHandler(engine)

	resp, err := h.Complete(rpcapi.CompletionRequest{SystemPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, rpcapi.StopReasonEndTurn, resp.StopReason)
	assert.Equal(t, int32(3), resp.Usage.InputTokens)
	assert.Equal(t, int32(0), resp.Usage.OutputTokens)
}

func TestCompleteHitsMaxTokens(t *testing.T) {
	engine := &fakeEngine{
		tokenizeTokens: []int32{1},
		logitsSequence: [][]float32{{0, 5, 0, 0}}, // argmax -> token 1, never EOS
		detokenizeText: "abc",
	}
	h := newTestHandler(engine, WithMaxTokens(3))

	resp, err := h.Complete(rpcapi.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, rpcapi.StopReasonMaxTokens, resp.StopReason)
	assert.Equal(t, int32(3), resp.Usage.OutputTokens)
}

func TestCompleteTimesOut(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	advanced := false

	engine := &fakeEngine{
		tokenizeTokens: []int32{1},
		logitsSequence: [][]float32{{0, 5, 0, 0}},
		detokenizeText: "partial",
		onDecodeOne: func() {
			if !advanced {
				clock = clock.Add(time.Hour)
				advanced = true
			}
		},
	}
	h := newTestHandler(engine,
		WithGenerationTimeout(time.Millisecond),
		withNow(func() time.Time { return clock }),
	)

	resp, err := h.Complete(rpcapi.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, rpcapi.StopReasonTimeout, resp.StopReason)
	assert.Equal(t, int32(1), resp.Usage.OutputTokens)
}

func TestCompleteDetectsToolUse(t *testing.T) {
	engine := &fakeEngine{
		tokenizeTokens: []int32{1},
		logitsSequence: [][]float32{{0, 5, 0, 0}, {5, 0, 0, 0}}, // one token, then EOS
		detokenizeText: `{"name":"get_weather","arguments":{"city":"Tokyo"}}`,
	}
	h := newTestHandler(engine)

	resp, err := h.Complete(rpcapi.CompletionRequest{
		Tools: []rpcapi.ToolDescriptor{{Name: "get_weather", Description: "looks up weather"}},
	})
	require.NoError(t, err)
	assert.Equal(t, rpcapi.StopReasonToolUse, resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
}

func TestCompleteRejectsAfterShutdown(t *testing.T) {
	h := newTestHandler(&fakeEngine{})
	h.BeginShutdown()

	_, err := h.Complete(rpcapi.CompletionRequest{})
	assert.True(t, errors.As(err, &Unavailable{}))
}

func TestCompleteTracksInFlight(t *testing.T) {
	released := make(chan struct{})
	engine := &fakeEngine{
		logitsSequence: [][]float32{{5, 0, 0, 0}},
	}
	h := newTestHandler(engine)

	go func() {
		h.Complete(rpcapi.CompletionRequest{})
		close(released)
	}()
	<-released
	assert.Equal(t, int64(0), h.InFlight())
}

func TestCompletePropagatesTokenizeError(t *testing.T) {
	engine := &fakeEngine{tokenizeErr: errors.New("boom")}
	h := newTestHandler(engine)

	_, err := h.Complete(rpcapi.CompletionRequest{})
	assert.EqualError(t, err, "boom")
}

func TestCompleteSampleParamsOverride(t *testing.T) {
	engine := &fakeEngine{
		logitsSequence: [][]float32{{5, 0, 0, 0}},
	}
	h := newTestHandler(engine, WithSampleParams(llama.SampleParams{Mode: llama.SampleGreedy}))

	resp, err := h.Complete(rpcapi.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, rpcapi.StopReasonEndTurn, resp.StopReason)
}
