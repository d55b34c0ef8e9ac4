package rpcapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	completeResp CompletionResponse
	completeErr  error
	shutdownResp ShutdownResponse
	statusResp   StatusResponse
}

func (f *fakeHandler) Complete(req CompletionRequest) (CompletionResponse, error) {
	return f.completeResp, f.completeErr
}

func (f *fakeHandler) Shutdown(req ShutdownRequest) (ShutdownResponse, error) {
	return f.shutdownResp, nil
}

func (f *fakeHandler) GetStatus(req StatusRequest) (StatusResponse, error) {
	return f.statusResp, nil
}

func TestServiceCompleteDelegatesToHandler(t *testing.T) {
	h := &fakeHandler{completeResp: CompletionResponse{Content: "hi", StopReason: StopReasonEndTurn}}
	s := NewService(h)

	var resp CompletionResponse
	err := s.Complete(CompletionRequest{SystemPrompt: "be nice"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, StopReasonEndTurn, resp.StopReason)
}

func TestServiceCompletePropagatesError(t *testing.T) {
	h := &fakeHandler{completeErr: errors.New("unavailable")}
	s := NewService(h)

	var resp CompletionResponse
	err := s.Complete(CompletionRequest{}, &resp)
	assert.EqualError(t, err, "unavailable")
}

func TestServiceShutdownDelegatesToHandler(t *testing.T) {
	h := &fakeHandler{shutdownResp: ShutdownResponse{Accepted: true}}
	s := NewService(h)

	var resp ShutdownResponse
	err := s.Shutdown(ShutdownRequest{Graceful: true}, &resp)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
}

func TestServiceGetStatusDelegatesToHandler(t *testing.T) {
	h := &fakeHandler{statusResp: StatusResponse{Ready: true, ModelName: "qwen2.5-7b-instruct-q4"}}
	s := NewService(h)

	var resp StatusResponse
	err := s.GetStatus(StatusRequest{}, &resp)
	require.NoError(t, err)
	assert.True(t, resp.Ready)
	assert.Equal(t, "qwen2.5-7b-instruct-q4", resp.ModelName)
}
