package daemon

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptibleReturnsFnResult(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	err := Interruptible(sigCh, func() error { return nil })
	assert.NoError(t, err)
}

func TestInterruptibleReturnsFnError(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	boom := errors.New("boom")
	err := Interruptible(sigCh, func() error { return boom })
	assert.Equal(t, boom, err)
}

func TestInterruptibleStopsOnSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	blockUntil := make(chan struct{})

	go func() {
		time.Sleep(5 * time.Millisecond)
		sigCh <- os.Interrupt
	}()

	err := Interruptible(sigCh, func() error {
		<-blockUntil // never closed in this test: simulates a long-running step
		return nil
	})
	require.ErrorIs(t, err, ErrInterrupted)
}
