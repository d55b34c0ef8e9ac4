package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tsukumogami/tsuku/pkg/daemon"
)

func TestRunVersionExitsZero(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Errorf("run(--version) = %d, want 0", code)
	}
}

func TestRunUnknownCommandExitsTwo(t *testing.T) {
	if code := run([]string{"bogus-command"}); code != 2 {
		t.Errorf("run(bogus-command) = %d, want 2", code)
	}
}

func TestRunServeUnexpectedArgExitsTwo(t *testing.T) {
	if code := run([]string{"serve", "extra-positional-arg"}); code != 2 {
		t.Errorf("run(serve extra-arg) = %d, want 2", code)
	}
}

func TestRunServeUnknownFlagExitsTwo(t *testing.T) {
	if code := run([]string{"serve", "--no-such-flag"}); code != 2 {
		t.Errorf("run(serve --no-such-flag) = %d, want 2", code)
	}
}

func TestRunServeBadIdleTimeoutExitsTwo(t *testing.T) {
	t.Setenv("TSUKU_HOME", t.TempDir())
	if code := run([]string{"serve", "--idle-timeout", "not-a-duration"}); code != 2 {
		t.Errorf("run(serve --idle-timeout not-a-duration) = %d, want 2", code)
	}
}

func TestResolveIdleTimeoutEmptyMeansDefault(t *testing.T) {
	d, err := resolveIdleTimeout("")
	if err != nil {
		t.Fatalf("resolveIdleTimeout(\"\") error = %v", err)
	}
	if d != 0 {
		t.Errorf("resolveIdleTimeout(\"\") = %v, want 0", d)
	}
}

func TestResolveIdleTimeoutParsesExplicitValue(t *testing.T) {
	d, err := resolveIdleTimeout("30s")
	if err != nil {
		t.Fatalf("resolveIdleTimeout(30s) error = %v", err)
	}
	if d != 30*time.Second {
		t.Errorf("resolveIdleTimeout(30s) = %v, want 30s", d)
	}
}

func TestResolveIdleTimeoutRejectsGarbage(t *testing.T) {
	if _, err := resolveIdleTimeout("not-a-duration"); err == nil {
		t.Error("resolveIdleTimeout(not-a-duration) error = nil, want error")
	}
}

// TestRunServeFailsFastOnLockContention exercises runServe's first real
// startup step without needing a GPU, network, or cgo build: a second
// "instance" sharing TSUKU_HOME must fail at the lock, before ever
// touching hardware detection or model loading.
func TestRunServeFailsFastOnLockContention(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TSUKU_HOME", home)

	lockPath := filepath.Join(home, "llm.sock") + ".lock"
	held, err := daemon.AcquireLock(lockPath)
	if err != nil {
		t.Fatalf("AcquireLock(%s) error = %v", lockPath, err)
	}
	defer held.Release()

	code := run([]string{"serve"})
	if code != 1 {
		t.Errorf("run(serve) under lock contention = %d, want 1", code)
	}
}

func TestErrStartupFailureWrapping(t *testing.T) {
	wrapped := errors.New("boom")
	err := errors.Join(errStartupFailure, wrapped)
	if !errors.Is(err, errStartupFailure) {
		t.Error("errors.Is(err, errStartupFailure) = false, want true")
	}
}
