// Package modelmanager owns $TSUKU_HOME/models/: verifying on-disk model
// files against the manifest, and downloading missing ones with retry,
// streaming checksum verification, and atomic commit.
package modelmanager

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tsukumogami/tsuku/pkg/manifest"
)

const (
	stagingDirName = ".download"
	maxAttempts    = 3
)

// ProgressFunc is invoked as bytes arrive during a download. written and
// total are cumulative for the current part; total is -1 if unknown.
type ProgressFunc func(written, total int64)

// Manager owns a models directory and the HTTP client used to populate it.
type Manager struct {
	ModelsDir string
	client    *http.Client
	cache     *VerifyCache
	sleep     func(time.Duration)
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithHTTPClient overrides the default http.Client (tests inject one
// pointed at an httptest.Server).
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithVerifyCache attaches a verify-result cache so repeated verify calls
// against an unchanged file skip re-hashing multi-gigabyte files.
func WithVerifyCache(c *VerifyCache) Option {
	return func(m *Manager) { m.cache = c }
}

// withSleep overrides the backoff sleep function; used by tests to avoid
// real wall-clock delays across retry attempts.
func withSleep(f func(time.Duration)) Option {
	return func(m *Manager) { m.sleep = f }
}

// New constructs a Manager rooted at modelsDir, creating it if absent.
func New(modelsDir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("modelmanager: create models dir: %w", err)
	}

	m := &Manager{
		ModelsDir: modelsDir,
		client:    http.DefaultClient,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ModelPath returns the path a fully-downloaded model would live at.
// Single-part models live at <models_dir>/<name>.gguf; split models live
// at the filename derived from the manifest's (primary part) download URL,
// since llama.cpp discovers sibling parts by filename pattern.
func (m *Manager) ModelPath(name string) (string, error) {
	entry, ok := manifest.Lookup(name)
	if !ok {
		return "", fmt.Errorf("modelmanager: unknown model %q", name)
	}
	return m.modelPath(name, entry), nil
}

func (m *Manager) modelPath(name string, entry manifest.Entry) string {
	if entry.SplitCount <= 1 {
		return filepath.Join(m.ModelsDir, name+".gguf")
	}
	return filepath.Join(m.ModelsDir, filepath.Base(entry.DownloadURL))
}

func (m *Manager) stagingDir() string {
	return filepath.Join(m.ModelsDir, stagingDirName)
}

func (m *Manager) stagingPath(filename string) string {
	return filepath.Join(m.stagingDir(), filename+".part")
}

// partPath returns the committed on-disk path for a part fetched from url.
func partPath(modelsDir, url string) string {
	return filepath.Join(modelsDir, filepath.Base(url))
}
