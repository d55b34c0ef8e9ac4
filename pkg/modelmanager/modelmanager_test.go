package modelmanager

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsukumogami/tsuku/pkg/manifest"
)

func seedManifestEntry(t *testing.T, name, sha256Hex, downloadURL string, splitCount int) {
	t.Helper()
	cleanup := manifest.RegisterTestEntry(name, manifest.Entry{
		Quantization: "q4_k_m",
		SizeBytes:    1024,
		SHA256:       sha256Hex,
		DownloadURL:  downloadURL,
		SplitCount:   splitCount,
	})
	t.Cleanup(cleanup)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New(dir, withSleep(func(time.Duration) {}))
	require.NoError(t, err)
	return m
}

// TestDownloadIdempotence pre-seeds the final file for test-model, whose
// empty manifest sha256 makes any bytes verify; Download must return
// immediately without invoking progress at all.
func TestDownloadIdempotence(t *testing.T) {
	m := newTestManager(t)

	path, err := m.ModelPath("test-model")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("arbitrary bytes, sha256 unchecked"), 0o644))

	calls := 0
	got, err := m.Download("test-model", func(written, total int64) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, 0, calls)
}

func TestDownloadSinglePartSuccess(t *testing.T) {
	body := []byte("fake gguf model bytes")
	sum := sha256.Sum256(body)
	hexSum := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	seedManifestEntry(t, "download-test-single", hexSum, srv.URL+"/model.gguf", 1)

	m, err := New(dir, withSleep(func(time.Duration) {}))
	require.NoError(t, err)

	path, err := m.Download("download-test-single", nil)
	require.NoError(t, err)
	assert.FileExists(t, path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = os.Stat(m.stagingPath("download-test-single.gguf"))
	assert.True(t, os.IsNotExist(err), "staging file must not survive a successful commit")
}

func TestDownloadChecksumMismatchRetriesThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte("wrong bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	const wantSHA = "00000000000000000000000000000000000000000000000000000000000000" // deliberately wrong
	seedManifestEntry(t, "download-test-mismatch", wantSHA, srv.URL+"/model.gguf", 1)

	m, err := New(dir, withSleep(func(time.Duration) {}))
	require.NoError(t, err)

	_, err = m.Download("download-test-mismatch", nil)
	require.Error(t, err)
	assert.Equal(t, maxAttempts, attempts)

	var mismatch ChecksumMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestSplitURLsGeneratesSiblings(t *testing.T) {
	urls, err := splitURLs("https://example.com/m-00001-of-00002.gguf", 2)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://example.com/m-00001-of-00002.gguf", urls[0])
	assert.Equal(t, "https://example.com/m-00002-of-00002.gguf", urls[1])
}

func TestSplitURLsNoMarkerFails(t *testing.T) {
	_, err := splitURLs("https://example.com/m.gguf", 2)
	assert.Error(t, err)
}

func TestVerifyTrivialWhenChecksumEmpty(t *testing.T) {
	m := newTestManager(t)
	path, err := m.ModelPath("test-model")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("anything"), 0o644))

	ok, err := m.Verify("test-model")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAvailableFalseWhenMissing(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsAvailable("test-model"))
}

func TestVerifyCacheHitSkipsRehash(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenVerifyCache(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer cache.Close()

	m, err := New(filepath.Join(dir, "models"), WithVerifyCache(cache))
	require.NoError(t, err)

	body := []byte("model bytes")
	sum := sha256.Sum256(body)
	seedManifestEntry(t, "verify-cache-test", hex.EncodeToString(sum[:]), "https://example.invalid/model.gguf", 1)

	path, err := m.ModelPath("verify-cache-test")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	ok, err := m.Verify("verify-cache-test")
	require.NoError(t, err)
	assert.True(t, ok)

	// Rewrite the file with different bytes of the same length and restore
	// its modification time: only a cache hit on (size, modTime) can still
	// report the original, matching checksum.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("MODEL BYTES"), 0o644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	ok2, err := m.Verify("verify-cache-test")
	require.NoError(t, err)
	assert.True(t, ok2)
}
