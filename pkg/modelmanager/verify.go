package modelmanager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/tsukumogami/tsuku/pkg/manifest"
)

// Verify reports whether the primary on-disk file for name hashes to the
// manifest's expected sha256. An empty manifest sha256 means "verification
// skipped" and always returns true without touching the file. Verify is
// only ever invoked for single-part models: split parts are never
// checksum-checked.
func (m *Manager) Verify(name string) (bool, error) {
	entry, ok := manifest.Lookup(name)
	if !ok {
		return false, fmt.Errorf("modelmanager: unknown model %q", name)
	}
	if entry.SHA256 == "" {
		return true, nil
	}

	path := m.modelPath(name, entry)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, IOError{Path: path, Err: err}
	}

	if m.cache != nil {
		if cached, found := m.cache.Get(name); found &&
			cached.SizeBytes == info.Size() && cached.ModTimeUnix == info.ModTime().Unix() {
			return cached.SHA256 == entry.SHA256, nil
		}
	}

	sum, err := hashFile(path)
	if err != nil {
		return false, IOError{Path: path, Err: err}
	}

	if m.cache != nil {
		_ = m.cache.Put(name, VerifyCacheEntry{
			SizeBytes:   info.Size(),
			ModTimeUnix: info.ModTime().Unix(),
			SHA256:      sum,
		})
	}

	return sum == entry.SHA256, nil
}

// IsAvailable reports whether every expected on-disk part for name exists
// and, for single-part models, verifies. Split-model parts are checked for
// existence only — verification is never performed on them.
func (m *Manager) IsAvailable(name string) bool {
	entry, ok := manifest.Lookup(name)
	if !ok {
		return false
	}

	if entry.SplitCount <= 1 {
		if _, err := os.Stat(m.modelPath(name, entry)); err != nil {
			return false
		}
		ok, err := m.Verify(name)
		return err == nil && ok
	}

	urls, err := splitURLs(entry.DownloadURL, entry.SplitCount)
	if err != nil {
		return false
	}
	for _, u := range urls {
		if _, err := os.Stat(partPath(m.ModelsDir, u)); err != nil {
			return false
		}
	}
	return true
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
