// Package manifest holds the static catalog of downloadable models: for
// each name, its expected size, checksum, download URL, split layout, and
// the backends it is known to run on. The catalog is embedded at build
// time and never varies at runtime — ModelSelector (pkg/selector) and
// ModelManager (pkg/modelmanager) both consult it by name.
package manifest

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tsukumogami/tsuku/pkg/hardware"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entry is one manifest row.
type Entry struct {
	Quantization      string             `yaml:"quantization"`
	SizeBytes         uint64             `yaml:"size_bytes"`
	SHA256            string             `yaml:"sha256"`
	DownloadURL       string             `yaml:"download_url"`
	SplitCount        int                `yaml:"split_count"`
	SupportedBackends []hardware.Backend `yaml:"supported_backends"`
}

// Supports reports whether b is among the entry's supported backends.
func (e Entry) Supports(b hardware.Backend) bool {
	for _, sb := range e.SupportedBackends {
		if sb == b {
			return true
		}
	}
	return false
}

type catalogFile struct {
	Models map[string]Entry `yaml:"models"`
}

var catalog map[string]Entry

func init() {
	var cf catalogFile
	if err := yaml.Unmarshal(catalogYAML, &cf); err != nil {
		// The catalog is embedded at build time; a parse failure here is a
		// programming error, not a runtime condition the daemon can recover
		// from.
		panic(fmt.Sprintf("manifest: invalid embedded catalog.yaml: %v", err))
	}
	catalog = cf.Models
}

// Lookup returns the manifest entry for name, or ok=false if unknown.
func Lookup(name string) (Entry, bool) {
	e, ok := catalog[name]
	return e, ok
}

// Names returns every model name in the catalog, for diagnostics.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	return names
}

// RegisterTestEntry adds e to the catalog under name for the duration of a
// test, returning a cleanup func that removes it. Callers outside _test.go
// files should never need this — the catalog is otherwise fixed at init.
func RegisterTestEntry(name string, e Entry) func() {
	catalog[name] = e
	return func() { delete(catalog, name) }
}
