package modelmanager

import (
	"strings"

	parser "github.com/gpustack/gguf-parser-go"
)

// GGUFSanityReport is a fast, non-authoritative structural check run after
// a single-part download's checksum has already passed. It exists purely
// as an early, human-visible diagnostic for a corrupted manifest entry: a
// parse failure or a quantization mismatch is logged but never fails the
// download, since SHA-256 verification remains the sole pass/fail gate.
type GGUFSanityReport struct {
	Architecture string
	FileType     string
	DeclaredSize string
}

// checkGGUFSanity parses path's GGUF header and reports whether its
// declared quantization matches expectedQuantization. A non-nil err (with
// matched=false) on a parse failure means "could not check", not
// "corrupt" — callers only log it.
func checkGGUFSanity(path, expectedQuantization string) (report GGUFSanityReport, matched bool, err error) {
	gguf, err := parser.ParseGGUFFile(path)
	if err != nil {
		return GGUFSanityReport{}, false, err
	}

	meta := gguf.Metadata()
	report = GGUFSanityReport{
		Architecture: strings.TrimSpace(meta.Architecture),
		FileType:     strings.TrimSpace(meta.FileType.String()),
		DeclaredSize: strings.TrimSpace(meta.Size.String()),
	}

	matched = strings.EqualFold(report.FileType, expectedQuantization)
	return report, matched, nil
}
