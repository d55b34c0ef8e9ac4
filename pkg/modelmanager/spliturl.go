package modelmanager

import (
	"fmt"
	"regexp"
)

// splitPartPattern matches the zero-padded "-NNNNN-of-MMMMM" part marker
// GGUF split files embed in their filename, e.g. "-00001-of-00002".
var splitPartPattern = regexp.MustCompile(`-(\d+)-of-(\d+)`)

// splitURLs generates the sibling download URLs for a split model by
// substituting the part index in primaryURL, for K in 1..=splitCount. The
// returned slice is ordered by part index, primaryURL first.
func splitURLs(primaryURL string, splitCount int) ([]string, error) {
	loc := splitPartPattern.FindStringSubmatchIndex(primaryURL)
	if loc == nil {
		return nil, fmt.Errorf("modelmanager: download URL %q has no split-part marker", primaryURL)
	}

	width := loc[3] - loc[2] // digit width of the part-index capture group
	urls := make([]string, splitCount)
	for k := 1; k <= splitCount; k++ {
		marker := fmt.Sprintf("-%0*d-of-%s", width, k, primaryURL[loc[4]:loc[5]])
		urls[k-1] = primaryURL[:loc[0]] + marker + primaryURL[loc[1]:]
	}
	return urls, nil
}
