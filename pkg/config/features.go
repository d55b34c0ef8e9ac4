package config

import (
	"os"
	"strconv"
	"sync/atomic"
)

// EnvGrammarConstrainedGenerationEnabled is the environment variable that
// toggles the grammar-constrained-generation placeholder. Disabled by
// default: the daemon relies on prompt engineering plus
// ToolCallParser.extract_json instead.
const EnvGrammarConstrainedGenerationEnabled = "TSUKU_GRAMMAR_ENABLED"

var grammarEnabled atomic.Bool

func init() {
	grammarEnabled.Store(boolEnv(EnvGrammarConstrainedGenerationEnabled, false))
}

// GrammarConstrainedGenerationEnabled reports whether grammar-constrained
// sampling should be attempted. False unless TSUKU_GRAMMAR_ENABLED or
// SetGrammarConstrainedGenerationEnabled turns it on. No
// JSON-schema-to-BNF translator is implemented, so enabling the flag only
// ever exercises the documented fallback (log a warning, sample
// unconstrained) rather than true grammar constraints.
func GrammarConstrainedGenerationEnabled() bool {
	return grammarEnabled.Load()
}

// SetGrammarConstrainedGenerationEnabled overrides the flag at runtime, for tests.
func SetGrammarConstrainedGenerationEnabled(v bool) {
	grammarEnabled.Store(v)
}

func boolEnv(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
