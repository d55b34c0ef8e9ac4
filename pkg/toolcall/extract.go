// Package toolcall extracts and parses a tool-call JSON object embedded in
// otherwise free-form model output.
package toolcall

// ExtractJSON finds the first '{' in s and walks forward tracking brace
// depth, respecting string state and backslash escapes, returning the
// substring spanning the matched braces. Braces inside a string (bounded
// by an unescaped '"') are ignored; a backslash inside a string escapes
// the next byte regardless of what it is. Returns "", false if no balanced
// object is found.
//
// ExtractJSON is idempotent: re-running it on its own output returns the
// same substring unchanged, since that output already starts at the outer
// '{' and ends at its matching '}'.
func ExtractJSON(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}

		switch {
		case inString:
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		default:
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
