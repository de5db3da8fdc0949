package prompts

import (
	"strings"
)

// Merge copies existing and fills in generated text for the requested
// attributes. Text that is already present is never replaced, even when it is
// only whitespace. Generated values that are not non-blank strings are ignored.
// Merging the same input twice writes nothing the second time.
func Merge(existing map[string]string, generated map[string]any, attributes []string) (map[string]string, int) {
	merged := make(map[string]string, len(existing)+len(attributes))
	for k, v := range existing {
		merged[k] = v
	}

	written := 0
	for _, attr := range attributes {
		if merged[attr] != "" {
			continue
		}
		text, ok := generated[attr].(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		merged[attr] = text
		written++
	}

	return merged, written
}

// Missing lists, in request order, the attributes that still have no text.
func Missing(prompts map[string]string, attributes []string) []string {
	missing := make([]string, 0)
	for _, attr := range attributes {
		if prompts[attr] == "" {
			missing = append(missing, attr)
		}
	}
	return missing
}

// ExtractObject returns the first balanced top-level {...} span. Braces inside
// JSON strings are skipped.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
