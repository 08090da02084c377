// Package jsonextract pulls a single JSON value out of an LLM response that
// mixes prose, markdown fences, and JSON. Grounded on the extract-first-
// fenced-block-or-top-level-value pattern used to parse Claude CLI
// responses, generalized with brace/bracket-depth counting so nested
// objects and arrays extract correctly instead of matching the first
// closing delimiter.
package jsonextract

import "strings"

// StripFence removes a surrounding ```json ... ``` or ``` ... ``` fence, if
// present, leaving the prose/JSON mix inside for Find to scan.
func StripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return trimmed
}

// Find locates the first top-level JSON object or array in mixed content,
// matching delimiters by depth rather than by first-close so nested
// structures extract whole.
func Find(content string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '{':
			start, open, close = i, '{', '}'
		case '[':
			start, open, close = i, '[', ']'
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// FindObject is Find restricted to object extraction, for callers that
// know the payload is always a JSON object and never a bare array.
func FindObject(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
