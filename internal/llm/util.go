// Package llm - util.go provides shared utilities for LLM request and response processing.
package llm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n(.*?)\\n?```\\s*$")

// CleanJSONBlock removes markdown code block wrappers from JSON responses.
func CleanJSONBlock(text string) string {
	text = StripFences(text)
	// Some models prefix prose before the object; keep the outermost braces.
	if start := strings.Index(text, "{"); start > 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return text
}

// StripFences removes a single enclosing ``` block, keeping its body.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// TruncateBytes cuts s to at most max bytes without splitting a UTF-8 sequence.
func TruncateBytes(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
