package facts

import (
	"regexp"
	"strings"
	"unicode"
)

var listNumber = regexp.MustCompile(`^\d{1,2}[.)]\s+`)

// abbreviations that end with a period but do not end a sentence.
var abbreviations = map[string]bool{
	"no": true, "nos": true, "gov": true, "govt": true, "dept": true, "st": true,
	"dr": true, "mr": true, "mrs": true, "ms": true, "sec": true, "art": true,
	"u.s": true, "inc": true, "co": true, "jan": true, "feb": true, "mar": true,
	"apr": true, "jun": true, "jul": true, "aug": true, "sep": true, "sept": true,
	"oct": true, "nov": true, "dec": true, "vs": true, "e.g": true, "i.e": true,
}

// Sentences splits a paragraph at terminal punctuation followed by whitespace
// and an upper-case letter, skipping common abbreviations. Line breaks inside
// a paragraph also end a sentence.
func Sentences(paragraph string) []string {
	var out []string
	for _, line := range strings.Split(paragraph, "\n") {
		out = append(out, splitLine(line)...)
	}
	return out
}

func splitLine(line string) []string {
	runes := []rune(line)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
			j++
		}
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		k := j
		for k < len(runes) && unicode.IsSpace(runes[k]) {
			k++
		}
		if k >= len(runes) || !(unicode.IsUpper(runes[k]) || runes[k] == '"') {
			continue
		}
		if r == '.' && (abbreviations[lastWord(runes[start:i])] || isListMarker(runes[start:i])) {
			continue
		}
		if s := trimMarker(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		start = k
	}
	if s := trimMarker(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// isListMarker reports whether the text before a period is only an ordinal
// such as the "3" in "3. Executive Order".
func isListMarker(runes []rune) bool {
	digits := 0
	for _, r := range runes {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
		default:
			return false
		}
	}
	return digits > 0 && digits <= 2
}

func trimMarker(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*•# ")
	return strings.TrimSpace(listNumber.ReplaceAllString(s, ""))
}

func lastWord(runes []rune) string {
	end := len(runes)
	begin := end
	for begin > 0 && !unicode.IsSpace(runes[begin-1]) && runes[begin-1] != '(' {
		begin--
	}
	return strings.ToLower(string(runes[begin:end]))
}
