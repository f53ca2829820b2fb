package attachments

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	urlPattern          = regexp.MustCompile(`https?://[^\s)\]>"']+`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]\n]*)\]\((https?://[^\s)]+)\)`)
	nonAlphanumeric     = regexp.MustCompile(`[^A-Za-z0-9]`)
)

const trailingPunctuation = ".,;:!?"

// FindURLs returns the absolute URLs in text, de-duplicated in order of first
// appearance. Sentence punctuation after a URL is not part of it.
func FindURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range urlPattern.FindAllString(text, -1) {
		u, _ := splitTrailing(raw)
		if !isAbsolute(u) || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func splitTrailing(raw string) (url, tail string) {
	url = strings.TrimRight(raw, trailingPunctuation)
	return url, raw[len(url):]
}

func isAbsolute(u string) bool {
	rest := u[strings.Index(u, "://")+3:]
	return rest != "" && !strings.HasPrefix(rest, "/")
}

// Filename names the PDF for the n-th resolved attachment.
func Filename(n int, url string) string {
	slug := nonAlphanumeric.ReplaceAllString(url, "_")
	if len(slug) > 30 {
		slug = slug[:30]
	}
	return "attachment_" + strconv.Itoa(n) + "_" + slug + ".pdf"
}

// Reference is the text that replaces a resolved URL in the letter.
func Reference(n int, filename string) string {
	return "[See Attachment " + strconv.Itoa(n) + ": " + filename + "]"
}

// Rewrite replaces every occurrence of a resolved URL with its reference.
// Markdown links keep their label. refs maps URL to reference text; URLs
// missing from refs are left untouched.
func Rewrite(text string, refs map[string]string) string {
	if len(refs) == 0 {
		return text
	}
	text = markdownLinkPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markdownLinkPattern.FindStringSubmatch(m)
		label := strings.TrimSpace(sub[1])
		u, _ := splitTrailing(sub[2])
		ref, ok := refs[u]
		if !ok {
			return m
		}
		if label == "" || label == u {
			return ref
		}
		return label + " " + ref
	})
	return urlPattern.ReplaceAllStringFunc(text, func(m string) string {
		u, tail := splitTrailing(m)
		if ref, ok := refs[u]; ok {
			return ref + tail
		}
		return m
	})
}
