package transcript

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

var (
	scriptBlocks = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// Degenerate strips every tag and collapses whitespace. It works on the raw
// markup without a parser so it still applies when parsing itself fails.
func Degenerate(_ context.Context, snap *types.PageSnapshot) (types.Transcript, error) {
	text := StripTags(snap.HTML)
	if text == "" {
		return types.Transcript{}, fmt.Errorf("page has no text: %w", ErrNoContent)
	}
	return types.NewFlatTranscript(text, StrategyDegenerate), nil
}

// StripTags removes markup and returns the remaining text on one line.
func StripTags(markup string) string {
	text := scriptBlocks.ReplaceAllString(markup, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}
