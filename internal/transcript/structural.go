package transcript

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

// roleFunc reads the speaker of a matched turn container.
type roleFunc func(s *goquery.Selection) (types.Speaker, bool)

// turnRule locates per-turn containers for one family of chat hosts.
type turnRule struct {
	name     string
	selector string
	role     roleFunc
}

func attrRole(attrs ...string) roleFunc {
	return func(s *goquery.Selection) (types.Speaker, bool) {
		for _, a := range attrs {
			if v, ok := s.Attr(a); ok {
				if sp, ok := types.ParseSpeaker(v); ok {
					return sp, true
				}
			}
		}
		return "", false
	}
}

func classRole(userSelector string) roleFunc {
	return func(s *goquery.Selection) (types.Speaker, bool) {
		if s.Is(userSelector) {
			return types.SpeakerUser, true
		}
		return types.SpeakerAssistant, true
	}
}

var turnRules = []turnRule{
	{
		name:     "author-role",
		selector: "[data-message-author-role]",
		role:     attrRole("data-message-author-role"),
	},
	{
		name:     "data-message",
		selector: "div[data-message]",
		role:     attrRole("data-role", "data-author", "data-message"),
	},
	{
		name:     "claude",
		selector: `[data-testid="user-message"], .font-claude-message`,
		role:     classRole(`[data-testid="user-message"]`),
	},
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// NewStructural returns the structural strategy. Each turn's markup is
// converted to markdown so inline links survive as [label](url).
func NewStructural() ExtractFunc {
	conv := md.NewConverter("", true, &md.Options{
		LinkStyle:      "inlined",
		HeadingStyle:   "atx",
		CodeBlockStyle: "fenced",
		EscapeMode:     "disabled",
	})
	conv.Remove("script", "style", "button", "svg", "noscript")

	return func(_ context.Context, snap *types.PageSnapshot) (types.Transcript, error) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
		if err != nil {
			return types.Transcript{}, err
		}
		for _, rule := range turnRules {
			turns := collectTurns(doc, rule, conv)
			if len(turns) > 0 {
				return types.NewAttributedTranscript(turns, StrategyStructural), nil
			}
		}
		return types.Transcript{}, fmt.Errorf("no turn markers: %w", ErrNoContent)
	}
}

func collectTurns(doc *goquery.Document, rule turnRule, conv *md.Converter) []types.Turn {
	var turns []types.Turn
	doc.Find(rule.selector).Each(func(_ int, s *goquery.Selection) {
		// nested matches belong to the outer turn
		if s.ParentsFiltered(rule.selector).Length() > 0 {
			return
		}
		speaker, ok := rule.role(s)
		if !ok {
			return
		}
		text := strings.TrimSpace(blankRuns.ReplaceAllString(conv.Convert(s), "\n\n"))
		if text == "" {
			return
		}
		turns = append(turns, types.Turn{Speaker: speaker, Text: text})
	})
	return turns
}
