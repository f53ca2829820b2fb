package transcript

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

// DefaultMinBlockChars is the text length above which a container is treated as prose.
const DefaultMinBlockChars = 200

const blockSelector = "article, section, div, main, p"

var whitespaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)

// Heuristic returns the prose-block strategy. Text inside containers that
// reach minChars is kept in document order, each passage once. When no
// block qualifies, readability gets a pass.
func Heuristic(minChars int) ExtractFunc {
	return func(_ context.Context, snap *types.PageSnapshot) (types.Transcript, error) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
		if err != nil {
			return types.Transcript{}, err
		}
		doc.Find("script, style, noscript, nav, header, footer, svg, button, form").Remove()

		if text := proseBlocks(doc, minChars); text != "" {
			return types.NewFlatTranscript(text, StrategyHeuristic), nil
		}

		text, err := readabilityText(snap, minChars)
		if err != nil {
			return types.Transcript{}, err
		}
		return types.NewFlatTranscript(text, StrategyHeuristic), nil
	}
}

// proseBlocks concatenates, in document order, the text of every container
// that reaches minChars. A container whose children also qualify is split:
// qualifying children are emitted as their own blocks and the shorter text
// between them is kept in place, so short turns beside long ones survive.
func proseBlocks(doc *goquery.Document, minChars int) string {
	qualifies := make(map[*html.Node]bool)
	hasQualifying := make(map[*html.Node]bool)
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if len(normalizeText(s.Text())) < minChars {
			return
		}
		qualifies[s.Get(0)] = true
		s.Parents().Each(func(_ int, p *goquery.Selection) {
			hasQualifying[p.Get(0)] = true
		})
	})
	if len(qualifies) == 0 {
		return ""
	}

	var parts []string
	emit := func(text string) {
		if text = normalizeText(text); text != "" {
			parts = append(parts, text)
		}
	}

	var walk func(n *html.Node, inside bool)
	walk = func(n *html.Node, inside bool) {
		var loose strings.Builder
		flush := func() {
			emit(loose.String())
			loose.Reset()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case qualifies[c] && !hasQualifying[c]:
				flush()
				emit(nodeText(c))
			case qualifies[c]:
				flush()
				walk(c, true)
			case hasQualifying[c]:
				flush()
				walk(c, inside)
			case inside:
				loose.WriteString(nodeText(c))
				loose.WriteString("\n")
			}
		}
		flush()
	}
	walk(doc.Get(0), false)

	return strings.Join(parts, "\n\n")
}

// nodeText is the concatenated text of n and its descendants.
func nodeText(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode, html.DocumentNode:
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.WriteString(nodeText(c))
		}
		return b.String()
	default:
		return ""
	}
}

func readabilityText(snap *types.PageSnapshot, minChars int) (string, error) {
	pageURL, err := url.Parse(snap.URL)
	if err != nil || snap.URL == "" {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(strings.NewReader(snap.HTML), pageURL)
	if err != nil {
		return "", err
	}
	text := normalizeText(article.TextContent)
	if len(text) < minChars {
		return "", fmt.Errorf("no prose blocks: %w", ErrNoContent)
	}
	return text, nil
}

// normalizeText collapses horizontal whitespace and blank lines.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
