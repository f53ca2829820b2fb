// Package facts finds statements about government orders in a transcript.
package facts

import (
	"regexp"
	"strings"

	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Defaults for Options.
const (
	DefaultMaxFacts          = 10
	DefaultMinMatchChars     = 10
	DefaultMaxParagraphChars = 500
)

// Options bounds extraction.
type Options struct {
	MaxFacts          int
	MinMatchChars     int
	MaxParagraphChars int
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		MaxFacts:          DefaultMaxFacts,
		MinMatchChars:     DefaultMinMatchChars,
		MaxParagraphChars: DefaultMaxParagraphChars,
	}
}

var (
	topicVocabulary = regexp.MustCompile(`(?i)\b(covid(-?19)?|coronavirus|pandemic|emergency|restrict\w*|closures?|closed|shut\s*downs?|lockdowns?|shelter[- ]in[- ]place|stay[- ]at[- ]home|social distancing|quarantine|capacity|masks?|gatherings?|non-?essential)\b`)

	directiveVocabulary = regexp.MustCompile(`(?i)\b(orders?|directives?|mandates?|proclamations?|decrees?|ordinances?)\b`)
)

// template is one fact pattern. Patterns are matched against single
// sentences; a hit of at least MinMatchChars makes the whole sentence a fact.
type template struct {
	name    string
	pattern *regexp.Regexp
}

var templates = []template{
	{
		name:    "named-order",
		pattern: regexp.MustCompile(`(?i)\b(executive|governor'?s?|mayor'?s?|mayoral|county|city|state|emergency|administrative|stay[- ]at[- ]home|shelter[- ]in[- ]place|public health)\s+(order|directive|proclamation|mandate)s?\b`),
	},
	{
		name:    "health-department",
		pattern: regexp.MustCompile(`(?i)\b((department|dept\.?|board|commissioner|director|officer)\s+of\s+(public\s+)?health|health\s+(department|officer|authority|authorities|commissioner))\b.*\b(order\w*|directive|mandat\w*|requir\w*|issued)\b`),
	},
	{
		name:    "numbered-order",
		pattern: regexp.MustCompile(`(?i)\b(order|directive|proclamation|ordinance|resolution|declaration)\s+(no\.?\s*|number\s+|#\s*)?[a-z]{0,4}-?\d{1,4}(-\d{1,4})*\b`),
	},
	{
		name:    "emergency-declaration",
		pattern: regexp.MustCompile(`(?i)\b(state of (emergency|disaster)|public health emergency|disaster (declaration|emergency))\b`),
	},
	{
		name:    "topic-restriction",
		pattern: regexp.MustCompile(`(?i)\b(covid(-?19)?|coronavirus|pandemic)\b.*\b(restrict\w*|clos(ed|ure|ures|ing)|shut\w*|limit\w*|prohibit\w*|suspend\w*|capacity|ban(ned)?)\b`),
	},
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Extract returns up to opts.MaxFacts distinct facts in first-seen order.
// period is the claim period; its quarter spellings drive the broader pass
// used when the strict pass finds nothing.
func Extract(text, period string, opts Options) []types.ExtractedFact {
	if opts.MaxFacts <= 0 {
		opts.MaxFacts = DefaultMaxFacts
	}
	if opts.MinMatchChars <= 0 {
		opts.MinMatchChars = DefaultMinMatchChars
	}
	if opts.MaxParagraphChars <= 0 {
		opts.MaxParagraphChars = DefaultMaxParagraphChars
	}

	paragraphs := Paragraphs(text)
	set := newFactSet(opts.MaxFacts)

	for _, p := range paragraphs {
		if set.full() {
			break
		}
		if !IsCandidate(p) {
			continue
		}
		matched := false
		sentences := Sentences(p)
		for _, tpl := range templates {
			for _, s := range sentences {
				if len(tpl.pattern.FindString(s)) < opts.MinMatchChars {
					continue
				}
				matched = true
				set.add(s, p)
			}
		}
		if !matched && len(p) <= opts.MaxParagraphChars {
			set.add(p, p)
		}
	}

	if set.empty() {
		tokens := quarterTokens(period)
		for _, p := range paragraphs {
			if set.full() {
				break
			}
			if containsAny(p, tokens) && topicVocabulary.MatchString(p) {
				set.add(p, p)
			}
		}
	}
	return set.facts
}

// IsCandidate reports whether a paragraph mentions both a pandemic topic and a directive.
func IsCandidate(paragraph string) bool {
	return topicVocabulary.MatchString(paragraph) && directiveVocabulary.MatchString(paragraph)
}

// Paragraphs splits text on blank lines.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func quarterTokens(period string) []string {
	q, ok := types.ParseQuarter(period)
	if !ok {
		if period = strings.TrimSpace(period); period != "" {
			return []string{period}
		}
		return nil
	}
	return append(q.Tokens(), q.String()[:2])
}

func containsAny(s string, tokens []string) bool {
	lower := strings.ToLower(s)
	for _, t := range tokens {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

type factSet struct {
	max   int
	seen  map[string]bool
	facts []types.ExtractedFact
}

func newFactSet(max int) *factSet {
	return &factSet{max: max, seen: make(map[string]bool)}
}

func (s *factSet) add(text, paragraph string) {
	text = strings.TrimSpace(text)
	if text == "" || s.seen[text] || s.full() {
		return
	}
	s.seen[text] = true
	s.facts = append(s.facts, types.ExtractedFact{RawText: text, SourceParagraph: paragraph})
}

func (s *factSet) full() bool  { return len(s.facts) >= s.max }
func (s *factSet) empty() bool { return len(s.facts) == 0 }
