package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var naicsBusinessTypes = map[string]string{
	"541110": "law firm",
	"541211": "accounting firm",
	"541330": "engineering firm",
	"561320": "temporary staffing agency",
	"722511": "restaurant",
	"623110": "nursing home",
	"622110": "hospital",
	"611110": "elementary or secondary school",
	"445110": "supermarket or grocery store",
	"448140": "clothing store",
	"236220": "construction company",
	"621111": "medical office",
}

// BusinessTypeForNAICS maps a NAICS code to a plain-language business type.
func BusinessTypeForNAICS(code string) string {
	if t, ok := naicsBusinessTypes[strings.TrimSpace(code)]; ok {
		return t
	}
	return "business"
}

// Quarter is a calendar quarter such as Q2 2020.
type Quarter struct {
	Number int
	Year   int
}

var (
	quarterFirst = regexp.MustCompile(`(?i)\bQ\s*([1-4])\s*[-/, ]?\s*((?:19|20)\d{2})\b`)
	yearFirst    = regexp.MustCompile(`(?i)\b((?:19|20)\d{2})\s*[-/, ]?\s*Q\s*([1-4])\b`)
	ordinalForm  = regexp.MustCompile(`(?i)\b(first|second|third|fourth|1st|2nd|3rd|4th)\s+quarter(?:\s+of)?\s*,?\s*((?:19|20)\d{2})\b`)
)

var ordinals = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
}

// ParseQuarter extracts a quarter from free-form period text.
func ParseQuarter(period string) (Quarter, bool) {
	if m := quarterFirst.FindStringSubmatch(period); m != nil {
		n, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return Quarter{Number: n, Year: y}, true
	}
	if m := yearFirst.FindStringSubmatch(period); m != nil {
		y, _ := strconv.Atoi(m[1])
		n, _ := strconv.Atoi(m[2])
		return Quarter{Number: n, Year: y}, true
	}
	if m := ordinalForm.FindStringSubmatch(period); m != nil {
		y, _ := strconv.Atoi(m[2])
		return Quarter{Number: ordinals[strings.ToLower(m[1])], Year: y}, true
	}
	return Quarter{}, false
}

func (q Quarter) String() string {
	return fmt.Sprintf("Q%d %d", q.Number, q.Year)
}

// Tokens returns the literal spellings of the quarter that may appear in prose.
func (q Quarter) Tokens() []string {
	names := []string{"", "first", "second", "third", "fourth"}
	return []string{
		q.String(),
		fmt.Sprintf("Q%d-%d", q.Number, q.Year),
		fmt.Sprintf("Q%d, %d", q.Number, q.Year),
		fmt.Sprintf("%d Q%d", q.Year, q.Number),
		fmt.Sprintf("%s quarter of %d", names[q.Number], q.Year),
		fmt.Sprintf("%s quarter %d", names[q.Number], q.Year),
	}
}
