package letter

import (
	"strings"
	"text/template"
)

var fallbackTemplate = template.Must(
	template.New("fallback_letter.tmpl").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		ParseFS(templateFiles, "templates/fallback_letter.tmpl"),
)

type fallbackData struct {
	BusinessName   string
	Location       string
	Period         string
	BusinessType   string
	Facts          []string
	Links          []string
	Signatory      string
	SignatoryTitle string
}

// Fallback builds the template letter without a model. Every fact appears
// verbatim; with no facts a generic paragraph stands in.
func (c *Composer) Fallback(in Input) Letter {
	return c.fallback(c.fields(in.Profile), in, nil)
}

func (c *Composer) fallback(fields map[string]string, in Input, cause error) Letter {
	facts := factTexts(in.Facts)
	data := fallbackData{
		BusinessName:   fields["BusinessName"],
		Location:       fields["Location"],
		Period:         fields["Period"],
		BusinessType:   fields["BusinessType"],
		Facts:          facts,
		Links:          uncitedLinks(in.Links, facts),
		Signatory:      c.opts.Signatory,
		SignatoryTitle: c.opts.SignatoryTitle,
	}

	var b strings.Builder
	if err := fallbackTemplate.Execute(&b, data); err != nil {
		panic(err)
	}
	return Letter{Text: withLetterhead(fields, b.String()) + "\n", Fallback: true, GenerationErr: cause}
}

// uncitedLinks drops links already quoted inside a fact.
func uncitedLinks(links, facts []string) []string {
	joined := strings.Join(facts, "\n")
	var out []string
	for _, l := range links {
		if !strings.Contains(joined, l) {
			out = append(out, l)
		}
	}
	return out
}
