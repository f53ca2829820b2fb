package letter

import (
	"strings"
	"text/template"
)

var headerTemplate = template.Must(template.ParseFS(templateFiles, "templates/header.tmpl"))

// salutationScan bounds how far into a generated letter a model-written
// letterhead is looked for.
const salutationScan = 20

// letterhead renders the date, addressee and claim lines. They come from the
// request and the clock, never from the model.
func letterhead(fields map[string]string) string {
	var b strings.Builder
	if err := headerTemplate.Execute(&b, fields); err != nil {
		panic(err)
	}
	return strings.TrimSpace(b.String())
}

// withLetterhead prefixes body with the letterhead. Any header the model wrote
// above its salutation is dropped so the letter carries one date and one period.
func withLetterhead(fields map[string]string, body string) string {
	return letterhead(fields) + "\n\n" + dropModelHeader(strings.TrimSpace(body))
}

func dropModelHeader(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if i >= salutationScan {
			break
		}
		if strings.HasPrefix(strings.TrimSpace(line), "Dear ") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return body
}
