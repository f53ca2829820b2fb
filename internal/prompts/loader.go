// Package prompts holds the model instructions used by the protest pipeline.
// Each prompt book is a flat JSON object of key to template, embedded at build time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ERC is the prompt book for sanitizing, drafting and research.
const ERC = "erc.json"

//go:embed *.json
var books embed.FS

// book is a parsed prompt file.
type book map[string]string

var loaded sync.Map // filename -> func() (book, error)

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9_]*)\}\}`)

func open(filename string) (book, error) {
	fn, _ := loaded.LoadOrStore(filename, sync.OnceValues(func() (book, error) {
		raw, err := books.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("no prompt book %s: %w", filename, err)
		}
		var b book
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("prompt book %s is not a JSON object of strings: %w", filename, err)
		}
		return b, nil
	}))
	return fn.(func() (book, error))()
}

// Get returns the raw template stored under key.
func Get(filename, key string) (string, error) {
	b, err := open(filename)
	if err != nil {
		return "", err
	}
	tmpl, ok := b[key]
	if !ok {
		return "", fmt.Errorf("prompt %q not found in %s", key, filename)
	}
	return tmpl, nil
}

// MustGet is Get for prompts the binary cannot run without.
func MustGet(filename, key string) string {
	tmpl, err := Get(filename, key)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Keys lists the prompts in a book in sorted order.
func Keys(filename string) ([]string, error) {
	b, err := open(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Render fills every placeholder of a stored template. A placeholder
// without a value is an error rather than literal text in the prompt.
func Render(filename, key string, data map[string]string) (string, error) {
	tmpl, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	if missing := Missing(tmpl, data); len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s: missing values for %s", filename, key, strings.Join(missing, ", "))
	}
	return Format(tmpl, data), nil
}

// Format substitutes {{.Name}} placeholders in one pass; inserted values are
// not scanned again. Unknown placeholders are left as they are.
func Format(tmpl string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := data[m[3:len(m)-2]]; ok {
			return v
		}
		return m
	})
}

// Missing names the placeholders in tmpl with no value in data, once each.
func Missing(tmpl string, data map[string]string) []string {
	var missing []string
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if _, ok := data[name]; ok || slices.Contains(missing, name) {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}
