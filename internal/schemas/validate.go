// Package schemas checks model output against the JSON shapes the pipeline accepts.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed transcript.schema.json
var transcriptSchema string

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

// TranscriptSchema returns the schema for a sanitized conversation object.
func TranscriptSchema() string {
	return transcriptSchema
}

// Violation is one rule the document broke, addressed by its dotted path.
type Violation struct {
	Path   string
	Reason string
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Document   string
	Violations []Violation
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s does not match schema", ve.Document)
	for _, v := range ve.Violations {
		fmt.Fprintf(&sb, "; %s: %s", v.Path, v.Reason)
	}
	return sb.String()
}

// Paths returns the violated paths in report order.
func (ve *ValidationError) Paths() []string {
	out := make([]string, len(ve.Violations))
	for i, v := range ve.Violations {
		out[i] = v.Path
	}
	return out
}

// LoadError means the schema or the document could not be parsed at all.
type LoadError struct {
	Document string
	Cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot check %s: %v", e.Document, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// ValidateTranscript checks a sanitized conversation object against the embedded schema.
// The schema is compiled on first use.
func ValidateTranscript(doc string) error {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(transcriptSchema))
	})
	if compileErr != nil {
		return &LoadError{Document: "transcript schema", Cause: compileErr}
	}
	return check("transcript", compiled, doc)
}

func check(name string, schema *gojsonschema.Schema, doc string) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return &LoadError{Document: name, Cause: err}
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Document: name}
	for _, desc := range result.Errors() {
		path := desc.Field()
		if path == "" {
			path = "(root)"
		}
		verr.Violations = append(verr.Violations, Violation{Path: path, Reason: desc.Description()})
	}
	return verr
}
