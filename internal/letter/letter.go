// Package letter composes the protest letter, with a model when one is
// available and from a fixed template when it is not.
package letter

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/prompts"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

//go:embed templates/*
var templateFiles embed.FS

// Mode selects what research the model receives.
type Mode string

const (
	// ModeFacts passes the extracted facts and links.
	ModeFacts Mode = "facts"
	// ModeTranscript passes the whole transcript.
	ModeTranscript Mode = "transcript"
)

// DateLayout is the letter date format.
const DateLayout = "01/02/2006"

// DefaultSignatory closes the letter when none is configured.
const DefaultSignatory = "[Authorized Representative]"

// GenerationError describes a failed model call. The composer recovers from
// it with the fallback letter; it is reported, not returned.
type GenerationError struct {
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("letter generation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("letter generation failed: %s", e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Options configures a Composer.
type Options struct {
	Mode           Mode
	Timeout        time.Duration
	Signatory      string
	SignatoryTitle string
	// Now is replaceable for tests.
	Now func() time.Time
}

// Input is everything a letter is built from.
type Input struct {
	Profile    types.BusinessProfile
	Facts      []types.ExtractedFact
	Transcript types.Transcript
	// Links are the source URLs found in the research.
	Links []string
}

// Letter is a composed letter.
type Letter struct {
	Text string
	// Fallback is set when the template letter was used.
	Fallback bool
	// GenerationErr explains why the fallback was used.
	GenerationErr error
}

// Composer builds letters.
type Composer struct {
	client  llm.Client
	example string
	opts    Options
	logger  *zap.Logger
}

// New creates a Composer. client may be nil, in which case every letter is
// the fallback letter.
func New(client llm.Client, example string, opts Options, logger *zap.Logger) *Composer {
	if opts.Mode == "" {
		opts.Mode = ModeFacts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = llm.DefaultTimeout
	}
	if opts.Signatory == "" {
		opts.Signatory = DefaultSignatory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if strings.TrimSpace(example) == "" {
		example = DefaultExample()
	}
	return &Composer{client: client, example: example, opts: opts, logger: logging.OrNop(logger)}
}

// DefaultExample returns the embedded worked example letter.
func DefaultExample() string {
	data, err := templateFiles.ReadFile("templates/example_letter.txt")
	if err != nil {
		panic(fmt.Sprintf("embedded example letter missing: %v", err))
	}
	return string(data)
}

// LoadExample reads an example letter from path, or returns the embedded one
// when path is empty.
func LoadExample(path string) (string, error) {
	if path == "" {
		return DefaultExample(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read example letter: %w", err)
	}
	return string(data), nil
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFacts:
		return ModeFacts, nil
	case ModeTranscript:
		return ModeTranscript, nil
	default:
		return "", fmt.Errorf("unknown letter mode %q (want facts or transcript)", s)
	}
}

// Compose returns a letter. It always produces text: a failed or empty
// generation yields the fallback letter. The letterhead is rendered locally
// in both cases; the model writes only the body.
func (c *Composer) Compose(ctx context.Context, in Input) Letter {
	fields := c.fields(in.Profile)

	if c.client == nil {
		return c.fallback(fields, in, &GenerationError{Message: "no generative client configured"})
	}

	text, err := c.generate(ctx, fields, in)
	if err != nil {
		c.logger.Warn("letter generation failed, using fallback letter", zap.Error(err))
		return c.fallback(fields, in, err)
	}
	c.logger.Info("letter generated",
		zap.String("mode", string(c.opts.Mode)),
		zap.Int("chars", len(text)))
	return Letter{Text: withLetterhead(fields, text)}
}

func (c *Composer) fields(p types.BusinessProfile) map[string]string {
	return map[string]string{
		"Date":         c.opts.Now().Format(DateLayout),
		"BusinessName": strings.TrimSpace(p.Name),
		"EIN":          strings.TrimSpace(p.TaxID),
		"Location":     strings.TrimSpace(p.Location),
		"Period":       strings.TrimSpace(p.Period),
		"BusinessType": p.Category(),
		"Example":      c.example,
	}
}

func (c *Composer) generate(ctx context.Context, fields map[string]string, in Input) (string, error) {
	system, err := prompts.Get(prompts.ERC, "letter-system")
	if err != nil {
		return "", &GenerationError{Message: "prompt unavailable", Cause: err}
	}

	key := "letter-user-facts"
	data := copyFields(fields)
	if c.opts.Mode == ModeTranscript {
		key = "letter-user-transcript"
		data["Transcript"] = transcriptOrPlaceholder(in.Transcript)
	} else {
		data["Facts"] = numbered(factTexts(in.Facts), "No specific government orders were identified; rely on the orders generally in effect for this location and period.")
		data["Links"] = bulleted(in.Links, "None provided.")
	}
	user, err := prompts.Render(prompts.ERC, key, data)
	if err != nil {
		return "", &GenerationError{Message: "prompt unavailable", Cause: err}
	}

	genCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	out, err := c.client.Generate(genCtx, llm.Request{
		System: system,
		User:   user,
		Tier:   llm.TierAdvanced,
	})
	if err != nil {
		return "", &GenerationError{Message: "model request failed", Cause: err}
	}
	out = strings.TrimSpace(llm.StripFences(out))
	if out == "" {
		return "", &GenerationError{Message: "model returned an empty letter", Cause: llm.ErrEmptyResponse}
	}
	return out, nil
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func transcriptOrPlaceholder(t types.Transcript) string {
	if t.IsEmpty() {
		return "(The research conversation could not be retrieved.)"
	}
	return t.Text
}

func factTexts(facts []types.ExtractedFact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.RawText)
	}
	return out
}

func numbered(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it)
	}
	return b.String()
}

func bulleted(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return "- " + strings.Join(items, "\n- ")
}
