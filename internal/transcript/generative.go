package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/prompts"
	"github.com/jonathan/erc-protest-agent/internal/schemas"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

type sanitizedConversation struct {
	Turns []types.Turn `json:"turns"`
	Links []string     `json:"links"`
}

// Generative returns the strategy that hands the page markup to a model and
// asks for the conversation back. Output that fails schema validation is
// still accepted as flat text when non-empty.
func Generative(client llm.Client, maxBytes int, logger *zap.Logger) ExtractFunc {
	return func(ctx context.Context, snap *types.PageSnapshot) (types.Transcript, error) {
		if strings.TrimSpace(snap.HTML) == "" {
			return types.Transcript{}, errors.New("empty markup")
		}

		markup, truncated := llm.TruncateBytes(snap.HTML, maxBytes)
		note := ""
		if truncated {
			note = fmt.Sprintf(" (truncated to the first %d bytes)", maxBytes)
		}

		system, err := prompts.Get(prompts.ERC, "sanitize-system")
		if err != nil {
			return types.Transcript{}, err
		}
		user, err := prompts.Render(prompts.ERC, "sanitize-user", map[string]string{
			"TruncationNote": note,
			"Markup":         markup,
		})
		if err != nil {
			return types.Transcript{}, err
		}

		out, err := client.Generate(ctx, llm.Request{
			System: system,
			User:   user,
			Tier:   llm.TierStandard,
			JSON:   true,
		})
		if err != nil {
			return types.Transcript{}, fmt.Errorf("sanitizer request failed: %w", err)
		}
		return parseSanitized(out, logger)
	}
}

func parseSanitized(out string, logger *zap.Logger) (types.Transcript, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return types.Transcript{}, llm.ErrEmptyResponse
	}

	if err := schemas.ValidateTranscript(out); err != nil {
		if tr, ok := salvageConversation(out); ok {
			logger.Debug("sanitizer output does not match the transcript schema, keeping its turns", zap.Error(err))
			return tr, nil
		}
		logger.Debug("sanitizer output is not a transcript object, using it as text", zap.Error(err))
		return types.NewFlatTranscript(out, StrategyGenerative), nil
	}

	var conv sanitizedConversation
	if err := json.Unmarshal([]byte(out), &conv); err != nil {
		return types.NewFlatTranscript(out, StrategyGenerative), nil
	}

	tr := types.NewAttributedTranscript(conv.Turns, StrategyGenerative)
	tr.Text = appendSources(tr.Text, conv.Links)
	return tr, nil
}

// looseConversation accepts the transcript shape with any speaker names.
type looseConversation struct {
	Turns []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	} `json:"turns"`
	Links []string `json:"links"`
}

// salvageConversation recovers turn text from JSON that parses but breaks the
// schema, so braces and escapes never reach the letter prompt. Turns keep
// attribution when every speaker name is recognized.
func salvageConversation(out string) (types.Transcript, bool) {
	var conv looseConversation
	if err := json.Unmarshal([]byte(out), &conv); err != nil {
		return types.Transcript{}, false
	}

	turns := make([]types.Turn, 0, len(conv.Turns))
	blocks := make([]string, 0, len(conv.Turns))
	attributed := true
	for _, t := range conv.Turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		name := strings.TrimSpace(t.Speaker)
		speaker, known := types.ParseSpeaker(name)
		attributed = attributed && known
		turns = append(turns, types.Turn{Speaker: speaker, Text: text})
		if name != "" {
			text = name + ": " + text
		}
		blocks = append(blocks, text)
	}
	if len(blocks) == 0 {
		return types.Transcript{}, false
	}

	var tr types.Transcript
	if attributed {
		tr = types.NewAttributedTranscript(turns, StrategyGenerative)
	} else {
		tr = types.NewFlatTranscript(strings.Join(blocks, "\n\n"), StrategyGenerative)
	}
	tr.Text = appendSources(tr.Text, conv.Links)
	return tr, true
}

// appendSources lists links the turns do not already mention.
func appendSources(text string, links []string) string {
	var missing []string
	seen := make(map[string]bool)
	for _, l := range links {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] || strings.Contains(text, l) {
			continue
		}
		seen[l] = true
		missing = append(missing, l)
	}
	if len(missing) == 0 {
		return text
	}
	return text + "\n\nSources:\n" + strings.Join(missing, "\n")
}
