// Package research prepares the research step that precedes a protest: a
// prompt the business owner pastes into a chat assistant, and a search for
// official order documents to cite.
package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/prompts"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Request describes the business the research is for.
type Request struct {
	BusinessName string `json:"business_name" validate:"required"`
	Location     string `json:"location" validate:"required"`
	NAICSCode    string `json:"naics_code,omitempty" validate:"omitempty,numeric,max=6"`
	Period       string `json:"time_period" validate:"required"`
}

// Validate validates the Request using the validator.
func (r *Request) Validate() error {
	return validator.New().Struct(r)
}

func (r *Request) fields() map[string]string {
	city, state := types.SplitLocation(r.Location)
	if state == "" {
		state = city
	}
	return map[string]string{
		"BusinessType": types.BusinessTypeForNAICS(r.NAICSCode),
		"City":         city,
		"State":        state,
		"Period":       r.Period,
	}
}

// BuildPrompt renders the base research prompt.
func BuildPrompt(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid research request: %w", err)
	}
	return prompts.Render(prompts.ERC, "research-base", req.fields())
}

// Customize asks the model to tailor basePrompt to the business. The base
// prompt is returned unchanged when client is nil or the model fails.
func Customize(ctx context.Context, client llm.Client, basePrompt string, req Request, logger *zap.Logger) string {
	logger = logging.OrNop(logger)
	if client == nil {
		return basePrompt
	}

	fields := req.fields()
	fields["BasePrompt"] = basePrompt
	user, err := prompts.Render(prompts.ERC, "research-customize-user", fields)
	if err != nil {
		logger.Warn("failed to render customization prompt", zap.Error(err))
		return basePrompt
	}

	text, err := client.Generate(ctx, llm.Request{
		System: prompts.MustGet(prompts.ERC, "research-customize-system"),
		User:   user,
		Tier:   llm.TierLite,
	})
	if err != nil {
		logger.Warn("prompt customization failed, using base prompt", zap.Error(err))
		return basePrompt
	}
	text = strings.TrimSpace(llm.StripFences(text))
	if text == "" {
		return basePrompt
	}
	return text
}
