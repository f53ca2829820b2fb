// Package transcript turns a captured conversation page into text through an
// ordered chain of extraction strategies of decreasing reliability.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/metrics"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

// Strategy names.
const (
	StrategyStructural = "structural"
	StrategyHeuristic  = "heuristic"
	StrategyGenerative = "generative"
	StrategyDegenerate = "degenerate"
)

// DefaultSanitizeMaxBytes bounds the markup handed to the generative sanitizer.
const DefaultSanitizeMaxBytes = 400000

// ErrNoContent is returned by a strategy that found nothing to extract.
var ErrNoContent = errors.New("no conversation content")

// ExtractFunc produces a transcript from a snapshot. An empty transcript or an
// error means the strategy did not apply.
type ExtractFunc func(ctx context.Context, snap *types.PageSnapshot) (types.Transcript, error)

// Strategy is one named step of the chain.
type Strategy struct {
	Name    string
	Extract ExtractFunc
}

// Options configures the default chain.
type Options struct {
	// LLM enables the generative strategy when set.
	LLM llm.Client
	// PreferGenerative runs the generative strategy first.
	PreferGenerative bool
	SanitizeMaxBytes int
	// MinBlockChars is the heuristic prose threshold.
	MinBlockChars int
}

// Extractor runs strategies in order until one yields text.
type Extractor struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New builds the standard chain: structural, heuristic, generative, degenerate.
func New(opts Options, logger *zap.Logger) *Extractor {
	if opts.SanitizeMaxBytes <= 0 {
		opts.SanitizeMaxBytes = DefaultSanitizeMaxBytes
	}
	if opts.MinBlockChars <= 0 {
		opts.MinBlockChars = DefaultMinBlockChars
	}
	logger = logging.OrNop(logger)

	structural := Strategy{Name: StrategyStructural, Extract: NewStructural()}
	heuristic := Strategy{Name: StrategyHeuristic, Extract: Heuristic(opts.MinBlockChars)}
	degenerate := Strategy{Name: StrategyDegenerate, Extract: Degenerate}

	var strategies []Strategy
	if opts.LLM == nil {
		strategies = []Strategy{structural, heuristic, degenerate}
	} else {
		generative := Strategy{Name: StrategyGenerative, Extract: Generative(opts.LLM, opts.SanitizeMaxBytes, logger)}
		if opts.PreferGenerative {
			strategies = []Strategy{generative, structural, heuristic, degenerate}
		} else {
			strategies = []Strategy{structural, heuristic, generative, degenerate}
		}
	}
	return NewWithStrategies(strategies, logger)
}

// NewWithStrategies builds an extractor over an explicit chain.
func NewWithStrategies(strategies []Strategy, logger *zap.Logger) *Extractor {
	return &Extractor{strategies: strategies, logger: logging.OrNop(logger)}
}

// Strategies returns the chain's strategy names in order.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract returns the first non-empty transcript. It never fails: when every
// strategy comes up empty the result is types.EmptyTranscript().
func (e *Extractor) Extract(ctx context.Context, snap *types.PageSnapshot) types.Transcript {
	if snap == nil {
		return types.EmptyTranscript()
	}
	for _, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		tr, err := runStrategy(ctx, s, snap)
		if err != nil {
			e.logger.Debug("extraction strategy failed",
				zap.String("strategy", s.Name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			continue
		}
		if tr.IsEmpty() {
			e.logger.Debug("extraction strategy produced nothing", zap.String("strategy", s.Name))
			continue
		}
		tr.Strategy = s.Name
		metrics.TranscriptStrategy.WithLabelValues(s.Name).Inc()
		e.logger.Info("transcript extracted",
			zap.String("strategy", s.Name),
			zap.Int("turns", len(tr.Turns)),
			zap.Int("chars", len(tr.Text)),
			zap.Duration("duration", time.Since(start)))
		return tr
	}

	metrics.TranscriptStrategy.WithLabelValues(types.StrategyEmpty).Inc()
	e.logger.Warn("every extraction strategy failed", zap.String("url", snap.URL))
	return types.EmptyTranscript()
}

func runStrategy(ctx context.Context, s Strategy, snap *types.PageSnapshot) (tr types.Transcript, err error) {
	defer func() {
		if r := recover(); r != nil {
			tr = types.Transcript{}
			err = fmt.Errorf("strategy %s panicked: %v", s.Name, r)
		}
	}()
	return s.Extract(ctx, snap)
}
