package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/metrics"
)

// NavStrategy names the signal that marks a navigation as complete.
type NavStrategy string

const (
	// StrategyNetworkIdle waits for the load event and for network activity to settle
	StrategyNetworkIdle NavStrategy = "network-idle"
	// StrategyDOMContentLoaded waits for the DOMContentLoaded event
	StrategyDOMContentLoaded NavStrategy = "dom-content-loaded"
	// StrategyCommit waits only for the main frame to commit a response
	StrategyCommit NavStrategy = "commit"
)

// NavStep is one attempt in an escalation plan.
type NavStep struct {
	Strategy NavStrategy
	Timeout  time.Duration
}

// NavPolicy is an ordered escalation plan; each step should allow more time than the last.
type NavPolicy []NavStep

// DefaultNavPolicy returns network-idle, then DOMContentLoaded, then commit.
func DefaultNavPolicy() NavPolicy {
	return NavPolicy{
		{Strategy: StrategyNetworkIdle, Timeout: 45 * time.Second},
		{Strategy: StrategyDOMContentLoaded, Timeout: 60 * time.Second},
		{Strategy: StrategyCommit, Timeout: 90 * time.Second},
	}
}

// NewNavPolicy builds the standard three-step plan from explicit budgets.
func NewNavPolicy(networkIdle, domContent, commit time.Duration) NavPolicy {
	return NavPolicy{
		{Strategy: StrategyNetworkIdle, Timeout: networkIdle},
		{Strategy: StrategyDOMContentLoaded, Timeout: domContent},
		{Strategy: StrategyCommit, Timeout: commit},
	}
}

// navAttempt performs one navigation and blocks until the strategy's signal
// fires or ctx ends.
type navAttempt func(ctx context.Context, strategy NavStrategy) error

// navigate walks the policy until one attempt succeeds. Every attempt reloads
// the same URL under its own timeout.
func navigate(ctx context.Context, urlStr string, policy NavPolicy, attempt navAttempt, logger *zap.Logger) (NavStrategy, error) {
	if len(policy) == 0 {
		return "", &Error{URL: urlStr, Message: "empty navigation policy"}
	}

	errs := []error{ErrNavigationExhausted}
	for i, step := range policy {
		if err := ctx.Err(); err != nil {
			return "", &Error{URL: urlStr, Strategy: step.Strategy, Message: "navigation cancelled", Cause: err}
		}

		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		err := attempt(stepCtx, step.Strategy)
		cancel()

		if err == nil {
			metrics.NavigationAttempts.WithLabelValues(string(step.Strategy), metrics.ResultSuccess).Inc()
			logger.Debug("navigation complete",
				zap.String("url", urlStr),
				zap.String("strategy", string(step.Strategy)),
				zap.Duration("duration", time.Since(start)))
			return step.Strategy, nil
		}

		metrics.NavigationAttempts.WithLabelValues(string(step.Strategy), metrics.ResultFailure).Inc()
		logger.Warn("navigation attempt failed",
			zap.String("url", urlStr),
			zap.String("strategy", string(step.Strategy)),
			zap.Int("attempt", i+1),
			zap.Duration("timeout", step.Timeout),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", step.Strategy, err))
	}

	return "", &Error{
		URL:      urlStr,
		Strategy: policy[len(policy)-1].Strategy,
		Message:  "page did not load",
		Cause:    errors.Join(errs...),
	}
}

// lifecycleSatisfies reports whether a page lifecycle event name is the
// signal the strategy waits for.
func lifecycleSatisfies(strategy NavStrategy, name string) bool {
	switch strategy {
	case StrategyNetworkIdle:
		return name == "networkIdle" || name == "networkAlmostIdle"
	case StrategyDOMContentLoaded:
		return name == "DOMContentLoaded"
	case StrategyCommit:
		return name == "commit" || name == "init"
	}
	return false
}

// navigationComplete decides completion from the two signals: the load event
// (navigate action returned) and the strategy's lifecycle signal.
func navigationComplete(strategy NavStrategy, loaded, signalled bool) bool {
	if strategy == StrategyNetworkIdle {
		return loaded && signalled
	}
	return loaded || signalled
}

// chromeAttempt returns a navAttempt that drives the tab in ctx to urlStr.
func chromeAttempt(urlStr string) navAttempt {
	return func(ctx context.Context, strategy NavStrategy) error {
		c := chromedp.FromContext(ctx)
		if c == nil || c.Target == nil {
			return fmt.Errorf("no browser target in context")
		}
		mainFrame := cdp.FrameID(c.Target.TargetID)

		reached := make(chan struct{})
		var once sync.Once
		signal := func() { once.Do(func() { close(reached) }) }

		listenCtx, stop := context.WithCancel(ctx)
		defer stop()
		chromedp.ListenTarget(listenCtx, func(ev interface{}) {
			switch e := ev.(type) {
			case *page.EventLifecycleEvent:
				if e.FrameID == mainFrame && lifecycleSatisfies(strategy, e.Name) {
					signal()
				}
			case *page.EventFrameNavigated:
				if strategy == StrategyCommit && e.Frame != nil && e.Frame.ParentID == "" {
					signal()
				}
			}
		})

		navDone := make(chan error, 1)
		go func() { navDone <- chromedp.Run(ctx, chromedp.Navigate(urlStr)) }()

		loaded, signalled := false, false
		for {
			select {
			case <-reached:
				signalled = true
				reached = nil
			case err := <-navDone:
				if err != nil {
					return err
				}
				loaded = true
				navDone = nil
			case <-ctx.Done():
				return ctx.Err()
			}
			if navigationComplete(strategy, loaded, signalled) {
				return nil
			}
		}
	}
}
