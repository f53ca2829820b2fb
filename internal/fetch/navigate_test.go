package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastPolicy() NavPolicy {
	return NewNavPolicy(20*time.Millisecond, 30*time.Millisecond, 40*time.Millisecond)
}

func TestNavigate_FirstStrategySucceeds(t *testing.T) {
	var tried []NavStrategy
	attempt := func(_ context.Context, s NavStrategy) error {
		tried = append(tried, s)
		return nil
	}

	got, err := navigate(context.Background(), "https://x.test", fastPolicy(), attempt, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, StrategyNetworkIdle, got)
	assert.Equal(t, []NavStrategy{StrategyNetworkIdle}, tried)
}

func TestNavigate_EscalatesInOrder(t *testing.T) {
	var tried []NavStrategy
	attempt := func(ctx context.Context, s NavStrategy) error {
		tried = append(tried, s)
		if s == StrategyCommit {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}

	got, err := navigate(context.Background(), "https://x.test", fastPolicy(), attempt, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, StrategyCommit, got)
	assert.Equal(t, []NavStrategy{StrategyNetworkIdle, StrategyDOMContentLoaded, StrategyCommit}, tried)
}

func TestNavigate_EachStepGetsItsOwnBudget(t *testing.T) {
	budgets := map[NavStrategy]time.Duration{}
	attempt := func(ctx context.Context, s NavStrategy) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		budgets[s] = time.Until(deadline)
		return errors.New("fail")
	}

	policy := NewNavPolicy(time.Second, 2*time.Second, 3*time.Second)
	_, err := navigate(context.Background(), "https://x.test", policy, attempt, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Greater(t, budgets[StrategyDOMContentLoaded], budgets[StrategyNetworkIdle])
	assert.Greater(t, budgets[StrategyCommit], budgets[StrategyDOMContentLoaded])
}

func TestNavigate_Exhausted(t *testing.T) {
	attempt := func(_ context.Context, s NavStrategy) error {
		return errors.New(string(s) + " timed out")
	}

	_, err := navigate(context.Background(), "https://x.test", fastPolicy(), attempt, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNavigationExhausted))

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "https://x.test", fetchErr.URL)
	assert.Equal(t, StrategyCommit, fetchErr.Strategy)
	assert.Contains(t, err.Error(), "network-idle timed out")
	assert.Contains(t, err.Error(), "commit timed out")
}

func TestNavigate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	attempt := func(_ context.Context, _ NavStrategy) error {
		calls++
		cancel()
		return context.Canceled
	}

	_, err := navigate(ctx, "https://x.test", fastPolicy(), attempt, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrNavigationExhausted))
}

func TestNavigate_EmptyPolicy(t *testing.T) {
	_, err := navigate(context.Background(), "https://x.test", nil, nil, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty navigation policy")
}

func TestLifecycleSatisfies(t *testing.T) {
	tests := []struct {
		strategy NavStrategy
		name     string
		want     bool
	}{
		{StrategyNetworkIdle, "networkIdle", true},
		{StrategyNetworkIdle, "networkAlmostIdle", true},
		{StrategyNetworkIdle, "load", false},
		{StrategyDOMContentLoaded, "DOMContentLoaded", true},
		{StrategyDOMContentLoaded, "networkIdle", false},
		{StrategyCommit, "commit", true},
		{StrategyCommit, "init", true},
		{StrategyCommit, "load", false},
		{NavStrategy("other"), "load", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy)+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lifecycleSatisfies(tt.strategy, tt.name))
		})
	}
}

func TestNavigationComplete(t *testing.T) {
	assert.False(t, navigationComplete(StrategyNetworkIdle, true, false))
	assert.False(t, navigationComplete(StrategyNetworkIdle, false, true))
	assert.True(t, navigationComplete(StrategyNetworkIdle, true, true))

	assert.True(t, navigationComplete(StrategyDOMContentLoaded, false, true))
	assert.True(t, navigationComplete(StrategyDOMContentLoaded, true, false))
	assert.True(t, navigationComplete(StrategyCommit, false, true))
	assert.False(t, navigationComplete(StrategyCommit, false, false))
}

func TestDefaultNavPolicy_Escalates(t *testing.T) {
	policy := DefaultNavPolicy()
	require.Len(t, policy, 3)
	assert.Equal(t, StrategyNetworkIdle, policy[0].Strategy)
	assert.Equal(t, StrategyDOMContentLoaded, policy[1].Strategy)
	assert.Equal(t, StrategyCommit, policy[2].Strategy)
	for i := 1; i < len(policy); i++ {
		assert.Greater(t, policy[i].Timeout, policy[i-1].Timeout)
	}
}
