package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	name  string
	errs  []error
	calls int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Extract(ctx context.Context, batch []BatchMessage) (*Result, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	return &Result{Decisions: []Decision{{Title: "from " + p.name, Evidence: []int{0}}}}, nil
}

func TestChainFirstProviderWins(t *testing.T) {
	a := &scriptedProvider{name: "a"}
	b := &scriptedProvider{name: "b"}
	chain := NewChain([]Provider{a, b}, 0, time.Millisecond, 0, zap.NewNop())

	result, provider, err := chain.Extract(context.Background(), []BatchMessage{{Ref: 0}})
	require.NoError(t, err)
	assert.Equal(t, "a", provider)
	assert.Equal(t, "from a", result.Decisions[0].Title)
	assert.Zero(t, b.calls)
}

func TestChainFallsBackOnHardError(t *testing.T) {
	a := &scriptedProvider{name: "a", errs: []error{errors.New("boom")}}
	b := &scriptedProvider{name: "b"}
	chain := NewChain([]Provider{a, b}, 3, time.Millisecond, 0, zap.NewNop())

	_, provider, err := chain.Extract(context.Background(), []BatchMessage{{Ref: 0}})
	require.NoError(t, err)
	assert.Equal(t, "b", provider)
	// Hard errors are not retried.
	assert.Equal(t, 1, a.calls)
}

func TestChainRetriesRateLimitsWithBackoff(t *testing.T) {
	a := &scriptedProvider{name: "a", errs: []error{ErrRateLimited, ErrRateLimited, nil}}
	chain := NewChain([]Provider{a}, 2, time.Millisecond, 0, zap.NewNop())

	_, provider, err := chain.Extract(context.Background(), []BatchMessage{{Ref: 0}})
	require.NoError(t, err)
	assert.Equal(t, "a", provider)
	assert.Equal(t, 3, a.calls)
}

func TestChainExhaustsRateLimitRetries(t *testing.T) {
	a := &scriptedProvider{name: "a", errs: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited}}
	chain := NewChain([]Provider{a}, 2, time.Millisecond, 0, zap.NewNop())

	_, _, err := chain.Extract(context.Background(), []BatchMessage{{Ref: 0}})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Equal(t, 3, a.calls)
}

func TestChainAllProvidersFailed(t *testing.T) {
	a := &scriptedProvider{name: "a", errs: []error{errors.New("boom")}}
	b := &scriptedProvider{name: "b", errs: []error{errors.New("also boom")}}
	chain := NewChain([]Provider{a, b}, 0, time.Millisecond, 0, zap.NewNop())

	_, _, err := chain.Extract(context.Background(), []BatchMessage{{Ref: 0}})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain(nil, 0, 0, 0, zap.NewNop())
	_, _, err := chain.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}
