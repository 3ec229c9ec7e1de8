package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Chain tries providers in order until one answers. Rate limiting is the
// only retryable failure and gets bounded exponential backoff; anything
// else skips straight to the next provider. Failure state is scoped to a
// single Extract call, so concurrent enrichment requests never see each
// other's provider failures.
type Chain struct {
	providers  []Provider
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

func NewChain(providers []Provider, maxRetries int, baseDelay, timeout time.Duration, logger *zap.Logger) *Chain {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Chain{
		providers:  providers,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		timeout:    timeout,
		logger:     logger,
	}
}

// ErrAllProvidersFailed signals that every provider in the chain failed;
// callers fall back to deterministic-only output.
var ErrAllProvidersFailed = errors.New("inference: all providers failed")

// Extract runs the batch through the chain and returns the first
// successful result along with the answering provider's name.
func (c *Chain) Extract(ctx context.Context, batch []BatchMessage) (*Result, string, error) {
	if len(c.providers) == 0 {
		return nil, "", ErrAllProvidersFailed
	}

	failed := make(map[string]error, len(c.providers))
	for _, provider := range c.providers {
		result, err := c.extractOne(ctx, provider, batch)
		if err == nil {
			return result, provider.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		failed[provider.Name()] = err
		c.logger.Warn("Inference provider failed, trying next",
			zap.String("provider", provider.Name()),
			zap.Error(err))
	}
	return nil, "", fmt.Errorf("%w: %d providers tried", ErrAllProvidersFailed, len(failed))
}

func (c *Chain) extractOne(ctx context.Context, provider Provider, batch []BatchMessage) (*Result, error) {
	delay := c.baseDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		result, err := provider.Extract(callCtx, batch)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.Info("Inference provider rate limited, backing off",
			zap.String("provider", provider.Name()),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}
