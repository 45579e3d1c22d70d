package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Chain tries providers in order and returns the first success. A provider
// whose credentials are rejected is benched for the rest of the process;
// other failures only skip it for the current call.
type Chain struct {
	providers []Provider
	logger    *slog.Logger

	mu      sync.Mutex
	benched map[int]error
}

var _ Provider = (*Chain)(nil)

// NewChain creates a chain over providers. At least one is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger is NewChain with a logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
		benched:   make(map[int]error),
	}, nil
}

// Synthesize implements Provider.
func (c *Chain) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	return first(c, ctx, req, func(p Provider) (*AudioResult, error) {
		return p.Synthesize(ctx, req)
	})
}

// Stream implements Provider.
func (c *Chain) Stream(ctx context.Context, req Request) (AudioStream, error) {
	return first(c, ctx, req, func(p Provider) (AudioStream, error) {
		return p.Stream(ctx, req)
	})
}

func first[T any](c *Chain, ctx context.Context, req Request, call func(Provider) (T, error)) (T, error) {
	var zero T
	failed := &ChainError{}
	for i, p := range c.providers {
		if err := c.benchedErr(i); err != nil {
			failed.Errors = append(failed.Errors, err)
			continue
		}
		out, err := call(p)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback speech provider used", "provider", providerName(p, i), "chars", len(req.Text))
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		failed.Errors = append(failed.Errors, err)
		if credentialsRejected(err) {
			c.bench(i, err)
			c.logger.Warn("speech provider disabled", "provider", providerName(p, i), "error", err)
			continue
		}
		c.logger.Warn("speech provider failed, trying next", "provider", providerName(p, i), "error", err)
	}
	return zero, failed
}

func (c *Chain) bench(i int, err error) {
	c.mu.Lock()
	c.benched[i] = err
	c.mu.Unlock()
}

func (c *Chain) benchedErr(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.benched[i]
}

// credentialsRejected reports failures that retrying cannot fix.
func credentialsRejected(err error) bool {
	if errors.Is(err, ErrNoAPIKey) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.IsUnauthorized() || apiErr.StatusCode == 403)
}

func providerName(p Provider, i int) string {
	switch v := p.(type) {
	case *OpenAI:
		return providerOpenAI
	case *ElevenLabs:
		return providerElevenLabs
	case *Mock:
		return "mock"
	case interface{ Name() string }:
		return v.Name()
	}
	return fmt.Sprintf("#%d", i)
}

// Health succeeds when any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return &ChainError{Errors: errs}
}

// Close closes every provider and joins their errors.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the providers in order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError collects the failure of every provider in a chain. It matches
// ErrAllProvidersFailed and every collected error with errors.Is.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%v (%d tried): %s", ErrAllProvidersFailed, len(e.Errors), strings.Join(msgs, "; "))
}

// Is matches ErrAllProvidersFailed.
func (e *ChainError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Unwrap returns every provider error.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
