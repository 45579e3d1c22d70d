package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultCallTimeout bounds one provider call when Options.Timeout is unset.
const DefaultCallTimeout = 30 * time.Second

// ProviderStatus is a descriptor annotated with runtime state.
type ProviderStatus struct {
	Descriptor
	Configured bool `json:"configured"`
	Available  bool `json:"available"`
	Active     bool `json:"active"`
}

// Router selects the active provider and normalizes every call into
// (history, options) -> text, falling back to the mock responder.
type Router struct {
	registry *Registry

	mu     sync.RWMutex
	active Kind

	fallbacks []Kind
	timeout   time.Duration
	logger    *slog.Logger
	fallback  Completer
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithFallbacks sets providers tried, in order, after the active provider
// fails and before the mock responder.
func WithFallbacks(kinds ...Kind) RouterOption {
	return func(r *Router) { r.fallbacks = kinds }
}

// WithCallTimeout sets the default per-call timeout.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l.With("component", "inference.router") }
}

// NewRouter creates a router over reg with the mock provider active.
func NewRouter(reg *Registry, opts ...RouterOption) *Router {
	if reg == nil {
		reg = NewRegistry()
	}
	r := &Router{
		registry: reg,
		active:   KindMock,
		timeout:  DefaultCallTimeout,
		logger:   slog.Default().With("component", "inference.router"),
		fallback: NewMock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetActiveProvider switches to the provider with the given id.
// Unknown or unregistered ids return ErrUnknownProvider and leave the
// active provider unchanged.
func (r *Router) SetActiveProvider(id string) error {
	kind, err := ParseKind(id)
	if err != nil {
		return err
	}
	return r.SetActive(kind)
}

// SetActive switches to kind.
func (r *Router) SetActive(kind Kind) error {
	if !r.registry.Has(kind) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
	}
	r.mu.Lock()
	prev := r.active
	r.active = kind
	r.mu.Unlock()

	if prev != kind {
		r.logger.Info("active provider changed", "from", prev, "to", kind)
	}
	return nil
}

// Active returns the active provider kind.
func (r *Router) Active() Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Providers lists registered providers with their runtime status.
func (r *Router) Providers() []ProviderStatus {
	active := r.Active()
	kinds := r.registry.Kinds()
	out := make([]ProviderStatus, 0, len(kinds))
	for _, k := range kinds {
		e := r.registry.get(k)
		configured := !e.Descriptor.RequiresKey || ValidCredential(e.APIKey)
		out = append(out, ProviderStatus{
			Descriptor: e.Descriptor,
			Configured: configured,
			Available:  configured && e.Completer != nil,
			Active:     k == active,
		})
	}
	return out
}

// GenerateCompletion returns a completion for messages. It only fails when
// ctx is done; every provider failure is absorbed by falling back to the
// mock responder for this call.
func (r *Router) GenerateCompletion(ctx context.Context, messages []Message, opts Options) (Completion, error) {
	start := time.Now()
	active := r.Active()

	// The mock never falls through to configured fallbacks.
	var reason string
	if active != KindMock {
		var c *Completion
		c, reason = r.walk(ctx, active, messages, opts)
		if c != nil {
			c.Latency = time.Since(start)
			return *c, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	text := r.mockComplete(ctx, messages, opts)
	return Completion{
		Text:     text,
		Provider: KindMock,
		Model:    DescriptorFor(KindMock).DefaultModel,
		FellBack: active != KindMock,
		Reason:   reason,
		Latency:  time.Since(start),
	}, nil
}

// try performs one provider call. Any returned error wraps
// ErrProviderUnavailable.
func (r *Router) try(ctx context.Context, kind Kind, messages []Message, opts Options) (string, error) {
	e := r.registry.get(kind)
	if e == nil || e.Completer == nil {
		return "", fmt.Errorf("%w: %s not registered", ErrProviderUnavailable, kind)
	}
	if e.Descriptor.RequiresKey && !ValidCredential(e.APIKey) {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, WrapError(kind.String(), ErrNoAPIKey))
	}
	if e.limiter != nil && !e.limiter.Allow() {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, WrapError(kind.String(), ErrRateLimited))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := e.Completer.Complete(cctx, messages, opts)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, WrapError(kind.String(), err))
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, WrapError(kind.String(), ErrEmptyResponse))
	}
	return text, nil
}

func (r *Router) mockComplete(ctx context.Context, messages []Message, opts Options) string {
	if e := r.registry.get(KindMock); e != nil && e.Completer != nil {
		if text, err := e.Completer.Complete(ctx, messages, opts); err == nil && text != "" {
			return text
		}
	}
	text, _ := r.fallback.Complete(ctx, messages, opts)
	return text
}

func modelFor(e *registered, opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return e.Descriptor.DefaultModel
}
