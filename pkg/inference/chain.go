package inference

import (
	"context"
	"errors"
)

// candidates returns the active provider followed by the configured
// fallbacks, without duplicates and without the mock responder.
func (r *Router) candidates(active Kind) []Kind {
	seen := map[Kind]bool{KindMock: true}
	out := make([]Kind, 0, 1+len(r.fallbacks))
	for _, k := range append([]Kind{active}, r.fallbacks...) {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// walk tries each candidate once, in order. It returns nil and the last
// failure reason when none succeeds. There is no retry or backoff: one
// attempt per provider per call.
func (r *Router) walk(ctx context.Context, active Kind, messages []Message, opts Options) (*Completion, string) {
	var reason string
	for i, k := range r.candidates(active) {
		if ctx.Err() != nil {
			return nil, ctx.Err().Error()
		}

		text, err := r.try(ctx, k, messages, opts)
		if err == nil {
			if i > 0 {
				r.logger.Info("fallback provider succeeded", "provider", k, "active", active)
			}
			return &Completion{
				Text:     text,
				Provider: k,
				Model:    modelFor(r.registry.get(k), opts),
				FellBack: i > 0,
				Reason:   reason,
			}, ""
		}

		reason = err.Error()
		if errors.Is(err, ErrNoAPIKey) {
			r.logger.Info("no valid credential, using mock response", "provider", k)
		} else {
			r.logger.Warn("provider failed, trying next", "provider", k, "error", err)
		}
	}
	return nil, reason
}
