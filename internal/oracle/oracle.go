// Package oracle wraps the external natural-language classification service.
// The crawler builds prompts and parses answers; the oracle only completes
// free text. Oracle failures must never abort a crawl: callers apply their
// own fallback policy (fail-open or fail-skip).
package oracle

import "context"

// Oracle answers a single free-text prompt with a free-text completion.
type Oracle interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the Oracle interface; handy in tests.
type Func func(ctx context.Context, prompt string) (string, error)

// Ask calls the wrapped function.
func (f Func) Ask(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
