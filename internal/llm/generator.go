// Package llm wraps the language model providers behind a single Generator
// and builds the topic classifier and post writer on top of it.
package llm

import (
	"context"
	"errors"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/ratelimit"
	"github.com/deusflow/pagepost/internal/retry"
)

// Generator sends one system + user prompt pair to a model and returns the text reply.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type retryingGenerator struct {
	next Generator
	cfg  retry.RetryConfig
}

// WithRetry retries transport failures of next. Budget and parse errors are
// returned as is.
func WithRetry(next Generator, cfg retry.RetryConfig) Generator {
	if cfg.Retryable == nil {
		cfg.Retryable = isTransient
	}
	return &retryingGenerator{next: next, cfg: cfg}
}

func (r *retryingGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	return retry.Do(ctx, r.cfg, func() (string, error) {
		return r.next.Generate(ctx, system, prompt)
	})
}

type budgetedGenerator struct {
	next     Generator
	budget   *ratelimit.Budget
	provider string
}

// WithBudget charges every call against budget under the provider name.
// A nil budget returns next unchanged.
func WithBudget(next Generator, budget *ratelimit.Budget, provider string) Generator {
	if budget == nil {
		return next
	}
	return &budgetedGenerator{next: next, budget: budget, provider: provider}
}

func (b *budgetedGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := b.budget.Use(b.provider); err != nil {
		return "", err
	}
	return b.next.Generate(ctx, system, prompt)
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransport)
}
