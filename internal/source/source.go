// Package source fetches candidate items from the configured content source.
package source

import (
	"context"
	"errors"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/retry"
)

// Fetcher returns a fresh batch of at most limit items on every call.
// An error means "nothing this cycle", never "nothing ever".
type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]domain.Item, error)
}

type retryingFetcher struct {
	next Fetcher
	cfg  retry.RetryConfig
}

// WithRetry retries transport failures of next according to cfg.
// Malformed responses are returned immediately.
func WithRetry(next Fetcher, cfg retry.RetryConfig) Fetcher {
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool { return errors.Is(err, domain.ErrTransport) }
	}
	return &retryingFetcher{next: next, cfg: cfg}
}

func (r *retryingFetcher) Fetch(ctx context.Context, limit int) ([]domain.Item, error) {
	return retry.Do(ctx, r.cfg, func() ([]domain.Item, error) {
		return r.next.Fetch(ctx, limit)
	})
}
