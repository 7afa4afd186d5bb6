package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/cache"
	"github.com/deusflow/pagepost/internal/config"
	"github.com/deusflow/pagepost/internal/content"
	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/events"
	"github.com/deusflow/pagepost/internal/facebook"
	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/llm"
	"github.com/deusflow/pagepost/internal/logger"
	"github.com/deusflow/pagepost/internal/metrics"
	"github.com/deusflow/pagepost/internal/pipeline"
	"github.com/deusflow/pagepost/internal/ratelimit"
	"github.com/deusflow/pagepost/internal/retry"
	"github.com/deusflow/pagepost/internal/scraper"
	"github.com/deusflow/pagepost/internal/source"
	"github.com/deusflow/pagepost/internal/storage"
	"github.com/deusflow/pagepost/internal/tracker"
)

// New builds a Bot and all its collaborators from cfg. Callers must Close it.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.SugaredLogger) (*Bot, error) {
	log = logger.OrNop(log)
	if m == nil {
		m = metrics.New()
	}
	var closers []func() error
	fail := func(err error) (*Bot, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	client := httpclient.NewRestyClient(cfg.RequestTimeout)
	retryCfg := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}

	fetcher, err := newFetcher(cfg, client, log)
	if err != nil {
		return fail(err)
	}

	pages := cache.New[string](cfg.PageCacheTTL, cfg.PageCacheTTL/2)
	closers = append(closers, func() error { pages.Close(); return nil })
	resolver := content.NewResolver(scraper.New(client, cfg.UserAgent, log), cfg.SourceDomain, pages, log)

	gen, closeGen, err := newGenerator(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if closeGen != nil {
		closers = append(closers, closeGen)
	}
	budget := ratelimit.NewBudget(cfg.MaxLLMRequests, log)
	for provider, n := range cfg.LLMProviderLimits {
		budget.SetLimit(provider, n)
	}
	m.Attach("llm_budget", func() interface{} { return budget.Stats() })
	gen = llm.WithRetry(llm.WithBudget(gen, budget, cfg.LLMProvider), retryCfg)

	topics := make([]domain.Topic, 0, len(cfg.AllowedTopics))
	for _, t := range cfg.AllowedTopics {
		topics = append(topics, domain.ParseTopic(t))
	}

	orchestrator := pipeline.New(pipeline.Deps{
		Classifier:       llm.NewClassifier(gen),
		Writer:           llm.NewWriter(gen, cfg.MaxPostWords),
		Publisher:        facebook.New(client, cfg.GraphAPIURL, cfg.GraphAPIVersion, cfg.PageID, cfg.PageAccessToken, log),
		AllowedTopics:    topics,
		ArticleMaxChars:  cfg.ArticleMaxChars,
		ClassifyMaxChars: cfg.ClassifyMaxChars,
		WriteMaxChars:    cfg.WriteMaxChars,
		Log:              log,
	})

	seen, err := openTracker(ctx, cfg, retryCfg, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, seen.Close)

	emitter, err := newEmitter(ctx, cfg, client, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() error { emitter.Close(); return nil })

	return NewBot(Deps{
		Fetcher:    source.WithRetry(fetcher, retryCfg),
		Resolver:   resolver,
		Processor:  orchestrator,
		Seen:       seen,
		Events:     emitter,
		Metrics:    m,
		Quota:      budget,
		Provider:   cfg.LLMProvider,
		FetchLimit: cfg.FetchLimit,
		MinScore:   cfg.MinScore,
		Interval:   cfg.RunInterval,
		Log:        log,
		closers:    closers,
	}), nil
}

func newFetcher(cfg *config.Config, client httpclient.Client, log *zap.SugaredLogger) (source.Fetcher, error) {
	switch cfg.SourceType {
	case "reddit":
		return source.NewRedditFetcher(client, cfg.SourceURL, cfg.Subreddit, cfg.UserAgent, log), nil
	case "rss":
		return source.NewFeedFetcher(client, cfg.FeedURL, cfg.UserAgent, log), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.SourceType)
	}
}

func newGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, func() error, error) {
	switch cfg.LLMProvider {
	case "gemini":
		g, err := llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case "openai":
		g, err := llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, "")
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// openTracker picks the dedup backend. "memory" keeps ids for the process lifetime only.
func openTracker(ctx context.Context, cfg *config.Config, retryCfg retry.RetryConfig, log *zap.SugaredLogger) (*tracker.Set, error) {
	var (
		store tracker.Store
		err   error
	)
	switch cfg.StateBackend {
	case "", "memory":
		return tracker.New(), nil
	case "file":
		store, err = storage.OpenFileStore(cfg.StatePath, cfg.StateRetention)
	case "bolt":
		store, err = storage.OpenBoltStore(cfg.StatePath, cfg.StateRetention)
	case "postgres":
		var pg *storage.PostgresStore
		pg, err = openPostgres(ctx, cfg, retryCfg, log)
		if err == nil {
			store = pg
		}
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
	if err != nil {
		return nil, err
	}

	seen, err := tracker.Open(ctx, store, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load processed ids: %w", err)
	}
	log.Infow("dedup state opened", "backend", cfg.StateBackend, "ids", seen.Len())
	return seen, nil
}

// openPostgres retries the connection, since the database may still be
// starting. Errors the server returns are not retried.
func openPostgres(ctx context.Context, cfg *config.Config, retryCfg retry.RetryConfig, log *zap.SugaredLogger) (*storage.PostgresStore, error) {
	var pg *storage.PostgresStore
	err := retry.WithRetry(ctx, retryCfg, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var err error
		pg, err = storage.OpenPostgresStore(attemptCtx, cfg.DatabaseURL, cfg.StateRetention)
		if err != nil {
			log.Warnw("postgres not ready", "error", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if n, err := pg.Cleanup(ctx); err != nil {
		log.Warnw("pruning expired ids failed", "error", err)
	} else if n > 0 {
		log.Infow("pruned expired ids", "removed", n)
	}
	return pg, nil
}

// newEmitter returns a nil emitter (a no-op) when no events file is configured.
func newEmitter(ctx context.Context, cfg *config.Config, client httpclient.Client, log *zap.SugaredLogger) (*events.Emitter, error) {
	if cfg.EventsConfigPath == "" {
		return nil, nil
	}
	ecfg, err := events.LoadConfig(cfg.EventsConfigPath)
	if err != nil {
		return nil, err
	}
	sinks, err := events.Build(ctx, ecfg, client, log)
	if err != nil {
		return nil, err
	}
	emitter := events.NewEmitter(sinks, log)
	log.Infow("event sinks ready", "sinks", emitter.Len())
	return emitter, nil
}
