package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/events"
	"github.com/deusflow/pagepost/internal/logger"
	"github.com/deusflow/pagepost/internal/metrics"
	"github.com/deusflow/pagepost/internal/pipeline"
	"github.com/deusflow/pagepost/internal/source"
	"github.com/deusflow/pagepost/internal/tracker"
)

// Resolver turns an item into article text. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, item domain.Item) string
}

// Processor runs the classify/write/publish pipeline on article text.
type Processor interface {
	Process(ctx context.Context, text string) pipeline.Outcome
}

// Quota reports whether the model budget has room for another request.
type Quota interface {
	CanUse(provider string) bool
}

const stageItem pipeline.Stage = "item"

// Result pairs an item with what happened to it.
type Result struct {
	Item    domain.Item
	Outcome pipeline.Outcome
}

// Report summarises one cycle.
type Report struct {
	Fetched    int
	Invalid    int
	Duplicates int
	LowScore   int
	Deferred   int // eligible items left unmarked because the model budget is spent
	FetchErr   error
	Results    []Result
}

// Count returns how many processed items ended with status.
func (r Report) Count(status pipeline.Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome.Status == status {
			n++
		}
	}
	return n
}

type Deps struct {
	Fetcher   source.Fetcher
	Resolver  Resolver
	Processor Processor
	Seen      *tracker.Set
	Events    *events.Emitter
	Metrics   *metrics.Metrics
	Quota     Quota
	Provider  string

	FetchLimit int
	MinScore   int
	Interval   time.Duration

	Log *zap.SugaredLogger

	// closers run on Close, in order.
	closers []func() error
}

// Bot is the scan loop: fetch, filter, dedup, resolve and hand each new
// item to the pipeline.
type Bot struct {
	fetcher   source.Fetcher
	resolver  Resolver
	processor Processor
	seen      *tracker.Set
	events    *events.Emitter
	metrics   *metrics.Metrics
	quota     Quota
	provider  string

	limit    int
	minScore int
	interval time.Duration

	log     *zap.SugaredLogger
	closers []func() error
}

func NewBot(d Deps) *Bot {
	b := &Bot{
		fetcher:   d.Fetcher,
		resolver:  d.Resolver,
		processor: d.Processor,
		seen:      d.Seen,
		events:    d.Events,
		metrics:   d.Metrics,
		quota:     d.Quota,
		provider:  d.Provider,
		limit:     d.FetchLimit,
		minScore:  d.MinScore,
		interval:  d.Interval,
		log:       logger.OrNop(d.Log),
		closers:   d.closers,
	}
	if b.seen == nil {
		b.seen = tracker.New()
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	if b.limit <= 0 {
		b.limit = 1
	}
	return b
}

// Seen returns the processed-id set the loop is using.
func (b *Bot) Seen() *tracker.Set { return b.seen }

// RunCycle fetches one batch and processes every new item that clears the
// score threshold. Ids are marked before processing, so an item that fails
// later in the pipeline is not retried. While the model budget is spent,
// eligible items are left unmarked for a later cycle. One item's failure never stops the
// cycle. Once ctx is done no further items are started.
func (b *Bot) RunCycle(ctx context.Context, seen *tracker.Set) (*tracker.Set, Report) {
	start := time.Now()
	defer func() { b.metrics.RecordCycle(time.Since(start)) }()

	var rep Report
	items, err := b.fetcher.Fetch(ctx, b.limit)
	if err != nil {
		b.log.Warnw("fetch failed, nothing to process this cycle", "error", err)
		b.metrics.SetFetchError(err.Error())
		rep.FetchErr = err
		return seen, rep
	}
	b.metrics.SetLastRun()
	b.metrics.AddFetched(len(items))
	rep.Fetched = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			b.log.Infow("stop requested, leaving remaining items for later")
			break
		}

		switch {
		case item.ID == "":
			rep.Invalid++
			continue
		case seen.Seen(item.ID):
			rep.Duplicates++
			b.metrics.IncrementDuplicatesFiltered()
			continue
		case item.Score < b.minScore:
			rep.LowScore++
			b.metrics.IncrementLowScoreFiltered()
			b.log.Debugw("score below threshold", "item_id", item.ID, "score", item.Score, "min", b.minScore)
			continue
		}

		if b.quota != nil && !b.quota.CanUse(b.provider) {
			rep.Deferred++
			b.log.Warnw("llm budget spent, leaving item for a later cycle", "item_id", item.ID, "provider", b.provider)
			continue
		}

		seen.Mark(ctx, item)
		b.log.Infow("processing item", "item_id", item.ID, "title", item.Title, "score", item.Score)

		out := b.processItem(ctx, item)
		b.record(ctx, item, out)
		rep.Results = append(rep.Results, Result{Item: item, Outcome: out})
	}
	return seen, rep
}

func (b *Bot) processItem(ctx context.Context, item domain.Item) (out pipeline.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("item processing panicked", "item_id", item.ID, "panic", r)
			out = pipeline.Failed(stageItem, fmt.Sprintf("panic: %v", r))
		}
	}()

	text := b.resolver.Resolve(ctx, item)
	if strings.TrimSpace(text) == "" {
		return pipeline.Skipped(pipeline.StageContent, pipeline.ReasonEmptyContent)
	}
	return b.processor.Process(ctx, text)
}

func (b *Bot) record(ctx context.Context, item domain.Item, out pipeline.Outcome) {
	switch out.Status {
	case pipeline.StatusPublished:
		b.metrics.RecordPublished(out.PostURL)
		b.log.Infow(out.Message, "item_id", item.ID, "topic", out.Topic.String())
	case pipeline.StatusSkipped:
		b.metrics.IncrementSkipped()
		b.log.Infow("item skipped", "item_id", item.ID, "stage", out.Stage, "reason", out.Reason)
	default:
		b.metrics.RecordFailure(out.Reason)
		b.log.Warnw("item failed", "item_id", item.ID, "stage", out.Stage, "reason", out.Reason)
	}

	evt := events.Event{
		ItemID:     item.ID,
		Title:      item.Title,
		URL:        item.URL,
		Status:     string(out.Status),
		Stage:      string(out.Stage),
		Reason:     out.Reason,
		PostURL:    out.PostURL,
		OccurredAt: time.Now().UTC(),
	}
	if out.Topic != domain.TopicUnknown {
		evt.Topic = out.Topic.String()
	}
	b.events.Emit(ctx, evt)
}

// Run repeats RunCycle every interval until ctx is done. A cycle in
// progress is allowed to finish its current item.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Infow("scan loop started", "interval", b.interval.String(), "limit", b.limit, "min_score", b.minScore)
	for {
		if ctx.Err() != nil {
			break
		}

		var rep Report
		b.seen, rep = b.RunCycle(ctx, b.seen)
		b.log.Infow("cycle finished",
			"fetched", rep.Fetched,
			"duplicates", rep.Duplicates,
			"low_score", rep.LowScore,
			"deferred", rep.Deferred,
			"published", rep.Count(pipeline.StatusPublished),
			"skipped", rep.Count(pipeline.StatusSkipped),
			"failed", rep.Count(pipeline.StatusFailed),
			"tracked_ids", b.seen.Len(),
		)

		timer := time.NewTimer(b.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	b.log.Infow("scan loop stopped")
	return nil
}

// Close releases everything New opened.
func (b *Bot) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
