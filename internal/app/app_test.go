package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/deusflow/pagepost/internal/content"
	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/events"
	"github.com/deusflow/pagepost/internal/facebook"
	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/llm"
	"github.com/deusflow/pagepost/internal/metrics"
	"github.com/deusflow/pagepost/internal/pipeline"
	"github.com/deusflow/pagepost/internal/ratelimit"
	"github.com/deusflow/pagepost/internal/source"
	"github.com/deusflow/pagepost/internal/tracker"
)

type staticFetcher struct {
	mu    sync.Mutex
	items []domain.Item
	err   error
	calls int
}

func (f *staticFetcher) Fetch(ctx context.Context, limit int) ([]domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func (f *staticFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type echoResolver struct{}

func (echoResolver) Resolve(ctx context.Context, item domain.Item) string { return item.SelfText }

type recordingProcessor struct {
	texts []string
	out   pipeline.Outcome
	panic bool
}

func (p *recordingProcessor) Process(ctx context.Context, text string) pipeline.Outcome {
	p.texts = append(p.texts, text)
	if p.panic {
		panic("boom")
	}
	return p.out
}

type recordingSink struct {
	sent []events.Event
}

func (r *recordingSink) ID() string { return "rec" }
func (r *recordingSink) Send(ctx context.Context, evt events.Event) error {
	r.sent = append(r.sent, evt)
	return nil
}

func published() pipeline.Outcome {
	return pipeline.Outcome{Status: pipeline.StatusPublished, Stage: pipeline.StagePublish, PostURL: "https://www.facebook.com/1"}
}

func TestRunCycle_ScoreFilter(t *testing.T) {
	fetcher := &staticFetcher{items: []domain.Item{
		{ID: "low", Score: 99, IsSelf: true, SelfText: "x"},
		{ID: "edge", Score: 100, IsSelf: true, SelfText: "y"},
	}}
	proc := &recordingProcessor{out: published()}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 10, MinScore: 100})

	seen, rep := bot.RunCycle(context.Background(), tracker.New())
	assert.Equal(t, []string{"y"}, proc.texts)
	assert.Equal(t, 1, rep.LowScore)
	assert.False(t, seen.Seen("low"), "low score items are not marked")
	assert.True(t, seen.Seen("edge"))
}

func TestRunCycle_DedupAcrossCycles(t *testing.T) {
	fetcher := &staticFetcher{items: []domain.Item{{ID: "abc", Score: 500, IsSelf: true, SelfText: "text"}}}
	proc := &recordingProcessor{out: pipeline.Failed(pipeline.StageWrite, "empty_output")}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 1, MinScore: 100})

	seen, rep := bot.RunCycle(context.Background(), tracker.New())
	assert.Equal(t, 1, rep.Count(pipeline.StatusFailed))

	seen, rep = bot.RunCycle(context.Background(), seen)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Len(t, proc.texts, 1, "a failed item is not retried")
	assert.Equal(t, []string{"abc"}, seen.IDs())
}

func TestRunCycle_SkipsItemsWithoutID(t *testing.T) {
	fetcher := &staticFetcher{items: []domain.Item{{ID: "", Score: 500, IsSelf: true, SelfText: "x"}}}
	proc := &recordingProcessor{out: published()}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 1})

	seen, rep := bot.RunCycle(context.Background(), tracker.New())
	assert.Equal(t, 1, rep.Invalid)
	assert.Empty(t, proc.texts)
	assert.Equal(t, 0, seen.Len())
}

func TestRunCycle_EmptyContentIsSkipped(t *testing.T) {
	fetcher := &staticFetcher{items: []domain.Item{{ID: "e", Score: 500, IsSelf: true, SelfText: "  "}}}
	proc := &recordingProcessor{out: published()}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 1})

	_, rep := bot.RunCycle(context.Background(), tracker.New())
	require.Len(t, rep.Results, 1)
	assert.Equal(t, pipeline.Skipped(pipeline.StageContent, pipeline.ReasonEmptyContent), rep.Results[0].Outcome)
	assert.Empty(t, proc.texts)
}

func TestRunCycle_FetchErrorIsEmptyCycle(t *testing.T) {
	m := metrics.New()
	fetcher := &staticFetcher{err: domain.ErrTransport}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: &recordingProcessor{}, Metrics: m})

	seen := tracker.New()
	got, rep := bot.RunCycle(context.Background(), seen)
	assert.Same(t, seen, got)
	assert.ErrorIs(t, rep.FetchErr, domain.ErrTransport)
	assert.False(t, m.Healthy())
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	fetcher := &staticFetcher{items: []domain.Item{
		{ID: "p1", Score: 500, IsSelf: true, SelfText: "a"},
		{ID: "p2", Score: 500, IsSelf: true, SelfText: "b"},
	}}
	proc := &recordingProcessor{panic: true}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 2})

	_, rep := bot.RunCycle(context.Background(), tracker.New())
	require.Len(t, rep.Results, 2)
	assert.Equal(t, pipeline.StatusFailed, rep.Results[0].Outcome.Status)
	assert.Contains(t, rep.Results[1].Outcome.Reason, "panic")
}

func TestRunCycle_EmitsEvents(t *testing.T) {
	sink := &recordingSink{}
	fetcher := &staticFetcher{items: []domain.Item{{ID: "ev", Title: "T", Score: 500, IsSelf: true, SelfText: "a"}}}
	proc := &recordingProcessor{out: published()}
	bot := NewBot(Deps{
		Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 1,
		Events: events.NewEmitter([]events.Sink{sink}, nil),
	})

	bot.RunCycle(context.Background(), tracker.New())
	require.Len(t, sink.sent, 1)
	assert.Equal(t, "ev", sink.sent[0].ItemID)
	assert.Equal(t, "published", sink.sent[0].Status)
	assert.Equal(t, "https://www.facebook.com/1", sink.sent[0].PostURL)
}

func TestRunCycle_SpentBudgetLeavesItemsUnmarked(t *testing.T) {
	budget := ratelimit.NewBudget(0, nil)
	budget.SetLimit("gemini", 1)
	require.NoError(t, budget.Use("gemini"))

	fetcher := &staticFetcher{items: []domain.Item{{ID: "later", Score: 500, IsSelf: true, SelfText: "a"}}}
	proc := &recordingProcessor{out: published()}
	bot := NewBot(Deps{
		Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 1,
		Quota: budget, Provider: "gemini",
	})

	seen, rep := bot.RunCycle(context.Background(), tracker.New())
	assert.Equal(t, 1, rep.Deferred)
	assert.Empty(t, proc.texts)
	assert.False(t, seen.Seen("later"), "deferred items are picked up once the budget resets")

	bot = NewBot(Deps{
		Fetcher: fetcher, Resolver: echoResolver{}, Processor: proc, FetchLimit: 1,
		Quota: budget, Provider: "openai",
	})
	seen, rep = bot.RunCycle(context.Background(), seen)
	assert.Equal(t, 0, rep.Deferred)
	assert.True(t, seen.Seen("later"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreInitGoroutines...)

	fetcher := &staticFetcher{}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: &recordingProcessor{}, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool { return fetcher.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, fetcher.Calls(), "no cycle starts after cancel")
}

// The Pub/Sub client pulls in opencensus, which starts a view worker at init.
var ignoreInitGoroutines = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

type genFunc func(ctx context.Context, system, prompt string) (string, error)

func (f genFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// End to end: reddit listing -> resolver -> classifier -> writer -> Graph API.
func TestEndToEnd_PublishesEligibleItem(t *testing.T) {
	reddit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"children":[{"data":{"id":"abc","title":"AI is here","score":150,"is_self":true,"selftext":"AI news body","url":"https://www.reddit.com/r/x/comments/abc/"}}]}}`))
	}))
	defer reddit.Close()

	var feedCalls int
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v20.0/PAGE/feed", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "Draft about AI #AI", r.PostForm.Get("message"))
		feedCalls++
		_, _ = w.Write([]byte(`{"id":"999"}`))
	}))
	defer graph.Close()

	var writerPrompt string
	gen := genFunc(func(ctx context.Context, system, prompt string) (string, error) {
		if strings.Contains(system, "Classify") {
			return `{"topic": "Artificial Intelligence (AI)"}`, nil
		}
		writerPrompt = prompt
		return "Draft about AI #AI", nil
	})

	client := httpclient.NewRestyClient(5 * time.Second)
	orchestrator := pipeline.New(pipeline.Deps{
		Classifier: llm.NewClassifier(gen),
		Writer:     llm.NewWriter(gen, 200),
		Publisher:  facebook.New(client, graph.URL, "v20.0", "PAGE", "token", nil),
	})
	bot := NewBot(Deps{
		Fetcher:    source.NewRedditFetcher(client, reddit.URL, "x", "ua", nil),
		Resolver:   content.NewResolver(nil, "reddit.com", nil, nil),
		Processor:  orchestrator,
		FetchLimit: 1,
		MinScore:   100,
	})

	seen, rep := bot.RunCycle(context.Background(), tracker.New())
	require.Len(t, rep.Results, 1)
	out := rep.Results[0].Outcome
	assert.Equal(t, pipeline.StatusPublished, out.Status, out.String())
	assert.Contains(t, out.Message, "/999")
	assert.Equal(t, "POST PUBLISHED SUCCESSFULLY! (text-only) Post link: https://www.facebook.com/999", out.Message)
	assert.Equal(t, domain.TopicAI, out.Topic)
	assert.Equal(t, "Article: AI news body\nTopic: Artificial Intelligence (AI)", writerPrompt)
	assert.Equal(t, 1, feedCalls)
	assert.True(t, seen.Seen("abc"))

	_, rep = bot.RunCycle(context.Background(), seen)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, 1, feedCalls, "the same item is never published twice")
}

func TestEndToEnd_IneligibleTopicNeverPublishes(t *testing.T) {
	gen := genFunc(func(ctx context.Context, system, prompt string) (string, error) {
		if strings.Contains(system, "Classify") {
			return `{"topic": "Embedded & IoT Programming"}`, nil
		}
		return "", errors.New("writer must not be called")
	})
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected Graph call %s", r.URL.Path)
	}))
	defer graph.Close()

	orchestrator := pipeline.New(pipeline.Deps{
		Classifier: llm.NewClassifier(gen),
		Writer:     llm.NewWriter(gen, 200),
		Publisher:  facebook.New(httpclient.NewRestyClient(time.Second), graph.URL, "", "PAGE", "token", nil),
	})
	fetcher := &staticFetcher{items: []domain.Item{{ID: "iot", Score: 300, IsSelf: true, SelfText: "Arduino tips"}}}
	bot := NewBot(Deps{Fetcher: fetcher, Resolver: echoResolver{}, Processor: orchestrator, FetchLimit: 1})

	_, rep := bot.RunCycle(context.Background(), tracker.New())
	require.Len(t, rep.Results, 1)
	assert.Equal(t, pipeline.StatusSkipped, rep.Results[0].Outcome.Status)
	assert.Equal(t, pipeline.ReasonTopicNotEligible, rep.Results[0].Outcome.Reason)
}
