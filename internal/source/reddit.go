package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/logger"
)

// listing is the subset of a subreddit listing we read.
type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
	IsSelf   bool    `json:"is_self"`
	SelfText string  `json:"selftext"`
	URL      string  `json:"url"`
}

// RedditFetcher reads the hot listing of one subreddit.
type RedditFetcher struct {
	client    httpclient.Client
	baseURL   string
	subreddit string
	userAgent string
	log       *zap.SugaredLogger
}

// NewRedditFetcher builds a fetcher for baseURL/r/subreddit/hot.json.
func NewRedditFetcher(client httpclient.Client, baseURL, subreddit, userAgent string, log *zap.SugaredLogger) *RedditFetcher {
	return &RedditFetcher{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		subreddit: subreddit,
		userAgent: userAgent,
		log:       logger.OrNop(log),
	}
}

func (f *RedditFetcher) Fetch(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("fetch limit must be positive, got %d", limit)
	}

	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", f.baseURL, url.PathEscape(f.subreddit), limit)
	f.log.Infow("fetching subreddit", "subreddit", f.subreddit, "limit", limit)

	resp, err := f.client.Get(ctx, endpoint, map[string]string{"User-Agent": f.userAgent})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch r/%s: %w", domain.ErrTransport, f.subreddit, err)
	}
	if err := httpclient.ExpectOK(resp); err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", f.subreddit, err)
	}

	var l listing
	if err := json.Unmarshal(resp.Body(), &l); err != nil {
		return nil, fmt.Errorf("%w: decode r/%s listing: %v", domain.ErrMalformedResponse, f.subreddit, err)
	}

	items := make([]domain.Item, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		p := child.Data
		items = append(items, domain.Item{
			ID:       p.ID,
			Title:    p.Title,
			Score:    int(p.Score),
			IsSelf:   p.IsSelf,
			SelfText: p.SelfText,
			URL:      p.URL,
		})
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
