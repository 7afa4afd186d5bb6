package source

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/logger"
)

// FeedFetcher reads an RSS or Atom feed. Feed entries carry no popularity
// signal, so every item has Score 0; pair it with MIN_SCORE=0.
type FeedFetcher struct {
	client    httpclient.Client
	feedURL   string
	userAgent string
	parser    *gofeed.Parser
	log       *zap.SugaredLogger
}

func NewFeedFetcher(client httpclient.Client, feedURL, userAgent string, log *zap.SugaredLogger) *FeedFetcher {
	return &FeedFetcher{
		client:    client,
		feedURL:   feedURL,
		userAgent: userAgent,
		parser:    gofeed.NewParser(),
		log:       logger.OrNop(log),
	}
}

func (f *FeedFetcher) Fetch(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("fetch limit must be positive, got %d", limit)
	}

	f.log.Infow("fetching feed", "url", f.feedURL, "limit", limit)
	resp, err := f.client.Get(ctx, f.feedURL, map[string]string{"User-Agent": f.userAgent})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch feed %s: %w", domain.ErrTransport, f.feedURL, err)
	}
	if err := httpclient.ExpectOK(resp); err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.feedURL, err)
	}

	feed, err := f.parser.Parse(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed %s: %v", domain.ErrMalformedResponse, f.feedURL, err)
	}

	items := make([]domain.Item, 0, min(len(feed.Items), limit))
	for _, entry := range feed.Items {
		if len(items) == limit {
			break
		}
		if item, ok := itemFromEntry(entry); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func itemFromEntry(entry *gofeed.Item) (domain.Item, bool) {
	link := strings.TrimSpace(entry.Link)
	id := strings.TrimSpace(entry.GUID)
	if id == "" && link != "" {
		id = hashURL(link)
	}
	if id == "" {
		return domain.Item{}, false
	}

	body := strings.TrimSpace(entry.Content)
	if body == "" {
		body = strings.TrimSpace(entry.Description)
	}

	return domain.Item{
		ID:       id,
		Title:    strings.TrimSpace(entry.Title),
		IsSelf:   link == "",
		SelfText: body,
		URL:      link,
	}, true
}

func hashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}
