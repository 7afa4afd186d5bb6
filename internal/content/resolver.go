// Package content turns a candidate item into the article text fed to the pipeline.
package content

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/cache"
	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/logger"
	"github.com/deusflow/pagepost/internal/scraper"
)

// articleMarkers is the cheap "looks like an article page" heuristic.
var articleMarkers = []string{".html", ".com", ".net", ".org", ".vn"}

// Resolver never fails: when no real body is available it returns stub
// text built from the item title.
type Resolver struct {
	extractor    scraper.Extractor
	sourceDomain string
	pages        *cache.Cache[string]
	log          *zap.SugaredLogger
}

// NewResolver builds a resolver. sourceDomain is the content source's own
// domain; links back into it are never scraped. pages may be nil.
func NewResolver(extractor scraper.Extractor, sourceDomain string, pages *cache.Cache[string], log *zap.SugaredLogger) *Resolver {
	return &Resolver{
		extractor:    extractor,
		sourceDomain: strings.ToLower(strings.TrimSpace(sourceDomain)),
		pages:        pages,
		log:          logger.OrNop(log),
	}
}

func (r *Resolver) Resolve(ctx context.Context, item domain.Item) string {
	if item.IsSelf {
		return item.SelfText
	}

	if r.IsExternalArticle(item.URL) {
		r.log.Infow("scraping external link", "item_id", item.ID, "url", item.URL)
		text, err := r.extract(ctx, item.URL)
		if err != nil {
			r.log.Warnw("could not fetch content from link", "item_id", item.ID, "url", item.URL, "error", err)
			return LinkFailedStub(item.Title)
		}
		return text
	}

	return MediaStub(item.Title)
}

// IsExternalArticle reports whether url looks like an article page outside the source domain.
func (r *Resolver) IsExternalArticle(url string) bool {
	if url == "" {
		return false
	}
	lower := strings.ToLower(url)
	if r.sourceDomain != "" && strings.Contains(lower, r.sourceDomain) {
		return false
	}
	for _, m := range articleMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (r *Resolver) extract(ctx context.Context, url string) (string, error) {
	if r.pages != nil {
		if text, ok := r.pages.Get(url); ok {
			return text, nil
		}
	}
	text, err := r.extractor.Extract(ctx, url)
	if err != nil {
		return "", err
	}
	if r.pages != nil {
		r.pages.Set(url, text)
	}
	return text, nil
}

// LinkFailedStub is used when an external article could not be extracted.
func LinkFailedStub(title string) string {
	return "Could not fetch content from the link. The title is: " + title
}

// MediaStub asks the writer to work from the title alone.
func MediaStub(title string) string {
	return `The post content is media (image/video). Write an article based on the following title: "` + title + `"`
}
