package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/logger"
)

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

// ErrNoContent is returned when a page parses but has no readable text.
var ErrNoContent = errors.New("no readable content")

// Extractor turns a page URL into its primary text.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Scraper extracts article text from HTML pages.
type Scraper struct {
	client    httpclient.Client
	userAgent string
	log       *zap.SugaredLogger
}

func New(client httpclient.Client, userAgent string, log *zap.SugaredLogger) *Scraper {
	return &Scraper{client: client, userAgent: userAgent, log: logger.OrNop(log)}
}

// Extract gets the primary text of the page at url.
func (s *Scraper) Extract(ctx context.Context, url string) (string, error) {
	resp, err := s.client.Get(ctx, url, map[string]string{
		"User-Agent": s.userAgent,
		"Accept":     "text/html,application/xhtml+xml",
	})
	if err != nil {
		return "", fmt.Errorf("%w: load page: %w", domain.ErrTransport, err)
	}
	if err := httpclient.ExpectOK(resp); err != nil {
		return "", err
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		s.log.Infow("html body truncated", "url", url, "original", len(body), "kept", maxHTMLBodyBytes)
		body = body[:maxHTMLBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", domain.ErrMalformedResponse, err)
	}

	content := extractContent(doc)
	if content == "" {
		return "", ErrNoContent
	}
	if title := extractTitle(doc); title != "" && !strings.HasPrefix(content, title) {
		content = title + "\n\n" + content
	}
	return content, nil
}

// extractContent tries article-ish selectors first and falls back to the
// whole body text.
func extractContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	selectors := []string{
		"article p",
		".article-body p",
		".article p",
		".post-content p",
		".entry-content p",
		".content p",
		"main p",
		"#content p",
		"p",
	}

	// First selector with 3+ paragraphs wins, otherwise the richest one.
	var best []string
	for _, selector := range selectors {
		var found []string
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := collapseSpaces(s.Text())
			if len(text) > 20 {
				found = append(found, text)
			}
		})
		if len(found) >= 3 {
			best = found
			break
		}
		if len(found) > len(best) {
			best = found
		}
	}
	if len(best) > 0 {
		return strings.Join(best, "\n\n")
	}

	return collapseSpaces(doc.Find("body").Text())
}

func extractTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	for _, selector := range []string{"h1", "title"} {
		if title := collapseSpaces(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
