// Package httpclient is the HTTP transport shared by the source fetchers,
// the page scraper and the Graph API publisher.
package httpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/deusflow/pagepost/internal/domain"
)

// Response is the subset of a response the callers inspect.
type Response interface {
	StatusCode() int
	Body() []byte
}

// Client performs single-attempt HTTP calls. Non-2xx statuses are returned
// as responses, not errors; callers decide with ExpectOK.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	PostForm(ctx context.Context, url string, form map[string]string) (Response, error)
	PostMultipart(ctx context.Context, url string, form map[string]string, fileField, filePath string) (Response, error)
	SendJSON(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error)
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient returns a Client with the given per-request timeout.
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &restyClient{rc: rc}
}

func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *restyClient) PostForm(ctx context.Context, url string, form map[string]string) (Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetFormData(form).
		Post(url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *restyClient) PostMultipart(ctx context.Context, url string, form map[string]string, fileField, filePath string) (Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetFormData(form).
		SetFile(fileField, filePath).
		Post(url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *restyClient) SendJSON(ctx context.Context, method, url string, headers map[string]string, body any) (Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(body).
		Execute(method, url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ExpectOK returns an ErrTransport-wrapped error for any non-2xx response.
func ExpectOK(resp Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	return fmt.Errorf("%w: status %d body: %s", domain.ErrTransport, code, Snippet(resp.Body()))
}

// Snippet returns a trimmed, bounded view of a body for logs and errors.
func Snippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
