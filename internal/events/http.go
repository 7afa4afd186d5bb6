package events

import (
	"context"
	"fmt"

	"github.com/deusflow/pagepost/internal/httpclient"
)

// httpSink posts the event as JSON to a webhook.
type httpSink struct {
	id     string
	cfg    HTTPConfig
	client httpclient.Client
}

func newHTTPSink(id string, cfg *HTTPConfig, client httpclient.Client) Sink {
	return &httpSink{id: id, cfg: *cfg, client: client}
}

func (s *httpSink) ID() string { return s.id }

func (s *httpSink) Send(ctx context.Context, evt Event) error {
	resp, err := s.client.SendJSON(ctx, s.cfg.Method, s.cfg.URL, s.cfg.Headers, evt)
	if err != nil {
		return fmt.Errorf("send event to %s: %w", s.cfg.URL, err)
	}
	return httpclient.ExpectOK(resp)
}
