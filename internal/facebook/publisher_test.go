package facebook

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/httpclient"
)

type graphCall struct {
	path string
	form map[string]string
	file []byte
}

// fakeGraph records calls in order and answers from a per-path table.
type fakeGraph struct {
	mu      sync.Mutex
	calls   []graphCall
	replies map[string]reply
}

type reply struct {
	status int
	body   string
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := graphCall{path: r.URL.Path, form: map[string]string{}}
	if err := r.ParseMultipartForm(1 << 20); err == nil {
		if f, _, err := r.FormFile("source"); err == nil {
			c.file, _ = io.ReadAll(f)
			f.Close()
		}
	} else {
		_ = r.ParseForm()
	}
	for k := range r.PostForm {
		c.form[k] = r.PostForm.Get(k)
	}

	g.mu.Lock()
	g.calls = append(g.calls, c)
	rep, ok := g.replies[r.URL.Path]
	g.mu.Unlock()

	if !ok {
		rep = reply{status: http.StatusNotFound, body: `{"error":{"message":"unknown path"}}`}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_, _ = w.Write([]byte(rep.body))
}

func (g *fakeGraph) paths() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	for i, c := range g.calls {
		out[i] = c.path
	}
	return out
}

func newPublisher(t *testing.T, g *fakeGraph) *Publisher {
	ts := httptest.NewServer(g)
	t.Cleanup(ts.Close)
	return New(httpclient.NewRestyClient(5*time.Second), ts.URL, "", "PAGE1", "tok", nil)
}

func writeImage(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return path
}

func TestPublish_TextOnly(t *testing.T) {
	g := &fakeGraph{replies: map[string]reply{
		"/v20.0/PAGE1/feed": {http.StatusOK, `{"id":"PAGE1_999"}`},
	}}
	p := newPublisher(t, g)

	res, err := p.PublishText(context.Background(), "hello page")
	require.NoError(t, err)
	assert.Equal(t, "PAGE1_999", res.PostID)
	assert.Equal(t, "https://www.facebook.com/PAGE1_999", res.URL)
	assert.False(t, res.WithImage)
	assert.Equal(t, "POST PUBLISHED SUCCESSFULLY! (text-only) Post link: https://www.facebook.com/PAGE1_999", res.Message())

	require.Len(t, g.calls, 1)
	assert.Equal(t, "hello page", g.calls[0].form["message"])
	assert.Equal(t, "tok", g.calls[0].form["access_token"])
	assert.NotContains(t, g.calls[0].form, "attached_media[0]")
}

func TestPublish_WithImage(t *testing.T) {
	g := &fakeGraph{replies: map[string]reply{
		"/v20.0/PAGE1/photos": {http.StatusOK, `{"id":"PID123"}`},
		"/v20.0/PAGE1/feed":   {http.StatusOK, `{"id":"PAGE1_1"}`},
	}}
	p := newPublisher(t, g)

	res, err := p.Publish(context.Background(), "with a picture", writeImage(t))
	require.NoError(t, err)
	assert.True(t, res.WithImage)
	assert.Equal(t, "PID123", res.MediaID)
	assert.Contains(t, res.Message(), "(with image)")

	assert.Equal(t, []string{"/v20.0/PAGE1/photos", "/v20.0/PAGE1/feed"}, g.paths())
	upload := g.calls[0]
	assert.Equal(t, "false", upload.form["published"])
	assert.Equal(t, "tok", upload.form["access_token"])
	assert.Equal(t, []byte("png-bytes"), upload.file)
	assert.JSONEq(t, `{"media_fbid":"PID123"}`, g.calls[1].form["attached_media[0]"])
}

func TestPublish_UploadFailureSkipsPost(t *testing.T) {
	g := &fakeGraph{replies: map[string]reply{
		"/v20.0/PAGE1/photos": {http.StatusBadRequest, `{"error":{"message":"Invalid image","type":"OAuthException","code":324}}`},
		"/v20.0/PAGE1/feed":   {http.StatusOK, `{"id":"PAGE1_1"}`},
	}}
	p := newPublisher(t, g)

	_, err := p.Publish(context.Background(), "text", writeImage(t))
	require.Error(t, err)

	var fbErr *Error
	require.True(t, errors.As(err, &fbErr))
	assert.Equal(t, StageUpload, fbErr.Stage)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "Invalid image")
	assert.Equal(t, []string{"/v20.0/PAGE1/photos"}, g.paths(), "feed must not be called")
}

func TestPublish_UploadWithoutIDSkipsPost(t *testing.T) {
	g := &fakeGraph{replies: map[string]reply{
		"/v20.0/PAGE1/photos": {http.StatusOK, `{"success":true}`},
	}}
	p := newPublisher(t, g)

	_, err := p.Publish(context.Background(), "text", writeImage(t))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Len(t, g.calls, 1)
}

func TestPublish_FeedWithoutID(t *testing.T) {
	g := &fakeGraph{replies: map[string]reply{
		"/v20.0/PAGE1/feed": {http.StatusOK, `{}`},
	}}
	p := newPublisher(t, g)

	_, err := p.PublishText(context.Background(), "text")
	var fbErr *Error
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, StagePost, fbErr.Stage)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestPublish_MissingImageFallsBackToText(t *testing.T) {
	g := &fakeGraph{replies: map[string]reply{
		"/v20.0/PAGE1/feed": {http.StatusOK, `{"id":"PAGE1_2"}`},
	}}
	p := newPublisher(t, g)

	res, err := p.Publish(context.Background(), "text", filepath.Join(t.TempDir(), "nope.png"))
	require.NoError(t, err)
	assert.False(t, res.WithImage)
	assert.Equal(t, []string{"/v20.0/PAGE1/feed"}, g.paths())
}

func TestPublish_MissingCredentials(t *testing.T) {
	g := &fakeGraph{}
	ts := httptest.NewServer(g)
	defer ts.Close()

	p := New(httpclient.NewRestyClient(time.Second), ts.URL, "v20.0", "", "tok", nil)
	_, err := p.PublishText(context.Background(), "text")

	var fbErr *Error
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, StageConfig, fbErr.Stage)
	assert.Empty(t, g.paths())
}

func TestSaveBase64Image(t *testing.T) {
	nowFunc = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }
	defer func() { nowFunc = time.Now }()

	dir := t.TempDir()
	payload := []byte{0x89, 'P', 'N', 'G'}

	path, err := SaveBase64Image("data:image/png;base64,"+base64.StdEncoding.EncodeToString(payload), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "image_20260504_030201.png"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = SaveBase64Image("not base64!!", dir)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}
