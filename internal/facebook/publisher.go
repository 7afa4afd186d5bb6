// Package facebook publishes posts to a Facebook Page through the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/httpclient"
	"github.com/deusflow/pagepost/internal/logger"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v20.0"

	postLinkPrefix = "https://www.facebook.com/"
)

const (
	StageConfig = "config"
	StageUpload = "upload"
	StagePost   = "post"
)

// Error reports which Graph API step failed.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("facebook %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result describes a published post.
type Result struct {
	PostID    string
	MediaID   string
	URL       string
	WithImage bool
}

// Message is the human-readable success line.
func (r Result) Message() string {
	kind := "text-only"
	if r.WithImage {
		kind = "with image"
	}
	return fmt.Sprintf("POST PUBLISHED SUCCESSFULLY! (%s) Post link: %s", kind, r.URL)
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type graphResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error,omitempty"`
}

type Publisher struct {
	client  httpclient.Client
	baseURL string
	pageID  string
	token   string
	log     *zap.SugaredLogger
}

// New builds a publisher for one page. Empty baseURL or version fall back to
// the public Graph endpoint and v20.0.
func New(client httpclient.Client, baseURL, version, pageID, token string, log *zap.SugaredLogger) *Publisher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultAPIVersion
	}
	return &Publisher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/") + "/" + version,
		pageID:  pageID,
		token:   token,
		log:     logger.OrNop(log),
	}
}

// PublishText posts text with no attachment.
func (p *Publisher) PublishText(ctx context.Context, text string) (Result, error) {
	return p.Publish(ctx, text, "")
}

// Publish posts text to the page feed. When imagePath names an existing
// file it is uploaded first as unpublished media and attached to the post;
// a failed upload aborts before the feed call. A path that does not exist
// is logged and the post goes out text-only.
func (p *Publisher) Publish(ctx context.Context, text, imagePath string) (Result, error) {
	if p.pageID == "" || p.token == "" {
		return Result{}, &Error{Stage: StageConfig, Err: errors.New("page id and access token are required")}
	}

	var mediaID string
	if path := strings.TrimSpace(imagePath); path != "" {
		if _, err := os.Stat(path); err != nil {
			p.log.Warnw("image not found, posting text only", "path", path,
				"error", fmt.Errorf("%w: %v", domain.ErrResourceMissing, err))
		} else {
			p.log.Infow("uploading image", "path", path)
			id, err := p.uploadPhoto(ctx, path)
			if err != nil {
				return Result{}, &Error{Stage: StageUpload, Err: err}
			}
			p.log.Infow("image uploaded", "media_id", id)
			mediaID = id
		}
	}

	postID, err := p.createPost(ctx, text, mediaID)
	if err != nil {
		return Result{}, &Error{Stage: StagePost, Err: err}
	}

	return Result{
		PostID:    postID,
		MediaID:   mediaID,
		URL:       postLinkPrefix + postID,
		WithImage: mediaID != "",
	}, nil
}

func (p *Publisher) uploadPhoto(ctx context.Context, path string) (string, error) {
	url := fmt.Sprintf("%s/%s/photos", p.baseURL, p.pageID)
	resp, err := p.client.PostMultipart(ctx, url, map[string]string{
		"access_token": p.token,
		"published":    "false",
	}, "source", path)
	if err != nil {
		return "", fmt.Errorf("%w: upload photo: %w", domain.ErrTransport, err)
	}
	return decodeID(resp)
}

func (p *Publisher) createPost(ctx context.Context, text, mediaID string) (string, error) {
	form := map[string]string{
		"access_token": p.token,
		"message":      text,
	}
	if mediaID != "" {
		attached, err := json.Marshal(map[string]string{"media_fbid": mediaID})
		if err != nil {
			return "", err
		}
		form["attached_media[0]"] = string(attached)
	}

	url := fmt.Sprintf("%s/%s/feed", p.baseURL, p.pageID)
	resp, err := p.client.PostForm(ctx, url, form)
	if err != nil {
		return "", fmt.Errorf("%w: create post: %w", domain.ErrTransport, err)
	}
	return decodeID(resp)
}

// decodeID requires a 2xx response whose JSON carries a non-empty id.
func decodeID(resp httpclient.Response) (string, error) {
	var gr graphResponse
	decodeErr := json.Unmarshal(resp.Body(), &gr)

	if err := httpclient.ExpectOK(resp); err != nil {
		if decodeErr == nil && gr.Error != nil {
			return "", fmt.Errorf("%w: graph error %d (%s): %s", domain.ErrTransport, gr.Error.Code, gr.Error.Type, gr.Error.Message)
		}
		return "", err
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode graph response: %v", domain.ErrMalformedResponse, decodeErr)
	}
	if gr.ID == "" {
		return "", fmt.Errorf("%w: graph response has no id: %s", domain.ErrMalformedResponse, httpclient.Snippet(resp.Body()))
	}
	return gr.ID, nil
}
