package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/deusflow/pagepost/internal/domain"
)

const DefaultMaxPostWords = 200

// ErrEmptyOutput is returned when the model produced no usable post text.
var ErrEmptyOutput = errors.New("writer returned empty output")

// Writer drafts a plain-text social post for an article.
type Writer struct {
	gen      Generator
	maxWords int
}

func NewWriter(gen Generator, maxWords int) *Writer {
	if maxWords <= 0 {
		maxWords = DefaultMaxPostWords
	}
	return &Writer{gen: gen, maxWords: maxWords}
}

func (w *Writer) systemPrompt() string {
	return fmt.Sprintf("You are a professional community manager. Write an engaging Facebook post "+
		"based on the provided content. Use a friendly tone and add relevant hashtags. "+
		"Do not use markdown formatting, plain text only. Maximum %d words.", w.maxWords)
}

// Write returns the cleaned draft for text labelled with topic.
func (w *Writer) Write(ctx context.Context, text, topic string) (string, error) {
	prompt := "Article: " + text + "\nTopic: " + topic
	reply, err := w.gen.Generate(ctx, w.systemPrompt(), prompt)
	if errors.Is(err, domain.ErrMalformedResponse) {
		// The generator found no text in the reply.
		return "", fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if err != nil {
		return "", fmt.Errorf("write post: %w", err)
	}

	draft := clampWords(stripMarkdown(reply), w.maxWords)
	if draft == "" {
		return "", ErrEmptyOutput
	}
	return draft, nil
}

var (
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisRe = regexp.MustCompile(`\*\*|__|` + "`")
	bulletRe   = regexp.MustCompile(`(?m)^\s*[*]\s+`)
	linkRe     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)]+)\)`)
	wordRe     = regexp.MustCompile(`\S+`)
)

// stripMarkdown drops the markdown markers models tend to add even when told
// not to. Hashtags survive because a heading marker needs trailing space.
func stripMarkdown(s string) string {
	s = linkRe.ReplaceAllString(s, "$1 ($2)")
	s = headingRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "- ")
	s = emphasisRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// clampWords keeps the first max words, preserving line breaks, and marks the cut.
func clampWords(s string, max int) string {
	locs := wordRe.FindAllStringIndex(s, max+1)
	if len(locs) <= max {
		return s
	}
	return strings.TrimSpace(s[:locs[max-1][1]]) + "..."
}
