// Package pipeline runs one article through classify, gate, write and
// publish, turning every failure into an Outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/deusflow/pagepost/internal/domain"
	"github.com/deusflow/pagepost/internal/facebook"
	"github.com/deusflow/pagepost/internal/llm"
	"github.com/deusflow/pagepost/internal/logger"
)

const (
	DefaultArticleMaxChars  = 3000
	DefaultClassifyMaxChars = 2000
	DefaultWriteMaxChars    = 3000
)

// DefaultAllowedTopics is the publication gate used when none is configured.
var DefaultAllowedTopics = []domain.Topic{domain.TopicAI, domain.TopicWebDev}

type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Topic, error)
}

type Writer interface {
	Write(ctx context.Context, text, topic string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, text, imagePath string) (facebook.Result, error)
}

type Status string

const (
	StatusPublished Status = "published"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

type Stage string

const (
	StageContent  Stage = "content"
	StageClassify Stage = "classify"
	StageGate     Stage = "gate"
	StageWrite    Stage = "write"
	StagePublish  Stage = "publish"
)

const (
	ReasonEmptyContent     = "empty_content"
	ReasonParseError       = "parse_error"
	ReasonTopicNotEligible = "topic_not_eligible"
	ReasonEmptyOutput      = "empty_output"
	ReasonBudgetExhausted  = "budget_exhausted"
)

// Outcome is the result of processing one article.
type Outcome struct {
	Status  Status
	Stage   Stage
	Reason  string
	Topic   domain.Topic
	PostURL string
	Message string
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusPublished:
		return fmt.Sprintf("published (%s): %s", o.Topic, o.PostURL)
	case StatusSkipped:
		return fmt.Sprintf("skipped at %s: %s", o.Stage, o.Reason)
	default:
		return fmt.Sprintf("failed at %s: %s", o.Stage, o.Reason)
	}
}

// Skipped builds a Skipped outcome for stage.
func Skipped(stage Stage, reason string) Outcome {
	return Outcome{Status: StatusSkipped, Stage: stage, Reason: reason}
}

// Failed builds a Failed outcome for stage.
func Failed(stage Stage, reason string) Outcome {
	return Outcome{Status: StatusFailed, Stage: stage, Reason: reason}
}

type Deps struct {
	Classifier Classifier
	Writer     Writer
	Publisher  Publisher

	AllowedTopics    []domain.Topic
	ArticleMaxChars  int
	ClassifyMaxChars int
	WriteMaxChars    int

	Log *zap.SugaredLogger
}

type Orchestrator struct {
	classifier Classifier
	writer     Writer
	publisher  Publisher

	allowed     map[domain.Topic]bool
	articleMax  int
	classifyMax int
	writeMax    int

	log *zap.SugaredLogger
}

func New(d Deps) *Orchestrator {
	topics := d.AllowedTopics
	if len(topics) == 0 {
		topics = DefaultAllowedTopics
	}
	allowed := make(map[domain.Topic]bool, len(topics))
	for _, t := range topics {
		allowed[t] = true
	}

	o := &Orchestrator{
		classifier:  d.Classifier,
		writer:      d.Writer,
		publisher:   d.Publisher,
		allowed:     allowed,
		articleMax:  d.ArticleMaxChars,
		classifyMax: d.ClassifyMaxChars,
		writeMax:    d.WriteMaxChars,
		log:         logger.OrNop(d.Log),
	}
	if o.articleMax <= 0 {
		o.articleMax = DefaultArticleMaxChars
	}
	if o.classifyMax <= 0 {
		o.classifyMax = DefaultClassifyMaxChars
	}
	if o.writeMax <= 0 {
		o.writeMax = DefaultWriteMaxChars
	}
	return o
}

// Process runs the stages in order and stops at the first one that does not
// succeed. It never retries a stage.
func (o *Orchestrator) Process(ctx context.Context, text string) Outcome {
	if n := utf8.RuneCountInString(text); n > o.articleMax {
		o.log.Warnw("article too long, truncating", "chars", n, "max", o.articleMax)
		text = Truncate(text, o.articleMax)
	}

	if err := ctx.Err(); err != nil {
		return Failed(StageClassify, err.Error())
	}
	topic, err := o.classifier.Classify(ctx, Truncate(text, o.classifyMax))
	if err != nil {
		o.log.Warnw("classification failed", "error", err)
		return Failed(StageClassify, reasonFor(err))
	}
	o.log.Infow("article classified", "topic", topic.String())

	if !o.allowed[topic] {
		out := Skipped(StageGate, ReasonTopicNotEligible)
		out.Topic = topic
		return out
	}

	if err := ctx.Err(); err != nil {
		return withTopic(Failed(StageWrite, err.Error()), topic)
	}
	draft, err := o.writer.Write(ctx, Truncate(text, o.writeMax), topic.String())
	if err == nil && strings.TrimSpace(draft) == "" {
		err = llm.ErrEmptyOutput
	}
	if err != nil {
		o.log.Warnw("writing post failed", "topic", topic.String(), "error", err)
		return withTopic(Failed(StageWrite, reasonFor(err)), topic)
	}

	if err := ctx.Err(); err != nil {
		return withTopic(Failed(StagePublish, err.Error()), topic)
	}
	res, err := o.publisher.Publish(ctx, draft, "")
	if err != nil {
		o.log.Errorw("publishing failed", "topic", topic.String(), "error", err)
		return withTopic(Failed(StagePublish, err.Error()), topic)
	}

	o.log.Infow(res.Message(), "post_id", res.PostID)
	return Outcome{
		Status:  StatusPublished,
		Stage:   StagePublish,
		Topic:   topic,
		PostURL: res.URL,
		Message: res.Message(),
	}
}

func withTopic(o Outcome, t domain.Topic) Outcome {
	o.Topic = t
	return o
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrBudgetExhausted):
		return ReasonBudgetExhausted
	case errors.Is(err, domain.ErrMalformedResponse):
		return ReasonParseError
	case errors.Is(err, llm.ErrEmptyOutput):
		return ReasonEmptyOutput
	default:
		return err.Error()
	}
}
