package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deusflow/pagepost/internal/domain"
)

// Classifier assigns one of the known topic labels to an article.
type Classifier struct {
	gen Generator
}

func NewClassifier(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

func classifySystemPrompt() string {
	labels := make([]string, len(domain.AllTopics))
	for i, t := range domain.AllTopics {
		labels[i] = "'" + t.String() + "'"
	}
	return "You are an expert content analyst. Classify the provided article into exactly one of these topics: " +
		strings.Join(labels, ", ") + ". " +
		`Reply with a single JSON object of the form {"topic": "<topic>"} and nothing else.`
}

// Classify returns the topic of text. An unrecognised label is TopicUnknown
// with a nil error; a reply that is not the expected JSON wraps
// domain.ErrMalformedResponse.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Topic, error) {
	reply, err := c.gen.Generate(ctx, classifySystemPrompt(), text)
	if err != nil {
		return domain.TopicUnknown, fmt.Errorf("classify: %w", err)
	}
	return parseTopic(reply)
}

type topicReply struct {
	Topic string `json:"topic"`
}

func parseTopic(reply string) (domain.Topic, error) {
	body := stripCodeFence(reply)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return domain.TopicUnknown, fmt.Errorf("%w: classifier reply is not JSON: %q", domain.ErrMalformedResponse, clip(reply, 200))
	}

	var r topicReply
	if err := json.Unmarshal([]byte(body[start:end+1]), &r); err != nil {
		return domain.TopicUnknown, fmt.Errorf("%w: decode classifier reply: %v", domain.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(r.Topic) == "" {
		return domain.TopicUnknown, fmt.Errorf("%w: classifier reply has no topic", domain.ErrMalformedResponse)
	}
	return domain.ParseTopic(r.Topic), nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
