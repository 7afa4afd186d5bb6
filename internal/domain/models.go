package domain

import (
	"errors"
	"strings"
)

// Item is one candidate pulled from the content source.
type Item struct {
	ID       string
	Title    string
	Score    int
	IsSelf   bool
	SelfText string
	URL      string
}

// Topic is the label assigned to an article by the classifier.
type Topic int

const (
	TopicUnknown Topic = iota
	TopicAI
	TopicWebDev
	TopicAppDev
	TopicEmbeddedIoT
)

var topicLabels = map[Topic]string{
	TopicAI:          "Artificial Intelligence (AI)",
	TopicWebDev:      "Web Development",
	TopicAppDev:      "Application Development",
	TopicEmbeddedIoT: "Embedded & IoT Programming",
}

var topicCodes = map[Topic]string{
	TopicAI:          "AI",
	TopicWebDev:      "WebDev",
	TopicAppDev:      "AppDev",
	TopicEmbeddedIoT: "EmbeddedIoT",
}

// AllTopics lists the recognised labels in prompt order.
var AllTopics = []Topic{TopicWebDev, TopicAppDev, TopicAI, TopicEmbeddedIoT}

// String returns the display label sent to and received from the model.
func (t Topic) String() string {
	if l, ok := topicLabels[t]; ok {
		return l
	}
	return "Unknown"
}

// Code returns the short configuration code (AI, WebDev, ...).
func (t Topic) Code() string {
	if c, ok := topicCodes[t]; ok {
		return c
	}
	return "Unknown"
}

// ParseTopic maps a display label or short code to a Topic.
// Anything it does not recognise is TopicUnknown.
func ParseTopic(raw string) Topic {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TopicUnknown
	}
	for t, l := range topicLabels {
		if strings.EqualFold(s, l) || strings.EqualFold(s, topicCodes[t]) {
			return t
		}
	}
	return TopicUnknown
}

var (
	// ErrTransport marks network and non-2xx HTTP failures.
	ErrTransport = errors.New("transport error")
	// ErrMalformedResponse marks responses that do not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrResourceMissing marks a referenced local file that does not exist.
	ErrResourceMissing = errors.New("resource missing")
	// ErrBudgetExhausted is returned when the daily model-call budget is spent.
	ErrBudgetExhausted = errors.New("model request budget exhausted")
)
