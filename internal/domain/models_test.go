package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTopic(t *testing.T) {
	cases := map[string]Topic{
		"Artificial Intelligence (AI)": TopicAI,
		"  web development ":           TopicWebDev,
		"Application Development":      TopicAppDev,
		"Embedded & IoT Programming":   TopicEmbeddedIoT,
		"AI":                           TopicAI,
		"webdev":                       TopicWebDev,
		"Data Science":                 TopicUnknown,
		"":                             TopicUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseTopic(in), "input %q", in)
	}
}

func TestTopicStringRoundTrip(t *testing.T) {
	for _, topic := range AllTopics {
		assert.Equal(t, topic, ParseTopic(topic.String()))
		assert.Equal(t, topic, ParseTopic(topic.Code()))
	}
	assert.Equal(t, "Unknown", TopicUnknown.String())
}
