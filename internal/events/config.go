package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported sink types.
const (
	TypeSQS    = "aws-sqs"
	TypeSNS    = "aws-sns"
	TypePubSub = "gcp-pubsub"
	TypeHTTP   = "http"

	httpDefaultMethod = "POST"
)

// Config is the events file layout.
type Config struct {
	Sinks []SinkConfig `json:"sinks" yaml:"sinks"`
}

// SinkConfig declares one outcome sink.
type SinkConfig struct {
	ID      string        `json:"id" yaml:"id"`
	Type    string        `json:"type" yaml:"type"`
	Enabled *bool         `json:"enabled" yaml:"enabled"`
	SQS     *SQSConfig    `json:"sqs" yaml:"sqs"`
	SNS     *SNSConfig    `json:"sns" yaml:"sns"`
	PubSub  *PubSubConfig `json:"pubsub" yaml:"pubsub"`
	HTTP    *HTTPConfig   `json:"http" yaml:"http"`
}

// AWSCredentials are optional; empty keys fall back to the default AWS chain.
type AWSCredentials struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

type SQSConfig struct {
	QueueURL       string `json:"queue_url" yaml:"queue_url"`
	AWSCredentials `yaml:",inline"`
}

type SNSConfig struct {
	TopicARN       string `json:"topic_arn" yaml:"topic_arn"`
	AWSCredentials `yaml:",inline"`
}

type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

type HTTPConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method" yaml:"method"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// EnabledValue returns the enabled flag, defaulting to true.
func (c SinkConfig) EnabledValue() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoadConfig reads a YAML or JSON events file. ${VAR} references are
// expanded from the environment before decoding.
func LoadConfig(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("events file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	return ParseConfig([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseConfig decodes data as YAML or JSON, picking by ext when given.
func ParseConfig(data []byte, ext string) (*Config, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		ext string
		fn  func([]byte, any) error
	}{
		{".yaml", yaml.Unmarshal},
		{".yml", yaml.Unmarshal},
		{".json", json.Unmarshal},
	}

	var (
		cfg     Config
		decoded bool
	)
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		cfg = Config{}
		if err := d.fn(data, &cfg); err == nil {
			decoded = true
			break
		}
	}
	if !decoded {
		return nil, errors.New("events file format not recognized (expected YAML or JSON)")
	}

	seen := make(map[string]bool, len(cfg.Sinks))
	for i := range cfg.Sinks {
		cfg.Sinks[i] = sanitize(cfg.Sinks[i])
		if err := validate(cfg.Sinks[i]); err != nil {
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		if seen[cfg.Sinks[i].ID] {
			return nil, fmt.Errorf("duplicate sink id %q", cfg.Sinks[i].ID)
		}
		seen[cfg.Sinks[i].ID] = true
	}
	return &cfg, nil
}

// Enabled returns the sinks that are switched on.
func (c *Config) Enabled() []SinkConfig {
	if c == nil {
		return nil
	}
	out := make([]SinkConfig, 0, len(c.Sinks))
	for _, s := range c.Sinks {
		if s.EnabledValue() {
			out = append(out, s)
		}
	}
	return out
}

func sanitize(c SinkConfig) SinkConfig {
	c.ID = strings.TrimSpace(c.ID)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.HTTP != nil {
		h := *c.HTTP
		h.URL = strings.TrimSpace(h.URL)
		h.Method = strings.ToUpper(strings.TrimSpace(h.Method))
		if h.Method == "" {
			h.Method = httpDefaultMethod
		}
		c.HTTP = &h
	}
	return c
}

func validate(c SinkConfig) error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	switch c.Type {
	case TypeSQS:
		if c.SQS == nil || c.SQS.QueueURL == "" {
			return fmt.Errorf("sqs.queue_url is required for sink %q", c.ID)
		}
		if c.SQS.Region == "" {
			return fmt.Errorf("sqs.region is required for sink %q", c.ID)
		}
	case TypeSNS:
		if c.SNS == nil || c.SNS.TopicARN == "" {
			return fmt.Errorf("sns.topic_arn is required for sink %q", c.ID)
		}
		if c.SNS.Region == "" {
			return fmt.Errorf("sns.region is required for sink %q", c.ID)
		}
	case TypePubSub:
		if c.PubSub == nil || c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic are required for sink %q", c.ID)
		}
	case TypeHTTP:
		if c.HTTP == nil || c.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for sink %q", c.ID)
		}
	case "":
		return fmt.Errorf("type is required for sink %q", c.ID)
	default:
		return fmt.Errorf("type %q not supported for sink %q", c.Type, c.ID)
	}
	return nil
}
