package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// snsClient is the subset of the SNS client the sink uses.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// sqsClient is the subset of the SQS client the sink uses.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func loadAWSConfig(ctx context.Context, c AWSCredentials) (aws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(c.Region)}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

type snsSink struct {
	id       string
	topicARN string
	client   snsClient
}

func newSNSSink(ctx context.Context, id string, cfg *SNSConfig) (Sink, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWSCredentials)
	if err != nil {
		return nil, err
	}
	return &snsSink{id: id, topicARN: cfg.TopicARN, client: sns.NewFromConfig(awsCfg)}, nil
}

func (s *snsSink) ID() string { return s.id }

func (s *snsSink) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(evt.Status)},
		},
	})
	if err != nil {
		return fmt.Errorf("send message to sns: %w", err)
	}
	return nil
}

type sqsSink struct {
	id       string
	queueURL string
	client   sqsClient
}

func newSQSSink(ctx context.Context, id string, cfg *SQSConfig) (Sink, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWSCredentials)
	if err != nil {
		return nil, err
	}
	return &sqsSink{id: id, queueURL: cfg.QueueURL, client: sqs.NewFromConfig(awsCfg)}, nil
}

func (s *sqsSink) ID() string { return s.id }

func (s *sqsSink) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(evt.Status)},
		},
	})
	if err != nil {
		return fmt.Errorf("send message to sqs: %w", err)
	}
	return nil
}
