package sns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/techservice/notifier/internal/config"
	"github.com/techservice/notifier/internal/domain"
)

// maxSubjectLen is the SNS limit for the Subject parameter.
const maxSubjectLen = 100

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher delivers messages by publishing them to an SNS topic. The
// recipient travels as a message attribute so email subscribers can filter
// on it.
type Publisher struct {
	client   publishAPI
	topicARN string
}

func NewPublisher(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &Publisher{client: sns.NewFromConfig(awsCfg, opts...), topicARN: cfg.SNSTopicARN}, nil
}

func (p *Publisher) Send(ctx context.Context, msg domain.Message) error {
	if p.topicARN == "" {
		return fmt.Errorf("sns topic not set: %w", domain.ErrConfiguration)
	}
	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(truncate(msg.Subject, maxSubjectLen)),
		Message:  aws.String(msg.Body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient":    {DataType: aws.String("String"), StringValue: aws.String(msg.To)},
			"content_type": {DataType: aws.String("String"), StringValue: aws.String(contentType)},
		},
	})
	if err != nil {
		var notFound *types.NotFoundException
		var denied *types.AuthorizationErrorException
		if errors.As(err, &notFound) || errors.As(err, &denied) {
			return fmt.Errorf("sns publish: %s: %w", err.Error(), domain.ErrConfiguration)
		}
		return fmt.Errorf("sns publish: %w", err)
	}
	if len(msg.Attachments) > 0 {
		slog.Warn("sns transport drops attachments", "to", msg.To, "count", len(msg.Attachments))
	}
	slog.Debug("notification published", "topic", p.topicARN, "to", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
