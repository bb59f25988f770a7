package notifiers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/samvad-hq/acmewire/internal/logger"
)

// SNS rejects subjects longer than this.
const maxSNSSubject = 100

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsNotifier publishes reports to a topic. The subject is the report summary
// so e-mail subscriptions stay readable; attributes drive filter policies.
type snsNotifier struct {
	id       string
	topicARN string
	api      snsAPI
	log      logger.Logger
}

func newSNSNotifier(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	if cfg.SNS == nil {
		return nil, fmt.Errorf("notifier %q missing sns configuration", cfg.ID)
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.SNS.Region, cfg.SNS.AWSCredentials)
	if err != nil {
		return nil, fmt.Errorf("notifier %q: load aws config: %w", cfg.ID, err)
	}
	return &snsNotifier{
		id:       cfg.ID,
		topicARN: cfg.SNS.TopicARN,
		api:      sns.NewFromConfig(awsCfg),
		log:      ensureLogger(log),
	}, nil
}

func (s *snsNotifier) ID() string   { return s.id }
func (s *snsNotifier) Type() string { return TypeSNS }

func (s *snsNotifier) Send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", evt.DirectoryID, err)
	}

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range reportAttributes(evt) {
		dataType := "String"
		if k == attrRetryAfter {
			dataType = "Number"
		}
		attrs[k] = types.MessageAttributeValue{DataType: aws.String(dataType), StringValue: aws.String(v)}
	}

	subject := clip(reportSummary(evt), maxSNSSubject)

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(body)),
		Subject:           aws.String(subject),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", s.topicARN, err)
	}
	s.log.DebugObj("sns notifier delivered report", "notifier_sns_delivery", map[string]any{
		"notifier_id":  s.id,
		"directory_id": evt.DirectoryID,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}
