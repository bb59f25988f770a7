package notifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/samvad-hq/acmewire/internal/logger"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsNotifier enqueues one message per report. FIFO queues get the directory
// as message group, so reports for one CA stay ordered.
type sqsNotifier struct {
	id       string
	queueURL string
	fifo     bool
	api      sqsAPI
	log      logger.Logger
}

func newSQSNotifier(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("notifier %q missing sqs configuration", cfg.ID)
	}
	awsCfg, err := loadAWSConfig(ctx, cfg.SQS.Region, cfg.SQS.AWSCredentials)
	if err != nil {
		return nil, fmt.Errorf("notifier %q: load aws config: %w", cfg.ID, err)
	}
	return &sqsNotifier{
		id:       cfg.ID,
		queueURL: cfg.SQS.QueueURL,
		fifo:     strings.HasSuffix(cfg.SQS.QueueURL, ".fifo"),
		api:      sqs.NewFromConfig(awsCfg),
		log:      ensureLogger(log),
	}, nil
}

func (s *sqsNotifier) ID() string   { return s.id }
func (s *sqsNotifier) Type() string { return TypeSQS }

func (s *sqsNotifier) Send(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", evt.DirectoryID, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: sqsAttributes(reportAttributes(evt)),
	}
	if s.fifo {
		input.MessageGroupId = aws.String(evt.DirectoryID)
		input.MessageDeduplicationId = aws.String(fmt.Sprintf("%s-%d", evt.DirectoryID, evt.Report.CheckedAt.UnixNano()))
	}

	out, err := s.api.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs send to %s: %w", s.queueURL, err)
	}
	s.log.DebugObj("sqs notifier delivered report", "notifier_sqs_delivery", map[string]any{
		"notifier_id":  s.id,
		"directory_id": evt.DirectoryID,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}

// sqsAttributes types retry_after_seconds as a Number so queue consumers can
// compare it; everything else is a String.
func sqsAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		dataType := "String"
		if k == attrRetryAfter {
			dataType = "Number"
		}
		out[k] = types.MessageAttributeValue{
			DataType:    aws.String(dataType),
			StringValue: aws.String(v),
		}
	}
	return out
}
