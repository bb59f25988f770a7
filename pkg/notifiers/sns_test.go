package notifiers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/samvad-hq/acmewire/internal/domain"
	"github.com/samvad-hq/acmewire/internal/logger"
)

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSNotifierPublishes(t *testing.T) {
	client := &fakeSNSClient{}
	n := &snsNotifier{
		id:       "topic",
		topicARN: "arn:aws:sns:us-east-1:123456789012:acme",
		api:      client,
		log:      logger.NopLogger{},
	}

	if err := n.Send(context.Background(), NewEvent(domain.Report{DirectoryID: "le"})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := aws.ToString(client.input.TopicArn); got != "arn:aws:sns:us-east-1:123456789012:acme" {
		t.Fatalf("TopicArn = %s", got)
	}
	if got := aws.ToString(client.input.Subject); got != "ACME directory le unhealthy" {
		t.Fatalf("Subject = %q", got)
	}
	if attr := client.input.MessageAttributes["directory_id"]; aws.ToString(attr.StringValue) != "le" {
		t.Fatalf("directory_id attribute = %#v", attr)
	}
}

func TestSNSNotifierPublishError(t *testing.T) {
	n := &snsNotifier{api: &fakeSNSClient{err: errors.New("throttled")}, log: logger.NopLogger{}}
	if err := n.Send(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error from Send")
	}
}

func TestSNSNotifierSubjectNamesProblems(t *testing.T) {
	client := &fakeSNSClient{}
	n := &snsNotifier{api: client, log: logger.NopLogger{}}

	if err := n.Send(context.Background(), NewEvent(rateLimitedReport())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	subject := aws.ToString(client.input.Subject)
	if len(subject) > maxSNSSubject || !strings.HasPrefix(subject, "ACME directory le unhealthy: urn:ietf:params:acme:error:rateLimited") {
		t.Fatalf("Subject = %q", subject)
	}
	if attr := client.input.MessageAttributes[attrRetryAfter]; aws.ToString(attr.DataType) != "Number" {
		t.Fatalf("retry_after_seconds attribute = %#v", attr)
	}
}
