package submissions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/project-intake/internal/intake"
)

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Event is the message body published for each submission.
type Event struct {
	Type    string                  `json:"type"`
	Payload intake.Payload          `json:"payload"`
	Result  intake.SubmissionResult `json:"result"`
}

const eventTypeSubmitted = "intake.submission.completed"

// SQSPublisher hands completed submissions to a downstream queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("submissions: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("submissions: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Record publishes the submission event.
func (p *SQSPublisher) Record(ctx context.Context, payload intake.Payload, res intake.SubmissionResult) error {
	body, err := json.Marshal(Event{Type: eventTypeSubmitted, Payload: payload, Result: res})
	if err != nil {
		return fmt.Errorf("submissions: marshal event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(eventTypeSubmitted)},
			"service":    {DataType: aws.String("String"), StringValue: aws.String(serviceAttr(payload))},
		},
	})
	if err != nil {
		return fmt.Errorf("submissions: failed to send SQS message: %w", err)
	}
	return nil
}

func serviceAttr(p intake.Payload) string {
	if p.SelectedService == "" {
		return "unknown"
	}
	return p.SelectedService
}

var _ intake.Recorder = (*SQSPublisher)(nil)
