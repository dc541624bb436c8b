package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/webflix/webflix/pkg/logger"
)

type (
	// ObjectCreated is a single object-created notification delivered by
	// the storage provider. ReceiptHandle must be passed back to
	// Delete once the event has been fully processed;
	// unacknowledged notifications are re-delivered by the queue.
	ObjectCreated struct {
		Bucket        string
		Key           string
		ReceiptHandle string
	}

	// NotificationReceiver long-polls the storage notification queue
	// (SQS) for object-created events.
	NotificationReceiver struct {
		sqsClient *sqs.Client
		queueURL  string
	}

	// s3EventDocument mirrors the notification JSON the storage provider
	// places on the queue.
	s3EventDocument struct {
		Records []struct {
			EventName string `json:"eventName"`
			S3        struct {
				Bucket struct {
					Name string `json:"name"`
				} `json:"bucket"`
				Object struct {
					Key string `json:"key"`
				} `json:"object"`
			} `json:"s3"`
		} `json:"Records"`
	}
)

func NewNotificationReceiver(ctx context.Context, queueURL string) (*NotificationReceiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &NotificationReceiver{
		sqsClient: sqs.NewFromConfig(awsCfg),
		queueURL:  queueURL,
	}, nil
}

// Receive long-polls the queue and returns the decoded object-created
// notifications from a single batch. Messages that do not look like
// object-created events are acknowledged and dropped.
func (receiver *NotificationReceiver) Receive(ctx context.Context) ([]ObjectCreated, error) {
	output, err := receiver.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(receiver.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive storage notifications: %w", err)
	}

	notifications := make([]ObjectCreated, 0, len(output.Messages))
	for _, message := range output.Messages {
		receiptHandle := aws.ToString(message.ReceiptHandle)

		decoded, err := parseObjectCreated([]byte(aws.ToString(message.Body)), receiptHandle)
		if err != nil {
			log.Emit(logger.WARNING, "Dropping undecodable storage notification: %v\n", err)
			_ = receiver.Delete(ctx, receiptHandle)
			continue
		}

		notifications = append(notifications, decoded...)
	}

	return notifications, nil
}

// parseObjectCreated decodes one queue message body in to its
// object-created notifications. Records for other event kinds are
// silently ignored.
func parseObjectCreated(body []byte, receiptHandle string) ([]ObjectCreated, error) {
	var document s3EventDocument
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("failed to decode notification document: %w", err)
	}

	notifications := make([]ObjectCreated, 0, len(document.Records))
	for _, record := range document.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated") {
			continue
		}

		key, err := decodeObjectKey(record.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode object key %q: %w", record.S3.Object.Key, err)
		}

		notifications = append(notifications, ObjectCreated{
			Bucket:        record.S3.Bucket.Name,
			Key:           key,
			ReceiptHandle: receiptHandle,
		})
	}

	return notifications, nil
}

// Delete acknowledges a processed notification so the queue will not
// re-deliver it.
func (receiver *NotificationReceiver) Delete(ctx context.Context, receiptHandle string) error {
	_, err := receiver.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(receiver.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to acknowledge storage notification: %w", err)
	}

	return nil
}

// decodeObjectKey undoes the URL-encoding the storage provider applies
// to object keys in notification payloads (spaces arrive as '+').
func decodeObjectKey(raw string) (string, error) {
	return url.QueryUnescape(raw)
}
