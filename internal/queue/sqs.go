// Package queue carries job descriptors between the front-end and the
// worker fleet over SQS. The adapter implements the scan.Queue interface;
// receive-and-delete semantics mean a dequeued descriptor is gone even if
// the worker that took it dies, which is acceptable because re-scanning is
// cheap and result writes are idempotent per fingerprint.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSQueue sends and drains one SQS queue.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// New reads the AWS settings from the environment and builds the SQS
// client with static credentials.
func New(ctx context.Context) (*SQSQueue, error) {
	var (
		accessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey   = os.Getenv("AWS_SECRET_ACCESS_KEY")
		region      = os.Getenv("AWS_DEFAULT_REGION")
		queueURL    = os.Getenv("AWS_SQS_QUEUE_URL_0")
	)
	if accessKeyID == "" || secretKey == "" || region == "" || queueURL == "" {
		return nil, errors.New("queue: AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_DEFAULT_REGION and AWS_SQS_QUEUE_URL_0 must all be set")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: load aws config: %w", err)
	}

	slog.Info("[Queue] sqs client ready", "region", region, "queue", queueURL)
	return &SQSQueue{client: sqs.NewFromConfig(cfg), queueURL: queueURL}, nil
}

// Send publishes one job descriptor.
func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("queue: send message: %w", err)
	}
	return nil
}

// ReceiveAndDelete dequeues whatever one receive call yields and deletes
// every received message before returning. An empty queue returns "" with
// no error. Multiple messages in one reply are concatenated; in practice
// the coordinator enqueues one descriptor per message and callers consume
// them one at a time.
func (q *SQSQueue) ReceiveAndDelete(ctx context.Context) (string, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
	})
	if err != nil {
		return "", fmt.Errorf("queue: receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", nil
	}

	var body strings.Builder
	for _, msg := range out.Messages {
		body.WriteString(aws.ToString(msg.Body))

		_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err != nil {
			slog.Error("[Queue] could not delete a received message, it will reappear after the visibility timeout",
				"messageId", aws.ToString(msg.MessageId), "error", err)
		}
	}
	return body.String(), nil
}
