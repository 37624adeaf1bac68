package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/savaki/judgement-ingest/internal/models"
)

// SQSAPI is the subset of the SQS client in use
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue sends judgement messages to the ingest queue
type Queue struct {
	client   SQSAPI
	queueURL string
}

func NewQueue(client SQSAPI, queueURL string) *Queue {
	return &Queue{
		client:   client,
		queueURL: queueURL,
	}
}

// SendJudgement enqueues a judgement link and returns the SQS message id
func (q *Queue) SendJudgement(ctx context.Context, link string) (string, error) {
	body, err := json.Marshal(models.JudgementMessage{JudgementPdfLink: link})
	if err != nil {
		return "", fmt.Errorf("failed to marshal judgement message: %w", err)
	}

	output, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", q.queueURL, err)
	}
	return aws.ToString(output.MessageId), nil
}
