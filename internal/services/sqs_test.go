package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestQueue_SendJudgement(t *testing.T) {
	m := &mockSQS{}
	queue := NewQueue(m, "https://sqs.us-east-1.amazonaws.com/123/judgements")

	id, err := queue.SendJudgement(context.Background(), "https://example.com/1_2_05-Mar-2021.pdf")
	if err != nil {
		t.Fatalf("SendJudgement() unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("SendJudgement() = %q, want msg-1", id)
	}

	want := `{"judgementPdfLink":"https://example.com/1_2_05-Mar-2021.pdf"}`
	if got := aws.ToString(m.inputs[0].MessageBody); got != want {
		t.Errorf("MessageBody = %s, want %s", got, want)
	}
}

func TestQueue_SendJudgement_Error(t *testing.T) {
	queue := NewQueue(&mockSQS{err: errors.New("throttled")}, "q")
	if _, err := queue.SendJudgement(context.Background(), "https://example.com/a.pdf"); err == nil {
		t.Fatal("SendJudgement() should return error")
	}
}
