package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSESClient implements sesAPI for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestAWSSESEmailService_SendPasswordResetCode(t *testing.T) {
	var sent *ses.SendEmailInput
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sent = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}
	svc := newSESEmailService(client, "no-reply@example.com", discardLogger())

	err := svc.SendPasswordResetCode(context.Background(), "a@x.com", "042917", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, "no-reply@example.com", aws.ToString(sent.Source))
	assert.Equal(t, []string{"a@x.com"}, sent.Destination.ToAddresses)
	assert.Equal(t, resetEmailSubject, aws.ToString(sent.Message.Subject.Data))
	assert.Contains(t, aws.ToString(sent.Message.Body.Text.Data), "042917")
	assert.Contains(t, aws.ToString(sent.Message.Body.Text.Data), "10 minutes")
	assert.Contains(t, aws.ToString(sent.Message.Body.Html.Data), "042917")
}

func TestAWSSESEmailService_SendFailure(t *testing.T) {
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected")
		},
	}
	svc := newSESEmailService(client, "no-reply@example.com", discardLogger())

	err := svc.SendPasswordResetCode(context.Background(), "a@x.com", "123456", time.Now().Add(10*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestLogEmailService_LogsCode(t *testing.T) {
	var buf bytes.Buffer
	svc := NewLogEmailService(slog.New(slog.NewTextHandler(&buf, nil)))

	err := svc.SendPasswordResetCode(context.Background(), "a@x.com", "123456", time.Now())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "code=123456")
}
