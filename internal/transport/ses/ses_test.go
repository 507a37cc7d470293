package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulk-mailer/internal/transport"
)

type mockSESClient struct {
	last *sesv2.SendEmailInput
	err  error
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.last = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSend_BuildsPlainTextMessage(t *testing.T) {
	client := &mockSESClient{}
	tr := New(client, "bulk")

	res, err := tr.Send(context.Background(), &transport.Message{
		From:    "ops@example.com",
		To:      "user@example.com",
		ReplyTo: "ops@example.com",
		Subject: "Hello",
		Body:    "Plain body",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ses-123", res.MessageID)
	assert.Equal(t, Name, res.Transport)

	in := client.last
	require.NotNil(t, in)
	assert.Equal(t, "ops@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"user@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"ops@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "bulk", aws.ToString(in.ConfigurationSetName))
	assert.Equal(t, "Hello", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "Plain body", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Nil(t, in.Content.Simple.Body.Html)
}

func TestSend_CategorizesAPIErrors(t *testing.T) {
	cases := map[string]transport.Reason{
		"TooManyRequestsException":           transport.ReasonRateLimited,
		"MessageRejected":                    transport.ReasonMessageRejected,
		"MailFromDomainNotVerifiedException": transport.ReasonUnverifiedDomain,
		"InvalidParameterValueException":     transport.ReasonInvalidEmail,
		"ServiceUnavailableException":        transport.ReasonServiceError,
		"SomethingNew":                       transport.ReasonUnknown,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			tr := New(&mockSESClient{err: &smithy.GenericAPIError{Code: code, Message: "x"}}, "")
			_, err := tr.Send(context.Background(), &transport.Message{From: "a@x.com", To: "b@x.com"})
			require.Error(t, err)
			assert.Equal(t, want, transport.ReasonOf(err))
		})
	}
}

func TestSend_NonAPIErrorIsUnknown(t *testing.T) {
	tr := New(&mockSESClient{err: errors.New("dial tcp: timeout")}, "")
	_, err := tr.Send(context.Background(), &transport.Message{From: "a@x.com", To: "b@x.com"})
	assert.Equal(t, transport.ReasonUnknown, transport.ReasonOf(err))
}

func TestSend_NilClient(t *testing.T) {
	tr := New(nil, "")
	_, err := tr.Send(context.Background(), &transport.Message{})
	assert.ErrorIs(t, err, transport.ErrNotConfigured)
}
