// Package ses delivers mail through Amazon SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/transport"
)

// Name identifies this transport in logs and metrics.
const Name = "ses"

var _ transport.Transport = &Transport{}

// Client is the subset of the SES v2 API used here.
type Client interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends one SES message per recipient.
type Transport struct {
	client           Client
	configurationSet string
}

// New wraps an existing SES client.
func New(client Client, configurationSet string) *Transport {
	return &Transport{client: client, configurationSet: configurationSet}
}

// NewFromConfig builds an SES client from config. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg config.SESConfig) (*Transport, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if t := cfg.Timeout(); t > 0 {
			o.HTTPClient = awshttp.NewBuildableClient().WithTimeout(t)
		}
	})
	return New(client, cfg.ConfigurationSet), nil
}

func (t *Transport) Name() string { return Name }

// Send delivers msg as a plain text email.
func (t *Transport) Send(ctx context.Context, msg *transport.Message) (*transport.Result, error) {
	if t.client == nil {
		return nil, transport.ErrNotConfigured
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    &types.Body{Text: utf8Content(msg.Body)},
			},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}
	for k, v := range msg.Headers {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return nil, categorize(err)
	}
	return transport.Accepted(Name, aws.ToString(out.MessageId)), nil
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func categorize(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "LimitExceededException":
			return transport.NewError(transport.ReasonRateLimited, "sending rate limit exceeded", err)
		case "MessageRejected", "AccountSuspendedException", "SendingPausedException":
			return transport.NewError(transport.ReasonMessageRejected, "message rejected by SES", err)
		case "MailFromDomainNotVerifiedException":
			return transport.NewError(transport.ReasonUnverifiedDomain, "sender domain not verified", err)
		case "InvalidParameterValueException", "BadRequestException":
			return transport.NewError(transport.ReasonInvalidEmail, "invalid email parameter", err)
		case "ServiceUnavailableException", "InternalServiceErrorException":
			return transport.NewError(transport.ReasonServiceError, "SES service error", err)
		}
	}
	return transport.NewError(transport.ReasonUnknown, "failed to send email", err)
}
