// Package transport defines the mail delivery contract used by the bulk send
// executor.
//
// Each provider (SES, Mailgun, SparkPost, or the development log transport)
// implements Transport. The executor treats a returned error and a
// non-success Result the same way: the recipient is recorded as failed.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport sends one message to one recipient. Implementations must be safe
// for concurrent use.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
	Name() string
}

// Message is a single plain text email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Body    string
	// Headers carries optional provider tags, not raw MIME headers.
	Headers map[string]string
}

// Result is the provider's answer for one message.
type Result struct {
	Success   bool
	MessageID string
	Transport string
	Reason    string
	SentAt    time.Time
}

// Accepted returns a successful result.
func Accepted(transport, messageID string) *Result {
	return &Result{Success: true, MessageID: messageID, Transport: transport, SentAt: time.Now().UTC()}
}

// Rejected returns a non-success result with the provider's reason.
func Rejected(transport, reason string) *Result {
	return &Result{Success: false, Transport: transport, Reason: reason}
}

// Reason classifies a delivery error.
type Reason string

const (
	ReasonUnknown          Reason = "unknown"
	ReasonRateLimited      Reason = "rate_limited"
	ReasonInvalidEmail     Reason = "invalid_email"
	ReasonUnverifiedDomain Reason = "unverified_domain"
	ReasonMessageRejected  Reason = "message_rejected"
	ReasonServiceError     Reason = "service_error"
)

var _ error = &Error{}

// Error is a categorized provider error.
type Error struct {
	Reason  Reason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Reason, e.Message)
	if e.Cause != nil {
		s += fmt.Sprintf(": %s", e.Cause)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a categorized error.
func NewError(reason Reason, message string, cause error) *Error {
	return &Error{Reason: reason, Message: message, Cause: cause}
}

// ReasonOf extracts the Reason from err, or ReasonUnknown.
func ReasonOf(err error) Reason {
	var te *Error
	if errors.As(err, &te) {
		return te.Reason
	}
	return ReasonUnknown
}

// ReasonForStatus maps an HTTP status from a provider API to a Reason.
func ReasonForStatus(status int) Reason {
	switch {
	case status == 429:
		return ReasonRateLimited
	case status == 400 || status == 422:
		return ReasonMessageRejected
	case status == 401 || status == 403:
		return ReasonUnverifiedDomain
	case status >= 500:
		return ReasonServiceError
	default:
		return ReasonUnknown
	}
}
