// Package sparkpost delivers mail through the SparkPost Transmissions API.
package sparkpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/pkg/httpretry"
	"github.com/ignite/bulk-mailer/internal/transport"
)

// Name identifies this transport in logs and metrics.
const Name = "sparkpost"

var _ transport.Transport = &Transport{}

// Transport creates one transmission per recipient.
type Transport struct {
	apiKey  string
	baseURL string
	client  httpretry.HTTPDoer
}

// New creates a SparkPost transport. A nil client gets a retry client built
// from cfg.
func New(cfg config.SparkPostConfig, client httpretry.HTTPDoer) *Transport {
	if client == nil {
		client = httpretry.NewRetryClient(nil, cfg.Timeout(), cfg.MaxRetries)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.sparkpost.com/api/v1"
	}
	return &Transport{apiKey: cfg.APIKey, baseURL: base, client: client}
}

func (t *Transport) Name() string { return Name }

type address struct {
	Email string `json:"email"`
}

type recipient struct {
	Address address `json:"address"`
}

type content struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type transmission struct {
	Recipients []recipient       `json:"recipients"`
	Content    content           `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Options    map[string]bool   `json:"options,omitempty"`
}

type transmissionResponse struct {
	Results struct {
		ID                 string `json:"id"`
		TotalAcceptedCount int    `json:"total_accepted_recipients"`
		TotalRejectedCount int    `json:"total_rejected_recipients"`
	} `json:"results"`
	Errors []struct {
		Message     string `json:"message"`
		Description string `json:"description"`
		Code        string `json:"code"`
	} `json:"errors"`
}

// Send delivers msg as a plain text transmission.
func (t *Transport) Send(ctx context.Context, msg *transport.Message) (*transport.Result, error) {
	if t.apiKey == "" {
		return nil, transport.ErrNotConfigured
	}

	payload, err := json.Marshal(transmission{
		Recipients: []recipient{{Address: address{Email: msg.To}}},
		Content: content{
			From:    msg.From,
			Subject: msg.Subject,
			Text:    msg.Body,
			ReplyTo: msg.ReplyTo,
		},
		Metadata: msg.Headers,
		Options:  map[string]bool{"transactional": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transmissions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transport.NewError(transport.ReasonServiceError, "sparkpost request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed transmissionResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode >= 300 {
		detail := fmt.Sprintf("sparkpost status %d", resp.StatusCode)
		if len(parsed.Errors) > 0 {
			detail += ": " + parsed.Errors[0].Message
		}
		return nil, transport.NewError(transport.ReasonForStatus(resp.StatusCode), detail, nil)
	}
	if parsed.Results.TotalRejectedCount > 0 && parsed.Results.TotalAcceptedCount == 0 {
		return transport.Rejected(Name, "recipient rejected"), nil
	}
	return transport.Accepted(Name, parsed.Results.ID), nil
}
