// Package mailgun delivers mail through the Mailgun Messages API.
package mailgun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/pkg/httpretry"
	"github.com/ignite/bulk-mailer/internal/transport"
)

// Name identifies this transport in logs and metrics.
const Name = "mailgun"

const maxErrorBody = 512

var _ transport.Transport = &Transport{}

// Transport posts one form-encoded message per recipient.
type Transport struct {
	apiKey  string
	domain  string
	baseURL string
	client  httpretry.HTTPDoer
}

// New creates a Mailgun transport. A nil client gets a retry client built
// from cfg.
func New(cfg config.MailgunConfig, client httpretry.HTTPDoer) *Transport {
	if client == nil {
		client = httpretry.NewRetryClient(nil, cfg.Timeout(), cfg.MaxRetries)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.mailgun.net/v3"
	}
	return &Transport{apiKey: cfg.APIKey, domain: cfg.Domain, baseURL: base, client: client}
}

func (t *Transport) Name() string { return Name }

// Send delivers msg as a plain text email.
func (t *Transport) Send(ctx context.Context, msg *transport.Message) (*transport.Result, error) {
	if t.apiKey == "" || t.domain == "" {
		return nil, transport.ErrNotConfigured
	}

	form := url.Values{}
	form.Set("from", msg.From)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Body)
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}
	for k, v := range msg.Headers {
		form.Set("v:"+k, v)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", t.baseURL, url.PathEscape(t.domain))
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transport.NewError(transport.ReasonServiceError, "mailgun request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 300 {
		return nil, transport.NewError(transport.ReasonForStatus(resp.StatusCode),
			fmt.Sprintf("mailgun status %d: %s", resp.StatusCode, truncate(body)), nil)
	}

	var result struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return transport.Accepted(Name, ""), nil
	}
	return transport.Accepted(Name, strings.Trim(result.ID, "<>")), nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return strings.TrimSpace(string(b))
}
