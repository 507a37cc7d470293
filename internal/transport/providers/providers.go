// Package providers selects the configured mail transport.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/bulk-mailer/internal/config"
	"github.com/ignite/bulk-mailer/internal/transport"
	"github.com/ignite/bulk-mailer/internal/transport/logtransport"
	"github.com/ignite/bulk-mailer/internal/transport/mailgun"
	"github.com/ignite/bulk-mailer/internal/transport/ses"
	"github.com/ignite/bulk-mailer/internal/transport/sparkpost"
)

// New builds the transport named by cfg.Mailer.Transport.
func New(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch strings.ToLower(cfg.Mailer.Transport) {
	case "", logtransport.Name:
		return logtransport.New(), nil
	case ses.Name:
		tr, err := ses.NewFromConfig(ctx, cfg.SES)
		if err != nil {
			return nil, err
		}
		return tr, nil
	case mailgun.Name:
		if cfg.Mailgun.APIKey == "" || cfg.Mailgun.Domain == "" {
			return nil, fmt.Errorf("mailgun: %w", transport.ErrNotConfigured)
		}
		return mailgun.New(cfg.Mailgun, nil), nil
	case sparkpost.Name:
		if cfg.SparkPost.APIKey == "" {
			return nil, fmt.Errorf("sparkpost: %w", transport.ErrNotConfigured)
		}
		return sparkpost.New(cfg.SparkPost, nil), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Mailer.Transport)
	}
}
