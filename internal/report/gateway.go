package report

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/ignite/bulk-mailer/internal/pkg/logger"
)

// Any artifact the generator produced matches this pattern.
var namePattern = regexp.MustCompile(`^failed_emails_.*\.csv$`)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FallbackFilename is offered when a sanitized name no longer looks like a report.
const FallbackFilename = "failed_emails.csv"

// Download is a resolved report ready to stream.
type Download struct {
	Filename string
	Size     int64
	Body     io.ReadCloser
}

// Gateway resolves client-supplied report names against the staging store.
type Gateway struct {
	store Store
	log   *logger.Logger
}

// NewGateway creates a gateway over store.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store, log: logger.Named("report-gateway")}
}

// Resolve maps a requested name to a readable artifact. Directory components
// are stripped and only report-shaped names are looked up. Every failure is
// ErrNotFound; the cause is only logged.
func (g *Gateway) Resolve(ctx context.Context, requested string) (*Download, error) {
	name := BaseName(requested)
	if !namePattern.MatchString(name) {
		g.log.Warn("report request rejected", "requested", requested)
		return nil, ErrNotFound
	}

	body, size, err := g.store.Open(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.log.Error("report open failed", "name", name, "error", err)
		}
		return nil, ErrNotFound
	}
	return &Download{Filename: SafeFilename(name), Size: size, Body: body}, nil
}

// BaseName drops every directory component, treating both slash styles as
// separators.
func BaseName(requested string) string {
	name := path.Base(strings.ReplaceAll(requested, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// SafeFilename replaces characters outside [A-Za-z0-9._-] with "_" and falls
// back to FallbackFilename if the result no longer matches the report pattern.
func SafeFilename(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	if !namePattern.MatchString(safe) {
		return FallbackFilename
	}
	return safe
}
