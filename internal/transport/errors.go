package transport

import "errors"

// ErrNotConfigured is returned when a provider is selected without credentials.
var ErrNotConfigured = errors.New("transport not configured")
