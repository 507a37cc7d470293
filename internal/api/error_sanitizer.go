package api

import (
	"net/http"
	"strings"

	"github.com/ignite/bulk-mailer/internal/pkg/httputil"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
)

// =============================================================================
// ERROR SANITIZER
// Internal errors (database details, file paths, queue URLs) never reach API
// consumers. 5xx responses carry a generic message; the full error is logged.
// =============================================================================

var log = logger.Named("api")

// respondSafeError logs the internal error and sends a sanitized JSON error
// response. An empty publicMsg is derived from the error.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if publicMsg == "" {
		publicMsg = safeErrorMessage(code, internalErr)
	}
	if internalErr != nil {
		log.Error("request failed", "status", code, "public", publicMsg, "error", internalErr)
	}
	httputil.Error(w, code, publicMsg)
}

// safeErrorMessage maps common internal error patterns to public-safe messages.
// 4xx errors are about user input and pass through.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}

	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "redis") ||
		strings.Contains(errStr, "database"):
		return "A storage error occurred"

	case strings.Contains(errStr, "queue") ||
		strings.Contains(errStr, "schedule job"):
		return "Could not schedule the job"

	case strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access denied"):
		return "Access denied"

	default:
		return "An internal error occurred"
	}
}
