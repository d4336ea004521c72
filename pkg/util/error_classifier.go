package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"intellinbox/pkg/circuitbreaker"
)

// IsRetryableError classifies an error for the queue consumers.
// Returns (isRetryable, errorType). Retryable errors are nacked and
// redelivered; everything else is handled terminally and acked.
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	errStr := err.Error()

	// JSON decode errors: malformed payload, redelivery cannot help.
	var synErr *json.SyntaxError
	if errors.As(err, &synErr) {
		return false, "json_decode_error"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}
	if strings.Contains(errStr, "json:") {
		return false, "json_decode_error"
	}

	// Database errors
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "row_not_found"
	}
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	// Network errors, including IMAP dial/auth transport failures
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// IMAP session failures surface as wrapped dial/login/search errors
	if strings.Contains(errStr, "imap:") {
		return true, "imap_error"
	}

	// Inference API failures: 5xx and rate limits are worth a retry
	if strings.Contains(errStr, "status code: 5") || strings.Contains(errStr, "status code: 429") {
		return true, "inference_unavailable"
	}

	// An open breaker means the dependency is down right now, not that
	// the job is bad.
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true, "circuit_open"
	}

	// Unknown errors are handled conservatively: no retry.
	return false, "unknown_error"
}

// ShouldRetry checks an error against the retry budget.
func ShouldRetry(retryCount, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
