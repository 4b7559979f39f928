// Package dberror classifies audit store errors for retries and client messages.
package dberror

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorType classifies database errors for appropriate handling.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the database is unreachable.
	ErrorTypeConnectivity
	ErrorTypeTimeout
	// ErrorTypeAuth indicates authentication/authorization failure.
	ErrorTypeAuth
	ErrorTypeQuery
	// ErrorTypeConflict indicates an integrity constraint violation.
	ErrorTypeConflict
)

// IsTransient returns true if the error is likely transient and worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Context errors belong to the caller.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout:
		return true
	}
	return false
}

// Classify determines the type of database error, by SQLSTATE class when the server
// reported one and by message otherwise.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"):
			return ErrorTypeConnectivity
		case pgErr.Code == "57014":
			return ErrorTypeTimeout
		case strings.HasPrefix(pgErr.Code, "28"):
			return ErrorTypeAuth
		case strings.HasPrefix(pgErr.Code, "23"):
			return ErrorTypeConflict
		case strings.HasPrefix(pgErr.Code, "42"):
			return ErrorTypeQuery
		}
		return ErrorTypeUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	for _, group := range []struct {
		typ      ErrorType
		patterns []string
	}{
		{ErrorTypeConnectivity, []string{
			"connection refused", "connection reset", "connection closed", "no such host",
			"dial tcp", "eof", "broken pipe", "network is unreachable", "pool is closed",
		}},
		{ErrorTypeTimeout, []string{"timeout", "deadline exceeded", "timed out"}},
		{ErrorTypeAuth, []string{"authentication failed", "permission denied"}},
	} {
		for _, pattern := range group.patterns {
			if strings.Contains(errStr, pattern) {
				return group.typ
			}
		}
	}
	return ErrorTypeUnknown
}

// UserMessage returns a client-safe message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "Audit store temporarily unavailable. Please try again in a moment."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeAuth:
		return "Audit store authentication error. Please contact support."
	case ErrorTypeConflict:
		return "Record already exists."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
