package murmur

import (
	"context"
	"errors"
	"fmt"
)

const (
	ErrorConnection       = "connection"
	ErrorTimeout          = "timeout"
	ErrorInvalidSecret    = "invalid_secret"
	ErrorServerNotRunning = "server_not_running"
	ErrorInvalidSession   = "invalid_session"
	ErrorInvalidChannel   = "invalid_channel"
	ErrorRemote           = "remote"
)

// Error represents a categorized failure talking to the host.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized host error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	return ErrorRemote
}

// IsConnectionError reports whether err means the host cannot be reached at all.
func IsConnectionError(err error) bool {
	return CategoryFromError(err) == ErrorConnection
}
