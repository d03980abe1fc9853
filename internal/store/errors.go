package store

import (
	"errors"
	"fmt"
	nethttp "net/http"

	inthttp "github.com/rescale/photoup/internal/http"
)

// Category tells the user whether a failed item is worth retrying.
type Category string

const (
	// CategoryClient - the store rejected the item itself (4xx); retrying unchanged will fail again
	CategoryClient Category = "client"
	// CategoryServer - the store failed or throttled (5xx, 429)
	CategoryServer Category = "server"
	// CategoryNetwork - no response was received
	CategoryNetwork Category = "network"
)

// CategoryForStatus maps an HTTP status code to a Category.
func CategoryForStatus(code int) Category {
	switch inthttp.ClassifyStatus(code) {
	case inthttp.ErrorTypeRetryable:
		return CategoryServer
	default:
		return CategoryClient
	}
}

// CategoryForError classifies a backend error that carries no status code.
func CategoryForError(err error) Category {
	switch inthttp.ClassifyError(err) {
	case inthttp.ErrorTypeNetwork:
		return CategoryNetwork
	case inthttp.ErrorTypeRetryable:
		return CategoryServer
	default:
		return CategoryClient
	}
}

// TransportError reports a non-success acknowledgment or a network fault.
type TransportError struct {
	StatusCode int // 0 for network faults
	Category   Category
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		if e.Message != "" {
			return fmt.Sprintf("%s error: %s", e.Category, e.Message)
		}
		return fmt.Sprintf("%s error: %v", e.Category, e.Err)
	}
	msg := e.Message
	if msg == "" {
		msg = nethttp.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("store returned %d: %s", e.StatusCode, msg)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a manual retry may succeed.
func (e *TransportError) Retryable() bool {
	return e.Category == CategoryServer || e.Category == CategoryNetwork
}

// NewStatusError builds a TransportError for a non-2xx response.
func NewStatusError(code int, message string) *TransportError {
	return &TransportError{
		StatusCode: code,
		Category:   CategoryForStatus(code),
		Message:    message,
	}
}

// NewNetworkError builds a TransportError for a request that got no response.
func NewNetworkError(err error) *TransportError {
	return &TransportError{
		Category: CategoryNetwork,
		Err:      err,
	}
}

// ProtocolError reports a 2xx acknowledgment that could not be understood.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed store response: %s: %v", e.Message, e.Err)
	}
	return "malformed store response: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a store failure worth retrying by hand.
// Protocol errors are treated like server errors.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	var pe *ProtocolError
	return errors.As(err, &pe)
}
