package http

import (
	"context"
	"errors"
	"math/rand"
	"net"
	nethttp "net/http"
	"strings"
	"time"
)

// ErrorType classifies a store failure. The core never retries on its own;
// the type only tells the user whether a manual retry is worth it.
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (401, 403, expired SAS)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates the request never got a response
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors and throttling (5xx, 429)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that will fail again unchanged (400, 404, 413)
	ErrorTypeFatal
)

// ClassifyStatus maps an HTTP status code to an ErrorType.
func ClassifyStatus(code int) ErrorType {
	switch {
	case code >= 200 && code < 300:
		return ErrorTypeSuccess
	case code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusTooManyRequests || code == nethttp.StatusRequestTimeout:
		return ErrorTypeRetryable
	case code >= 500:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// ClassifyError determines the error type for a failure without a status code,
// as returned by the S3 and Azure SDKs or the transport itself.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "expired") ||
		strings.Contains(errStr, "invalid token") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "authentication failed") ||
		strings.Contains(errStr, "authenticationfailed") ||
		strings.Contains(errStr, "invalid sas") ||
		strings.Contains(errStr, "signature not valid") ||
		strings.Contains(errStr, "authorization failure") ||
		strings.Contains(errStr, "accessdenied") {
		return ErrorTypeCredential
	}

	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "server busy") ||
		strings.Contains(errStr, "serverbusy") ||
		strings.Contains(errStr, "operationtimeout") {
		return ErrorTypeRetryable
	}

	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff duration with full jitter.
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}

	base := initialDelay
	for i := 0; i < attempt && base < maxDelay; i++ {
		base *= 2
	}
	if base > maxDelay {
		base = maxDelay
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
