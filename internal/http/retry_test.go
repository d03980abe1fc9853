package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{200, ErrorTypeSuccess},
		{201, ErrorTypeSuccess},
		{400, ErrorTypeFatal},
		{401, ErrorTypeCredential},
		{403, ErrorTypeCredential},
		{404, ErrorTypeFatal},
		{408, ErrorTypeRetryable},
		{413, ErrorTypeFatal},
		{429, ErrorTypeRetryable},
		{500, ErrorTypeRetryable},
		{503, ErrorTypeRetryable},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tt.code, ErrorTypeName(got), ErrorTypeName(tt.want))
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeSuccess},
		{"deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), ErrorTypeNetwork},
		{"net.Error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrorTypeNetwork},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ErrorTypeNetwork},
		{"expired sas", errors.New("AuthenticationFailed: signature expired"), ErrorTypeCredential},
		{"s3 slowdown", errors.New("api error SlowDown: reduce your request rate"), ErrorTypeRetryable},
		{"azure busy", errors.New("ServerBusy"), ErrorTypeRetryable},
		{"unknown", errors.New("something odd"), ErrorTypeFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, ErrorTypeName(got), ErrorTypeName(tt.want))
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := CalculateBackoff(0, time.Second, 30*time.Second); d != 0 {
		t.Errorf("attempt 0 should not back off, got %v", d)
	}

	for attempt := 1; attempt < 10; attempt++ {
		d := CalculateBackoff(attempt, 100*time.Millisecond, time.Second)
		if d < 0 || d >= time.Second {
			t.Errorf("attempt %d: backoff %v out of range [0, 1s)", attempt, d)
		}
	}

	// Large attempts must not overflow
	if d := CalculateBackoff(200, time.Second, 30*time.Second); d < 0 || d >= 30*time.Second {
		t.Errorf("large attempt backoff %v out of range", d)
	}
}

func TestErrorTypeName(t *testing.T) {
	if ErrorTypeName(ErrorTypeNetwork) != "network" {
		t.Errorf("unexpected name %s", ErrorTypeName(ErrorTypeNetwork))
	}
	if ErrorTypeName(ErrorType(42)) != "unknown" {
		t.Errorf("unexpected name %s", ErrorTypeName(ErrorType(42)))
	}
}
