package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusUnauthorized, ErrorTypeAuth},
		{http.StatusForbidden, ErrorTypeAuth},
		{http.StatusTooManyRequests, ErrorTypeQuotaExceeded},
		{http.StatusPaymentRequired, ErrorTypeQuotaExceeded},
		{http.StatusRequestTimeout, ErrorTypeTimeout},
		{http.StatusGatewayTimeout, ErrorTypeTimeout},
		{http.StatusInternalServerError, ErrorTypeTransient},
		{http.StatusServiceUnavailable, ErrorTypeTransient},
		{http.StatusNotFound, ErrorTypePermanent},
		{http.StatusBadRequest, ErrorTypePermanent},
		{0, ErrorTypeExternal},
	}
	for _, tt := range tests {
		if got := FromStatusCode(tt.status); got != tt.want {
			t.Errorf("FromStatusCode(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeQuotaExceeded, ErrorTypeRateLimit, ErrorTypeTransient}
	terminal := []ErrorType{
		ErrorTypeConfiguration, ErrorTypeAuth, ErrorTypePermanent,
		ErrorTypeTimeout, ErrorTypeNotFound, ErrorTypeValidation,
	}

	for _, errType := range retryable {
		err := NewError(context.Background(), LayerAdapter, errType, "msg", nil, "")
		if !Retryable(err) {
			t.Errorf("Retryable(%s) = false, want true", errType)
		}
	}
	for _, errType := range terminal {
		err := NewError(context.Background(), LayerAdapter, errType, "msg", nil, "")
		if Retryable(err) {
			t.Errorf("Retryable(%s) = true, want false", errType)
		}
	}
	if Retryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestTypeOf(t *testing.T) {
	err := NewError(context.Background(), LayerDomain, ErrorTypeNotFound, "missing", nil, "")
	if TypeOf(err) != ErrorTypeNotFound {
		t.Fatalf("TypeOf = %v", TypeOf(err))
	}
	if TypeOf(errors.New("plain")) != ErrorTypeInternal {
		t.Fatal("plain errors default to INTERNAL")
	}
}

func TestTypeOfWrapped(t *testing.T) {
	inner := NewError(context.Background(), LayerAdapter, ErrorTypeAuth, "rejected", nil, "")
	wrapped := fmt.Errorf("calling provider: %w", inner)
	if TypeOf(wrapped) != ErrorTypeAuth {
		t.Fatalf("TypeOf(wrapped) = %v, want AUTH", TypeOf(wrapped))
	}
	if !IsErrorType(wrapped, ErrorTypeAuth) {
		t.Fatal("IsErrorType must see through wrapping")
	}
}

func TestAsErrorPreservesTypeAndRetryAfter(t *testing.T) {
	inner := NewError(context.Background(), LayerAdapter, ErrorTypeQuotaExceeded, "quota", nil, "uuid-1").
		WithRetryAfter(30 * time.Second)

	wrapped := AsError(context.Background(), LayerDomain, inner, "enumerate provider")

	if wrapped.Type != ErrorTypeQuotaExceeded {
		t.Fatalf("type = %v, want QUOTA_EXCEEDED", wrapped.Type)
	}
	if wrapped.RetryAfter != 30*time.Second {
		t.Fatalf("retry-after = %v, want 30s", wrapped.RetryAfter)
	}
	if wrapped.Layer != LayerDomain {
		t.Fatalf("layer = %v, want domain", wrapped.Layer)
	}
}

func TestAsErrorPlainError(t *testing.T) {
	wrapped := AsError(context.Background(), LayerHandler, errors.New("boom"), "handling request")
	if wrapped.Type != ErrorTypeInternal {
		t.Fatalf("type = %v, want INTERNAL", wrapped.Type)
	}
	if AsError(context.Background(), LayerHandler, nil, "noop") != nil {
		t.Fatal("AsError(nil) must be nil")
	}
}

func TestRetryAfterOf(t *testing.T) {
	err := NewError(context.Background(), LayerInfrastructure, ErrorTypeRateLimit, "limited", nil, "").
		WithRetryAfter(5 * time.Second)
	if RetryAfterOf(err) != 5*time.Second {
		t.Fatalf("RetryAfterOf = %v", RetryAfterOf(err))
	}
	if RetryAfterOf(errors.New("plain")) != 0 {
		t.Fatal("plain errors carry no retry-after")
	}
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    int
	}{
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeValidation, http.StatusBadRequest},
		{ErrorTypeAuth, http.StatusUnauthorized},
		{ErrorTypeConfiguration, http.StatusPreconditionFailed},
		{ErrorTypeQuotaExceeded, http.StatusTooManyRequests},
		{ErrorTypeRateLimit, http.StatusTooManyRequests},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeTransient, http.StatusBadGateway},
		{ErrorTypeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorTypeToHTTPStatus(tt.errType); got != tt.want {
			t.Errorf("ErrorTypeToHTTPStatus(%s) = %d, want %d", tt.errType, got, tt.want)
		}
	}
}

func TestErrorStringCarriesMetadata(t *testing.T) {
	err := NewError(context.Background(), LayerAdapter, ErrorTypeAuth, "credential rejected",
		errors.New("401"), "uuid-x")
	msg := err.Error()
	for _, fragment := range []string{"adapter", "AUTH", "uuid-x", "credential rejected", "401"} {
		if !strings.Contains(msg, fragment) {
			t.Errorf("error string %q missing %q", msg, fragment)
		}
	}
}
