package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeTimeout, "rpc timed out")

	if err.Code() != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code(), ErrCodeTimeout)
	}
	if err.Category() != CategoryTransient {
		t.Errorf("Category = %v, want %v", err.Category(), CategoryTransient)
	}
	if !err.Retryable() {
		t.Error("timeout should be retryable by default")
	}
	if err.Timestamp().IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestCategoryDefaults(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{ErrCodePlacementFailed, CategoryTransient, true},
		{ErrCodeTimeout, CategoryTransient, true},
		{ErrCodeWorkerUnavailable, CategoryTransient, true},
		{ErrCodeWorkerDraining, CategoryTransient, true},
		{ErrCodeConflict, CategoryTransient, true},
		{ErrCodeActivationFailed, CategoryPermanent, false},
		{ErrCodeMethodNotFound, CategoryPermanent, false},
		{ErrCodeInvalidID, CategoryPermanent, false},
		{ErrCodeHandlerPanic, CategoryInternal, false},
		{ErrCodeInternal, CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := FromCode(tt.code)
			if err.Category() != tt.category {
				t.Errorf("Category = %v, want %v", err.Category(), tt.category)
			}
			if err.Retryable() != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable(), tt.retryable)
			}
		})
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(ErrCodeTimeout, "no retries left", WithRetryable(false))
	if err.Retryable() {
		t.Error("explicit retryable=false should override category default")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := PlacementFailed("Echo")
	outer := Wrap(inner, "publish failed")

	if outer.Code() != ErrCodePlacementFailed {
		t.Errorf("Code = %v, want %v", outer.Code(), ErrCodePlacementFailed)
	}
	if !Is(outer, ErrCodePlacementFailed) {
		t.Error("Is should find the code through the wrap")
	}
	if outer.Unwrap() != inner {
		t.Error("Unwrap should return the wrapped error")
	}
}

func TestWrapContextErrors(t *testing.T) {
	if got := Wrap(context.DeadlineExceeded, "call"); got.Code() != ErrCodeTimeout {
		t.Errorf("deadline wrap Code = %v, want TIMEOUT", got.Code())
	}
	if got := Wrap(context.Canceled, "call"); got.Code() != ErrCodeCanceled {
		t.Errorf("cancel wrap Code = %v, want CANCELED", got.Code())
	}
	if got := Wrap(fmt.Errorf("boom"), "call"); got.Code() != ErrCodeInternal {
		t.Errorf("plain wrap Code = %v, want INTERNAL", got.Code())
	}
	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := Timeout("req-42", WithAgentID("Echo/k1"))

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Error
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.Code() != ErrCodeTimeout {
		t.Errorf("Code = %v, want TIMEOUT", decoded.Code())
	}
	if decoded.RequestID() != "req-42" {
		t.Errorf("RequestID = %q, want req-42", decoded.RequestID())
	}
	if decoded.AgentID() != "Echo/k1" {
		t.Errorf("AgentID = %q, want Echo/k1", decoded.AgentID())
	}
	if !decoded.Retryable() {
		t.Error("retryability should survive the round trip")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Conflict("Echo/k1")) {
		t.Error("conflict should be retryable")
	}
	if IsRetryable(MethodNotFound("frob")) {
		t.Error("method-not-found should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors default to not retryable")
	}
}

func TestHelperMessages(t *testing.T) {
	if got := PlacementFailed("Missing").Error(); got != "no agent worker available for type Missing" {
		t.Errorf("PlacementFailed message = %q", got)
	}
	if got := WorkerUnavailable("w1").Error(); got != "worker w1 unavailable" {
		t.Errorf("WorkerUnavailable message = %q", got)
	}
}
