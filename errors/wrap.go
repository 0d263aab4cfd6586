package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error
// chain. If err is nil, Wrap returns nil. If err is already a structured
// Error, its code and category carry through.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var structured *Error
	if errors.As(err, &structured) {
		wrapped := &Error{
			code:      structured.code,
			category:  structured.category,
			message:   message,
			cause:     err,
			retryable: structured.retryable,
			agentID:   structured.agentID,
			requestID: structured.requestID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
// Non-structured errors default to not retryable.
func IsRetryable(err error) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Retryable()
	}
	return false
}

// PlacementFailed creates the error for a type with no compatible worker.
func PlacementFailed(agentType string, opts ...Option) *Error {
	return New(ErrCodePlacementFailed,
		fmt.Sprintf("no agent worker available for type %s", agentType), opts...)
}

// Timeout creates an RPC timeout error.
func Timeout(requestID string, opts ...Option) *Error {
	opts = append([]Option{WithRequestID(requestID)}, opts...)
	return New(ErrCodeTimeout, fmt.Sprintf("rpc %s timed out", requestID), opts...)
}

// WorkerUnavailable creates the error for a disconnected or purged worker.
func WorkerUnavailable(workerID string, opts ...Option) *Error {
	return New(ErrCodeWorkerUnavailable,
		fmt.Sprintf("worker %s unavailable", workerID), opts...)
}

// ActivationFailed creates the error for a factory that failed during lazy
// construction.
func ActivationFailed(agentID string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithAgentID(agentID), WithCause(cause)}, opts...)
	return New(ErrCodeActivationFailed,
		fmt.Sprintf("activation of agent %s failed", agentID), opts...)
}

// Conflict creates an optimistic-concurrency conflict error.
func Conflict(agentID string, opts ...Option) *Error {
	opts = append([]Option{WithAgentID(agentID)}, opts...)
	return New(ErrCodeConflict,
		fmt.Sprintf("stale etag writing state for agent %s", agentID), opts...)
}

// MethodNotFound creates the error for an unhandled RPC method.
func MethodNotFound(method string, opts ...Option) *Error {
	return New(ErrCodeMethodNotFound,
		fmt.Sprintf("no handler for rpc method %q", method), opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
