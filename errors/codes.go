package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: RPC timeouts, a worker that has not re-registered yet.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid identifiers, unknown RPC methods.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: handler panics, corrupted envelopes.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the routing-layer failure taxonomy.
const (
	// Routing failures, recoverable at the call site.
	ErrCodePlacementFailed   ErrorCode = "PLACEMENT_FAILED"   // No worker supports the agent type
	ErrCodeTimeout           ErrorCode = "TIMEOUT"            // RPC deadline elapsed with no response
	ErrCodeWorkerUnavailable ErrorCode = "WORKER_UNAVAILABLE" // Hosting worker disconnected or purged
	ErrCodeWorkerDraining    ErrorCode = "WORKER_DRAINING"    // Worker shutting down with RPCs in flight
	ErrCodeCanceled          ErrorCode = "CANCELED"           // Caller canceled the operation

	// Delivery failures.
	ErrCodeActivationFailed ErrorCode = "ACTIVATION_FAILED" // Agent factory failed during lazy construction
	ErrCodeMethodNotFound   ErrorCode = "METHOD_NOT_FOUND"  // RPC method not handled by the target agent
	ErrCodeInvalidID        ErrorCode = "INVALID_ID"        // Malformed agent id
	ErrCodeInvalidTopic     ErrorCode = "INVALID_TOPIC"     // Malformed topic id
	ErrCodeInvalidEnvelope  ErrorCode = "INVALID_ENVELOPE"  // Undecodable or unversioned wire frame

	// State store failures.
	ErrCodeConflict ErrorCode = "CONFLICT"  // Stale etag on optimistic write
	ErrCodeNotFound ErrorCode = "NOT_FOUND" // No stored state for the agent

	// Internal failures.
	ErrCodeInternal     ErrorCode = "INTERNAL"      // Unexpected internal error
	ErrCodeHandlerPanic ErrorCode = "HANDLER_PANIC" // Recovered panic at the dispatch boundary
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodePlacementFailed, ErrCodeTimeout, ErrCodeWorkerUnavailable,
		ErrCodeWorkerDraining, ErrCodeConflict:
		return CategoryTransient

	case ErrCodeActivationFailed, ErrCodeMethodNotFound, ErrCodeInvalidID,
		ErrCodeInvalidTopic, ErrCodeInvalidEnvelope, ErrCodeNotFound,
		ErrCodeCanceled:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodePlacementFailed:   "no agent worker available",
	ErrCodeTimeout:           "rpc timed out",
	ErrCodeWorkerUnavailable: "worker unavailable",
	ErrCodeWorkerDraining:    "worker shutting down",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeActivationFailed:  "agent activation failed",
	ErrCodeMethodNotFound:    "rpc method not found",
	ErrCodeInvalidID:         "invalid agent id",
	ErrCodeInvalidTopic:      "invalid topic id",
	ErrCodeInvalidEnvelope:   "invalid wire envelope",
	ErrCodeConflict:          "state version conflict",
	ErrCodeNotFound:          "agent state not found",
	ErrCodeInternal:          "internal error",
	ErrCodeHandlerPanic:      "recovered from handler panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
