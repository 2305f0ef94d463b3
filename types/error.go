package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Retrieval error codes
const (
	ErrChannelUnavailable ErrorCode = "CHANNEL_UNAVAILABLE"
	ErrAllChannelsFailed  ErrorCode = "ALL_CHANNELS_FAILED"
	ErrEmbeddingFailure   ErrorCode = "EMBEDDING_FAILURE"
	ErrRerankFailure      ErrorCode = "RERANK_FAILURE"
	ErrPipelineTimeout    ErrorCode = "PIPELINE_TIMEOUT"
)

// Tree build error codes
const (
	ErrSummarizationFailure  ErrorCode = "SUMMARIZATION_FAILURE"
	ErrTreeBuildAborted      ErrorCode = "TREE_BUILD_ABORTED"
	ErrTreeInvariantViolated ErrorCode = "TREE_INVARIANT_VIOLATION"
)

// Generic error codes
const (
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
	ErrTimeout       ErrorCode = "TIMEOUT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Channel   ChannelName `json:"channel,omitempty"`
	Retryable bool        `json:"retryable"`
	Cause     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithChannel records the channel that produced the error.
func (e *Error) WithChannel(channel ChannelName) *Error {
	e.Channel = channel
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
