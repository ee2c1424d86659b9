// Package errors defines the structured error type shared by the widget
// runtime. Every operation-level failure is represented as one of these so it
// can be surfaced to the conversation as a result payload instead of escaping
// as a raw error.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode classifies a failure.
type ErrorCode string

const (
	// Precondition failures: no target record resolvable before any network call.
	ErrCodePrecondition ErrorCode = "PRECONDITION"

	// Validation failures: bad category, malformed number, oversized title.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// Record store failures.
	ErrCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeTransport      ErrorCode = "TRANSPORT"

	// Slug resolution exhausted every candidate collection name.
	ErrCodeSlugUnresolved ErrorCode = "SLUG_UNRESOLVED"

	// Transcript restore hit an unrecognized persisted entry kind.
	ErrCodeRestoreCorrupt ErrorCode = "RESTORE_CORRUPT"

	// Configuration errors.
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Storage errors.
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"

	// Bridge publish failures (fire-and-forget; logged, never fatal).
	ErrCodeBridgePublish ErrorCode = "BRIDGE_PUBLISH"

	// Generic errors.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is a structured runtime error.
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Retryable   bool
	UserMessage string
	Remediation []string
}

// New creates a new structured error.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap wraps an existing error with runtime error context.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds a context key-value pair.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithUserMessage sets the human-friendly message shown in the conversation.
func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

// WithRemediation appends actionable remediation tips.
func (e *Error) WithRemediation(tips ...string) *Error {
	if len(tips) == 0 {
		return e
	}
	e.Remediation = append([]string{}, tips...)
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}
	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// UserFacing returns the message meant for end users, falling back to the
// internal message when no user message was set.
func (e *Error) UserFacing() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// IsCode checks whether an error carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	re, ok := err.(*Error)
	if !ok {
		return false
	}
	return re.Code == code
}

// GetCode extracts the error code, defaulting to INTERNAL for plain errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	re, ok := err.(*Error)
	if !ok {
		return ErrCodeInternal
	}
	return re.Code
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	re, ok := err.(*Error)
	if !ok {
		return false
	}
	return re.Retryable
}
