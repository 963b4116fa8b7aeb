// Package toolerrors provides the structured error type and failure taxonomy
// used across tool validation, dispatch, and the orchestration loop. ToolError
// preserves error chains and supports errors.Is/As while carrying the failure
// Kind the loop uses to decide whether a failure is recoverable.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a tool failure. The orchestration loop converts every
// recoverable kind into a tool turn surfaced back to the oracle; only fatal
// kinds terminate a session.
type Kind string

const (
	// KindUnknownTool indicates the requested tool is not in the registry.
	// Synthesized locally; no adapter is called.
	KindUnknownTool Kind = "unknown_tool"

	// KindInvalidArguments indicates the tool call arguments failed schema
	// validation. Synthesized locally; no adapter is called.
	KindInvalidArguments Kind = "invalid_arguments"

	// KindAuthorizationDenied indicates the session lacks the scope the tool
	// requires. Synthesized locally; no adapter is called.
	KindAuthorizationDenied Kind = "authorization_denied"

	// KindTransient indicates a retryable adapter failure (network error,
	// rate limit, timeout with unknown side-effect state).
	KindTransient Kind = "transient"

	// KindPermanent indicates a non-retryable adapter failure (bad request,
	// upstream auth rejection).
	KindPermanent Kind = "permanent"

	// KindPartial indicates the adapter failed but the external side effect
	// may have occurred. Final answers must flag the uncertainty.
	KindPartial Kind = "partial"

	// KindOracleTimeout indicates the oracle did not decide within its
	// per-call timeout. Fatal for the session.
	KindOracleTimeout Kind = "oracle_timeout"

	// KindMalformedAction indicates the oracle returned neither a final answer
	// nor a valid tool call. Fed back once; fatal when repeated.
	KindMalformedAction Kind = "malformed_action"

	// KindBudgetExceeded indicates the session exhausted its iteration or
	// wall-clock budget. Fatal for the session.
	KindBudgetExceeded Kind = "budget_exceeded"
)

// Recoverable reports whether a failure of this kind is surfaced to the oracle
// as a tool turn rather than terminating the session.
func (k Kind) Recoverable() bool {
	switch k {
	case KindUnknownTool, KindInvalidArguments, KindAuthorizationDenied, KindTransient, KindPartial, KindPermanent:
		return true
	default:
		return false
	}
}

// ToolError represents a structured tool failure that preserves message, kind,
// and causal context while still implementing the standard error interface.
// Tool errors may be nested via Cause to retain diagnostics across dispatch
// boundaries.
type ToolError struct {
	// Kind classifies the failure for the orchestration loop.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling errors.Is/As chains.
	Cause *ToolError
}

// New constructs a ToolError with the provided kind and message.
func New(kind Kind, message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Kind: kind, Message: message}
}

// Newf formats according to a format specifier and returns the string as a
// ToolError of the provided kind.
func Newf(kind Kind, format string, args ...any) *ToolError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs a ToolError that wraps an underlying error. The cause is
// converted into a ToolError chain so diagnostics survive serialization while
// still supporting errors.Is/As through Unwrap.
func Wrap(kind Kind, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Kind: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain. Errors that
// already carry a ToolError keep their kind; others default to KindPermanent.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Kind:    KindPermanent,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether the failure is worth retrying from the oracle's
// perspective. Only transient failures qualify; partial failures are surfaced
// but must not be blindly retried because the side effect may have landed.
func (e *ToolError) Retryable() bool {
	return e != nil && e.Kind == KindTransient
}
