// Tagged call results.
//
// Collaborator calls never signal failure through sentinel substrings in the
// returned text; callers branch on the result tag instead.

package llm

import "fmt"

// ErrorKind classifies a failed call.
type ErrorKind int

const (
	// ErrTransient means retries were exhausted on a retryable condition
	// (network failure, rate limit, server error).
	ErrTransient ErrorKind = iota
	// ErrAPI means the API rejected the request with a non-retryable error.
	ErrAPI
	// ErrEmpty means the model returned blank output after reasoning-block
	// stripping, across all attempts.
	ErrEmpty
	// ErrCancelled means the context was cancelled or its deadline passed.
	ErrCancelled
)

// String returns the kind's name.
func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrAPI:
		return "api"
	case ErrEmpty:
		return "empty"
	case ErrCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CallError describes a failed collaborator call.
type CallError struct {
	Kind   ErrorKind
	Detail string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("llm call failed (%s): %s", e.Kind, e.Detail)
}

// Result is the tagged outcome of a collaborator call: either Text with a
// nil Err, or a non-nil Err with empty Text.
type Result struct {
	Text string
	Err  *CallError
}

// Ok wraps successful output.
func Ok(text string) Result {
	return Result{Text: text}
}

// Fail wraps a failure of the given kind.
func Fail(kind ErrorKind, detail string) Result {
	return Result{Err: &CallError{Kind: kind, Detail: detail}}
}

// Failf wraps a failure with a formatted detail message.
func Failf(kind ErrorKind, format string, args ...interface{}) Result {
	return Fail(kind, fmt.Sprintf(format, args...))
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
