package subprocess

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jrepp/prism-subprocess/pkg/shellutil"
)

// SubprocessError represents an error with additional context for troubleshooting.
type SubprocessError struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// ErrorCode identifies categories of errors
type ErrorCode string

const (
	// Spawn errors
	ErrorCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	ErrorCodeSpawnFailed     ErrorCode = "SPAWN_FAILED"

	// Platform errors other than spawning
	ErrorCodeOSError ErrorCode = "OS_ERROR"

	// Completion errors
	ErrorCodeTimeoutExpired     ErrorCode = "TIMEOUT_EXPIRED"
	ErrorCodeCalledProcessError ErrorCode = "CALLED_PROCESS_ERROR"

	// Caller errors
	ErrorCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeProcessClosed   ErrorCode = "PROCESS_CLOSED"
)

// Error implements the error interface
func (e *SubprocessError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *SubprocessError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SubprocessError with the given code and message
func NewError(code ErrorCode, message string) *SubprocessError {
	return &SubprocessError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *SubprocessError) WithContext(key string, value interface{}) *SubprocessError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *SubprocessError) WithCause(cause error) *SubprocessError {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *SubprocessError) WithSuggestion(suggestion string) *SubprocessError {
	e.Suggestion = suggestion
	return e
}

// TimeoutExpired is returned when a bounded wait runs out. Stdout and Stderr
// hold whatever was captured before the deadline when the error comes from
// Run; they are nil when it comes from Process.Wait.
type TimeoutExpired struct {
	*SubprocessError

	Command []string
	Timeout time.Duration
	Stdout  []byte
	Stderr  []byte
}

// Unwrap exposes the structured error so GetErrorCode and errors.As work.
func (e *TimeoutExpired) Unwrap() error {
	return e.SubprocessError
}

// CalledProcessError is returned by Run when a checked command exits non-zero
// or is killed by a signal.
type CalledProcessError struct {
	*SubprocessError

	Command    []string
	ReturnCode int
	Stdout     []byte
	Stderr     []byte
}

// Unwrap exposes the structured error so GetErrorCode and errors.As work.
func (e *CalledProcessError) Unwrap() error {
	return e.SubprocessError
}

// Common error constructors with helpful suggestions

// ErrCommandNotFound creates an error for a program that does not resolve
func ErrCommandNotFound(name string) *SubprocessError {
	return NewError(ErrorCodeCommandNotFound,
		fmt.Sprintf("command not found: %s", name)).
		WithContext("program", name).
		WithSuggestion("Check the program name and that its directory is on PATH")
}

// ErrSpawnFailed creates an error for a failed process creation call
func ErrSpawnFailed(program string, cause error) *SubprocessError {
	return NewError(ErrorCodeSpawnFailed,
		fmt.Sprintf("failed to spawn %s", program)).
		WithContext("program", program).
		WithCause(cause)
}

// ErrOS wraps a failed platform call
func ErrOS(op string, cause error) *SubprocessError {
	return NewError(ErrorCodeOSError,
		fmt.Sprintf("%s failed", op)).
		WithContext("op", op).
		WithCause(cause)
}

// ErrInvalidArgument creates an error for a logically inconsistent request
func ErrInvalidArgument(field string, value interface{}, reason string) *SubprocessError {
	return NewError(ErrorCodeInvalidArgument,
		fmt.Sprintf("invalid %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// ErrProcessClosed creates an error for use of a closed or moved-from process
func ErrProcessClosed(id string) *SubprocessError {
	return NewError(ErrorCodeProcessClosed, "process handle is closed").
		WithContext("process_id", id)
}

// ErrTimeoutExpired creates the error returned when a wait runs out
func ErrTimeoutExpired(command []string, timeout time.Duration, stdout, stderr []byte) *TimeoutExpired {
	return &TimeoutExpired{
		SubprocessError: NewError(ErrorCodeTimeoutExpired,
			fmt.Sprintf("command timed out after %s: %s", timeout, shellutil.CommandLine(command))).
			WithSuggestion("Raise the timeout or terminate the process"),
		Command: command,
		Timeout: timeout,
		Stdout:  stdout,
		Stderr:  stderr,
	}
}

// ErrCalledProcess creates the error returned for a failed checked command
func ErrCalledProcess(command []string, returnCode int, stdout, stderr []byte) *CalledProcessError {
	msg := fmt.Sprintf("command exited with status %d: %s", returnCode, shellutil.CommandLine(command))
	if returnCode < 0 {
		msg = fmt.Sprintf("command killed by signal %d: %s", -returnCode, shellutil.CommandLine(command))
	}
	return &CalledProcessError{
		SubprocessError: NewError(ErrorCodeCalledProcessError, msg).
			WithContext("return_code", returnCode),
		Command:    command,
		ReturnCode: returnCode,
		Stdout:     stdout,
		Stderr:     stderr,
	}
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode returns the error code from an error, or empty string if not a SubprocessError
func GetErrorCode(err error) ErrorCode {
	var subErr *SubprocessError
	if errors.As(err, &subErr) {
		return subErr.Code
	}
	return ""
}

// GetSuggestion returns the suggestion from an error, or empty string if not available
func GetSuggestion(err error) string {
	var subErr *SubprocessError
	if errors.As(err, &subErr) {
		return subErr.Suggestion
	}
	return ""
}

// IsOSError reports whether err came from a platform call, including a
// failed spawn.
func IsOSError(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeOSError, ErrorCodeSpawnFailed:
		return true
	case "":
		var sysErr *os.SyscallError
		var errno syscall.Errno
		return errors.As(err, &sysErr) || errors.As(err, &errno)
	}
	return false
}
