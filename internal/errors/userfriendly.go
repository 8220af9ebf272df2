package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds raised by the harness. Match them with errors.Is.
var (
	// ErrFileNotFound is fatal: an input or expected-mitigation file is missing.
	ErrFileNotFound = errors.New("file not found")
	// ErrTransport is fatal: socket creation, send or receive failed.
	ErrTransport = errors.New("transport error")
	// ErrParse is fatal: an expected-mitigation file holds a non-numeric token.
	ErrParse = errors.New("parse error")
	// ErrMalformedLine is raised only in strict encoding mode.
	ErrMalformedLine = errors.New("malformed transition line")
	// ErrNotSent marks an exchange that failed before the update left the socket.
	ErrNotSent = errors.New("update not sent")
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// FileNotFound reports a missing input or mitigation file.
func FileNotFound(path string) error {
	return UserFriendlyError{
		Message: fmt.Sprintf("file %s can't be opened, please check if it exists", path),
		Hint:    "Input files are named <base>-<index>.txt; check --start and --size against the files on disk",
		Err:     fmt.Errorf("%w: %s", ErrFileNotFound, path),
	}
}

// WrapNetworkError wraps network errors with user-friendly context
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	wrapped := err
	if !errors.Is(err, ErrTransport) {
		wrapped = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with central node at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The central node engine may not be running, or there may be a network connectivity issue",
		Try:     "Pass --timeout-ms to bound the wait for a mitigation reply",
		Err:     wrapped,
	}
}

// WrapParseError wraps expected-mitigation parse failures.
func WrapParseError(err error, path string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Invalid expected mitigation file %s", path),
		Reason:  err.Error(),
		Hint:    "The first line must hold base-10 power classes separated by single spaces",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Run 'linknode init' to generate a run config interactively",
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	// Common network error patterns
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "No mitigation reply within the configured timeout"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - central node may not be listening on this port"
	}
	if strings.Contains(errStr, "no such host") {
		return "Host name could not be resolved"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or host unreachable"
	}

	return "Network communication failed"
}
