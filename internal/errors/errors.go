package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown Code = "unknown"

	// Session and access
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"

	// Remote service
	CodeNetwork         Code = "network"
	CodeRemoteFailed    Code = "remote_failed"
	CodeProfileNotFound Code = "profile_not_found"
	CodeNotFound        Code = "not_found"

	// Build selection and transfer
	CodeNoBuilds          Code = "no_builds"
	CodeNoCompatibleBuild Code = "no_compatible_build"
	CodeDownloadFailed    Code = "download_failed"
	CodeBusy              Code = "busy"

	// Local state
	CodeStorage            Code = "storage"
	CodeInvalidInput       Code = "invalid_input"
	CodeConfigurationError Code = "configuration_error"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the user-facing message of the first structured error in
// the chain, or fallback when the chain carries none.
func MessageOf(err error, fallback string) string {
	var structured Error
	if errors.As(err, &structured) && structured.Message != "" {
		return structured.Message
	}
	return fallback
}
