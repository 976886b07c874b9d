// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the structured error type and the closed set of
// failure kinds used throughout the broker. The type names are part of the
// contract: handlers decide from the type whether a failure is dropped with a
// trace, surfaced to consumers as a structured error message, or converted
// into a policy action.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrValidation is returned for bad input on the consumer or control boundary.
	ErrValidation = "validation"

	// ErrAuth is returned when the connection authenticator rejects a consumer.
	ErrAuth = "auth"

	// ErrRateLimit is returned when a consumer exceeds its message rate budget.
	ErrRateLimit = "rate_limit"

	// ErrBackendUnavailable is returned when a send is attempted on a session
	// with no backend connection.
	ErrBackendUnavailable = "backend_unavailable"

	// ErrEncode is returned when the outbound adapter encoder cannot translate
	// a unified message to the backend wire form.
	ErrEncode = "encode"

	// ErrDecode is returned when the inbound adapter decoder cannot translate
	// a backend payload to a unified message.
	ErrDecode = "decode"

	// ErrSpawn is returned for binary validation, lookup, pre-spawn hook, or
	// OS-level spawn failures.
	ErrSpawn = "spawn"

	// ErrResume is returned when a resumed backend exits within the resume
	// failure threshold.
	ErrResume = "resume"

	// ErrCapabilitiesTimeout is returned when capability negotiation does not
	// complete within its deadline.
	ErrCapabilitiesTimeout = "capabilities_timeout"

	// ErrConsumerSend is returned when writing to a consumer socket fails.
	ErrConsumerSend = "consumer_send"

	// ErrStorage is returned for persistence failures. Storage is best-effort;
	// callers log and continue.
	ErrStorage = "storage"

	// ErrSessionNotFound is returned when a session id is unknown to the registry.
	ErrSessionNotFound = "session_not_found"

	// ErrSessionClosed is returned for operations on a closed session or
	// backend connection.
	ErrSessionClosed = "session_closed"

	// ErrAlreadyExists is returned when creating a session whose id is taken.
	ErrAlreadyExists = "already_exists"

	// ErrInternal is returned for unclassified internal failures.
	ErrInternal = "internal"
)

// Error represents a classified broker error.
type Error struct {
	// Type is one of the error type constants above.
	Type string

	// Message is the human-readable description. Consumers may see it.
	Message string

	// Cause is the underlying error, if any. Never surfaced to consumers.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error of the given type.
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewAuthError creates a new authentication error.
func NewAuthError(message string, cause error) *Error {
	return NewError(ErrAuth, message, cause)
}

// NewRateLimitError creates a new rate-limit error.
func NewRateLimitError(message string) *Error {
	return NewError(ErrRateLimit, message, nil)
}

// NewBackendUnavailableError creates a new backend-unavailable error.
func NewBackendUnavailableError(message string) *Error {
	return NewError(ErrBackendUnavailable, message, nil)
}

// NewEncodeError creates a new outbound translation error.
func NewEncodeError(message string, cause error) *Error {
	return NewError(ErrEncode, message, cause)
}

// NewDecodeError creates a new inbound translation error.
func NewDecodeError(message string, cause error) *Error {
	return NewError(ErrDecode, message, cause)
}

// NewSpawnError creates a new spawn error.
func NewSpawnError(message string, cause error) *Error {
	return NewError(ErrSpawn, message, cause)
}

// NewResumeError creates a new resume error.
func NewResumeError(message string, cause error) *Error {
	return NewError(ErrResume, message, cause)
}

// NewCapabilitiesTimeoutError creates a new capabilities timeout error.
func NewCapabilitiesTimeoutError(message string) *Error {
	return NewError(ErrCapabilitiesTimeout, message, nil)
}

// NewConsumerSendError creates a new consumer send error.
func NewConsumerSendError(message string, cause error) *Error {
	return NewError(ErrConsumerSend, message, cause)
}

// NewStorageError creates a new storage error.
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorage, message, cause)
}

// NewSessionNotFoundError creates a new session-not-found error.
func NewSessionNotFoundError(sessionID string) *Error {
	return NewError(ErrSessionNotFound, fmt.Sprintf("session %s not found", sessionID), nil)
}

// NewSessionClosedError creates a new session-closed error.
func NewSessionClosedError(sessionID string) *Error {
	return NewError(ErrSessionClosed, fmt.Sprintf("session %s is closed", sessionID), nil)
}

// NewAlreadyExistsError creates a new already-exists error.
func NewAlreadyExistsError(sessionID string) *Error {
	return NewError(ErrAlreadyExists, fmt.Sprintf("session %s already exists", sessionID), nil)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// TypeOf returns the broker error type of err, or ErrInternal when err does
// not carry one.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrInternal
}

// IsType checks whether err is a broker error of the given type.
func IsType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool { return IsType(err, ErrValidation) }

// IsAuth checks if the error is an authentication error.
func IsAuth(err error) bool { return IsType(err, ErrAuth) }

// IsRateLimit checks if the error is a rate-limit error.
func IsRateLimit(err error) bool { return IsType(err, ErrRateLimit) }

// IsBackendUnavailable checks if the error is a backend-unavailable error.
func IsBackendUnavailable(err error) bool { return IsType(err, ErrBackendUnavailable) }

// IsSpawn checks if the error is a spawn error.
func IsSpawn(err error) bool { return IsType(err, ErrSpawn) }

// IsResume checks if the error is a resume error.
func IsResume(err error) bool { return IsType(err, ErrResume) }

// IsSessionNotFound checks if the error is a session-not-found error.
func IsSessionNotFound(err error) bool { return IsType(err, ErrSessionNotFound) }

// IsSessionClosed checks if the error is a session-closed error.
func IsSessionClosed(err error) bool { return IsType(err, ErrSessionClosed) }

// IsAlreadyExists checks if the error is an already-exists error.
func IsAlreadyExists(err error) bool { return IsType(err, ErrAlreadyExists) }

// IsStorage checks if the error is a storage error.
func IsStorage(err error) bool { return IsType(err, ErrStorage) }
