// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	plain := NewValidationError("content must not be empty", nil)
	assert.Equal(t, "validation: content must not be empty", plain.Error())

	cause := stderrors.New("unexpected end of JSON input")
	wrapped := NewDecodeError("bad backend line", cause)
	assert.Equal(t, "decode: bad backend line: unexpected end of JSON input", wrapped.Error())
	assert.Equal(t, cause, stderrors.Unwrap(wrapped))
}

func TestTypePredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		errorType string
		predicate func(error) bool
	}{
		{NewValidationError("x", nil), ErrValidation, IsValidation},
		{NewAuthError("x", nil), ErrAuth, IsAuth},
		{NewRateLimitError("x"), ErrRateLimit, IsRateLimit},
		{NewBackendUnavailableError("x"), ErrBackendUnavailable, IsBackendUnavailable},
		{NewSpawnError("x", nil), ErrSpawn, IsSpawn},
		{NewResumeError("x", nil), ErrResume, IsResume},
		{NewSessionNotFoundError("s1"), ErrSessionNotFound, IsSessionNotFound},
		{NewSessionClosedError("s1"), ErrSessionClosed, IsSessionClosed},
		{NewAlreadyExistsError("s1"), ErrAlreadyExists, IsAlreadyExists},
		{NewStorageError("x", nil), ErrStorage, IsStorage},
	}

	for _, tc := range tests {
		t.Run(tc.errorType, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tc.predicate(tc.err))
			assert.Equal(t, tc.errorType, TypeOf(tc.err))
			assert.False(t, tc.predicate(stderrors.New("plain")))
		})
	}
}

func TestTypeSurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := NewSpawnError("binary rejected", nil)
	wrapped := fmt.Errorf("connecting backend: %w", inner)

	assert.True(t, IsSpawn(wrapped))
	assert.Equal(t, ErrSpawn, TypeOf(wrapped))

	var e *Error
	require.True(t, stderrors.As(wrapped, &e))
	assert.Equal(t, "binary rejected", e.Message)
}

func TestTypeOfPlainError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ErrInternal, TypeOf(stderrors.New("anything")))
}
