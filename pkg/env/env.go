// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package env abstracts environment variable access so components that read
// the environment can be tested with injected values.
package env

import "os"

// Reader reads environment variables.
type Reader interface {
	Getenv(key string) string
}

// OSReader reads from the process environment.
type OSReader struct{}

// Getenv returns the value of the environment variable key.
func (*OSReader) Getenv(key string) string {
	return os.Getenv(key)
}

// MapReader reads from a fixed map. Intended for tests.
type MapReader map[string]string

// Getenv returns the mapped value for key, or "".
func (m MapReader) Getenv(key string) string {
	return m[key]
}
