// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/errors"
)

// runSchemaCmd executes a fresh schema command and returns its output.
// Tests share the package-level output flag, so they must not run in
// parallel.
func runSchemaCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newSchemaCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestSchemaCommandConfig(t *testing.T) { //nolint:paralleltest // Shares the output flag
	out, err := runSchemaCmd(t)
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))

	assert.Equal(t, "agentmux configuration", schema["title"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema should have properties")
	assert.Contains(t, props, "host")
	assert.Contains(t, props, "port")
	assert.Contains(t, props, "auth")
	assert.Contains(t, props, "state")
}

func TestSchemaCommandSession(t *testing.T) { //nolint:paralleltest // Shares the output flag
	out, err := runSchemaCmd(t, "session")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))

	assert.Equal(t, "agentmux session snapshot", schema["title"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema should have properties")
	assert.Contains(t, props, "schema_version")
	assert.Contains(t, props, "message_history")
	assert.Contains(t, props, "pending_permissions")
}

func TestSchemaCommandUnknownKind(t *testing.T) { //nolint:paralleltest // Shares the output flag
	_, err := runSchemaCmd(t, "bogus")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestSchemaCommandWritesFile(t *testing.T) { //nolint:paralleltest // Shares the output flag
	path := filepath.Join(t.TempDir(), "config.schema.json")

	out, err := runSchemaCmd(t, "config", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "agentmux configuration", schema["title"])
}
