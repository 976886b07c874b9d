// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/message"
)

func TestEncodeUserMessage(t *testing.T) {
	t.Parallel()

	var enc Encoder
	line, err := enc.Encode(message.NewUserMessage("fix the bug",
		message.ImageBlock("aGVsbG8=", "image/png")))
	require.NoError(t, err)

	root := gjson.ParseBytes(line)
	assert.Equal(t, "user", root.Get("type").String())
	assert.Equal(t, "user", root.Get("message.role").String())
	assert.Equal(t, "text", root.Get("message.content.0.type").String())
	assert.Equal(t, "fix the bug", root.Get("message.content.0.text").String())
	assert.Equal(t, "image", root.Get("message.content.1.type").String())
	assert.Equal(t, "base64", root.Get("message.content.1.source.type").String())
	assert.Equal(t, "image/png", root.Get("message.content.1.source.media_type").String())
}

func TestEncodePermissionResponse(t *testing.T) {
	t.Parallel()

	var enc Encoder
	msg := message.NewPermissionResponse("creq_7", "allow",
		map[string]any{"command": "ls"}, "")
	line, err := enc.Encode(msg)
	require.NoError(t, err)

	root := gjson.ParseBytes(line)
	assert.Equal(t, "control_response", root.Get("type").String())
	assert.Equal(t, "success", root.Get("response.subtype").String())
	assert.Equal(t, "creq_7", root.Get("response.request_id").String())
	assert.Equal(t, "allow", root.Get("response.response.behavior").String())
	assert.Equal(t, "ls", root.Get("response.response.updatedInput.command").String())
}

func TestEncodePermissionResponseDenyWithMessage(t *testing.T) {
	t.Parallel()

	var enc Encoder
	msg := message.NewPermissionResponse("creq_8", "deny", nil, "too risky")
	line, err := enc.Encode(msg)
	require.NoError(t, err)

	root := gjson.ParseBytes(line)
	assert.Equal(t, "deny", root.Get("response.response.behavior").String())
	assert.Equal(t, "too risky", root.Get("response.response.message").String())
	assert.False(t, root.Get("response.response.updatedInput").Exists())
}

func TestEncodePermissionResponseRequiresRequestID(t *testing.T) {
	t.Parallel()

	var enc Encoder
	_, err := enc.Encode(message.Unified{
		Type:     message.TypePermissionResponse,
		Metadata: map[string]any{"behavior": "allow"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrEncode, errors.TypeOf(err))
}

func TestEncodeInterruptNumbersRequests(t *testing.T) {
	t.Parallel()

	var enc Encoder
	first, err := enc.Encode(message.NewInterrupt())
	require.NoError(t, err)
	second, err := enc.Encode(message.NewInterrupt())
	require.NoError(t, err)

	assert.Equal(t, "control_request", gjson.GetBytes(first, "type").String())
	assert.Equal(t, "interrupt", gjson.GetBytes(first, "request.subtype").String())
	assert.Equal(t, "req_1", gjson.GetBytes(first, "request_id").String())
	assert.Equal(t, "req_2", gjson.GetBytes(second, "request_id").String())
}

func TestEncodeConfigurationChanges(t *testing.T) {
	t.Parallel()

	var enc Encoder
	line, err := enc.Encode(message.NewConfigurationChange("model", "claude-opus-4-5"))
	require.NoError(t, err)
	assert.Equal(t, "set_model", gjson.GetBytes(line, "request.subtype").String())
	assert.Equal(t, "claude-opus-4-5", gjson.GetBytes(line, "request.model").String())

	line, err = enc.Encode(message.NewConfigurationChange("permission_mode", "plan"))
	require.NoError(t, err)
	assert.Equal(t, "set_permission_mode", gjson.GetBytes(line, "request.subtype").String())
	assert.Equal(t, "plan", gjson.GetBytes(line, "request.mode").String())

	_, err = enc.Encode(message.NewConfigurationChange("unknown_setting", "x"))
	require.Error(t, err)
}

func TestEncodeUnsupportedTypeFails(t *testing.T) {
	t.Parallel()

	var enc Encoder
	_, err := enc.Encode(message.Unified{Type: message.TypeSessionInit})
	require.Error(t, err)
	assert.Equal(t, errors.ErrEncode, errors.TypeOf(err))
}

func TestInitializeRequestShape(t *testing.T) {
	t.Parallel()

	raw := InitializeRequest("init_1")
	require.True(t, json.Valid(raw))
	assert.Equal(t, "control_request", gjson.GetBytes(raw, "type").String())
	assert.Equal(t, "init_1", gjson.GetBytes(raw, "request_id").String())
	assert.Equal(t, "initialize", gjson.GetBytes(raw, "request.subtype").String())
}
