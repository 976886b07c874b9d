// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	meta := map[string]any{
		"b":       int64(2),
		"a":       "x",
		"nested":  map[string]any{"z": 1, "y": nil, "list": []any{int(3), "s"}},
		"dropped": nil,
		"n":       json.Number("4.5"),
	}

	once := Canonicalize(meta)
	twice := Canonicalize(once)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("canonicalize not idempotent (-once +twice):\n%s", diff)
	}

	m, ok := once.(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, m, "dropped")
	assert.Equal(t, float64(2), m["b"])
	assert.Equal(t, float64(4.5), m["n"])

	nested, ok := m["nested"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, nested, "y")
	assert.Equal(t, []any{float64(3), "s"}, nested["list"])
}

func TestCanonicalJSONStableKeyOrder(t *testing.T) {
	t.Parallel()

	first, err := CanonicalJSON(map[string]any{"z": 1, "a": map[string]any{"k2": 2, "k1": 1}})
	require.NoError(t, err)
	second, err := CanonicalJSON(map[string]any{"a": map[string]any{"k1": 1, "k2": 2}, "z": 1})
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, `{"a":{"k1":1,"k2":2},"z":1}`, string(first))
}

func TestStatusChangeWireShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(NewStatusChange("idle"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status_change","status":"idle"}`, string(b))
}

func TestProcessOutputWireShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(NewProcessOutput("stderr", "HELLO"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"process_output","stream":"stderr","data":"HELLO"}`, string(b))
}

func TestMetadataParsers(t *testing.T) {
	t.Parallel()

	msg := Unified{
		Type: TypeResult,
		Role: RoleSystem,
		Metadata: map[string]any{
			"num_turns":  float64(1),
			"subtype":    "success",
			"session_id": "backend-abc",
			"tools":      []any{"Bash", "Read"},
		},
	}

	turns, ok := msg.ResultNumTurns()
	require.True(t, ok)
	assert.Equal(t, 1, turns)
	assert.False(t, msg.ResultIsError())

	id, ok := msg.BackendSessionID()
	require.True(t, ok)
	assert.Equal(t, "backend-abc", id)

	tools, ok := msg.MetaStrings("tools")
	require.True(t, ok)
	assert.Equal(t, []string{"Bash", "Read"}, tools)

	_, ok = msg.MetaString("missing")
	assert.False(t, ok)
}

func TestResultIsErrorSubtypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subtype string
		isError bool
	}{
		{"success", false},
		{"success_turn", false},
		{"", false},
		{"error_during_execution", true},
		{"error_max_turns", true},
	}

	for _, tc := range tests {
		t.Run("subtype_"+tc.subtype, func(t *testing.T) {
			t.Parallel()
			msg := Unified{Type: TypeResult, Metadata: map[string]any{"subtype": tc.subtype}}
			assert.Equal(t, tc.isError, msg.ResultIsError())
		})
	}
}

func TestStreamEventInference(t *testing.T) {
	t.Parallel()

	start := Unified{
		Type: TypeStreamEvent,
		Role: RoleAssistant,
		Metadata: map[string]any{
			"event":              map[string]any{"type": "message_start"},
			"parent_tool_use_id": nil,
		},
	}
	evType, ok := start.StreamEventType()
	require.True(t, ok)
	assert.Equal(t, "message_start", evType)
	assert.False(t, start.InsideSubagent())

	sub := Unified{
		Type: TypeStreamEvent,
		Metadata: map[string]any{
			"event":              map[string]any{"type": "message_start"},
			"parent_tool_use_id": "toolu_123",
		},
	}
	assert.True(t, sub.InsideSubagent())
}

func TestNewUserMessageContent(t *testing.T) {
	t.Parallel()

	msg := NewUserMessage("hi", ImageBlock("ZGF0YQ==", "image/png"))
	require.Len(t, msg.Content, 2)
	assert.Equal(t, BlockText, msg.Content[0].Type)
	assert.Equal(t, "hi", msg.Content[0].Text)
	assert.Equal(t, BlockImage, msg.Content[1].Type)
	assert.Equal(t, "hi", msg.JoinedText())
}
