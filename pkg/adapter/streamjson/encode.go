// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamjson implements the stream-json wire codec spoken by Claude
// Code style backends: one JSON protocol message per line or frame. Both the
// stdio adapter and the inverted WebSocket adapter translate through it, so
// the unified mapping lives in exactly one place.
package streamjson

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/message"
)

// Encoder translates unified messages into CLI stream-json input lines.
// Control requests it originates carry monotonically numbered ids so the
// CLI's responses can be correlated.
type Encoder struct {
	reqSeq atomic.Uint64
}

func (e *Encoder) nextRequestID() string {
	return fmt.Sprintf("req_%d", e.reqSeq.Add(1))
}

// Encode returns the wire line for one unified message, without trailing
// newline. Unencodable types return a structured encode error; the caller
// traces and drops.
func (e *Encoder) Encode(msg message.Unified) ([]byte, error) {
	switch msg.Type {
	case message.TypeUserMessage:
		return encodeUserMessage(msg)
	case message.TypePermissionResponse:
		return encodePermissionResponse(msg)
	case message.TypeInterrupt:
		return e.encodeControlRequest(map[string]any{"subtype": "interrupt"})
	case message.TypeConfigurationChange:
		return e.encodeConfigurationChange(msg)
	default:
		return nil, errors.NewEncodeError(
			fmt.Sprintf("no wire form for unified type %q", msg.Type), nil)
	}
}

// encodeUserMessage maps text and image blocks onto the Anthropic message
// param shape the CLI expects.
func encodeUserMessage(msg message.Unified) ([]byte, error) {
	content := make([]map[string]any, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case message.BlockText:
			content = append(content, map[string]any{"type": "text", "text": block.Text})
		case message.BlockImage:
			content = append(content, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": block.MediaType,
					"data":       block.Data,
				},
			})
		default:
			// Other block kinds never originate from consumers.
		}
	}
	return marshalLine(map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
	})
}

// encodePermissionResponse answers a pending can_use_tool control request.
func encodePermissionResponse(msg message.Unified) ([]byte, error) {
	requestID, ok := msg.MetaString("request_id")
	if !ok || requestID == "" {
		return nil, errors.NewEncodeError("permission response without request id", nil)
	}
	behavior, _ := msg.MetaString("behavior")

	inner := map[string]any{"behavior": behavior}
	if input, ok := msg.MetaMap("updated_input"); ok {
		inner["updatedInput"] = input
	}
	if perms, ok := msg.MetaSlice("updated_permissions"); ok {
		inner["updatedPermissions"] = perms
	}
	if text, ok := msg.MetaString("message"); ok && text != "" {
		inner["message"] = text
	}
	return marshalLine(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   inner,
		},
	})
}

func (e *Encoder) encodeControlRequest(request map[string]any) ([]byte, error) {
	return marshalLine(map[string]any{
		"type":       "control_request",
		"request_id": e.nextRequestID(),
		"request":    request,
	})
}

// encodeConfigurationChange maps a single changed setting onto the CLI's
// control vocabulary.
func (e *Encoder) encodeConfigurationChange(msg message.Unified) ([]byte, error) {
	setting, _ := msg.MetaString("setting")
	value, _ := msg.MetaString("value")
	switch setting {
	case "model":
		return e.encodeControlRequest(map[string]any{"subtype": "set_model", "model": value})
	case "permission_mode":
		return e.encodeControlRequest(map[string]any{"subtype": "set_permission_mode", "mode": value})
	default:
		return nil, errors.NewEncodeError(
			fmt.Sprintf("no control request for setting %q", setting), nil)
	}
}

func marshalLine(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewEncodeError("marshal wire line", err)
	}
	return b, nil
}

// InitializeRequest builds the adapter-native initialize control request
// used by the capability negotiator. The caller supplies the correlation id
// and delivers the bytes through SendRaw.
func InitializeRequest(requestID string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"control_request","request_id":%q,"request":{"subtype":"initialize"}}`,
		requestID))
}
