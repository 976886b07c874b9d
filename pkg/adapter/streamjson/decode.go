// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package streamjson

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/message"
)

// DecodeLine translates one CLI stdout line into a unified message. The
// second return is false for lines that parse fine but have no unified
// mapping; those are traced and dropped, never errors. A returned error
// means the line was not valid protocol JSON at all.
func DecodeLine(line []byte) (message.Unified, bool, error) {
	if !gjson.ValidBytes(line) {
		return message.Unified{}, false, errors.NewDecodeError("line is not valid JSON", nil)
	}
	root := gjson.ParseBytes(line)
	wireType := root.Get("type").String()

	switch wireType {
	case "system":
		return decodeSystem(root)
	case "assistant":
		return decodeAssistant(root), true, nil
	case "user":
		return decodeUser(root), true, nil
	case "result":
		return decodeResult(root), true, nil
	case "stream_event":
		return decodeStreamEvent(root), true, nil
	case "control_request":
		return decodeControlRequest(root)
	case "control_response":
		return decodeControlResponse(root), true, nil
	case "tool_progress":
		return decodeToolProgress(root), true, nil
	case "tool_use_summary":
		return decodeToolUseSummary(root), true, nil
	case "auth_status":
		return decodeAuthStatus(root), true, nil
	case "":
		return message.Unified{}, false, errors.NewDecodeError("line has no type field", nil)
	default:
		return message.Unified{}, false, nil
	}
}

func decodeSystem(root gjson.Result) (message.Unified, bool, error) {
	switch root.Get("subtype").String() {
	case "init":
		return decodeInit(root), true, nil
	case "status":
		return message.Unified{
			Type: message.TypeStatusChange,
			Role: message.RoleSystem,
			Metadata: map[string]any{
				"status":     root.Get("status").String(),
				"session_id": root.Get("session_id").String(),
			},
		}, true, nil
	default:
		// compact_boundary, hook lifecycle, task notifications and the
		// rest have no consumer-facing mapping.
		return message.Unified{}, false, nil
	}
}

func decodeInit(root gjson.Result) message.Unified {
	meta := map[string]any{
		"session_id":      root.Get("session_id").String(),
		"model":           root.Get("model").String(),
		"cwd":             root.Get("cwd").String(),
		"permission_mode": root.Get("permissionMode").String(),
		"tools":           stringSlice(root.Get("tools")),
		"agents":          stringSlice(root.Get("agents")),
		"skills":          stringSlice(root.Get("skills")),
		"slash_commands":  stringSlice(root.Get("slash_commands")),
	}
	if servers := root.Get("mcp_servers"); servers.IsArray() {
		meta["mcp_servers"] = anyValue(servers)
	}
	if version := root.Get("claude_code_version").String(); version != "" {
		meta["agent_version"] = version
	}
	return message.Unified{Type: message.TypeSessionInit, Role: message.RoleSystem, Metadata: meta}
}

func decodeAssistant(root gjson.Result) message.Unified {
	msg := message.Unified{
		Type:    message.TypeAssistant,
		Role:    message.RoleAssistant,
		Content: decodeBlocks(root.Get("message.content")),
		Metadata: map[string]any{
			"session_id": root.Get("session_id").String(),
		},
	}
	if id := root.Get("message.id").String(); id != "" {
		msg.Metadata["message_id"] = id
	}
	if usage := root.Get("message.usage"); usage.Exists() {
		msg.Metadata["usage"] = anyValue(usage)
	}
	if parent := root.Get("parent_tool_use_id"); parent.Exists() && parent.Type != gjson.Null {
		msg.Metadata["parent_tool_use_id"] = parent.String()
	}
	return msg
}

func decodeUser(root gjson.Result) message.Unified {
	msg := message.Unified{
		Type:    message.TypeUserMessage,
		Role:    message.RoleUser,
		Content: decodeBlocks(root.Get("message.content")),
		Metadata: map[string]any{
			"session_id": root.Get("session_id").String(),
		},
	}
	if parent := root.Get("parent_tool_use_id"); parent.Exists() && parent.Type != gjson.Null {
		msg.Metadata["parent_tool_use_id"] = parent.String()
	}
	if root.Get("isSynthetic").Bool() {
		msg.Metadata["synthetic"] = true
	}
	return msg
}

func decodeResult(root gjson.Result) message.Unified {
	meta := map[string]any{
		"session_id":     root.Get("session_id").String(),
		"subtype":        root.Get("subtype").String(),
		"is_error":       root.Get("is_error").Bool(),
		"num_turns":      root.Get("num_turns").Int(),
		"total_cost_usd": root.Get("total_cost_usd").Float(),
		"duration_ms":    root.Get("duration_ms").Int(),
	}
	if usage := root.Get("usage"); usage.Exists() {
		meta["usage"] = anyValue(usage)
	}
	if text := root.Get("result").String(); text != "" {
		meta["result"] = text
	}
	return message.Unified{Type: message.TypeResult, Role: message.RoleSystem, Metadata: meta}
}

func decodeStreamEvent(root gjson.Result) message.Unified {
	meta := map[string]any{
		"session_id": root.Get("session_id").String(),
	}
	if event := root.Get("event"); event.Exists() {
		meta["event"] = anyValue(event)
	}
	if parent := root.Get("parent_tool_use_id"); parent.Exists() && parent.Type != gjson.Null {
		meta["parent_tool_use_id"] = parent.String()
	}
	return message.Unified{Type: message.TypeStreamEvent, Role: message.RoleAssistant, Metadata: meta}
}

// decodeControlRequest maps can_use_tool onto a unified permission request.
// Every other control subtype the CLI may send is consumed unmapped.
func decodeControlRequest(root gjson.Result) (message.Unified, bool, error) {
	if root.Get("request.subtype").String() != "can_use_tool" {
		return message.Unified{}, false, nil
	}
	meta := map[string]any{
		"request_id": root.Get("request_id").String(),
		"tool_name":  root.Get("request.tool_name").String(),
	}
	if input := root.Get("request.input"); input.Exists() {
		meta["input"] = anyValue(input)
	}
	if suggestions := root.Get("request.permission_suggestions"); suggestions.IsArray() {
		meta["suggestions"] = anyValue(suggestions)
	}
	return message.Unified{Type: message.TypePermissionRequest, Role: message.RoleTool, Metadata: meta}, true, nil
}

func decodeControlResponse(root gjson.Result) message.Unified {
	meta := map[string]any{
		"request_id": root.Get("response.request_id").String(),
	}
	if body := root.Get("response.response"); body.Exists() {
		meta["response"] = anyValue(body)
	}
	if errText := root.Get("response.error").String(); errText != "" {
		meta["error"] = errText
	}
	return message.Unified{Type: message.TypeControlResponse, Role: message.RoleSystem, Metadata: meta}
}

func decodeToolProgress(root gjson.Result) message.Unified {
	return message.Unified{
		Type: message.TypeToolProgress,
		Role: message.RoleTool,
		Metadata: map[string]any{
			"session_id":           root.Get("session_id").String(),
			"tool_use_id":          root.Get("tool_use_id").String(),
			"tool_name":            root.Get("tool_name").String(),
			"elapsed_time_seconds": root.Get("elapsed_time_seconds").Float(),
		},
	}
}

func decodeToolUseSummary(root gjson.Result) message.Unified {
	meta := map[string]any{
		"session_id": root.Get("session_id").String(),
		"summary":    root.Get("summary").String(),
	}
	if ids := stringSlice(root.Get("preceding_tool_use_ids")); len(ids) > 0 {
		meta["tool_use_id"] = ids[0]
		meta["preceding_tool_use_ids"] = ids
	}
	return message.Unified{Type: message.TypeToolUseSummary, Role: message.RoleSystem, Metadata: meta}
}

func decodeAuthStatus(root gjson.Result) message.Unified {
	return message.Unified{
		Type: message.TypeAuthStatus,
		Role: message.RoleSystem,
		Metadata: map[string]any{
			"session_id":     root.Get("session_id").String(),
			"authenticating": root.Get("isAuthenticating").Bool(),
			"output":         stringSlice(root.Get("output")),
			"error":          root.Get("error").String(),
		},
	}
}

// decodeBlocks converts an Anthropic content array into unified blocks.
// Unknown block kinds degrade to text so nothing is silently lost.
func decodeBlocks(content gjson.Result) []message.ContentBlock {
	if !content.IsArray() {
		if text := content.String(); text != "" {
			return []message.ContentBlock{message.TextBlock(text)}
		}
		return nil
	}
	var blocks []message.ContentBlock
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			blocks = append(blocks, message.TextBlock(block.Get("text").String()))
		case "thinking":
			blocks = append(blocks, message.ContentBlock{
				Type: message.BlockThinking,
				Text: block.Get("thinking").String(),
			})
		case "tool_use":
			input, _ := anyValue(block.Get("input")).(map[string]any)
			blocks = append(blocks, message.ToolUseBlock(
				block.Get("id").String(),
				block.Get("name").String(),
				input,
			))
		case "tool_result":
			blocks = append(blocks, message.ToolResultBlock(
				block.Get("tool_use_id").String(),
				anyValue(block.Get("content")),
				block.Get("is_error").Bool(),
			))
		case "image":
			blocks = append(blocks, message.ImageBlock(
				block.Get("source.data").String(),
				block.Get("source.media_type").String(),
			))
		default:
			blocks = append(blocks, message.TextBlock(block.Raw))
		}
		return true
	})
	return blocks
}

func stringSlice(res gjson.Result) []string {
	if !res.IsArray() {
		return nil
	}
	var out []string
	res.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}

// anyValue re-parses a gjson subtree through encoding/json so nested values
// land as map[string]any / []any / float64, matching what the metadata
// parsers expect.
func anyValue(res gjson.Result) any {
	var v any
	if err := json.Unmarshal([]byte(res.Raw), &v); err != nil {
		return res.Value()
	}
	return v
}

// Describe is used in traces for lines that decode but map to nothing.
func Describe(line []byte) string {
	root := gjson.ParseBytes(line)
	t := root.Get("type").String()
	if sub := root.Get("subtype").String(); sub != "" {
		return fmt.Sprintf("%s/%s", t, sub)
	}
	if sub := root.Get("request.subtype").String(); sub != "" {
		return fmt.Sprintf("%s/%s", t, sub)
	}
	return t
}
