// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package message defines the adapter-independent message envelope exchanged
// inside the broker, the consumer wire protocol, and the sequenced wrapper
// used for reconnection replay.
package message

// Type is the top-level discriminator for unified message variants. The set
// is closed; adapters must map everything they receive onto one of these or
// return nothing from their decoder.
type Type string

const (
	TypeSessionInit         Type = "session_init"
	TypeStatusChange        Type = "status_change"
	TypeAssistant           Type = "assistant"
	TypeResult              Type = "result"
	TypeStreamEvent         Type = "stream_event"
	TypePermissionRequest   Type = "permission_request"
	TypeControlResponse     Type = "control_response"
	TypeToolProgress        Type = "tool_progress"
	TypeToolUseSummary      Type = "tool_use_summary"
	TypeAuthStatus          Type = "auth_status"
	TypeConfigurationChange Type = "configuration_change"
	TypeSessionLifecycle    Type = "session_lifecycle"
	TypeUserMessage         Type = "user_message"
	TypePermissionResponse  Type = "permission_response"
	TypeInterrupt           Type = "interrupt"
)

// Role identifies the speaker of a unified message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockType discriminates content block variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
	BlockImage      BlockType = "image"
	BlockCode       BlockType = "code"
	BlockRefusal    BlockType = "refusal"
)

// ContentBlock is one ordered element of a unified message body.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text carries text, thinking, code, and refusal bodies.
	Text string `json:"text,omitempty"`

	// Tool-use fields.
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`

	// Tool-result fields.
	Content any  `json:"content,omitempty"`
	IsError bool `json:"is_error,omitempty"`

	// Image fields (base64 data plus media type).
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// Language qualifies code blocks.
	Language string `json:"language,omitempty"`
}

// Unified is the adapter-independent envelope. Every message crossing the
// broker, inbound or outbound, is one of these between the translation
// boundaries.
type Unified struct {
	Type    Type           `json:"type"`
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content,omitempty"`

	// Metadata carries adapter-specific structured detail. Handlers must
	// extract fields through the named parsers in this package, never by
	// ad hoc key access.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock builds an image content block from base64 data.
func ImageBlock(data, mediaType string) ContentBlock {
	return ContentBlock{Type: BlockImage, Data: data, MediaType: mediaType}
}

// ToolUseBlock builds a tool-use content block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, Input: input}
}

// ToolResultBlock builds a tool-result content block.
func ToolResultBlock(toolUseID string, content any, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// NewUserMessage builds a unified user message from text and optional images.
func NewUserMessage(text string, images ...ContentBlock) Unified {
	content := make([]ContentBlock, 0, 1+len(images))
	content = append(content, TextBlock(text))
	content = append(content, images...)
	return Unified{Type: TypeUserMessage, Role: RoleUser, Content: content}
}

// NewInterrupt builds a unified interrupt message.
func NewInterrupt() Unified {
	return Unified{Type: TypeInterrupt, Role: RoleUser}
}

// NewPermissionResponse builds a unified permission response.
func NewPermissionResponse(requestID, behavior string, updatedInput map[string]any, msg string) Unified {
	meta := map[string]any{
		"request_id": requestID,
		"behavior":   behavior,
	}
	if updatedInput != nil {
		meta["updated_input"] = updatedInput
	}
	if msg != "" {
		meta["message"] = msg
	}
	return Unified{Type: TypePermissionResponse, Role: RoleUser, Metadata: meta}
}

// NewConfigurationChange builds a unified configuration change carrying a
// single changed setting.
func NewConfigurationChange(key string, value any) Unified {
	return Unified{
		Type:     TypeConfigurationChange,
		Role:     RoleUser,
		Metadata: map[string]any{"setting": key, "value": value},
	}
}

// JoinedText concatenates the text of all text blocks in the message.
func (m Unified) JoinedText() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
