// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

// InboundType discriminates the consumer-to-broker wire union.
type InboundType string

const (
	InboundUserMessage         InboundType = "user_message"
	InboundPermissionResponse  InboundType = "permission_response"
	InboundInterrupt           InboundType = "interrupt"
	InboundSetModel            InboundType = "set_model"
	InboundSetPermissionMode   InboundType = "set_permission_mode"
	InboundPresenceQuery       InboundType = "presence_query"
	InboundSlashCommand        InboundType = "slash_command"
	InboundQueueMessage        InboundType = "queue_message"
	InboundUpdateQueuedMessage InboundType = "update_queued_message"
	InboundCancelQueuedMessage InboundType = "cancel_queued_message"
	InboundSetAdapter          InboundType = "set_adapter"
)

// InboundImage is an image attachment on an inbound user message.
type InboundImage struct {
	Data      string `json:"data"`
	MediaType string `json:"media_type"`
}

// Inbound is a frame received from a consumer socket. Fields beyond Type are
// populated per variant; the consumer handler validates the combination
// before anything downstream sees it.
type Inbound struct {
	Type InboundType `json:"type"`

	// user_message / queue_message / update_queued_message.
	Content   string         `json:"content,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Images    []InboundImage `json:"images,omitempty"`

	// permission_response.
	RequestID          string         `json:"request_id,omitempty"`
	Behavior           string         `json:"behavior,omitempty"`
	UpdatedInput       map[string]any `json:"updated_input,omitempty"`
	UpdatedPermissions []any          `json:"updated_permissions,omitempty"`
	Message            string         `json:"message,omitempty"`

	// set_model / set_permission_mode.
	Model string `json:"model,omitempty"`
	Mode  string `json:"mode,omitempty"`

	// slash_command.
	Command string `json:"command,omitempty"`

	// set_adapter payload is never honored; kept opaque for the rejection path.
	Adapter map[string]any `json:"adapter,omitempty"`
}
