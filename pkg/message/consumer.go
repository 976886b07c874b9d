// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

// ConsumerType discriminates the outbound consumer wire union.
type ConsumerType string

const (
	ConsumerSessionInit         ConsumerType = "session_init"
	ConsumerStatusChange        ConsumerType = "status_change"
	ConsumerAssistant           ConsumerType = "assistant"
	ConsumerResult              ConsumerType = "result"
	ConsumerStreamEvent         ConsumerType = "stream_event"
	ConsumerPermissionRequest   ConsumerType = "permission_request"
	ConsumerToolProgress        ConsumerType = "tool_progress"
	ConsumerToolUseSummary      ConsumerType = "tool_use_summary"
	ConsumerAuthStatus          ConsumerType = "auth_status"
	ConsumerConfigurationChange ConsumerType = "configuration_change"
	ConsumerSessionLifecycle    ConsumerType = "session_lifecycle"
	ConsumerUserMessage         ConsumerType = "user_message"
	ConsumerSessionUpdate       ConsumerType = "session_update"
	ConsumerSessionNameUpdate   ConsumerType = "session_name_update"
	ConsumerResumeFailed        ConsumerType = "resume_failed"
	ConsumerProcessOutput       ConsumerType = "process_output"
	ConsumerPresenceUpdate      ConsumerType = "presence_update"
	ConsumerCLIConnected        ConsumerType = "cli_connected"
	ConsumerCLIDisconnected     ConsumerType = "cli_disconnected"
	ConsumerError               ConsumerType = "error"
	ConsumerSlashCommandResult  ConsumerType = "slash_command_result"
	ConsumerSlashCommandError   ConsumerType = "slash_command_error"
	ConsumerCapabilitiesReady   ConsumerType = "capabilities_ready"
)

// Consumer roles. Participants may send messages and receive everything;
// observers receive semantic messages only.
const (
	RoleParticipant = "participant"
	RoleObserver    = "observer"
)

// ParticipantOnly reports whether frames of this type are withheld from
// observers. The broadcaster skips observers at fan-out; replay must apply
// the same filter or a reconnecting observer would see what a connected one
// never did.
func ParticipantOnly(t ConsumerType) bool {
	return t == ConsumerPermissionRequest || t == ConsumerProcessOutput
}

// PresenceEntry describes one attached consumer in a presence update.
type PresenceEntry struct {
	ConsumerID string `json:"consumer_id"`
	Role       string `json:"role"`
}

// Consumer is the outbound wire shape a consumer sees. It is a closed tagged
// union; only the fields relevant to Type are populated, everything else is
// omitted from the encoding.
type Consumer struct {
	Type ConsumerType `json:"type"`

	// SessionID is set on session-scoped snapshots (session_init,
	// session_update) where the consumer may be tracking several sessions.
	SessionID string `json:"session_id,omitempty"`

	// Status carries status_change values: running, idle, compacting.
	Status string `json:"status,omitempty"`

	// Message carries the unified payload for assistant, result, user_message
	// and tool-flavored types.
	Message *Unified `json:"message,omitempty"`

	// Event carries the raw stream event for stream_event.
	Event any `json:"event,omitempty"`

	// Request carries permission_request payloads.
	Request *PermissionRequest `json:"request,omitempty"`

	// State carries the session state snapshot for session_init and
	// session_update.
	State any `json:"state,omitempty"`

	// ProtocolVersion is set on session_init.
	ProtocolVersion int `json:"protocol_version,omitempty"`

	// BackendConnected reports backend liveness on cli_connected.
	BackendConnected bool `json:"backend_connected,omitempty"`

	// Name carries session_name_update.
	Name string `json:"name,omitempty"`

	// Reason carries resume_failed detail.
	Reason string `json:"reason,omitempty"`

	// Stream and Data carry process_output (stream is stdout or stderr).
	Stream string `json:"stream,omitempty"`
	Data   string `json:"data,omitempty"`

	// Consumers carries presence_update entries.
	Consumers []PresenceEntry `json:"consumers,omitempty"`

	// Code and Error carry structured error frames; Code is the
	// machine-readable error type, Error the human-readable message.
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	// RequestID correlates slash_command_result and slash_command_error
	// frames with the originating slash_command.
	RequestID string `json:"request_id,omitempty"`

	// Output carries slash_command_result text.
	Output string `json:"output,omitempty"`

	// Capabilities carries the capabilities_ready payload.
	Capabilities *CapabilitySet `json:"capabilities,omitempty"`

	// Partial marks a capabilities_ready emitted after a negotiation timeout,
	// carrying only what was already known.
	Partial bool `json:"partial,omitempty"`

	// Extra carries type-specific detail with no dedicated field
	// (configuration_change, session_lifecycle, team snapshots).
	Extra map[string]any `json:"extra,omitempty"`
}

// CapabilitySet is the negotiated backend capability snapshot surfaced with
// capabilities_ready.
type CapabilitySet struct {
	Commands     []SlashCommandInfo `json:"commands,omitempty"`
	Models       []string           `json:"models,omitempty"`
	Account      map[string]any     `json:"account,omitempty"`
	AgentVersion string             `json:"agent_version,omitempty"`
}

// SlashCommandInfo describes one command a backend announced.
type SlashCommandInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ArgumentHint string `json:"argument_hint,omitempty"`
}

// NewStatusChange builds a status_change consumer message.
func NewStatusChange(status string) Consumer {
	return Consumer{Type: ConsumerStatusChange, Status: status}
}

// NewProcessOutput builds a process_output consumer message.
func NewProcessOutput(stream, data string) Consumer {
	return Consumer{Type: ConsumerProcessOutput, Stream: stream, Data: data}
}

// NewErrorMessage builds a structured error consumer message.
func NewErrorMessage(code, human string) Consumer {
	return Consumer{Type: ConsumerError, Code: code, Error: human}
}

// NewNameUpdate builds a session_name_update consumer message.
func NewNameUpdate(name string) Consumer {
	return Consumer{Type: ConsumerSessionNameUpdate, Name: name}
}

// NewResumeFailed builds a resume_failed consumer message.
func NewResumeFailed(reason string) Consumer {
	return Consumer{Type: ConsumerResumeFailed, Reason: reason}
}

// NewPresenceUpdate builds a presence_update consumer message.
func NewPresenceUpdate(entries []PresenceEntry) Consumer {
	return Consumer{Type: ConsumerPresenceUpdate, Consumers: entries}
}

// NewSlashCommandResult builds a slash_command_result consumer message.
func NewSlashCommandResult(requestID, output string) Consumer {
	return Consumer{Type: ConsumerSlashCommandResult, RequestID: requestID, Output: output}
}

// NewSlashCommandError builds a slash_command_error consumer message.
func NewSlashCommandError(requestID, code, human string) Consumer {
	return Consumer{Type: ConsumerSlashCommandError, RequestID: requestID, Code: code, Error: human}
}
