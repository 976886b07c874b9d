// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

// PermissionRequest is a backend request to allow one tool invocation.
// Lifecycle: received, surfaced to participants, replied (allow or deny),
// cleared from the pending map. An unanswered request stays pending until a
// reply arrives or the session closes.
type PermissionRequest struct {
	RequestID   string           `json:"request_id"`
	ToolName    string           `json:"tool_name"`
	Input       map[string]any   `json:"input,omitempty"`
	Suggestions []map[string]any `json:"suggestions,omitempty"`
}

// PermissionBehavior is a consumer's answer to a permission request.
type PermissionBehavior string

const (
	PermissionAllow PermissionBehavior = "allow"
	PermissionDeny  PermissionBehavior = "deny"
)

// ValidBehavior reports whether b is one of the two accepted answers.
func ValidBehavior(b string) bool {
	return b == string(PermissionAllow) || b == string(PermissionDeny)
}
