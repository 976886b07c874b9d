// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

// Sequenced wraps a consumer message with the per-session monotonic sequence
// used for reconnection replay. Sequence numbers start at 1; assignment
// happens under the same serialization that broadcasts, so sequence order
// equals broadcast order equals history order.
type Sequenced struct {
	Seq       uint64   `json:"seq"`
	MessageID string   `json:"message_id"`
	Timestamp int64    `json:"timestamp"`
	Payload   Consumer `json:"payload"`
}
