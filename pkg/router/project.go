// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
)

// ProtocolVersion is stamped on session_init snapshots so UIs can detect
// incompatible brokers.
const ProtocolVersion = 1

// mapper turns one unified message into its consumer wire shape. A nil
// return means the type is consumed internally and nothing reaches
// consumers directly.
type mapper func(sess *session.Session, msg message.Unified) *message.Consumer

// projectors is the outbound translation table, one mapper per unified
// type. Types absent here produce no consumer message.
var projectors = map[message.Type]mapper{
	message.TypeSessionInit: func(sess *session.Session, _ message.Unified) *message.Consumer {
		return &message.Consumer{
			Type:            message.ConsumerSessionInit,
			SessionID:       sess.ID(),
			State:           sess.State(),
			ProtocolVersion: ProtocolVersion,
		}
	},
	message.TypeStatusChange: func(_ *session.Session, msg message.Unified) *message.Consumer {
		status, _ := msg.MetaString("status")
		return &message.Consumer{Type: message.ConsumerStatusChange, Status: status}
	},
	message.TypeAssistant: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerAssistant, Message: &msg}
	},
	message.TypeResult: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerResult, Message: &msg}
	},
	message.TypeStreamEvent: func(_ *session.Session, msg message.Unified) *message.Consumer {
		event, _ := msg.MetaMap("event")
		return &message.Consumer{Type: message.ConsumerStreamEvent, Event: event}
	},
	message.TypeToolProgress: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerToolProgress, Message: &msg}
	},
	message.TypeToolUseSummary: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerToolUseSummary, Message: &msg}
	},
	message.TypeAuthStatus: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerAuthStatus, Message: &msg}
	},
	message.TypeConfigurationChange: func(_ *session.Session, msg message.Unified) *message.Consumer {
		setting, _ := msg.MetaString("setting")
		return &message.Consumer{
			Type:  message.ConsumerConfigurationChange,
			Extra: map[string]any{"setting": setting, "value": msg.Metadata["value"]},
		}
	},
	message.TypeSessionLifecycle: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerSessionLifecycle, Extra: msg.Metadata}
	},
	message.TypeUserMessage: func(_ *session.Session, msg message.Unified) *message.Consumer {
		return &message.Consumer{Type: message.ConsumerUserMessage, Message: &msg}
	},
	// permission_request is broadcast by its handler after the gatekeeper
	// assigns a request id; control_response, permission_response and
	// interrupt are consumed internally or only travel toward the backend.
}

// Project applies the projection table entry for the message's type.
func Project(sess *session.Session, msg message.Unified) *message.Consumer {
	mapperFn, ok := projectors[msg.Type]
	if !ok {
		return nil
	}
	return mapperFn(sess, msg)
}

// permissionFromUnified extracts the permission request carried in a
// unified permission_request message.
func permissionFromUnified(msg message.Unified) *message.PermissionRequest {
	req := &message.PermissionRequest{}
	req.RequestID, _ = msg.MetaString("request_id")
	req.ToolName, _ = msg.MetaString("tool_name")
	if input, ok := msg.MetaMap("input"); ok {
		req.Input = input
	}
	if raw, ok := msg.MetaSlice("suggestions"); ok {
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				req.Suggestions = append(req.Suggestions, m)
			}
		}
	}
	return req
}
