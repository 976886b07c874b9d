// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

// Named metadata parsers. The metadata map's shape varies by message type;
// handlers extract what they need through these instead of reaching into the
// map ad hoc, so the expected keys of each type stay greppable.

// MetaString returns metadata[key] when it is a string.
func (m Unified) MetaString(key string) (string, bool) {
	v, ok := m.Metadata[key].(string)
	return v, ok
}

// MetaBool returns metadata[key] when it is a bool.
func (m Unified) MetaBool(key string) (bool, bool) {
	v, ok := m.Metadata[key].(bool)
	return v, ok
}

// MetaFloat returns metadata[key] when it is numeric. JSON decoding yields
// float64 for all numbers; ints stored programmatically are widened.
func (m Unified) MetaFloat(key string) (float64, bool) {
	switch v := m.Metadata[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// MetaInt returns metadata[key] truncated to int when it is numeric.
func (m Unified) MetaInt(key string) (int, bool) {
	f, ok := m.MetaFloat(key)
	return int(f), ok
}

// MetaMap returns metadata[key] when it is an object.
func (m Unified) MetaMap(key string) (map[string]any, bool) {
	v, ok := m.Metadata[key].(map[string]any)
	return v, ok
}

// MetaSlice returns metadata[key] when it is an array.
func (m Unified) MetaSlice(key string) ([]any, bool) {
	v, ok := m.Metadata[key].([]any)
	return v, ok
}

// MetaStrings returns metadata[key] as a string slice, accepting either
// []string or a JSON-decoded []any of strings.
func (m Unified) MetaStrings(key string) ([]string, bool) {
	switch v := m.Metadata[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// BackendSessionID extracts the backend-assigned session id from a
// session_init message.
func (m Unified) BackendSessionID() (string, bool) {
	return m.MetaString("session_id")
}

// MessageID extracts the backend message id used for assistant chunk
// deduplication.
func (m Unified) MessageID() (string, bool) {
	return m.MetaString("message_id")
}

// StreamEventType extracts the inner event type of a stream_event.
func (m Unified) StreamEventType() (string, bool) {
	ev, ok := m.MetaMap("event")
	if !ok {
		return "", false
	}
	t, ok := ev["type"].(string)
	return t, ok
}

// InsideSubagent reports whether a stream_event belongs to a sub-agent turn,
// i.e. carries a non-null parent_tool_use_id.
func (m Unified) InsideSubagent() bool {
	v, present := m.Metadata["parent_tool_use_id"]
	return present && v != nil
}

// ResultNumTurns extracts num_turns from a result message.
func (m Unified) ResultNumTurns() (int, bool) {
	return m.MetaInt("num_turns")
}

// ResultIsError reports whether a result message records an error outcome.
func (m Unified) ResultIsError() bool {
	if v, ok := m.MetaBool("is_error"); ok {
		return v
	}
	subtype, _ := m.MetaString("subtype")
	switch subtype {
	case "", "success", "success_turn":
		return false
	}
	return true
}

// ToolUseID extracts the tool-use id carried by tool_progress and
// tool_use_summary messages.
func (m Unified) ToolUseID() (string, bool) {
	return m.MetaString("tool_use_id")
}

// ControlRequestID extracts the correlation id of a control_response.
func (m Unified) ControlRequestID() (string, bool) {
	return m.MetaString("request_id")
}
