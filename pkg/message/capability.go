// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package message

// CapabilitySetFromMap parses the response body of an initialize control
// exchange. Backends disagree on whether commands are bare names or
// objects, so both are accepted.
func CapabilitySetFromMap(m map[string]any) *CapabilitySet {
	if m == nil {
		return nil
	}
	caps := &CapabilitySet{}
	if raw, ok := m["commands"].([]any); ok {
		for _, entry := range raw {
			switch cmd := entry.(type) {
			case string:
				if cmd != "" {
					caps.Commands = append(caps.Commands, SlashCommandInfo{Name: cmd})
				}
			case map[string]any:
				info := SlashCommandInfo{}
				info.Name, _ = cmd["name"].(string)
				info.Description, _ = cmd["description"].(string)
				info.ArgumentHint, _ = cmd["argument_hint"].(string)
				if info.Name != "" {
					caps.Commands = append(caps.Commands, info)
				}
			}
		}
	}
	switch models := m["models"].(type) {
	case []string:
		caps.Models = models
	case []any:
		for _, entry := range models {
			if s, ok := entry.(string); ok {
				caps.Models = append(caps.Models, s)
			}
		}
	}
	if account, ok := m["account"].(map[string]any); ok {
		caps.Account = account
	}
	if v, ok := m["agent_version"].(string); ok {
		caps.AgentVersion = v
	} else if v, ok := m["version"].(string); ok {
		caps.AgentVersion = v
	}
	return caps
}
