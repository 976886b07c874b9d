// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

// State is the flat capability-and-progress snapshot consumers see. It is
// derived exclusively by Reduce from the unified message stream; nothing
// else writes it. SessionID always equals the owning session's id.
type State struct {
	SessionID          string         `json:"session_id"`
	Model              string         `json:"model,omitempty"`
	PermissionMode     string         `json:"permission_mode,omitempty"`
	CWD                string         `json:"cwd,omitempty"`
	Git                *GitInfo       `json:"git,omitempty"`
	TotalCostUSD       float64        `json:"total_cost_usd,omitempty"`
	NumTurns           int            `json:"num_turns,omitempty"`
	ContextUsedPercent float64        `json:"context_used_percent,omitempty"`
	Tools              []string       `json:"tools,omitempty"`
	MCPServers         []MCPServer    `json:"mcp_servers,omitempty"`
	Agents             []string       `json:"agents,omitempty"`
	Skills             []string       `json:"skills,omitempty"`
	SlashCommands      []string       `json:"slash_commands,omitempty"`
	AuthMethods        []string       `json:"auth_methods,omitempty"`
	Team               *TeamState     `json:"team,omitempty"`
	LastUsage          map[string]any `json:"last_usage,omitempty"`
}

// GitInfo is the snapshot of the working tree the session runs in.
type GitInfo struct {
	Branch    string `json:"branch,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
}

// MCPServer describes one MCP server the backend reported.
type MCPServer struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Clone returns a deep copy. Reduce works on copies so the previous state is
// never mutated.
func (s State) Clone() State {
	out := s
	out.Tools = cloneStrings(s.Tools)
	out.Agents = cloneStrings(s.Agents)
	out.Skills = cloneStrings(s.Skills)
	out.SlashCommands = cloneStrings(s.SlashCommands)
	out.AuthMethods = cloneStrings(s.AuthMethods)
	if s.Git != nil {
		git := *s.Git
		out.Git = &git
	}
	if s.MCPServers != nil {
		out.MCPServers = make([]MCPServer, len(s.MCPServers))
		copy(out.MCPServers, s.MCPServers)
	}
	if s.LastUsage != nil {
		out.LastUsage = make(map[string]any, len(s.LastUsage))
		for k, v := range s.LastUsage {
			out.LastUsage[k] = v
		}
	}
	if s.Team != nil {
		out.Team = s.Team.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// mergeUnique appends the values not already present, preserving order.
func mergeUnique(existing []string, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	out := existing
	for _, v := range add {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
