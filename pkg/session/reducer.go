// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "github.com/agentmux/agentmux/pkg/message"

// Reduce derives the next session state from one unified message. Pure with
// respect to state: the previous value is never mutated and no I/O happens
// here. The correlation buffer records team tool-use ids so later tool
// results can be matched; optimistic team changes are applied at tool-use
// time and deliberately survive error results.
func Reduce(prev State, msg message.Unified, corr *TeamCorrelation) State {
	next := prev.Clone()

	switch msg.Type {
	case message.TypeSessionInit:
		applyInit(&next, msg)
	case message.TypeAssistant:
		applyUsage(&next, msg)
		applyTeamBlocks(&next, msg, corr)
	case message.TypeUserMessage:
		resolveTeamResults(msg, corr)
	case message.TypeResult:
		applyResult(&next, msg)
	case message.TypeConfigurationChange:
		applyConfiguration(&next, msg)
	case message.TypeAuthStatus:
		if methods, ok := msg.MetaStrings("auth_methods"); ok {
			next.AuthMethods = methods
		}
	}
	return next
}

// applyInit folds the backend's capability report into the state. Running
// the same init twice yields the same state: scalars overwrite with equal
// values and collections merge with deduplication.
func applyInit(next *State, msg message.Unified) {
	if model, ok := msg.MetaString("model"); ok {
		next.Model = model
	}
	if cwd, ok := msg.MetaString("cwd"); ok {
		next.CWD = cwd
	}
	if mode, ok := msg.MetaString("permission_mode"); ok {
		next.PermissionMode = mode
	}
	if tools, ok := msg.MetaStrings("tools"); ok {
		next.Tools = mergeUnique(next.Tools, tools)
	}
	if agents, ok := msg.MetaStrings("agents"); ok {
		next.Agents = mergeUnique(next.Agents, agents)
	}
	if skills, ok := msg.MetaStrings("skills"); ok {
		next.Skills = mergeUnique(next.Skills, skills)
	}
	if commands, ok := msg.MetaStrings("slash_commands"); ok {
		next.SlashCommands = mergeUnique(next.SlashCommands, commands)
	}
	if methods, ok := msg.MetaStrings("auth_methods"); ok {
		next.AuthMethods = mergeUnique(next.AuthMethods, methods)
	}
	if servers, ok := msg.MetaSlice("mcp_servers"); ok {
		next.MCPServers = mergeMCPServers(next.MCPServers, servers)
	}
}

func mergeMCPServers(existing []MCPServer, raw []any) []MCPServer {
	byName := make(map[string]int, len(existing))
	for i, s := range existing {
		byName[s.Name] = i
	}
	out := existing
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		server := MCPServer{
			Name:   stringField(m, "name"),
			Status: stringField(m, "status"),
		}
		if server.Name == "" {
			continue
		}
		if i, ok := byName[server.Name]; ok {
			out[i] = server
			continue
		}
		byName[server.Name] = len(out)
		out = append(out, server)
	}
	return out
}

// applyUsage captures the latest usage block from an assistant message.
func applyUsage(next *State, msg message.Unified) {
	if usage, ok := msg.MetaMap("usage"); ok {
		next.LastUsage = usage
	}
	if pct, ok := msg.MetaFloat("context_used_percent"); ok {
		next.ContextUsedPercent = pct
	}
}

// applyTeamBlocks applies recognized team tool-uses optimistically and
// tracks their ids for result correlation.
func applyTeamBlocks(next *State, msg message.Unified, corr *TeamCorrelation) {
	for _, block := range msg.Content {
		if block.Type != message.BlockToolUse || !isTeamTool(block.ToolName) {
			continue
		}
		if corr != nil {
			corr.track(block.ToolUseID, block.ToolName)
		}
		next.Team = applyTeamToolUse(next.Team, block.ToolName, block.Input)
	}
}

// resolveTeamResults clears correlation entries for returned tool results.
// The optimistic change stays applied whether the result succeeded or not.
func resolveTeamResults(msg message.Unified, corr *TeamCorrelation) {
	if corr == nil {
		return
	}
	for _, block := range msg.Content {
		if block.Type != message.BlockToolResult {
			continue
		}
		corr.resolve(block.ToolUseID)
	}
}

// applyResult folds turn accounting from a result message.
func applyResult(next *State, msg message.Unified) {
	if cost, ok := msg.MetaFloat("total_cost_usd"); ok {
		next.TotalCostUSD = cost
	}
	if turns, ok := msg.ResultNumTurns(); ok {
		next.NumTurns = turns
	}
	if usage, ok := msg.MetaMap("usage"); ok {
		next.LastUsage = usage
	}
	if pct, ok := msg.MetaFloat("context_used_percent"); ok {
		next.ContextUsedPercent = pct
	}
	if model, ok := msg.MetaString("model"); ok {
		next.Model = model
	}
}

// applyConfiguration folds a single changed setting into the state.
func applyConfiguration(next *State, msg message.Unified) {
	setting, _ := msg.MetaString("setting")
	value, _ := msg.MetaString("value")
	switch setting {
	case "model":
		next.Model = value
	case "permission_mode":
		next.PermissionMode = value
	case "cwd":
		next.CWD = value
	}
}
