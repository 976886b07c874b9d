// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentmux/agentmux/pkg/message"
)

// CommandSource says where a registered slash command came from.
type CommandSource string

const (
	SourceCLI   CommandSource = "cli"
	SourceSkill CommandSource = "skill"
)

// RegisteredCommand is one dynamic slash command plus its origin.
type RegisteredCommand struct {
	Info   message.SlashCommandInfo
	Source CommandSource
}

// CommandRegistry holds the slash commands a backend announced during init.
// It is repopulated on every init, so stale commands from a previous
// backend generation never linger.
type CommandRegistry struct {
	mu     sync.RWMutex
	cli    map[string]message.SlashCommandInfo
	skills map[string]message.SlashCommandInfo
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		cli:    make(map[string]message.SlashCommandInfo),
		skills: make(map[string]message.SlashCommandInfo),
	}
}

// RegisterCLI records backend-announced commands, keyed by name with the
// leading slash stripped.
func (r *CommandRegistry) RegisterCLI(cmds []message.SlashCommandInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range cmds {
		name := strings.TrimPrefix(cmd.Name, "/")
		if name == "" {
			continue
		}
		cmd.Name = name
		r.cli[name] = cmd
	}
}

// RegisterSkills exposes announced skills as invokable commands.
func (r *CommandRegistry) RegisterSkills(skills []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, skill := range skills {
		name := strings.TrimPrefix(skill, "/")
		if name == "" {
			continue
		}
		r.skills[name] = message.SlashCommandInfo{
			Name:        name,
			Description: "Run the " + name + " skill",
		}
	}
}

// ClearDynamic drops everything. Called before repopulating from a fresh
// backend init.
func (r *CommandRegistry) ClearDynamic() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cli = make(map[string]message.SlashCommandInfo)
	r.skills = make(map[string]message.SlashCommandInfo)
}

// Lookup finds a command by name. CLI commands shadow skills of the same
// name.
func (r *CommandRegistry) Lookup(name string) (RegisteredCommand, bool) {
	name = strings.TrimPrefix(name, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if info, ok := r.cli[name]; ok {
		return RegisteredCommand{Info: info, Source: SourceCLI}, true
	}
	if info, ok := r.skills[name]; ok {
		return RegisteredCommand{Info: info, Source: SourceSkill}, true
	}
	return RegisteredCommand{}, false
}

// All returns every registered command sorted by name.
func (r *CommandRegistry) All() []RegisteredCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredCommand, 0, len(r.cli)+len(r.skills))
	for _, info := range r.cli {
		out = append(out, RegisteredCommand{Info: info, Source: SourceCLI})
	}
	for name, info := range r.skills {
		if _, shadowed := r.cli[name]; shadowed {
			continue
		}
		out = append(out, RegisteredCommand{Info: info, Source: SourceSkill})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Name < out[j].Info.Name })
	return out
}

// Len reports the number of distinct registered command names.
func (r *CommandRegistry) Len() int {
	return len(r.All())
}
