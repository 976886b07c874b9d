// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "sort"

// Team tool names the reducer recognizes inside assistant tool_use blocks.
const (
	toolTeamCreate       = "TeamCreate"
	toolTeamAddMember    = "TeamAddMember"
	toolTeamRemoveMember = "TeamRemoveMember"
	toolTaskCreate       = "TaskCreate"
	toolTaskUpdate       = "TaskUpdate"
)

// TeamMember is one agent in a multi-agent team.
type TeamMember struct {
	Name      string `json:"name"`
	AgentType string `json:"agent_type,omitempty"`
	Model     string `json:"model,omitempty"`
}

// TeamTask is one unit of team work.
type TeamTask struct {
	ID        string   `json:"id"`
	Subject   string   `json:"subject,omitempty"`
	Status    string   `json:"status,omitempty"`
	Owner     string   `json:"owner,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// TeamState is the session's multi-agent substate.
type TeamState struct {
	Name    string       `json:"name,omitempty"`
	Role    string       `json:"role,omitempty"`
	Members []TeamMember `json:"members,omitempty"`
	Tasks   []TeamTask   `json:"tasks,omitempty"`
}

// Clone returns a deep copy.
func (t *TeamState) Clone() *TeamState {
	if t == nil {
		return nil
	}
	out := &TeamState{Name: t.Name, Role: t.Role}
	if t.Members != nil {
		out.Members = make([]TeamMember, len(t.Members))
		copy(out.Members, t.Members)
	}
	if t.Tasks != nil {
		out.Tasks = make([]TeamTask, len(t.Tasks))
		for i, task := range t.Tasks {
			task.DependsOn = cloneStrings(task.DependsOn)
			out.Tasks[i] = task
		}
	}
	return out
}

// TeamCorrelation tracks team tool-use ids so tool results can be matched
// back to the optimistic state change they confirm. The runtime lock
// serializes access.
type TeamCorrelation struct {
	pending map[string]string // tool_use_id -> tool name
}

// NewTeamCorrelation creates an empty correlation buffer.
func NewTeamCorrelation() *TeamCorrelation {
	return &TeamCorrelation{pending: make(map[string]string)}
}

func (c *TeamCorrelation) track(toolUseID, toolName string) {
	if toolUseID == "" {
		return
	}
	c.pending[toolUseID] = toolName
}

// resolve reports whether the tool result belongs to a tracked team tool-use
// and forgets it. The optimistic change already applied stays applied either
// way; an error result deliberately does not roll it back.
func (c *TeamCorrelation) resolve(toolUseID string) (string, bool) {
	name, ok := c.pending[toolUseID]
	if ok {
		delete(c.pending, toolUseID)
	}
	return name, ok
}

// isTeamTool reports whether a tool name mutates team state.
func isTeamTool(name string) bool {
	switch name {
	case toolTeamCreate, toolTeamAddMember, toolTeamRemoveMember, toolTaskCreate, toolTaskUpdate:
		return true
	}
	return false
}

// applyTeamToolUse applies one team tool invocation to the team substate.
// Idempotent: the same invocation applied twice yields the same state, with
// members, tasks, and dependency edges deduplicated.
func applyTeamToolUse(team *TeamState, toolName string, input map[string]any) *TeamState {
	next := team.Clone()
	if next == nil {
		next = &TeamState{}
	}

	switch toolName {
	case toolTeamCreate:
		if name := stringField(input, "team_name"); name != "" {
			next.Name = name
		}
		if role := stringField(input, "role"); role != "" {
			next.Role = role
		} else if next.Role == "" {
			next.Role = "lead"
		}

	case toolTeamAddMember:
		member := TeamMember{
			Name:      stringField(input, "name"),
			AgentType: stringField(input, "agent_type"),
			Model:     stringField(input, "model"),
		}
		if member.Name == "" {
			return next
		}
		for i, m := range next.Members {
			if m.Name == member.Name {
				next.Members[i] = member
				return next
			}
		}
		next.Members = append(next.Members, member)

	case toolTeamRemoveMember:
		name := stringField(input, "name")
		kept := next.Members[:0]
		for _, m := range next.Members {
			if m.Name != name {
				kept = append(kept, m)
			}
		}
		next.Members = kept

	case toolTaskCreate:
		task := TeamTask{
			ID:        stringField(input, "id"),
			Subject:   stringField(input, "subject"),
			Status:    stringField(input, "status"),
			Owner:     stringField(input, "owner"),
			DependsOn: stringsField(input, "depends_on"),
		}
		if task.ID == "" {
			return next
		}
		if task.Status == "" {
			task.Status = "pending"
		}
		sort.Strings(task.DependsOn)
		for i, existing := range next.Tasks {
			if existing.ID == task.ID {
				next.Tasks[i] = task
				return next
			}
		}
		next.Tasks = append(next.Tasks, task)

	case toolTaskUpdate:
		id := stringField(input, "id")
		for i := range next.Tasks {
			if next.Tasks[i].ID != id {
				continue
			}
			if status := stringField(input, "status"); status != "" {
				next.Tasks[i].Status = status
			}
			if owner := stringField(input, "owner"); owner != "" {
				next.Tasks[i].Owner = owner
			}
			if deps := stringsField(input, "depends_on"); deps != nil {
				merged := mergeUnique(next.Tasks[i].DependsOn, deps)
				sort.Strings(merged)
				next.Tasks[i].DependsOn = merged
			}
			break
		}
	}
	return next
}

// TeamEvent is one fine-grained change derived by diffing two team states.
type TeamEvent struct {
	Type   string `json:"type"`
	Member string `json:"member,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// DiffTeam derives fine-grained team events between two substates.
func DiffTeam(prev, next *TeamState) []TeamEvent {
	var out []TeamEvent

	if prev == nil && next == nil {
		return nil
	}
	if prev == nil {
		prev = &TeamState{}
	}
	if next == nil {
		next = &TeamState{}
	}

	if prev.Name != next.Name && next.Name != "" {
		out = append(out, TeamEvent{Type: "team_created"})
	}

	prevMembers := make(map[string]struct{}, len(prev.Members))
	for _, m := range prev.Members {
		prevMembers[m.Name] = struct{}{}
	}
	nextMembers := make(map[string]struct{}, len(next.Members))
	for _, m := range next.Members {
		nextMembers[m.Name] = struct{}{}
		if _, ok := prevMembers[m.Name]; !ok {
			out = append(out, TeamEvent{Type: "member_added", Member: m.Name})
		}
	}
	for _, m := range prev.Members {
		if _, ok := nextMembers[m.Name]; !ok {
			out = append(out, TeamEvent{Type: "member_removed", Member: m.Name})
		}
	}

	prevTasks := make(map[string]TeamTask, len(prev.Tasks))
	for _, task := range prev.Tasks {
		prevTasks[task.ID] = task
	}
	for _, task := range next.Tasks {
		old, ok := prevTasks[task.ID]
		switch {
		case !ok:
			out = append(out, TeamEvent{Type: "task_added", TaskID: task.ID, Status: task.Status})
		case old.Status != task.Status:
			out = append(out, TeamEvent{Type: "task_status_changed", TaskID: task.ID, Status: task.Status})
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringsField(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
