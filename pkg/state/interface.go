// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package state persists session snapshots and launcher bookkeeping across
// daemon restarts. Persistence is best effort everywhere: callers warn and
// continue on storage failures, and a corrupt snapshot never takes the
// daemon down.
package state

import (
	"context"
	"sort"
	"time"

	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
)

// SnapshotSchemaVersion is written into every snapshot and checked on load.
// Bump only with a migration story.
const SnapshotSchemaVersion = 1

// PermissionEntry is one pending permission request in serialized order.
// Snapshots keep a list rather than a map so replaying them is
// deterministic.
type PermissionEntry struct {
	RequestID string                     `json:"request_id"`
	Request   *message.PermissionRequest `json:"request"`
}

// PersistedSession is the durable form of one session.
type PersistedSession struct {
	SchemaVersion      int               `json:"schema_version"`
	ID                 string            `json:"id"`
	State              session.State     `json:"state"`
	MessageHistory     []message.Unified `json:"message_history,omitempty"`
	PendingMessages    []message.Unified `json:"pending_messages,omitempty"`
	PendingPermissions []PermissionEntry `json:"pending_permissions,omitempty"`
	Archived           bool              `json:"archived,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// SessionInfo is one row of launcher state: enough to find, re-adopt, or
// relaunch a backend after a daemon restart.
type SessionInfo struct {
	ID               string    `json:"id"`
	AdapterName      string    `json:"adapter_name"`
	CWD              string    `json:"cwd,omitempty"`
	Name             string    `json:"name,omitempty"`
	PID              int       `json:"pid,omitempty"`
	BackendSessionID string    `json:"backend_session_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=interface.go Store

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save writes one session snapshot, replacing any previous snapshot
	// with the same id.
	Save(ctx context.Context, ps PersistedSession) error

	// Load reads one snapshot. Missing ids return a storage error.
	Load(ctx context.Context, id string) (PersistedSession, error)

	// LoadAll reads every stored snapshot. Corrupt entries are skipped
	// with a warning; the good ones still load.
	LoadAll(ctx context.Context) ([]PersistedSession, error)

	// Remove deletes one snapshot. Removing a missing id is a no-op.
	Remove(ctx context.Context, id string) error

	// SetArchived flips the archived flag without rewriting the snapshot
	// body.
	SetArchived(ctx context.Context, id string, archived bool) error

	// SaveLauncherState replaces the launcher bookkeeping wholesale.
	SaveLauncherState(ctx context.Context, infos []SessionInfo) error

	// LoadLauncherState reads the launcher bookkeeping. An empty store
	// yields an empty slice, not an error.
	LoadLauncherState(ctx context.Context) ([]SessionInfo, error)

	// Close releases underlying resources.
	Close() error
}

// PermissionsToEntries converts the runtime pending-permission map into the
// serialized ordered form, sorted by request id.
func PermissionsToEntries(pending map[string]*message.PermissionRequest) []PermissionEntry {
	if len(pending) == 0 {
		return nil
	}
	entries := make([]PermissionEntry, 0, len(pending))
	for id, req := range pending {
		entries = append(entries, PermissionEntry{RequestID: id, Request: req})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RequestID < entries[j].RequestID })
	return entries
}

// EntriesToPermissions converts the serialized form back into the runtime
// map shape.
func EntriesToPermissions(entries []PermissionEntry) map[string]*message.PermissionRequest {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]*message.PermissionRequest, len(entries))
	for _, e := range entries {
		if e.RequestID == "" || e.Request == nil {
			continue
		}
		out[e.RequestID] = e.Request
	}
	return out
}
