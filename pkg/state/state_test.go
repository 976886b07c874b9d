// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/message"
	"github.com/agentmux/agentmux/pkg/session"
)

// storeBackends builds one fresh store per backend so every Store
// implementation passes the same conformance suite.
func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	local, err := NewLocalStore(t.TempDir(), NoopCipher{})
	require.NoError(t, err)

	cipher, err := NewSealedCipher([]byte("conformance key"), "k1")
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(t.Context(), filepath.Join(t.TempDir(), "amux.db"), cipher)
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"local":  local,
		"sqlite": sqlite,
	}
	for _, s := range stores {
		store := s
		t.Cleanup(func() { _ = store.Close() })
	}
	return stores
}

func sampleSession(id string) PersistedSession {
	return PersistedSession{
		ID: id,
		State: session.State{
			SessionID:      id,
			Model:          "claude-sonnet-4-5",
			PermissionMode: "default",
			CWD:            "/tmp/project",
			Tools:          []string{"Bash", "Read"},
		},
		MessageHistory: []message.Unified{
			message.NewUserMessage("hello"),
		},
		PendingPermissions: []PermissionEntry{
			{
				RequestID: "req_1",
				Request: &message.PermissionRequest{
					RequestID: "req_1",
					ToolName:  "Bash",
					Input:     map[string]any{"command": "ls"},
				},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ps := sampleSession("sess-1")
			require.NoError(t, store.Save(t.Context(), ps))

			got, err := store.Load(t.Context(), "sess-1")
			require.NoError(t, err)
			assert.Equal(t, SnapshotSchemaVersion, got.SchemaVersion)
			assert.Equal(t, "sess-1", got.ID)
			assert.Equal(t, "claude-sonnet-4-5", got.State.Model)
			assert.Equal(t, []string{"Bash", "Read"}, got.State.Tools)
			require.Len(t, got.PendingPermissions, 1)
			assert.Equal(t, "req_1", got.PendingPermissions[0].RequestID)
			assert.Equal(t, "Bash", got.PendingPermissions[0].Request.ToolName)
			require.Len(t, got.MessageHistory, 1)
			assert.Equal(t, message.TypeUserMessage, got.MessageHistory[0].Type)
		})
	}
}

func TestStoreSaveRejectsEmptyID(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Save(t.Context(), PersistedSession{})
			require.Error(t, err)
		})
	}
}

func TestStoreLoadMissingIDFails(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(t.Context(), "no-such-session")
			require.Error(t, err)
		})
	}
}

func TestStoreLoadAllSortedByID(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(t.Context(), sampleSession("sess-b")))
			require.NoError(t, store.Save(t.Context(), sampleSession("sess-a")))
			require.NoError(t, store.Save(t.Context(), sampleSession("sess-c")))

			all, err := store.LoadAll(t.Context())
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "sess-a", all[0].ID)
			assert.Equal(t, "sess-b", all[1].ID)
			assert.Equal(t, "sess-c", all[2].ID)
		})
	}
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(t.Context(), sampleSession("sess-1")))
			require.NoError(t, store.Remove(t.Context(), "sess-1"))
			require.NoError(t, store.Remove(t.Context(), "sess-1"))
			require.NoError(t, store.Remove(t.Context(), "never-existed"))

			_, err := store.Load(t.Context(), "sess-1")
			require.Error(t, err)
		})
	}
}

func TestStoreSetArchived(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(t.Context(), sampleSession("sess-1")))
			require.NoError(t, store.SetArchived(t.Context(), "sess-1", true))

			got, err := store.Load(t.Context(), "sess-1")
			require.NoError(t, err)
			assert.True(t, got.Archived)

			require.NoError(t, store.SetArchived(t.Context(), "sess-1", false))
			got, err = store.Load(t.Context(), "sess-1")
			require.NoError(t, err)
			assert.False(t, got.Archived)
		})
	}
}

func TestStoreLauncherStateRoundTrip(t *testing.T) {
	t.Parallel()

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := store.LoadLauncherState(t.Context())
			require.NoError(t, err)
			assert.Empty(t, empty)

			infos := []SessionInfo{
				{ID: "sess-1", AdapterName: "claude-cli", PID: 4242, CWD: "/tmp/a"},
				{ID: "sess-2", AdapterName: "inverted-ws", BackendSessionID: "be-7"},
			}
			require.NoError(t, store.SaveLauncherState(t.Context(), infos))

			got, err := store.LoadLauncherState(t.Context())
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "claude-cli", got[0].AdapterName)
			assert.Equal(t, 4242, got[0].PID)
			assert.Equal(t, "be-7", got[1].BackendSessionID)

			// A second save replaces wholesale.
			require.NoError(t, store.SaveLauncherState(t.Context(), infos[:1]))
			got, err = store.LoadLauncherState(t.Context())
			require.NoError(t, err)
			require.Len(t, got, 1)
		})
	}
}

func TestPermissionEntriesConvertBothWays(t *testing.T) {
	t.Parallel()

	pending := map[string]*message.PermissionRequest{
		"req_2": {RequestID: "req_2", ToolName: "Write"},
		"req_1": {RequestID: "req_1", ToolName: "Bash"},
	}

	entries := PermissionsToEntries(pending)
	require.Len(t, entries, 2)
	assert.Equal(t, "req_1", entries[0].RequestID)
	assert.Equal(t, "req_2", entries[1].RequestID)

	back := EntriesToPermissions(entries)
	require.Len(t, back, 2)
	assert.Equal(t, "Write", back["req_2"].ToolName)

	assert.Nil(t, PermissionsToEntries(nil))
	assert.Nil(t, EntriesToPermissions(nil))
}
