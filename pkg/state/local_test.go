// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSkipsCorruptSnapshots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocalStore(dir, NoopCipher{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(t.Context(), sampleSession("sess-good")))

	// Hand-plant a file that is not a valid snapshot.
	bad := filepath.Join(dir, sessionsDir, "sess-bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))

	all, err := store.LoadAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "sess-good", all[0].ID)
}

func TestLocalStoreRejectsSnapshotFailingSchema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocalStore(dir, NoopCipher{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Valid JSON, but missing required snapshot fields.
	bad := filepath.Join(dir, sessionsDir, "sess-odd.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"hello":"world"}`), 0600))

	_, err = store.Load(t.Context(), "sess-odd")
	require.Error(t, err)
}

func TestLocalStoreEncryptsAtRest(t *testing.T) {
	t.Parallel()

	cipher, err := NewSealedCipher([]byte("at rest key"), "k1")
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := NewLocalStore(dir, cipher)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ps := sampleSession("sess-enc")
	ps.State.CWD = "/very/secret/path"
	require.NoError(t, store.Save(t.Context(), ps))

	raw, err := os.ReadFile(filepath.Join(dir, sessionsDir, "sess-enc.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "/very/secret/path")

	got, err := store.Load(t.Context(), "sess-enc")
	require.NoError(t, err)
	assert.Equal(t, "/very/secret/path", got.State.CWD)
}

// Snapshots written under one key must refuse to load under a rotated key,
// and LoadAll must skip them rather than return garbage.
func TestLocalStoreKeyRotationRefusesOldSnapshots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	c1, err := NewSealedCipher([]byte("old key"), "k1")
	require.NoError(t, err)
	oldStore, err := NewLocalStore(dir, c1)
	require.NoError(t, err)
	require.NoError(t, oldStore.Save(t.Context(), sampleSession("sess-old")))
	require.NoError(t, oldStore.Close())

	c2, err := NewSealedCipher([]byte("new key"), "k2")
	require.NoError(t, err)
	newStore, err := NewLocalStore(dir, c2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = newStore.Close() })

	_, err = newStore.Load(t.Context(), "sess-old")
	require.Error(t, err)

	all, err := newStore.LoadAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLocalStoreDefaultsUnderStateHome(t *testing.T) {
	t.Parallel()

	// An explicit dir wins over the XDG default.
	dir := t.TempDir()
	store, err := NewLocalStore(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(filepath.Join(dir, sessionsDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStoreSanitizesSessionIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocalStore(dir, NoopCipher{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ps := sampleSession("../../escape")
	require.NoError(t, store.Save(t.Context(), ps))

	// The snapshot must land inside the sessions directory.
	entries, err := os.ReadDir(filepath.Join(dir, sessionsDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := store.Load(t.Context(), "../../escape")
	require.NoError(t, err)
	assert.Equal(t, "../../escape", got.ID)
}
