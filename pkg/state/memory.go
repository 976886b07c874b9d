// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/agentmux/agentmux/pkg/errors"
)

// MemoryStore keeps snapshots in process memory. Used by tests and the
// "memory" state backend; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	launcher []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, ps PersistedSession) error {
	if ps.ID == "" {
		return errors.NewValidationError("snapshot must carry a session id", nil)
	}
	ps.SchemaVersion = SnapshotSchemaVersion
	b, err := json.Marshal(ps)
	if err != nil {
		return errors.NewStorageError("marshal snapshot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ps.ID] = b
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (PersistedSession, error) {
	s.mu.RLock()
	b, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return PersistedSession{}, errors.NewStorageError("no snapshot for session "+id, nil)
	}
	var ps PersistedSession
	if err := json.Unmarshal(b, &ps); err != nil {
		return PersistedSession{}, errors.NewStorageError("unmarshal snapshot", err)
	}
	return ps, nil
}

// LoadAll implements Store.
func (s *MemoryStore) LoadAll(_ context.Context) ([]PersistedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]PersistedSession, 0, len(ids))
	for _, id := range ids {
		var ps PersistedSession
		if err := json.Unmarshal(s.sessions[id], &ps); err != nil {
			continue
		}
		out = append(out, ps)
	}
	return out, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// SetArchived implements Store.
func (s *MemoryStore) SetArchived(ctx context.Context, id string, archived bool) error {
	ps, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	ps.Archived = archived
	return s.Save(ctx, ps)
}

// SaveLauncherState implements Store.
func (s *MemoryStore) SaveLauncherState(_ context.Context, infos []SessionInfo) error {
	b, err := json.Marshal(infos)
	if err != nil {
		return errors.NewStorageError("marshal launcher state", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launcher = b
	return nil
}

// LoadLauncherState implements Store.
func (s *MemoryStore) LoadLauncherState(_ context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.launcher == nil {
		return []SessionInfo{}, nil
	}
	var infos []SessionInfo
	if err := json.Unmarshal(s.launcher, &infos); err != nil {
		return nil, errors.NewStorageError("unmarshal launcher state", err)
	}
	return infos, nil
}

// Close implements Store.
func (*MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
