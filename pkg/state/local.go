// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
)

const (
	// defaultAppName anchors the XDG state path.
	defaultAppName = "amux"
	// sessionsDir holds per-session snapshot files.
	sessionsDir = "sessions"
	// launcherStateFile holds the launcher bookkeeping.
	launcherStateFile = "launcher.json"
	// snapshotExtension is the snapshot file suffix.
	snapshotExtension = ".json"

	// lockTimeout bounds a launcher-state lock acquisition.
	lockTimeout = 1 * time.Second
	// lockRetryInterval is the poll interval while waiting for the lock.
	lockRetryInterval = 100 * time.Millisecond
)

// LocalStore persists snapshots as JSON files under the XDG state home
// (or an explicit directory). Writes are atomic via tmp+rename; the shared
// launcher-state file is additionally guarded by an advisory file lock so
// two daemons pointed at the same directory cannot interleave writes.
type LocalStore struct {
	baseDir string
	cipher  Cipher
}

// DefaultDir is the state directory used when none is configured.
func DefaultDir() string {
	return filepath.Join(xdg.StateHome, defaultAppName)
}

// NewLocalStore creates the store rooted at dir, or at DefaultDir() when
// dir is empty.
func NewLocalStore(dir string, cipher Cipher) (*LocalStore, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if cipher == nil {
		cipher = NoopCipher{}
	}
	if err := os.MkdirAll(filepath.Join(dir, sessionsDir), 0750); err != nil {
		return nil, errors.NewStorageError("create state directory", err)
	}
	return &LocalStore{baseDir: dir, cipher: cipher}, nil
}

// Dir returns the store's base directory.
func (s *LocalStore) Dir() string { return s.baseDir }

func (s *LocalStore) sessionPath(id string) string {
	// Session ids are UUIDs in practice; strip separators defensively so
	// a hostile id cannot escape the directory.
	safe := strings.ReplaceAll(strings.ReplaceAll(id, "/", "_"), string(filepath.Separator), "_")
	return filepath.Join(s.baseDir, sessionsDir, safe+snapshotExtension)
}

// Save implements Store.
func (s *LocalStore) Save(_ context.Context, ps PersistedSession) error {
	if ps.ID == "" {
		return errors.NewValidationError("snapshot must carry a session id", nil)
	}
	ps.SchemaVersion = SnapshotSchemaVersion
	if ps.UpdatedAt.IsZero() {
		ps.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		return errors.NewStorageError("marshal snapshot", err)
	}
	sealed, err := s.cipher.Encrypt(raw)
	if err != nil {
		return err
	}
	return atomicWrite(s.sessionPath(ps.ID), sealed)
}

// Load implements Store.
func (s *LocalStore) Load(_ context.Context, id string) (PersistedSession, error) {
	return s.loadPath(s.sessionPath(id))
}

func (s *LocalStore) loadPath(path string) (PersistedSession, error) {
	sealed, err := os.ReadFile(path) // #nosec G304 - path is derived from the store's own directory
	if err != nil {
		if os.IsNotExist(err) {
			return PersistedSession{}, errors.NewStorageError(
				fmt.Sprintf("no snapshot at %s", filepath.Base(path)), err)
		}
		return PersistedSession{}, errors.NewStorageError("read snapshot", err)
	}
	raw, err := s.cipher.Decrypt(sealed)
	if err != nil {
		return PersistedSession{}, err
	}
	if err := ValidateSnapshot(raw); err != nil {
		return PersistedSession{}, err
	}
	var ps PersistedSession
	if err := json.Unmarshal(raw, &ps); err != nil {
		return PersistedSession{}, errors.NewStorageError("unmarshal snapshot", err)
	}
	return ps, nil
}

// LoadAll implements Store. Corrupt or undecryptable snapshots are skipped
// with a warning so one bad file cannot block boot restore.
func (s *LocalStore) LoadAll(_ context.Context) ([]PersistedSession, error) {
	dir := filepath.Join(s.baseDir, sessionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("list snapshots", err)
	}

	var out []PersistedSession
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExtension) {
			continue
		}
		ps, err := s.loadPath(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warnw("skipping unreadable snapshot",
				"file", entry.Name(), "error", err.Error())
			continue
		}
		out = append(out, ps)
	}
	return out, nil
}

// Remove implements Store.
func (s *LocalStore) Remove(_ context.Context, id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError("remove snapshot", err)
	}
	return nil
}

// SetArchived implements Store.
func (s *LocalStore) SetArchived(ctx context.Context, id string, archived bool) error {
	ps, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	ps.Archived = archived
	ps.UpdatedAt = time.Now().UTC()
	return s.Save(ctx, ps)
}

// SaveLauncherState implements Store.
func (s *LocalStore) SaveLauncherState(ctx context.Context, infos []SessionInfo) error {
	raw, err := json.Marshal(infos)
	if err != nil {
		return errors.NewStorageError("marshal launcher state", err)
	}
	return s.withLauncherLock(ctx, func(path string) error {
		return atomicWrite(path, raw)
	})
}

// LoadLauncherState implements Store.
func (s *LocalStore) LoadLauncherState(ctx context.Context) ([]SessionInfo, error) {
	var infos []SessionInfo
	err := s.withLauncherLock(ctx, func(path string) error {
		raw, err := os.ReadFile(path) // #nosec G304 - fixed filename under the store directory
		if err != nil {
			if os.IsNotExist(err) {
				infos = []SessionInfo{}
				return nil
			}
			return errors.NewStorageError("read launcher state", err)
		}
		if err := json.Unmarshal(raw, &infos); err != nil {
			return errors.NewStorageError("unmarshal launcher state", err)
		}
		return nil
	})
	return infos, err
}

// Close implements Store.
func (*LocalStore) Close() error { return nil }

// withLauncherLock runs fn with the launcher-state advisory lock held.
func (s *LocalStore) withLauncherLock(ctx context.Context, fn func(path string) error) error {
	path := filepath.Join(s.baseDir, launcherStateFile)
	fileLock := flock.New(path + ".lock")
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			logger.Warnw("failed to release launcher state lock", "error", err.Error())
		}
	}()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return errors.NewStorageError("acquire launcher state lock", err)
	}
	if !locked {
		return errors.NewStorageError(
			fmt.Sprintf("launcher state lock timeout after %v", lockTimeout), nil)
	}
	return fn(path)
}

// atomicWrite lands data at path via a same-directory temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.NewStorageError("create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.NewStorageError("chmod temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewStorageError("write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStorageError("close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.NewStorageError("rename into place", err)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
