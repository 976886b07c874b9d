// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteStore persists snapshots in a single SQLite database. Snapshot
// blobs pass through the configured cipher; the launcher state lives in a
// single-row side table so restarts and `amux ls` share one file.
type SQLiteStore struct {
	db     *sql.DB
	cipher Cipher
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies pending migrations. Pass "file:memdb?mode=memory&cache=shared"
// style connection strings for in-memory databases.
func NewSQLiteStore(ctx context.Context, path string, cipher Cipher) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.NewValidationError("sqlite store requires a database path", nil)
	}
	if cipher == nil {
		cipher = NoopCipher{}
	}
	if dir := filepath.Dir(path); dir != "." && !isConnectionString(path) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, errors.NewStorageError("create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStorageError("open sqlite database", err)
	}
	// SQLite tolerates exactly one writer; a single pooled connection
	// avoids SQLITE_BUSY under concurrent session saves.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, cipher: cipher}, nil
}

func isConnectionString(path string) bool {
	return len(path) > 5 && path[:5] == "file:"
}

// runMigrations applies all pending migrations using goose.
func runMigrations(ctx context.Context, db *sql.DB) error {
	// The embedded filesystem has files under "migrations/"; strip the
	// prefix to get a flat filesystem of .sql files.
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errors.NewStorageError("create migration filesystem", err)
	}

	provider, err := goose.NewProvider(database.DialectSQLite3, db, migrationFS)
	if err != nil {
		return errors.NewStorageError("create migration provider", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return errors.NewStorageError("apply migrations", err)
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, ps PersistedSession) error {
	if ps.ID == "" {
		return errors.NewValidationError("snapshot must carry a session id", nil)
	}
	ps.SchemaVersion = SnapshotSchemaVersion
	now := time.Now().UTC()
	if ps.CreatedAt.IsZero() {
		ps.CreatedAt = now
	}
	ps.UpdatedAt = now

	raw, err := json.Marshal(ps)
	if err != nil {
		return errors.NewStorageError("marshal snapshot", err)
	}
	sealed, err := s.cipher.Encrypt(raw)
	if err != nil {
		return err
	}

	archived := 0
	if ps.Archived {
		archived = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, snapshot, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot = excluded.snapshot,
			archived = excluded.archived,
			updated_at = excluded.updated_at`,
		ps.ID, sealed, archived, ps.CreatedAt, ps.UpdatedAt)
	if err != nil {
		return errors.NewStorageError("upsert snapshot", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (PersistedSession, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE id = ?`, id).Scan(&sealed)
	if err == sql.ErrNoRows {
		return PersistedSession{}, errors.NewStorageError(
			fmt.Sprintf("no snapshot for session %s", id), err)
	}
	if err != nil {
		return PersistedSession{}, errors.NewStorageError("query snapshot", err)
	}
	return s.decode(sealed)
}

func (s *SQLiteStore) decode(sealed []byte) (PersistedSession, error) {
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

// LoadAll implements Store. Rows that fail decryption or validation are
// skipped with a warning so one bad row cannot block boot restore.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]PersistedSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, snapshot FROM sessions ORDER BY id`)
	if err != nil {
		return nil, errors.NewStorageError("list snapshots", err)
	}
	defer rows.Close()

	var out []PersistedSession
	for rows.Next() {
		var id string
		var sealed []byte
		if err := rows.Scan(&id, &sealed); err != nil {
			return nil, errors.NewStorageError("scan snapshot row", err)
		}
		ps, err := s.decode(sealed)
		if err != nil {
			logger.Warnw("skipping unreadable snapshot", "session_id", id, "error", err.Error())
			continue
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("iterate snapshots", err)
	}
	return out, nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return errors.NewStorageError("remove snapshot", err)
	}
	return nil
}

// SetArchived implements Store. The flag lives both in the snapshot blob
// and in its own column, so both are rewritten together.
func (s *SQLiteStore) SetArchived(ctx context.Context, id string, archived bool) error {
	ps, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	ps.Archived = archived
	return s.Save(ctx, ps)
}

// SaveLauncherState implements Store.
func (s *SQLiteStore) SaveLauncherState(ctx context.Context, infos []SessionInfo) error {
	payload, err := json.Marshal(infos)
	if err != nil {
		return errors.NewStorageError("marshal launcher state", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO launcher_state (id, payload, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		payload, time.Now().UTC())
	if err != nil {
		return errors.NewStorageError("upsert launcher state", err)
	}
	return nil
}

// LoadLauncherState implements Store.
func (s *SQLiteStore) LoadLauncherState(ctx context.Context) ([]SessionInfo, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM launcher_state WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return []SessionInfo{}, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("query launcher state", err)
	}
	var infos []SessionInfo
	if err := json.Unmarshal(payload, &infos); err != nil {
		return nil, errors.NewStorageError("unmarshal launcher state", err)
	}
	return infos, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
