// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/errors"
)

// Backend names accepted by NewStore.
const (
	BackendLocal  = "local"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// sqliteFileName is the database file used by the sqlite backend when the
// configured state dir is a directory rather than a connection string.
const sqliteFileName = "amux.db"

// NewStore builds the Store selected by cfg.State.Backend, wrapping
// snapshots in a sealed cipher when encryption is enabled.
func NewStore(ctx context.Context, cfg config.State) (Store, error) {
	cipher, err := cipherFor(cfg.Encryption)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalStore(cfg.Dir, cipher)
	case BackendSQLite:
		path := cfg.Dir
		if path == "" {
			local, err := NewLocalStore("", NoopCipher{})
			if err != nil {
				return nil, err
			}
			path = local.Dir()
		}
		if !isConnectionString(path) && filepath.Ext(path) != ".db" {
			path = filepath.Join(path, sqliteFileName)
		}
		return NewSQLiteStore(ctx, path, cipher)
	case BackendMemory:
		// Nothing rests on disk, so the cipher is not consulted.
		return NewMemoryStore(), nil
	default:
		return nil, errors.NewValidationError(
			fmt.Sprintf("unknown state backend %q (valid: local, sqlite, memory)", cfg.Backend), nil)
	}
}

func cipherFor(enc config.Encryption) (Cipher, error) {
	if !enc.Enabled {
		return NoopCipher{}, nil
	}
	key, err := enc.EncryptionKey()
	if err != nil {
		return nil, errors.NewValidationError("decode encryption key", err)
	}
	return NewSealedCipher(key, enc.KeyID)
}
