// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/agentmux/agentmux/pkg/errors"
)

// Cipher seals snapshot bytes at rest. Stores pass every snapshot through
// the configured cipher; with encryption disabled that is the no-op below.
type Cipher interface {
	// Encrypt seals plaintext. The output is self-contained: Decrypt on
	// the same cipher round-trips it.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens sealed bytes. Wrong key or key id must fail loudly,
	// never return garbage.
	Decrypt(sealed []byte) ([]byte, error)

	// KeyID names the active key. Mixed into the AEAD associated data so
	// a rotated key cannot silently open old ciphertexts.
	KeyID() string
}

// NoopCipher stores plaintext.
type NoopCipher struct{}

// Encrypt returns the plaintext unchanged.
func (NoopCipher) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

// Decrypt returns the sealed bytes unchanged.
func (NoopCipher) Decrypt(sealed []byte) ([]byte, error) { return sealed, nil }

// KeyID returns the empty key id.
func (NoopCipher) KeyID() string { return "" }

// SealedCipher encrypts snapshots with ChaCha20-Poly1305. The random nonce
// is prefixed to the ciphertext; the key id participates as associated data
// so decryption under a rotated key id fails authentication.
type SealedCipher struct {
	aead  cipher.AEAD
	keyID string
}

// NewSealedCipher derives a cipher from key material and a key id. The key
// is stretched through SHA-256 to the AEAD key size, so any non-empty byte
// string works.
func NewSealedCipher(key []byte, keyID string) (*SealedCipher, error) {
	if len(key) == 0 {
		return nil, errors.NewValidationError("encryption key must not be empty", nil)
	}
	sum := sha256.Sum256(key)
	aead, err := chacha20poly1305.New(sum[:])
	if err != nil {
		return nil, errors.NewInternalError("construct aead", err)
	}
	return &SealedCipher{aead: aead, keyID: keyID}, nil
}

// Encrypt implements Cipher.
func (c *SealedCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.NewInternalError("generate nonce", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(c.keyID)), nil
}

// Decrypt implements Cipher.
func (c *SealedCipher) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, errors.NewStorageError("sealed snapshot shorter than nonce", nil)
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(c.keyID))
	if err != nil {
		return nil, errors.NewStorageError("snapshot decryption failed; key or key id mismatch", err)
	}
	return plaintext, nil
}

// KeyID implements Cipher.
func (c *SealedCipher) KeyID() string { return c.keyID }
