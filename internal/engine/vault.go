// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// VaultStore resolves a `vault://{id}` input reference to its decrypted
// payload and the file name it should be written under once staged to
// disk for a local execution. A deployment that never accepts vault
// references can leave this unset; Engine reports a clear error instead
// of a nil-pointer panic.
type VaultStore interface {
	Get(ctx context.Context, id string) (data []byte, filename string, err error)
}

// MemoryVaultStore is an in-process VaultStore backed by a passphrase
// shared with the caller that encrypted each entry. It exists for tests
// and single-instance deployments; a multi-replica deployment needs a
// shared backing store, which is outside this package's scope.
type MemoryVaultStore struct {
	passphrase []byte

	mu      sync.RWMutex
	entries map[string]vaultEntry
}

type vaultEntry struct {
	token    string
	filename string
}

// NewMemoryVaultStore builds a MemoryVaultStore. passphrase derives the
// per-entry encryption key, the same PBKDF2-over-AES-GCM construction
// used to encrypt subscriber emails at rest.
func NewMemoryVaultStore(passphrase []byte) *MemoryVaultStore {
	return &MemoryVaultStore{passphrase: passphrase, entries: make(map[string]vaultEntry)}
}

// Put encrypts data and stores it, with filename, under the caller-chosen
// id, for use in a `vault://{id}` input reference.
func (m *MemoryVaultStore) Put(id, filename string, data []byte) error {
	token, err := vaultEncrypt(data, m.passphrase)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[id] = vaultEntry{token: token, filename: filename}
	m.mu.Unlock()
	return nil
}

func (m *MemoryVaultStore) Get(ctx context.Context, id string) ([]byte, string, error) {
	m.mu.RLock()
	entry, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("engine: vault reference %q not found", id)
	}
	data, err := vaultDecrypt(entry.token, m.passphrase)
	if err != nil {
		return nil, "", err
	}
	return data, entry.filename, nil
}

const (
	vaultSaltLength = 16
	vaultKeyLength  = 32
	vaultRounds     = 100_000
)

func vaultDeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, vaultRounds, vaultKeyLength, sha256.New)
}

func vaultEncrypt(data, passphrase []byte) (string, error) {
	salt := make([]byte, vaultSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("engine: generating vault salt: %w", err)
	}
	gcm, err := vaultGCM(vaultDeriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("engine: generating vault nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, data, nil)

	token := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	token = append(token, salt...)
	token = append(token, nonce...)
	token = append(token, ciphertext...)
	return base64.URLEncoding.EncodeToString(token), nil
}

func vaultDecrypt(token string, passphrase []byte) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("engine: malformed vault token: %w", err)
	}
	probe, err := vaultGCM(vaultDeriveKey(passphrase, make([]byte, vaultSaltLength)))
	if err != nil {
		return nil, err
	}
	nonceSize := probe.NonceSize()
	if len(raw) < vaultSaltLength+nonceSize {
		return nil, fmt.Errorf("engine: malformed vault token: too short")
	}
	salt := raw[:vaultSaltLength]
	nonce := raw[vaultSaltLength : vaultSaltLength+nonceSize]
	ciphertext := raw[vaultSaltLength+nonceSize:]

	gcm, err := vaultGCM(vaultDeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: vault token does not match server key")
	}
	return plain, nil
}

func vaultGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("engine: building vault cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("engine: building vault AEAD: %w", err)
	}
	return gcm, nil
}
