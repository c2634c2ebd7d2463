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

package notify

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength    = 16
	keyLength     = 32
	defaultRounds = 100_000
)

// deriveKey derives a symmetric key from the server passphrase and a
// per-record salt, the same construction as the Python PBKDF2HMAC-backed
// Fernet key this package replaces.
func deriveKey(passphrase []byte, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, defaultRounds, keyLength, sha256.New)
}

// EncryptEmail encrypts email for storage at rest, using passphrase to
// derive a per-call key under a fresh random salt. The returned token is
// URL-safe base64 and self-describing: salt || nonce || ciphertext.
func EncryptEmail(email string, passphrase []byte) (string, error) {
	if email == "" {
		return "", fmt.Errorf("notify: cannot encrypt an empty email address")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("notify: generating salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("notify: generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(email), nil)

	token := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	token = append(token, salt...)
	token = append(token, nonce...)
	token = append(token, ciphertext...)
	return base64.URLEncoding.EncodeToString(token), nil
}

// DecryptEmail recovers the plaintext address from a token produced by
// EncryptEmail. A wrong passphrase or corrupted token surfaces as an
// opaque error; callers must not expose the cause to API responses.
func DecryptEmail(token string, passphrase []byte) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("notify: malformed email token: %w", err)
	}
	gcmProbe, err := newGCM(deriveKey(passphrase, make([]byte, saltLength)))
	if err != nil {
		return "", err
	}
	nonceSize := gcmProbe.NonceSize()
	if len(raw) < saltLength+nonceSize {
		return "", fmt.Errorf("notify: malformed email token: too short")
	}
	salt := raw[:saltLength]
	nonce := raw[saltLength : saltLength+nonceSize]
	ciphertext := raw[saltLength+nonceSize:]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("notify: email token does not match server key")
	}
	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("notify: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("notify: building AEAD: %w", err)
	}
	return gcm, nil
}
