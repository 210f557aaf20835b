// Package secret encrypts S3 credentials at rest.
//
// Secrets are sealed with AES-256-GCM under a key derived from the
// process-wide master key via PBKDF2. The wire format is
// base64(salt || nonce || ciphertext); a fresh salt and nonce are drawn for
// every Encrypt call, so equal plaintexts never produce equal ciphertexts.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32
	iterations = 100_000
)

// ErrInvalidCiphertext is returned when a stored secret cannot be decoded or
// authenticated, typically because the master key changed.
var ErrInvalidCiphertext = errors.New("invalid or corrupted ciphertext")

// Box seals and opens secrets under one master key.
type Box struct {
	masterKey []byte
}

// NewBox creates a Box from the configured master key string.
func NewBox(masterKey string) (*Box, error) {
	if masterKey == "" {
		return nil, errors.New("encryption master key is required")
	}
	return &Box{masterKey: []byte(masterKey)}, nil
}

// Encrypt seals plaintext and returns the base64 wire form.
func (b *Box) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := b.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a base64 wire-form secret.
func (b *Box) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < saltSize {
		return "", ErrInvalidCiphertext
	}

	salt := raw[:saltSize]
	gcm, err := b.aead(salt)
	if err != nil {
		return "", err
	}

	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

func (b *Box) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(b.masterKey, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
