// Package crypto protects connection-profile secrets stored in the profile registry.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SealedPrefix marks a profile value as sealed, e.g. `password: "enc:AbC..."`.
const SealedPrefix = "enc:"

var (
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid credentials key: must not be empty")
	// ErrDecryptionFailed is returned for a malformed value or a wrong key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
	// ErrNoKey is returned when a sealed value is found but no key is configured.
	ErrNoKey = errors.New("sealed profile value found but no credentials key is configured")
)

// SecretBox seals profile secrets with AES-256-GCM.
type SecretBox struct {
	gcm cipher.AEAD
}

// NewSecretBox creates a box from a base64-encoded 32-byte key or a passphrase.
// Anything that is not exactly 32 bytes of base64 is hashed with SHA-256.
func NewSecretBox(keyInput string) (*SecretBox, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	key := deriveKey(keyInput)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &SecretBox{gcm: gcm}, nil
}

func deriveKey(keyInput string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(keyInput); err == nil && len(decoded) == 32 {
		return decoded
	}
	sum := sha256.Sum256([]byte(keyInput))
	return sum[:]
}

// Seal encrypts plaintext and returns SealedPrefix + base64(nonce || ciphertext || tag).
// Empty strings stay empty.
func (b *SecretBox) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := b.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *SecretBox) Open(value string) (string, error) {
	encoded := strings.TrimPrefix(value, SealedPrefix)
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}
	nonceSize := b.gcm.NonceSize()
	if len(data) < nonceSize+b.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := b.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries SealedPrefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Reveal returns plain values unchanged and opens sealed ones.
// box may be nil when no sealed values are expected.
func Reveal(box *SecretBox, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if box == nil {
		return "", ErrNoKey
	}
	return box.Open(value)
}
