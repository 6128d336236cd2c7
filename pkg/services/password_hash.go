package services

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Password hash schemes found in operator tables.
const (
	HashSchemePlain  = "plain"
	HashSchemeMD5    = "md5"
	HashSchemeSHA1   = "sha1"
	HashSchemeSHA256 = "sha256"
	HashSchemeBcrypt = "bcrypt"
)

// IsKnownHashScheme reports whether scheme can be verified.
func IsKnownHashScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case HashSchemePlain, HashSchemeMD5, HashSchemeSHA1, HashSchemeSHA256, HashSchemeBcrypt:
		return true
	}
	return false
}

// InferHashScheme guesses the scheme of a stored value: bcrypt by prefix,
// digests by hex length, plain otherwise.
func InferHashScheme(stored string) string {
	stored = strings.TrimSpace(stored)
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(stored, prefix) {
			return HashSchemeBcrypt
		}
	}
	if !isHex(stored) {
		return HashSchemePlain
	}
	switch len(stored) {
	case 32:
		return HashSchemeMD5
	case 40:
		return HashSchemeSHA1
	case 64:
		return HashSchemeSHA256
	}
	return HashSchemePlain
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// HashPassword returns the lower-case hex digest of password with salt
// appended. Plain returns the salted input unchanged. Bcrypt cannot be
// reproduced and is rejected; use VerifyPassword.
func HashPassword(scheme, password, salt string) (string, error) {
	input := []byte(password + salt)
	switch strings.ToLower(scheme) {
	case HashSchemePlain:
		return string(input), nil
	case HashSchemeMD5:
		sum := md5.Sum(input)
		return hex.EncodeToString(sum[:]), nil
	case HashSchemeSHA1:
		sum := sha1.Sum(input)
		return hex.EncodeToString(sum[:]), nil
	case HashSchemeSHA256:
		sum := sha256.Sum256(input)
		return hex.EncodeToString(sum[:]), nil
	case HashSchemeBcrypt:
		return "", fmt.Errorf("bcrypt hashes are salted per value and must be verified")
	}
	return "", fmt.Errorf("unknown hash scheme %q", scheme)
}

// VerifyPassword checks password against a stored value. An empty scheme is
// inferred from the stored value. Digest comparison ignores hex case.
func VerifyPassword(scheme, stored, password, salt string) (bool, error) {
	stored = strings.TrimSpace(stored)
	password = trimPassword(password)
	if scheme == "" {
		scheme = InferHashScheme(stored)
	}

	switch strings.ToLower(scheme) {
	case HashSchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password+salt))
		if err == nil {
			return true, nil
		}
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, fmt.Errorf("bcrypt: %w", err)
	case HashSchemePlain:
		return stored == password+salt, nil
	}

	digest, err := HashPassword(scheme, password, salt)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(digest, stored), nil
}

// trimPassword drops trailing padding. CHAR columns and some front ends pad
// passwords with spaces.
func trimPassword(s string) string {
	return strings.TrimRight(s, " \t\r\n\x00")
}
