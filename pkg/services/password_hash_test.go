package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestInferHashScheme(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   string
	}{
		{"md5", "6649254c316612bb3738855de6c9cb00", HashSchemeMD5},
		{"sha1", "b515ad8aa921003c1baf8e3ce7ff88273c4d4d91", HashSchemeSHA1},
		{"sha256 upper", "F87F23F56F0151B34863D45A603E4B643CF995F69BAAC6E1E9D26709EE2603FD", HashSchemeSHA256},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ01234", HashSchemeBcrypt},
		{"plain", "admin", HashSchemePlain},
		{"32 chars not hex", "zzzz254c316612bb3738855de6c9cb00", HashSchemePlain},
		{"padded md5", "6649254c316612bb3738855de6c9cb00   ", HashSchemeMD5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferHashScheme(tt.stored))
		})
	}
}

func TestHashPassword(t *testing.T) {
	got, err := HashPassword(HashSchemeSHA256, "parola123", "x9")
	require.NoError(t, err)
	assert.Equal(t, "f87f23f56f0151b34863d45a603e4b643cf995f69baac6e1e9d26709ee2603fd", got)

	got, err = HashPassword(HashSchemeMD5, "kasa1", "")
	require.NoError(t, err)
	assert.Equal(t, "6649254c316612bb3738855de6c9cb00", got)

	_, err = HashPassword(HashSchemeBcrypt, "x", "")
	assert.Error(t, err)

	_, err = HashPassword("rot13", "x", "")
	assert.Error(t, err)
}

func TestVerifyPassword(t *testing.T) {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte("sklad"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		scheme   string
		stored   string
		password string
		salt     string
		want     bool
	}{
		{"sha256 salted upper-case digest", HashSchemeSHA256, "F87F23F56F0151B34863D45A603E4B643CF995F69BAAC6E1E9D26709EE2603FD", "parola123", "x9", true},
		{"sha256 wrong salt", HashSchemeSHA256, "F87F23F56F0151B34863D45A603E4B643CF995F69BAAC6E1E9D26709EE2603FD", "parola123", "", false},
		{"md5", HashSchemeMD5, "6649254c316612bb3738855de6c9cb00", "kasa1", "", true},
		{"sha1", HashSchemeSHA1, "b515ad8aa921003c1baf8e3ce7ff88273c4d4d91", "sklad", "", true},
		{"sha1 wrong password", HashSchemeSHA1, "b515ad8aa921003c1baf8e3ce7ff88273c4d4d91", "Sklad", "", false},
		{"bcrypt", HashSchemeBcrypt, string(bcryptHash), "sklad", "", true},
		{"bcrypt wrong", HashSchemeBcrypt, string(bcryptHash), "nope", "", false},
		{"plain padded", HashSchemePlain, "admin   ", "admin", "", true},
		{"plain case sensitive", HashSchemePlain, "admin", "ADMIN", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPassword(tt.scheme, tt.stored, tt.password, tt.salt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerifyPassword_UnknownScheme(t *testing.T) {
	_, err := VerifyPassword("crc32", "abc", "abc", "")
	assert.Error(t, err)
}
