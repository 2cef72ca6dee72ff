// Package cryptox wraps the primitives used by the vault and the session
// manager: AES-256-GCM sealing and argon2id password hashing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/dmitrijs2005/patterm/internal/common"
)

// NonceSize is the GCM standard nonce length in bytes.
const NonceSize = 12

var ErrDecrypt = errors.New("message authentication failed")

// Seal encrypts plaintext with AES-GCM under key, binding aad to the
// ciphertext. The result is nonce || ciphertext with a fresh random nonce.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(NonceSize)
	out := make([]byte, 0, NonceSize+len(plaintext)+aesgcm.Overhead())
	out = append(out, nonce...)

	return aesgcm.Seal(out, nonce, plaintext, aad), nil
}

// Open reverses Seal. Any tampering with the nonce, ciphertext, tag or aad
// yields ErrDecrypt.
func Open(key, sealed, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+aesgcm.Overhead() {
		return nil, ErrDecrypt
	}

	plaintext, err := aesgcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// HashToken returns the hex SHA-256 of a bearer token. Only this digest is
// ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Equal compares two byte slices in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
