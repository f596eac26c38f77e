// Package secrets protects commitment salts at rest. Salts are encrypted with
// AES-256-GCM under a static key from configuration; each ciphertext carries its
// own random nonce so the stored value is self-contained.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	oerrors "github.com/lalalune/babylon-oracle/errors"
)

// KeySize is the required encryption key length in bytes (AES-256).
const KeySize = 32

// SaltSize is the length of a commitment salt in bytes.
const SaltSize = 32

// GenerateSalt returns a fresh 32-byte salt as a 0x-prefixed hex string,
// drawn from a cryptographically secure random source.
func GenerateSalt() (string, error) {
	buf := make([]byte, SaltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", oerrors.NewInternalError("failed to generate salt", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// Cipher encrypts and decrypts salts with a static AES-256-GCM key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key. The key must come from
// configuration; there is deliberately no default.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, oerrors.NewConfigError(
			fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oerrors.NewConfigError(fmt.Sprintf("invalid encryption key: %v", err))
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, oerrors.NewInternalError("failed to construct GCM", err)
	}

	return &Cipher{aead: aead}, nil
}

// NewCipherFromHex creates a Cipher from a 64-character hex key string.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, oerrors.NewConfigError(fmt.Sprintf("encryption key is not valid hex: %v", err))
	}
	return NewCipher(key)
}

// Encrypt seals the plaintext salt with a fresh random nonce and returns
// "nonceHex:cipherHex" so the nonce travels with the ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", oerrors.NewInternalError("failed to generate nonce", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A malformed stored value or a wrong key yields a
// DECRYPTION error; a wrong key can never silently return a wrong salt because
// GCM authentication fails loudly.
func (c *Cipher) Decrypt(stored string) (string, error) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return "", oerrors.NewDecryptionError("stored value is not in nonce:ciphertext form", nil)
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", oerrors.NewDecryptionError("nonce is not valid hex", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", oerrors.NewDecryptionError(
			fmt.Sprintf("nonce must be %d bytes, got %d", c.aead.NonceSize(), len(nonce)), nil)
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", oerrors.NewDecryptionError("ciphertext is not valid hex", err)
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", oerrors.NewDecryptionError("authentication failed (wrong key or tampered value)", err)
	}

	return string(plaintext), nil
}
