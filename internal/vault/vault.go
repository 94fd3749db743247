// Package vault encrypts mailbox secrets at rest.
//
// A vault built with a key seals values with AES-256-GCM and tags them with a
// version prefix. A vault built without a key passes values through
// unchanged; the two modes refuse each other's values so a deployment never
// mixes encrypted and plain secrets silently.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
)

const (
	ModePassthrough = "passthrough"
	ModeAESGCM      = "aes-gcm"

	sealedPrefix = "enc:v1:"
	keySize      = 32
)

// Vault encrypts and decrypts secrets with a process-wide key
type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from a base64 encoded 32 byte key. An empty key yields a
// passthrough vault.
func New(base64Key string) (*Vault, error) {
	if base64Key == "" {
		return &Vault{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Passthrough reports whether the vault stores values unencrypted
func (v *Vault) Passthrough() bool {
	return v.aead == nil
}

// Mode names the vault mode for configuration reporting
func (v *Vault) Mode() string {
	if v.Passthrough() {
		return ModePassthrough
	}
	return ModeAESGCM
}

// Encrypt seals plaintext for storage
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v.Passthrough() {
		return plaintext, nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored value. Any value the vault cannot open (corrupt,
// sealed under another key or mode, or empty) yields "" and
// ErrCredentialUnusable; the account must then be reconnected.
func (v *Vault) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", apperrors.ErrCredentialUnusable
	}
	sealed := strings.HasPrefix(stored, sealedPrefix)

	if v.Passthrough() {
		if sealed {
			return "", apperrors.ErrCredentialUnusable
		}
		return stored, nil
	}
	if !sealed {
		return "", apperrors.ErrCredentialUnusable
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < v.aead.NonceSize()+v.aead.Overhead() {
		return "", apperrors.ErrCredentialUnusable
	}
	nonce, body := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", apperrors.ErrCredentialUnusable
	}
	return string(plain), nil
}
