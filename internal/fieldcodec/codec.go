// Package fieldcodec encodes sensitive member fields before they are written
// and decodes them after they are read. Repositories own the codec; the
// onboarding pipeline only ever sees plaintext values.
package fieldcodec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms a single column value at the persistence boundary.
type Codec interface {
	Encode(plain string) (string, error)
	Decode(stored string) (string, error)
}

// Nop stores values unchanged.
type Nop struct{}

func (Nop) Encode(plain string) (string, error)  { return plain, nil }
func (Nop) Decode(stored string) (string, error) { return stored, nil }

const sealedPrefix = "enc:v1:"

// XChaCha seals values with XChaCha20-Poly1305 under a static key. Stored
// values carry a version prefix; values without it are returned as-is so
// rows written before encryption was enabled stay readable.
type XChaCha struct {
	key []byte
}

// NewXChaCha builds a codec from a hex encoded 32 byte key.
func NewXChaCha(hexKey string) (*XChaCha, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid field encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("field encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &XChaCha{key: key}, nil
}

func (c *XChaCha) Encode(plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *XChaCha) Decode(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("corrupt sealed value: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("corrupt sealed value: too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plain), nil
}

// FromKey returns Nop for an empty key.
func FromKey(hexKey string) (Codec, error) {
	if strings.TrimSpace(hexKey) == "" {
		return Nop{}, nil
	}
	return NewXChaCha(hexKey)
}
