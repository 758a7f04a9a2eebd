package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const cipherPrefix = "v1:"

var ErrMalformedCiphertext = errors.New("security: malformed token ciphertext")

// TokenCipher seals provider OAuth tokens before they are written to the
// database. Output is "v1:" + base64(nonce || ciphertext).
type TokenCipher struct {
	key []byte
}

func NewTokenCipher(base64Key string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &TokenCipher{key: key}, nil
}

// Encrypt returns "" for an empty token so optional refresh tokens stay empty.
func (c *TokenCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return cipherPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *TokenCipher) Decrypt(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, cipherPrefix) {
		return "", ErrMalformedCiphertext
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, cipherPrefix))
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformedCiphertext
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("security: open token: %w", err)
	}
	return string(plain), nil
}
