package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1:"

// ErrNotSealed is returned by Open for values without the sealed prefix.
var ErrNotSealed = errors.New("value is not sealed")

// kdfConfig controls Argon2ID key derivation parameters.
type kdfConfig struct {
	time    uint32
	memory  uint32
	threads uint8
}

var defaultKDFConfig = kdfConfig{
	time:    1,
	memory:  64 * 1024,
	threads: 4,
}

// DeriveSealingKey stretches a configured passphrase into a sealing key.
func DeriveSealingKey(passphrase, salt string) ([]byte, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("sealing passphrase is empty")
	}
	if len(salt) < 8 {
		return nil, errors.New("sealing salt must be at least 8 bytes")
	}
	cfg := defaultKDFConfig
	return argon2.IDKey([]byte(passphrase), []byte(salt), cfg.time, cfg.memory, cfg.threads, chacha20poly1305.KeySize), nil
}

// Sealer encrypts token material at rest with XChaCha20-Poly1305.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("new xchacha20poly1305: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts value bound to associatedData, which must be passed again to
// Open. The result is "v1:" followed by base64(nonce || ciphertext).
func (s *Sealer) Seal(value, associatedData string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	payload := s.aead.Seal(nonce, nonce, []byte(value), []byte(associatedData))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open decrypts a value produced by Seal with the same associated data.
func (s *Sealer) Open(sealed, associatedData string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}
	payload, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", errors.New("sealed value is too short")
	}
	plaintext, err := s.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], []byte(associatedData))
	if err != nil {
		return "", fmt.Errorf("decrypt sealed value: %w", err)
	}
	return string(plaintext), nil
}
