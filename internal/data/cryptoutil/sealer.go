// Package cryptoutil seals values that are persisted outside the process.
package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// Sealed payloads carry a version prefix so the scheme can rotate without a flag day.
var (
	sealedPrefixV1 = []byte("v1:")
	plainPrefix    = []byte("plain:")
)

// ErrUnsealed is returned when a sealer that requires encryption meets a plaintext payload.
var ErrUnsealed = errors.New("payload is not sealed")

// Sealer encrypts and authenticates values. binding ties a payload to where it is
// stored: opening it under a different binding fails.
type Sealer interface {
	Seal(plaintext, binding []byte) ([]byte, error)
	Open(sealed, binding []byte) ([]byte, error)
}

// AESGCMSealer seals with AES-256-GCM using the binding as additional data.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer creates a sealer from a 32 byte key.
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESGCMSealer{aead: aead}, nil
}

// ParseKey decodes a base64 (standard or URL alphabet) key.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if len(key) != KeySize {
				return nil, fmt.Errorf("key must decode to %d bytes, got %d", KeySize, len(key))
			}
			return key, nil
		}
	}
	return nil, errors.New("key is not valid base64")
}

// Seal returns "v1:" followed by base64(nonce || ciphertext).
func (s *AESGCMSealer) Seal(plaintext, binding []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	raw := s.aead.Seal(nonce, nonce, plaintext, binding)

	out := make([]byte, len(sealedPrefixV1)+base64.StdEncoding.EncodedLen(len(raw)))
	copy(out, sealedPrefixV1)
	base64.StdEncoding.Encode(out[len(sealedPrefixV1):], raw)
	return out, nil
}

// Open reverses Seal. Plaintext payloads written before a key was configured are
// rejected with ErrUnsealed.
func (s *AESGCMSealer) Open(sealed, binding []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, sealedPrefixV1) {
		return nil, ErrUnsealed
	}
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(sealed)-len(sealedPrefixV1)))
	n, err := base64.StdEncoding.Decode(raw, sealed[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	raw = raw[:n]

	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, errors.New("sealed payload too short")
	}
	pt, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], binding)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return pt, nil
}

// PlainSealer stores values as-is behind a marker prefix. It is what runs when no key
// is configured, so development setups need no secret.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext, _ []byte) ([]byte, error) {
	out := make([]byte, 0, len(plainPrefix)+len(plaintext))
	out = append(out, plainPrefix...)
	return append(out, plaintext...), nil
}

// Open accepts marked payloads and, for data written before sealing existed, bare ones.
// Sealed payloads cannot be read without the key.
func (PlainSealer) Open(sealed, _ []byte) ([]byte, error) {
	if bytes.HasPrefix(sealed, sealedPrefixV1) {
		return nil, errors.New("payload is sealed but no key is configured")
	}
	return bytes.TrimPrefix(sealed, plainPrefix), nil
}
