package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

var (
	// ErrAuthentication means the GCM tag did not verify: wrong key, tampering
	// or corrupted storage.
	ErrAuthentication = errors.New("crypto: message authentication failed")
	ErrPartialField   = errors.New("crypto: encrypted field has ciphertext or nonce but not both")
)

// FieldEncryptor encrypts single values with AES-256-GCM. Every call to
// Encrypt draws a fresh random nonce.
type FieldEncryptor struct {
	aead cipher.AEAD
	rand io.Reader
}

func New(key []byte) (*FieldEncryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: master key must be %d bytes (got %d)", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	a, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	return &FieldEncryptor{aead: a, rand: rand.Reader}, nil
}

// Encrypt returns ciphertext with the tag appended, and the nonce.
// An empty plaintext is stored as absent: both outputs are nil.
func (e *FieldEncryptor) Encrypt(plaintext string) (blob, nonce []byte, err error) {
	if plaintext == "" {
		return nil, nil, nil
	}
	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: read nonce: %w", err)
	}
	return e.aead.Seal(nil, nonce, []byte(plaintext), nil), nonce, nil
}

func (e *FieldEncryptor) Decrypt(blob, nonce []byte) (string, error) {
	if len(blob) == 0 && len(nonce) == 0 {
		return "", nil
	}
	if len(blob) == 0 || len(nonce) == 0 {
		return "", ErrPartialField
	}
	if len(nonce) != NonceSize || len(blob) < TagSize {
		return "", ErrAuthentication
	}
	pt, err := e.aead.Open(nil, nonce, blob, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(pt), nil
}

// GenerateMasterKey returns a new random key as 64 hex characters.
func GenerateMasterKey() (string, error) {
	b := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
