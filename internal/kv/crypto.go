package kv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

func generateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// sealer encrypts values with AES-256-GCM.
// Sealed format: [12-byte nonce][ciphertext]
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

func (s *sealer) seal(plaintext, key []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	// The item key is the additional data.
	out := make([]byte, 0, nonceSize+len(plaintext)+s.gcm.Overhead())
	out = append(out, nonce...)
	return s.gcm.Seal(out, nonce, plaintext, key), nil
}

func (s *sealer) open(sealed, key []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed value too small")
	}
	plaintext, err := s.gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], key)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
