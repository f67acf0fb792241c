package store

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"ZakatSentinel/internal/model"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoKey is returned when a save is attempted without an encryption secret.
var ErrNoKey = errors.New("encryption key is required")

// Envelope layout: magic | salt | nonce | ciphertext+tag.
// The magic is authenticated as additional data.
var magic = []byte("ZKH1")

const (
	saltSize = 16

	// Argon2id parameters (OWASP baseline).
	argonTime    = 2
	argonMemory  = 19 * 1024 // KiB
	argonThreads = 1
)

func deriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// seal encrypts plaintext under a fresh salt and nonce.
func seal(secret, plaintext []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrNoKey
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(deriveKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, magic), nil
}

// open authenticates and decrypts an envelope. Every failure is ErrDecryptionFailed.
func open(secret, envelope []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: no key supplied", model.ErrDecryptionFailed)
	}
	header := len(magic) + saltSize + chacha20poly1305.NonceSizeX
	if len(envelope) < header+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: envelope too short (%d bytes)", model.ErrDecryptionFailed, len(envelope))
	}
	if !bytes.Equal(envelope[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: unknown envelope format", model.ErrDecryptionFailed)
	}
	salt := envelope[len(magic) : len(magic)+saltSize]
	nonce := envelope[len(magic)+saltSize : header]

	aead, err := chacha20poly1305.NewX(deriveKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecryptionFailed, err)
	}
	plaintext, err := aead.Open(nil, nonce, envelope[header:], magic)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered data", model.ErrDecryptionFailed)
	}
	return plaintext, nil
}

// GenerateKey returns a random secret suitable for ZAKAT_ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
