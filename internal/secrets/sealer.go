package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/aware88/fresh-crm/internal/config"
	"go.uber.org/fx"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptyKey            = errors.New("empty_encryption_key")
	ErrMalformedCiphertext = errors.New("malformed_ciphertext")
)

// Sealer encrypts short secrets, OAuth tokens mainly, before they are
// written to the database. Ciphertexts are self-contained: a random
// nonce is prepended and the whole blob is base64-encoded so it fits a
// text column.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the AEAD key from the configured passphrase. Any
// passphrase length is accepted; the key material is stretched through
// HKDF-SHA256.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	kdf := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("freshcrm/token-sealer/v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	return string(plaintext), nil
}

// Module wires the token sealer from application configuration.
var Module = fx.Module("secrets",
	fx.Provide(func(cfg config.Config) (*Sealer, error) {
		return NewSealer(cfg.TokenEncryptionKey)
	}),
)
