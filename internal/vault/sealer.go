package vault

import (
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"io"
)

var sealerMarker = []byte("walletgen/sealer/v1")

// Sealer encrypts many small values under one derived key. Stores use it to
// avoid a PBKDF2 run per record. The header envelope it is created with holds
// the KDF parameters and an encrypted marker used to detect a wrong password.
type Sealer struct {
	aead   cipher.AEAD
	rand   io.Reader
	header *Envelope
}

// NewSealer derives a fresh key and returns a Sealer plus the header envelope
// the caller must persist to reopen it later.
func (e *Engine) NewSealer(password []byte) (*Sealer, error) {
	header, err := e.Encrypt(sealerMarker, password)
	if err != nil {
		return nil, err
	}
	return e.OpenSealer(header, password)
}

// OpenSealer verifies password against header and returns the Sealer.
func (e *Engine) OpenSealer(header *Envelope, password []byte) (*Sealer, error) {
	marker, err := e.Decrypt(header, password)
	if err != nil {
		return nil, err
	}
	if string(marker) != string(sealerMarker) {
		return nil, ErrWrongPasswordOrCorruptData
	}
	salt, err := base64.StdEncoding.DecodeString(header.Salt)
	if err != nil {
		return nil, ErrWrongPasswordOrCorruptData
	}
	key := deriveKey(password, salt, header.Iterations)
	defer clear(key)
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead, rand: e.cfg.Rand, header: header}, nil
}

// Header returns the envelope that reopens this Sealer.
func (s *Sealer) Header() *Envelope { return s.header }

// Seal returns nonce || ciphertext. aad is typically the storage key so
// values cannot be swapped between keys.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func (s *Sealer) Open(blob, aad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(blob) < n+s.aead.Overhead() {
		return nil, ErrWrongPasswordOrCorruptData
	}
	pt, err := s.aead.Open(nil, blob[:n], blob[n:], aad)
	if err != nil {
		return nil, ErrWrongPasswordOrCorruptData
	}
	return pt, nil
}
