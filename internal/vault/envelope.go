package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the on-disk vault format. It carries everything Decrypt needs
// besides the password.
type Envelope struct {
	Version       string `json:"version"`
	Encrypted     bool   `json:"encrypted"`
	Salt          string `json:"salt"`  // base64
	Nonce         string `json:"nonce"` // base64, GCM IV
	Data          string `json:"data"`  // base64 ciphertext || GCM tag
	CreatedAt     string `json:"created_at"`
	Algorithm     string `json:"algorithm"`
	KeyDerivation string `json:"key_derivation"`
	Iterations    int    `json:"iterations"`
}

// Marshal renders the envelope as indented JSON.
func (env *Envelope) Marshal() ([]byte, error) {
	return json.MarshalIndent(env, "", "  ")
}

// ParseEnvelope decodes data and requires "encrypted": true.
func ParseEnvelope(data []byte) (*Envelope, error) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\xef\xbb\xbf"))
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	if !env.Encrypted {
		return nil, ErrNotEnvelope
	}
	return &env, nil
}

// IsEnvelope reports whether data looks like a vault envelope.
func IsEnvelope(data []byte) bool {
	_, err := ParseEnvelope(data)
	return err == nil
}
