package serial

import (
	"WalletGen/internal/vault"
	"WalletGen/internal/wallet"
)

// Cipher is the part of vault.Engine the serializer needs.
type Cipher interface {
	Encrypt(plaintext, password []byte) (*vault.Envelope, error)
	Decrypt(env *vault.Envelope, password []byte) ([]byte, error)
}

// WrapEncrypted encrypts already serialized bytes of any format.
func WrapEncrypted(c Cipher, plaintext, password []byte) ([]byte, error) {
	env, err := c.Encrypt(plaintext, password)
	if err != nil {
		return nil, err
	}
	return env.Marshal()
}

// UnwrapEncrypted returns the inner serialized bytes.
func UnwrapEncrypted(c Cipher, data, password []byte) ([]byte, error) {
	env, err := vault.ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(env, password)
}

// MarshalEncrypted serializes records and seals the result; the plaintext
// buffer is cleared before returning.
func MarshalEncrypted(c Cipher, records []*wallet.Record, f Format, password []byte) ([]byte, error) {
	plain, err := Marshal(records, f)
	if err != nil {
		return nil, err
	}
	defer clear(plain)
	return WrapEncrypted(c, plain, password)
}

// UnmarshalEncrypted opens a vault whose inner document is in format f.
func UnmarshalEncrypted(c Cipher, data []byte, f Format, password []byte) ([]*wallet.Record, error) {
	plain, err := UnwrapEncrypted(c, data, password)
	if err != nil {
		return nil, err
	}
	defer clear(plain)
	return Unmarshal(plain, f)
}
