// Package crypto holds the secp256k1 and EIP-55 helpers shared by the
// derivation, record and keystore code.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

const (
	PrivateKeyLength   = 32
	PublicKeyLength    = 65 // uncompressed SEC1, 0x04 || X || Y
	compressedKeyLen   = 33
	uncompressedPrefix = 0x04
)

var (
	secp256k1N  = gethcrypto.S256().Params().N
	addressExpr = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// ComputeAddress returns the EIP-55 checksummed address of pub.
// pub is either the 65-byte uncompressed form or the 33-byte compressed form.
func ComputeAddress(pub []byte) (string, error) {
	uncompressed, err := NormalizePublicKey(pub)
	if err != nil {
		return "", err
	}
	// keccak256(X || Y), last 20 bytes
	hash := gethcrypto.Keccak256(uncompressed[1:])
	return common.BytesToAddress(hash[12:]).Hex(), nil
}

// NormalizePublicKey returns the uncompressed form of pub after checking
// that it is a point on the curve.
func NormalizePublicKey(pub []byte) ([]byte, error) {
	switch len(pub) {
	case PublicKeyLength:
		if pub[0] != uncompressedPrefix {
			return nil, fmt.Errorf("%w: prefix 0x%02x", ErrInvalidPublicKey, pub[0])
		}
		key, err := gethcrypto.UnmarshalPubkey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return gethcrypto.FromECDSAPub(key), nil
	case compressedKeyLen:
		key, err := gethcrypto.DecompressPubkey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return gethcrypto.FromECDSAPub(key), nil
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(pub))
	}
}

// ChecksumValid reports whether addr is a 0x-prefixed 20-byte hex address
// whose letter casing matches its EIP-55 checksum.
func ChecksumValid(addr string) bool {
	if !addressExpr.MatchString(addr) {
		return false
	}
	return common.HexToAddress(addr).Hex() == addr
}

// ToChecksumAddress re-cases a hex address (any casing) to EIP-55.
func ToChecksumAddress(addr string) (string, error) {
	if !addressExpr.MatchString(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// PrivateKeyFromBytes validates 0 < k < n and returns the ECDSA key.
func PrivateKeyFromBytes(b []byte) (*ecdsa.PrivateKey, error) {
	if len(b) != PrivateKeyLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPrivateKey, len(b))
	}
	k := new(big.Int).SetBytes(b)
	if k.Sign() == 0 || k.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("%w: out of range", ErrInvalidPrivateKey)
	}
	priv, err := gethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return priv, nil
}

// ParsePrivateKey decodes a hex private key with or without the 0x prefix.
func ParsePrivateKey(s string) ([]byte, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	if _, err := PrivateKeyFromBytes(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// PublicKeyOf returns the uncompressed public key for a raw private key.
func PublicKeyOf(priv []byte) ([]byte, error) {
	key, err := PrivateKeyFromBytes(priv)
	if err != nil {
		return nil, err
	}
	return gethcrypto.FromECDSAPub(&key.PublicKey), nil
}

func PrivToHex(priv *ecdsa.PrivateKey) string {
	return "0x" + fmt.Sprintf("%x", gethcrypto.FromECDSA(priv))
}

func AddressHex(priv *ecdsa.PrivateKey) string {
	return gethcrypto.PubkeyToAddress(priv.PublicKey).Hex()
}

// EncodeHex returns b as 0x-prefixed lowercase hex.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeHex accepts an optional 0x/0X prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// KeystoreJSON encrypts priv into a Web3 Secret Storage (keystore V3) blob.
func KeystoreJSON(priv *ecdsa.PrivateKey, password string, scryptN, scryptP int) ([]byte, error) {
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    gethcrypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	return keystore.EncryptKey(key, password, scryptN, scryptP)
}
