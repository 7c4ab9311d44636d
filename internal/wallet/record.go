// Package wallet defines the immutable wallet record produced by generation
// and consumed by serialization.
package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"WalletGen/internal/crypto"
	"WalletGen/internal/mnemonic"
)

var (
	ErrWiped            = errors.New("record secrets were wiped")
	ErrInconsistent     = errors.New("record fields are inconsistent")
	ErrMissingMnemonic  = errors.New("derivation path without mnemonic")
	ErrInvalidIndex     = errors.New("negative record index")
	ErrMissingKeySource = errors.New("record has no private key")
)

// Record holds one generated wallet. Fields are unexported so a record cannot
// change after construction; the only mutation is Wipe.
type Record struct {
	address    string
	privateKey []byte
	publicKey  []byte
	mnemonic   []byte
	path       string
	network    Network
	index      int
	wiped      bool
}

// Params are the inputs of the canonical constructor.
type Params struct {
	Index          int
	Network        Network
	Mnemonic       string // empty for wallets imported from a raw key
	DerivationPath string
	PrivateKey     []byte // copied
}

// New builds a record; public key and address are always computed from the
// private key, never accepted from the caller.
func New(p Params) (*Record, error) {
	if p.Index < 0 {
		return nil, ErrInvalidIndex
	}
	if !p.Network.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, p.Network)
	}
	if len(p.PrivateKey) == 0 {
		return nil, ErrMissingKeySource
	}
	mn := mnemonic.Normalize(p.Mnemonic)
	if mn == "" && p.DerivationPath != "" {
		return nil, ErrMissingMnemonic
	}
	if mn != "" {
		if err := mnemonic.Check(mn); err != nil {
			return nil, err
		}
	}
	pub, err := crypto.PublicKeyOf(p.PrivateKey)
	if err != nil {
		return nil, err
	}
	addr, err := crypto.ComputeAddress(pub)
	if err != nil {
		return nil, err
	}
	return &Record{
		address:    addr,
		privateKey: bytes.Clone(p.PrivateKey),
		publicKey:  pub,
		mnemonic:   []byte(mn),
		path:       p.DerivationPath,
		network:    p.Network,
		index:      p.Index,
	}, nil
}

// WithIndex returns a copy of r at another batch position; r is unchanged.
func (r *Record) WithIndex(index int) (*Record, error) {
	if r.wiped {
		return nil, ErrWiped
	}
	if index < 0 {
		return nil, ErrInvalidIndex
	}
	c := *r
	c.privateKey = bytes.Clone(r.privateKey)
	c.publicKey = bytes.Clone(r.publicKey)
	c.mnemonic = bytes.Clone(r.mnemonic)
	c.index = index
	return &c, nil
}

// FromPrivateKey imports a raw hex key; such records carry no mnemonic or path.
func FromPrivateKey(hexKey string, network Network, index int) (*Record, error) {
	priv, err := crypto.ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	defer clear(priv)
	return New(Params{Index: index, Network: network, PrivateKey: priv})
}

// Fields is the flat textual form used by the serializers.
type Fields struct {
	Address        string
	PrivateKey     string
	PublicKey      string
	Mnemonic       string
	DerivationPath string
	Network        string
	Index          int
}

// Restore rebuilds a record from its textual form and rejects any field that
// disagrees with the one recomputed from the private key. It does not check
// that mnemonic and path derive the key; that costs a PBKDF2 run per record
// and is left to audit.Check.
func Restore(f Fields) (*Record, error) {
	network, err := ParseNetwork(f.Network)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ParsePrivateKey(f.PrivateKey)
	if err != nil {
		return nil, err
	}
	defer clear(priv)
	rec, err := New(Params{
		Index:          f.Index,
		Network:        network,
		Mnemonic:       f.Mnemonic,
		DerivationPath: f.DerivationPath,
		PrivateKey:     priv,
	})
	if err != nil {
		return nil, err
	}
	if f.Address != "" && !strings.EqualFold(f.Address, rec.address) {
		rec.Wipe()
		return nil, fmt.Errorf("%w: address %s does not match private key", ErrInconsistent, f.Address)
	}
	if f.PublicKey != "" {
		pub, err := crypto.DecodeHex(f.PublicKey)
		if err == nil {
			pub, err = crypto.NormalizePublicKey(pub)
		}
		if err != nil || !bytes.Equal(pub, rec.publicKey) {
			rec.Wipe()
			return nil, fmt.Errorf("%w: public key does not match private key", ErrInconsistent)
		}
	}
	return rec, nil
}

func (r *Record) Address() string        { return r.address }
func (r *Record) DerivationPath() string { return r.path }
func (r *Record) Network() Network       { return r.network }
func (r *Record) Index() int             { return r.index }
func (r *Record) HasMnemonic() bool      { return len(r.mnemonic) > 0 }
func (r *Record) Wiped() bool            { return r.wiped }

// PublicKey returns a copy of the 65-byte uncompressed key.
func (r *Record) PublicKey() []byte { return bytes.Clone(r.publicKey) }

func (r *Record) PublicKeyHex() string { return crypto.EncodeHex(r.publicKey) }

// PrivateKey returns a copy of the secret; callers should clear it after use.
func (r *Record) PrivateKey() ([]byte, error) {
	if r.wiped {
		return nil, ErrWiped
	}
	return bytes.Clone(r.privateKey), nil
}

func (r *Record) PrivateKeyHex() (string, error) {
	if r.wiped {
		return "", ErrWiped
	}
	return crypto.EncodeHex(r.privateKey), nil
}

// ECDSA returns the private key as an *ecdsa.PrivateKey for keystore export.
func (r *Record) ECDSA() (*ecdsa.PrivateKey, error) {
	if r.wiped {
		return nil, ErrWiped
	}
	return crypto.PrivateKeyFromBytes(r.privateKey)
}

func (r *Record) Mnemonic() (string, error) {
	if r.wiped {
		return "", ErrWiped
	}
	return string(r.mnemonic), nil
}

// Words returns the mnemonic as an ordered word slice.
func (r *Record) Words() ([]string, error) {
	mn, err := r.Mnemonic()
	if err != nil {
		return nil, err
	}
	return strings.Fields(mn), nil
}

// Wipe zeroes the private key and mnemonic buffers. Strings handed out
// earlier by accessors are not reachable from here and stay in memory until
// collected.
func (r *Record) Wipe() {
	if r == nil || r.wiped {
		return
	}
	clear(r.privateKey)
	clear(r.mnemonic)
	r.wiped = true
}

// Fields returns the textual form; it fails once the record was wiped.
func (r *Record) Fields() (Fields, error) {
	if r.wiped {
		return Fields{}, ErrWiped
	}
	return Fields{
		Address:        r.address,
		PrivateKey:     crypto.EncodeHex(r.privateKey),
		PublicKey:      crypto.EncodeHex(r.publicKey),
		Mnemonic:       string(r.mnemonic),
		DerivationPath: r.path,
		Network:        string(r.network),
		Index:          r.index,
	}, nil
}

// Equal compares every field, secrets included.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.address == o.address &&
		bytes.Equal(r.privateKey, o.privateKey) &&
		bytes.Equal(r.publicKey, o.publicKey) &&
		bytes.Equal(r.mnemonic, o.mnemonic) &&
		r.path == o.path &&
		r.network == o.network &&
		r.index == o.index &&
		r.wiped == o.wiped
}

// String never includes secret material.
func (r *Record) String() string {
	return fmt.Sprintf("wallet #%d %s (%s, %s)", r.index, r.address, r.network, r.path)
}
