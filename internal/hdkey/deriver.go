// Package hdkey walks BIP-32/44 derivation paths from a BIP-39 seed.
package hdkey

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"WalletGen/internal/crypto"
	"WalletGen/internal/mnemonic"
	"WalletGen/pkg/logx"
)

// DefaultMaxRetries bounds how many consecutive invalid children a single
// segment may skip before derivation fails.
const DefaultMaxRetries = 8

// ErrInvalidChild is the BIP-32 "IL >= n or zero key" failure.
var ErrInvalidChild = hdkeychain.ErrInvalidChild

// KeyDerivationError reports a derivation step that produced an invalid key.
// BIP-32 defines this as IL >= n or a zero child key; the probability is below 2^-127.
type KeyDerivationError struct {
	Path     string // requested path
	Segment  int    // zero-based segment after "m", -1 for the master key
	Index    uint32 // last index tried at Segment
	Attempts int
	Err      error
}

func (e *KeyDerivationError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("derive master key: %v", e.Err)
	}
	return fmt.Sprintf("derive %s: segment %d index %d after %d attempt(s): %v", e.Path, e.Segment, e.Index, e.Attempts, e.Err)
}

func (e *KeyDerivationError) Unwrap() error { return e.Err }

// Keypair is the derived secp256k1 key material for one path.
type Keypair struct {
	PrivateKey []byte // 32 bytes
	PublicKey  []byte // 65 bytes, uncompressed
	Path       string // resolved path; differs from the requested one only after a retry
	Retries    int
}

// Wipe zeroes the private key.
func (k *Keypair) Wipe() {
	if k != nil {
		clear(k.PrivateKey)
	}
}

// ChildFunc derives child i of parent.
type ChildFunc func(parent *hdkeychain.ExtendedKey, i uint32) (*hdkeychain.ExtendedKey, error)

type Options struct {
	MaxRetries int

	// Child replaces (*hdkeychain.ExtendedKey).Derive; tests use it to
	// produce invalid children on demand.
	Child ChildFunc
}

// Deriver is stateless and safe for concurrent use.
type Deriver struct {
	maxRetries int
	child      ChildFunc
}

func NewDeriver(opt Options) *Deriver {
	if opt.MaxRetries <= 0 {
		opt.MaxRetries = DefaultMaxRetries
	}
	if opt.Child == nil {
		opt.Child = (*hdkeychain.ExtendedKey).Derive
	}
	return &Deriver{
		maxRetries: opt.MaxRetries,
		child:      opt.Child,
	}
}

// MaxRetries is how many invalid children one segment may skip.
func (d *Deriver) MaxRetries() int { return d.maxRetries }

// Derive returns the keypair at path for mn with an empty BIP-39 passphrase.
func (d *Deriver) Derive(mn, path string) (*Keypair, error) {
	return d.DeriveWithPassphrase(mn, "", path)
}

// DeriveWithPassphrase validates the path before any key stretching happens.
func (d *Deriver) DeriveWithPassphrase(mn, passphrase, path string) (*Keypair, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	seed, err := mnemonic.Seed(mn, passphrase)
	if err != nil {
		return nil, err
	}
	defer clear(seed)
	return d.DeriveFromSeed(seed, p)
}

// DeriveFromSeed walks p from the master key of seed.
func (d *Deriver) DeriveFromSeed(seed []byte, p Path) (*Keypair, error) {
	return d.derive(seed, p, -1)
}

// DeriveFromSeedStrict is DeriveFromSeed without the retry at segment: an
// invalid child there fails at once with a *KeyDerivationError wrapping
// ErrInvalidChild. Callers that hand out the indices of that segment
// themselves use it to skip the index instead of colliding with the next one.
func (d *Deriver) DeriveFromSeedStrict(seed []byte, p Path, segment int) (*Keypair, error) {
	return d.derive(seed, p, segment)
}

func (d *Deriver) derive(seed []byte, p Path, strict int) (*Keypair, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, &KeyDerivationError{Path: p.String(), Segment: -1, Attempts: 1, Err: err}
	}
	defer master.Zero()

	key := master
	resolved := make(Path, 0, len(p))
	skipped := 0
	for seg, idx := range p {
		retries := d.maxRetries
		if seg == strict {
			retries = 0
		}
		child, used, attempts, err := d.deriveChild(key, idx, retries)
		if err != nil {
			if key != master {
				key.Zero()
			}
			return nil, &KeyDerivationError{Path: p.String(), Segment: seg, Index: used, Attempts: attempts, Err: err}
		}
		if attempts > 1 {
			skipped += attempts - 1
			logx.S().Warnw("invalid child key skipped",
				"path", p.String(),
				"segment", seg,
				"requested_index", idx,
				"used_index", used,
			)
		}
		if key != master {
			key.Zero()
		}
		key = child
		resolved = append(resolved, used)
	}
	if key != master {
		defer key.Zero()
	}

	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, &KeyDerivationError{Path: p.String(), Segment: len(p) - 1, Attempts: 1, Err: err}
	}
	priv := ecPriv.Serialize()
	ecPriv.Zero()

	pub, err := crypto.PublicKeyOf(priv)
	if err != nil {
		clear(priv)
		return nil, &KeyDerivationError{Path: p.String(), Segment: len(p) - 1, Attempts: 1, Err: err}
	}
	return &Keypair{
		PrivateKey: priv,
		PublicKey:  pub,
		Path:       resolved.String(),
		Retries:    skipped,
	}, nil
}

// deriveChild moves to the next index of the same kind when the child at idx
// is invalid, as BIP-32 prescribes.
func (d *Deriver) deriveChild(parent *hdkeychain.ExtendedKey, idx uint32, maxRetries int) (*hdkeychain.ExtendedKey, uint32, int, error) {
	hardened := idx >= HardenedOffset
	for attempt := 1; ; attempt++ {
		child, err := d.child(parent, idx)
		if err == nil {
			return child, idx, attempt, nil
		}
		if !errors.Is(err, hdkeychain.ErrInvalidChild) || attempt > maxRetries {
			return nil, idx, attempt, err
		}
		next := idx + 1
		if (!hardened && next >= HardenedOffset) || (hardened && next < HardenedOffset) {
			return nil, idx, attempt, fmt.Errorf("no index left after %d: %w", idx, err)
		}
		idx = next
	}
}
