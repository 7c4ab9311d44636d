package generator

import (
	"errors"
	"fmt"
	"io"
	"time"

	"WalletGen/internal/hdkey"
	"WalletGen/internal/mnemonic"
	"WalletGen/internal/wallet"
)

type Mode string

const (
	// ModeShared derives every record from one mnemonic, {index} = StartIndex+i.
	ModeShared Mode = "shared"
	// ModeIndependent draws a fresh mnemonic per record.
	ModeIndependent Mode = "independent"
)

const (
	DefaultMaxCount    = 10_000
	DefaultProgressLog = 10 * time.Second
)

var (
	ErrInvalidCount     = errors.New("invalid wallet count")
	ErrInvalidMode      = errors.New("invalid generation mode")
	ErrMissingPassword  = errors.New("encryption requested without a password")
	ErrDuplicateAddress = errors.New("duplicate address in batch")
	ErrInvalidStart     = errors.New("invalid start index")
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeShared, ModeIndependent:
		return m, nil
	case "":
		return ModeIndependent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Request describes one batch. Password is consumed by whoever persists the
// result and is never logged.
type Request struct {
	Count        int
	StrengthBits int // ignored when Mnemonic is set
	Network      wallet.Network
	PathTemplate string
	Mode         Mode

	// Mnemonic continues an existing HD wallet instead of drawing a new
	// one. Shared mode only.
	Mnemonic string

	// StartIndex offsets {index} and the record indices.
	StartIndex int

	Passphrase string // BIP-39 passphrase, not the vault password
	Encrypt    bool
	Password   []byte
}

// Validate checks the request structurally; no key material is touched.
func (r Request) Validate(maxCount int) error {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if r.Count < 1 || r.Count > maxCount {
		return fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidCount, r.Count, maxCount)
	}
	if r.Mnemonic == "" && !mnemonic.ValidStrength(r.StrengthBits) {
		return fmt.Errorf("%w: %d (want one of %v)", mnemonic.ErrInvalidStrength, r.StrengthBits, mnemonic.Strengths)
	}
	if !r.Network.Valid() {
		return fmt.Errorf("%w: %q", wallet.ErrInvalidNetwork, r.Network)
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	tmpl, err := hdkey.ParseTemplate(r.template())
	if err != nil {
		return err
	}
	if r.mode() == ModeShared && r.Count > 1 && !tmpl.Varies() {
		return fmt.Errorf("%w: shared mode needs %s in %q", hdkey.ErrInvalidDerivationPath, hdkey.IndexPlaceholder, tmpl)
	}
	if r.StartIndex < 0 || uint64(r.StartIndex)+uint64(r.Count) > uint64(hdkey.HardenedOffset) {
		return fmt.Errorf("%w: %d (with count %d the last index must stay below %d)", ErrInvalidStart, r.StartIndex, r.Count, hdkey.HardenedOffset)
	}
	if r.Mnemonic != "" {
		if r.mode() != ModeShared {
			return fmt.Errorf("%w: a supplied mnemonic needs %q mode", ErrInvalidMode, ModeShared)
		}
		if err := mnemonic.Check(mnemonic.Normalize(r.Mnemonic)); err != nil {
			return err
		}
	}
	if r.Encrypt && len(r.Password) == 0 {
		return ErrMissingPassword
	}
	return nil
}

func (r Request) template() string {
	if r.PathTemplate == "" {
		return hdkey.DefaultPathTemplate
	}
	return r.PathTemplate
}

func (r Request) mode() Mode {
	if r.Mode == "" {
		return ModeIndependent
	}
	return r.Mode
}

type Options struct {
	Workers    int // 0 means GOMAXPROCS
	MaxCount   int // 0 means DefaultMaxCount
	MaxRetries int // per-segment derivation retries, 0 means hdkey default

	// Deriver overrides the key deriver; MaxRetries is ignored when set.
	Deriver *hdkey.Deriver

	// Rand is the entropy source for mnemonics; nil means crypto/rand.
	Rand io.Reader

	// ProgressLog is the interval of the periodic progress log line.
	ProgressLog time.Duration
}
