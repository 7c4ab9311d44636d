// Package vault wraps arbitrary bytes in a password-encrypted, self-describing
// JSON envelope: PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM.
package vault

import (
	"cmp"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"

	"WalletGen/pkg/logx"
)

const (
	Version         = "2.0"
	AlgorithmAESGCM = "AES-256-GCM"
	KDFPBKDF2SHA256 = "PBKDF2-HMAC-SHA256"

	DefaultIterations     = 100_000
	RecommendedIterations = 200_000
	// MaxIterations caps what Decrypt will run so a forged envelope cannot pin the CPU.
	MaxIterations = 10_000_000

	DefaultSaltLength = 16
	MinSaltLength     = 16
	keyLength         = 32 // AES-256

	DefaultMinPasswordLength         = 8
	DefaultRecommendedPasswordLength = 12
)

// Config tunes the engine; zero values take the defaults above.
type Config struct {
	Iterations                int
	SaltLength                int
	MinPasswordLength         int
	RecommendedPasswordLength int

	Rand io.Reader        // nil means crypto/rand
	Now  func() time.Time // nil means time.Now

	// OnWarning receives non-fatal policy findings such as *WeakPasswordWarning.
	OnWarning func(error)
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.SaltLength < MinSaltLength {
		cfg.SaltLength = DefaultSaltLength
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = DefaultMinPasswordLength
	}
	if cfg.RecommendedPasswordLength < cfg.MinPasswordLength {
		cfg.RecommendedPasswordLength = max(DefaultRecommendedPasswordLength, cfg.MinPasswordLength)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{cfg: cfg}
}

// Iterations returns the PBKDF2 round count new envelopes use.
func (e *Engine) Iterations() int { return e.cfg.Iterations }

// CheckPassword applies the length policy. It returns ErrPasswordTooShort
// (reject) or *WeakPasswordWarning (proceed, but tell the user) or nil.
func (e *Engine) CheckPassword(password []byte) error {
	n := utf8.RuneCount(password)
	if n < e.cfg.MinPasswordLength {
		return fmt.Errorf("%w: %d characters, minimum %d", ErrPasswordTooShort, n, e.cfg.MinPasswordLength)
	}
	if n < e.cfg.RecommendedPasswordLength {
		return &WeakPasswordWarning{Length: n, Recommended: e.cfg.RecommendedPasswordLength}
	}
	return nil
}

// Encrypt seals plaintext under a key derived from password and a fresh salt.
func (e *Engine) Encrypt(plaintext, password []byte) (*Envelope, error) {
	if err := e.checkAndWarn(password); err != nil {
		return nil, err
	}

	salt := make([]byte, e.cfg.SaltLength)
	if _, err := io.ReadFull(e.cfg.Rand, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	env := &Envelope{
		Version:       Version,
		Encrypted:     true,
		Algorithm:     AlgorithmAESGCM,
		KeyDerivation: KDFPBKDF2SHA256,
		Iterations:    e.cfg.Iterations,
		Salt:          base64.StdEncoding.EncodeToString(salt),
		CreatedAt:     e.cfg.Now().UTC().Format(time.RFC3339),
	}

	key := deriveKey(password, salt, env.Iterations)
	defer clear(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(e.cfg.Rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, env.additionalData())
	env.Nonce = base64.StdEncoding.EncodeToString(nonce)
	env.Data = base64.StdEncoding.EncodeToString(ciphertext)
	return env, nil
}

// Decrypt re-derives the key from the envelope's own parameters. Every
// failure maps to ErrWrongPasswordOrCorruptData.
func (e *Engine) Decrypt(env *Envelope, password []byte) ([]byte, error) {
	plaintext, err := e.open(env, password)
	if err != nil {
		logx.S().Debugw("vault decrypt failed")
		return nil, ErrWrongPasswordOrCorruptData
	}
	return plaintext, nil
}

// open runs the KDF even for a malformed header, with the engine's own
// iteration count and a zero salt, so a corrupt envelope costs as much as a
// wrong password.
func (e *Engine) open(env *Envelope, password []byte) ([]byte, error) {
	if env == nil {
		return nil, ErrNotEnvelope
	}
	var bad error
	if !env.Encrypted {
		bad = ErrNotEnvelope
	}
	if env.Version != Version || env.Algorithm != AlgorithmAESGCM || env.KeyDerivation != KDFPBKDF2SHA256 {
		bad = cmp.Or(bad, errors.New("unsupported envelope parameters"))
	}
	iterations := env.Iterations
	if iterations < 1 || iterations > MaxIterations {
		bad = cmp.Or(bad, errors.New("iteration count out of range"))
		iterations = e.cfg.Iterations
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) < MinSaltLength {
		bad = cmp.Or(bad, errors.New("bad salt"))
		salt = make([]byte, MinSaltLength)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		bad = cmp.Or(bad, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		bad = cmp.Or(bad, err)
	}

	key := deriveKey(password, salt, iterations)
	defer clear(key)
	if bad != nil {
		return nil, bad
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(ciphertext) < aead.Overhead() {
		return nil, errors.New("bad nonce or ciphertext length")
	}
	return aead.Open(nil, nonce, ciphertext, env.additionalData())
}

func (e *Engine) checkAndWarn(password []byte) error {
	err := e.CheckPassword(password)
	var weak *WeakPasswordWarning
	switch {
	case err == nil:
		return nil
	case errors.As(err, &weak):
		logx.S().Warnw("weak vault password", "length", weak.Length, "recommended", weak.Recommended)
		if e.cfg.OnWarning != nil {
			e.cfg.OnWarning(weak)
		}
		return nil
	default:
		return err
	}
}

var deriveKey = func(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLength, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

// additionalData binds the header to the ciphertext so that editing any
// parameter (including created_at) breaks authentication.
func (env *Envelope) additionalData() []byte {
	b := make([]byte, 0, 128)
	for _, s := range []string{env.Version, env.Algorithm, env.KeyDerivation, strconv.Itoa(env.Iterations), env.Salt, env.CreatedAt} {
		b = append(b, s...)
		b = append(b, 0)
	}
	return b
}
