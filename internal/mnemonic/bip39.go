// Package mnemonic generates and checks BIP-39 mnemonics (English wordlist).
package mnemonic

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	bip39 "github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidStrength         = errors.New("invalid mnemonic strength")
	ErrInvalidMnemonicChecksum = errors.New("invalid mnemonic checksum")
	ErrWordCount               = errors.New("invalid mnemonic word count")
	ErrUnknownWord             = errors.New("word not in BIP-39 wordlist")
)

// Strengths lists the entropy sizes in bits BIP-39 allows.
var Strengths = []int{128, 160, 192, 224, 256}

const DefaultStrength = 128 // 12 words

// SeedIterations is the PBKDF2-HMAC-SHA512 round count fixed by BIP-39.
const SeedIterations = 2048

// Generator draws entropy from an explicit source instead of a package global.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from r; nil means crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

func ValidStrength(bits int) bool {
	for _, s := range Strengths {
		if s == bits {
			return true
		}
	}
	return false
}

// WordCount returns the number of words a mnemonic of the given strength has.
func WordCount(bits int) int {
	return (bits + bits/32) / 11
}

// Generate returns a new space-separated mnemonic with strengthBits of entropy.
func (g *Generator) Generate(strengthBits int) (string, error) {
	if !ValidStrength(strengthBits) {
		return "", fmt.Errorf("%w: %d (want one of %v)", ErrInvalidStrength, strengthBits, Strengths)
	}
	entropy := make([]byte, strengthBits/8)
	defer clear(entropy)
	if _, err := io.ReadFull(g.rand, entropy); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	mn, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("encode mnemonic: %w", err)
	}
	return mn, nil
}

// Normalize collapses whitespace and lowercases the words.
func Normalize(mn string) string {
	return strings.Join(strings.Fields(strings.ToLower(mn)), " ")
}

// Check explains why mn is not a valid mnemonic, or returns nil.
func Check(mn string) error {
	words := strings.Fields(Normalize(mn))
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return fmt.Errorf("%w: %d", ErrWordCount, len(words))
	}
	index := wordIndex()
	for i, w := range words {
		if _, ok := index[w]; !ok {
			return fmt.Errorf("%w: word %d", ErrUnknownWord, i+1)
		}
	}
	if _, err := bip39.MnemonicToByteArray(strings.Join(words, " ")); err != nil {
		if errors.Is(err, bip39.ErrChecksumIncorrect) {
			return ErrInvalidMnemonicChecksum
		}
		return fmt.Errorf("%w: %v", ErrInvalidMnemonicChecksum, err)
	}
	return nil
}

// Validate reports whether mn has a valid length, known words and a matching checksum.
func Validate(mn string) bool {
	return Check(mn) == nil
}

// Seed stretches a checked mnemonic (plus optional BIP-39 passphrase) into the 64-byte seed.
func Seed(mn, passphrase string) ([]byte, error) {
	if err := Check(mn); err != nil {
		return nil, err
	}
	return bip39.NewSeed(Normalize(mn), passphrase), nil
}

var (
	indexOnce sync.Once
	index     map[string]int
)

func wordIndex() map[string]int {
	indexOnce.Do(func() {
		list := bip39.GetWordList()
		index = make(map[string]int, len(list))
		for i, w := range list {
			index[w] = i
		}
	})
	return index
}
