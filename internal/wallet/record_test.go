package wallet

import (
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"WalletGen/internal/crypto"
	"WalletGen/internal/mnemonic"
)

const (
	abandonAbout  = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	vectorPrivHex = "0x1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727"
	vectorAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func vectorRecord(t *testing.T) *Record {
	t.Helper()
	priv, err := crypto.ParsePrivateKey(vectorPrivHex)
	if err != nil {
		t.Fatalf("ParsePrivateKey() error: %v", err)
	}
	rec, err := New(Params{
		Index:          0,
		Network:        Testnet,
		Mnemonic:       abandonAbout,
		DerivationPath: "m/44'/60'/0'/0/0",
		PrivateKey:     priv,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return rec
}

func TestNew_ComputesPublicFields(t *testing.T) {
	is := is.New(t)
	rec := vectorRecord(t)

	is.Equal(rec.Address(), vectorAddress)
	is.Equal(rec.Network(), Testnet)
	is.Equal(rec.DerivationPath(), "m/44'/60'/0'/0/0")
	is.True(rec.HasMnemonic())
	words, err := rec.Words()
	is.NoErr(err)
	is.Equal(len(words), 12)

	addr, err := crypto.ComputeAddress(rec.PublicKey())
	is.NoErr(err)
	is.Equal(addr, rec.Address())
	is.True(crypto.ChecksumValid(rec.Address()))
}

func TestNew_Rejects(t *testing.T) {
	priv, _ := crypto.ParsePrivateKey(vectorPrivHex)
	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"negative index", Params{Index: -1, Network: Mainnet, PrivateKey: priv}, ErrInvalidIndex},
		{"bad network", Params{Network: "ropsten", PrivateKey: priv}, ErrInvalidNetwork},
		{"no key", Params{Network: Mainnet}, ErrMissingKeySource},
		{"path without mnemonic", Params{Network: Mainnet, PrivateKey: priv, DerivationPath: "m/0"}, ErrMissingMnemonic},
		{"bad mnemonic", Params{Network: Mainnet, PrivateKey: priv, Mnemonic: strings.Repeat("abandon ", 12)}, mnemonic.ErrInvalidMnemonicChecksum},
		{"zero key", Params{Network: Mainnet, PrivateKey: make([]byte, 32)}, crypto.ErrInvalidPrivateKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.p); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	priv, _ := crypto.ParsePrivateKey(vectorPrivHex)
	rec, err := New(Params{Network: Mainnet, PrivateKey: priv})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	clear(priv)
	got, err := rec.PrivateKeyHex()
	if err != nil || got != vectorPrivHex {
		t.Errorf("PrivateKeyHex() = %q, %v; caller mutation leaked into record", got, err)
	}
}

func TestWipe(t *testing.T) {
	is := is.New(t)
	rec := vectorRecord(t)
	rec.Wipe()

	is.True(rec.Wiped())
	is.Equal(rec.Address(), vectorAddress) // public data survives
	_, err := rec.PrivateKey()
	is.True(errors.Is(err, ErrWiped))
	_, err = rec.Mnemonic()
	is.True(errors.Is(err, ErrWiped))
	_, err = rec.Fields()
	is.True(errors.Is(err, ErrWiped))
	is.True(!strings.Contains(rec.String(), "abandon"))
	rec.Wipe() // idempotent
}

func TestWithIndex(t *testing.T) {
	is := is.New(t)
	rec := vectorRecord(t)

	moved, err := rec.WithIndex(7)
	is.NoErr(err)
	is.Equal(moved.Index(), 7)
	is.Equal(rec.Index(), 0)
	is.Equal(moved.Address(), rec.Address())

	rec.Wipe() // the copy owns its secrets
	got, err := moved.PrivateKeyHex()
	is.NoErr(err)
	is.Equal(got, vectorPrivHex)

	_, err = rec.WithIndex(1)
	is.True(errors.Is(err, ErrWiped))
	_, err = moved.WithIndex(-1)
	is.True(errors.Is(err, ErrInvalidIndex))
}

func TestFieldsRestoreRoundTrip(t *testing.T) {
	is := is.New(t)
	rec := vectorRecord(t)

	f, err := rec.Fields()
	is.NoErr(err)
	is.Equal(f.PrivateKey, vectorPrivHex)
	is.True(strings.HasPrefix(f.PublicKey, "0x04"))

	back, err := Restore(f)
	is.NoErr(err)
	is.True(back.Equal(rec))
}

func TestRestore_DetectsTampering(t *testing.T) {
	rec := vectorRecord(t)
	f, _ := rec.Fields()

	badAddr := f
	badAddr.Address = "0x0000000000000000000000000000000000000001"
	if _, err := Restore(badAddr); !errors.Is(err, ErrInconsistent) {
		t.Errorf("Restore(bad address) error = %v, want ErrInconsistent", err)
	}

	badPub := f
	badPub.PublicKey = "0x04" + strings.Repeat("00", 64)
	if _, err := Restore(badPub); !errors.Is(err, ErrInconsistent) {
		t.Errorf("Restore(bad public key) error = %v, want ErrInconsistent", err)
	}

	lower := f
	lower.Address = strings.ToLower(f.Address)
	back, err := Restore(lower)
	if err != nil {
		t.Fatalf("Restore(lowercase address) error: %v", err)
	}
	if back.Address() != vectorAddress {
		t.Errorf("address = %s, want checksummed %s", back.Address(), vectorAddress)
	}
}

func TestFromPrivateKey(t *testing.T) {
	is := is.New(t)
	rec, err := FromPrivateKey(strings.TrimPrefix(vectorPrivHex, "0x"), Sepolia, 4)
	is.NoErr(err)
	is.Equal(rec.Address(), vectorAddress)
	is.Equal(rec.Index(), 4)
	is.True(!rec.HasMnemonic())
	is.Equal(rec.DerivationPath(), "")
}

func TestParseNetwork(t *testing.T) {
	for _, n := range Networks() {
		got, err := ParseNetwork(" " + strings.ToUpper(string(n)) + " ")
		if err != nil || got != n {
			t.Errorf("ParseNetwork(%s) = %s, %v", n, got, err)
		}
	}
	if _, err := ParseNetwork("polygon"); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("ParseNetwork(polygon) error = %v, want ErrInvalidNetwork", err)
	}
	if Sepolia.Info().ChainID != 11155111 {
		t.Errorf("sepolia chain id = %d", Sepolia.Info().ChainID)
	}
}
