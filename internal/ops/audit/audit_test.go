package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"

	"WalletGen/internal/hdkey"
	"WalletGen/internal/serial"
	"WalletGen/internal/vault"
	"WalletGen/internal/wallet"
)

const abandonAbout = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func goodEntries(t *testing.T) []serial.Entry {
	t.Helper()
	kp, err := hdkey.NewDeriver(hdkey.Options{}).Derive(abandonAbout, "m/44'/60'/0'/0/0")
	if err != nil {
		t.Fatal(err)
	}
	derived, err := wallet.New(wallet.Params{Network: wallet.Mainnet, Mnemonic: abandonAbout, DerivationPath: kp.Path, PrivateKey: kp.PrivateKey})
	if err != nil {
		t.Fatal(err)
	}
	imported, err := wallet.FromPrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", wallet.Mainnet, 1)
	if err != nil {
		t.Fatal(err)
	}
	var out []serial.Entry
	for _, r := range []*wallet.Record{derived, imported} {
		e, err := serial.EntryOf(r)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, e)
	}
	return out
}

func TestCheckValid(t *testing.T) {
	is := is.New(t)
	rep := Check(goodEntries(t), Options{})
	is.True(rep.OK())
	is.Equal(rep.Wallets, 2)
	is.Equal(rep.Valid, 2)
}

func TestCheckFindsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*serial.Entry)
		check  string
	}{
		{"lowercase address", func(e *serial.Entry) { e.Address = "0x9858effd232b4033e47d90003d41ec34ecaeda94" }, "address"},
		{"foreign address", func(e *serial.Entry) { e.Address = "0x6fAC4D18c912343BF86fa7049364Dd4E424Ab9C0" }, "address"},
		{"bad key", func(e *serial.Entry) { e.PrivateKey = "0x00" }, "private_key"},
		{"bad network", func(e *serial.Entry) { e.Network = "ropsten" }, "network"},
		{"bad mnemonic", func(e *serial.Entry) { e.Mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon" }, "mnemonic"},
		{"wrong path", func(e *serial.Entry) { e.DerivationPath = "m/44'/60'/0'/0/1" }, "derivation"},
		{"path without mnemonic", func(e *serial.Entry) { e.Mnemonic = "" }, "mnemonic"},
		{"public key mismatch", func(e *serial.Entry) {
			e.PublicKey = "0x04" + "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798" + "483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8"
		}, "public_key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries := goodEntries(t)
			tc.mutate(&entries[0])
			rep := Check(entries, Options{})
			if rep.OK() || rep.Valid != 1 {
				t.Fatalf("valid = %d, issues = %v", rep.Valid, rep.Issues)
			}
			found := false
			for _, iss := range rep.Issues {
				if iss.Check == tc.check && iss.Index == 0 {
					found = true
				}
			}
			if !found {
				t.Fatalf("no %q issue in %v", tc.check, rep.Issues)
			}
		})
	}
}

func TestCheckSkipDerive(t *testing.T) {
	is := is.New(t)
	entries := goodEntries(t)
	entries[0].DerivationPath = "m/44'/60'/0'/0/1"
	rep := Check(entries, Options{SkipDerive: true})
	is.True(rep.OK())
}

func TestListFiles(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	entries := goodEntries(t)

	plain, err := serial.MarshalEntries(entries, serial.FormatCSV)
	is.NoErr(err)
	is.NoErr(os.WriteFile(filepath.Join(dir, "b.csv"), plain, 0o600))

	sealed, err := serial.WrapEncrypted(vault.New(vault.Config{Iterations: 1000}), plain, []byte("correcthorsebatterystaple"))
	is.NoErr(err)
	is.NoErr(os.WriteFile(filepath.Join(dir, "a.json"), sealed, 0o600))
	is.NoErr(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	is.NoErr(os.Mkdir(filepath.Join(dir, "sub.json"), 0o700))

	files, err := ListFiles(dir)
	is.NoErr(err)
	is.Equal(len(files), 2)

	is.Equal(files[0].Name, "a.json")
	is.True(files[0].Encrypted)
	is.Equal(files[0].Wallets, -1)

	is.Equal(files[1].Name, "b.csv")
	is.True(!files[1].Encrypted)
	is.Equal(files[1].Format, serial.FormatCSV)
	is.Equal(files[1].Wallets, 2)
}
