package encdec

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gethks "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/matryer/is"

	"WalletGen/internal/crypto"
	"WalletGen/internal/serial"
	"WalletGen/internal/vault"
	"WalletGen/internal/wallet"
)

func testRecords(t *testing.T) []*wallet.Record {
	t.Helper()
	var out []*wallet.Record
	for i, k := range []string{
		"0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		"0x1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727",
	} {
		r, err := wallet.FromPrivateKey(k, wallet.Sepolia, i)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, r)
	}
	return out
}

func TestKeystoreExportImport(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	records := testRecords(t)
	pass := []byte("correcthorsebatterystaple")

	rep, err := ExportKeystores(context.Background(), records, dir, KeystoreOptions{
		Password:             pass,
		ScryptN:              gethks.LightScryptN,
		ScryptP:              gethks.LightScryptP,
		HideSecretsInConsole: true,
	})
	is.NoErr(err)
	is.Equal(rep.OK, 2)
	is.Equal(rep.Failed, 0)

	single := filepath.Join(dir, "files", strings.ToLower(strings.TrimPrefix(records[0].Address(), "0x"))+".json")
	info, err := os.Stat(single)
	is.NoErr(err)
	is.Equal(info.Mode().Perm(), os.FileMode(0o600))

	// all.jsonl and files/*.json hold the same wallets; duplicates collapse.
	got, rep, err := ImportKeystores(context.Background(), dir, pass, wallet.Sepolia, true)
	is.NoErr(err)
	is.Equal(rep.OK, 2)
	is.Equal(len(got), 2)
	for i, r := range got {
		is.Equal(r.Index(), i)
		is.True(!r.HasMnemonic())
	}
	addrs := map[string]bool{got[0].Address(): true, got[1].Address(): true}
	is.True(addrs[records[0].Address()])
	is.True(addrs[records[1].Address()])

	_, rep, err = ImportKeystores(context.Background(), dir, []byte("wrong-password"), wallet.Sepolia, true)
	is.NoErr(err)
	is.Equal(rep.OK, 0)
	is.Equal(rep.Failed, rep.Total)
}

func TestExportKeystoresNeedsPassword(t *testing.T) {
	is := is.New(t)
	_, err := ExportKeystores(context.Background(), testRecords(t), t.TempDir(), KeystoreOptions{})
	is.True(err != nil)
}

func TestForceAddressPrefix(t *testing.T) {
	is := is.New(t)
	with, err := forceAddressPrefix([]byte(`{"address":"ABCDEF"}`), true)
	is.NoErr(err)
	is.Equal(string(with), `{"address":"0xabcdef"}`)
	without, err := forceAddressPrefix(with, false)
	is.NoErr(err)
	is.Equal(string(without), `{"address":"abcdef"}`)
}

func TestDecryptOneIgnoresAddressField(t *testing.T) {
	is := is.New(t)
	r := testRecords(t)[1]
	priv, err := r.ECDSA()
	is.NoErr(err)
	blob, err := crypto.KeystoreJSON(priv, "pw", gethks.LightScryptN, gethks.LightScryptP)
	is.NoErr(err)

	var m map[string]any
	is.NoErr(json.Unmarshal(blob, &m))
	m["address"] = "0000000000000000000000000000000000000001"
	forged, err := json.Marshal(m)
	is.NoErr(err)

	addr, privHex, err := decryptOne(forged, "pw")
	is.NoErr(err)
	is.Equal(addr, r.Address())
	is.Equal(privHex, "0x1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727")
}

func TestVaultFileRoundTrip(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	eng := vault.New(vault.Config{Iterations: 1000})
	pass := []byte("correcthorsebatterystaple")
	records := testRecords(t)

	plain := filepath.Join(dir, "wallets.csv")
	is.NoErr(SaveFile(eng, records, plain, "", nil))

	sealed := filepath.Join(dir, "wallets.vault.json")
	is.NoErr(EncryptFile(eng, plain, sealed, pass))

	data, err := os.ReadFile(sealed)
	is.NoErr(err)
	is.True(vault.IsEnvelope(data))

	is.True(errors.Is(EncryptFile(eng, sealed, filepath.Join(dir, "again.json"), pass), ErrAlreadyEncrypted))

	// Decrypting to .yaml converts from the inner CSV.
	out := filepath.Join(dir, "wallets.yaml")
	is.NoErr(DecryptFile(eng, sealed, out, pass))
	got, err := LoadFile(eng, out, nil)
	is.NoErr(err)
	is.Equal(len(got), 2)
	is.True(got[1].Equal(records[1]))

	err = DecryptFile(eng, sealed, filepath.Join(dir, "x.json"), []byte("wrong-password"))
	is.Equal(err, vault.ErrWrongPasswordOrCorruptData)

	_, err = LoadFile(eng, sealed, nil)
	is.True(err != nil) // password required

	is.True(SaveFile(eng, records, out, "", nil) != nil) // never overwrites
}

func TestSaveFileEncryptedInnerFormat(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	eng := vault.New(vault.Config{Iterations: 1000})
	pass := []byte("correcthorsebatterystaple")

	out := filepath.Join(dir, "batch.json")
	is.NoErr(SaveFile(eng, testRecords(t), out, serial.FormatYAML, pass))

	data, err := os.ReadFile(out)
	is.NoErr(err)
	inner, err := serial.UnwrapEncrypted(eng, data, pass)
	is.NoErr(err)
	f, enc := serial.Detect(inner)
	is.True(!enc)
	is.Equal(f, serial.FormatYAML)
}
