// Package audit checks stored wallets for internal consistency and lists
// wallet files in a directory.
package audit

import (
	"bytes"
	"fmt"
	"strings"

	"WalletGen/internal/crypto"
	"WalletGen/internal/hdkey"
	"WalletGen/internal/mnemonic"
	"WalletGen/internal/serial"
	"WalletGen/internal/wallet"
)

// Issue is one failed check on one wallet.
type Issue struct {
	Index   int
	Address string
	Check   string
	Detail  string
}

func (i Issue) String() string {
	return fmt.Sprintf("wallet #%d %s: %s: %s", i.Index, i.Address, i.Check, i.Detail)
}

type Report struct {
	Wallets int
	Valid   int
	Issues  []Issue
}

func (r *Report) OK() bool { return len(r.Issues) == 0 }

// Options controls the optional re-derivation check.
type Options struct {
	Passphrase string // BIP-39 passphrase the wallets were generated with
	SkipDerive bool   // skip re-deriving keys from mnemonics
	Deriver    *hdkey.Deriver
}

// Check validates each entry independently: address checksum, key range,
// public key and address agreement with the private key, network, mnemonic
// checksum and, unless skipped, that the mnemonic and path yield the key.
func Check(entries []serial.Entry, opt Options) *Report {
	d := opt.Deriver
	if d == nil {
		d = hdkey.NewDeriver(hdkey.Options{})
	}
	rep := &Report{Wallets: len(entries)}
	for pos, e := range entries {
		f := e.Fields(pos)
		before := len(rep.Issues)
		add := func(check, detail string) {
			rep.Issues = append(rep.Issues, Issue{Index: f.Index, Address: f.Address, Check: check, Detail: detail})
		}

		if !crypto.ChecksumValid(f.Address) {
			add("address", "not a valid EIP-55 checksummed address")
		}
		if _, err := wallet.ParseNetwork(f.Network); err != nil {
			add("network", err.Error())
		}

		priv, err := crypto.ParsePrivateKey(f.PrivateKey)
		if err != nil {
			add("private_key", err.Error())
		} else {
			checkKey(priv, f, add)
		}

		mn := mnemonic.Normalize(f.Mnemonic)
		switch {
		case mn == "" && f.DerivationPath != "":
			add("mnemonic", "derivation path present without mnemonic")
		case mn != "":
			if err := mnemonic.Check(mn); err != nil {
				add("mnemonic", err.Error())
			} else if priv != nil && !opt.SkipDerive {
				checkDerivation(d, mn, opt.Passphrase, f.DerivationPath, priv, add)
			}
		}
		clear(priv)

		if len(rep.Issues) == before {
			rep.Valid++
		}
	}
	return rep
}

func checkKey(priv []byte, f wallet.Fields, add func(string, string)) {
	pub, err := crypto.PublicKeyOf(priv)
	if err != nil {
		add("private_key", err.Error())
		return
	}
	addr, err := crypto.ComputeAddress(pub)
	if err != nil {
		add("private_key", err.Error())
		return
	}
	if !strings.EqualFold(addr, f.Address) {
		add("address", "does not match private key, expected "+addr)
	}
	if f.PublicKey == "" {
		return
	}
	got, err := crypto.DecodeHex(f.PublicKey)
	if err == nil {
		got, err = crypto.NormalizePublicKey(got)
	}
	if err != nil {
		add("public_key", err.Error())
	} else if !bytes.Equal(got, pub) {
		add("public_key", "does not match private key")
	}
}

func checkDerivation(d *hdkey.Deriver, mn, passphrase, path string, priv []byte, add func(string, string)) {
	if path == "" {
		add("derivation_path", "mnemonic present without derivation path")
		return
	}
	kp, err := d.DeriveWithPassphrase(mn, passphrase, path)
	if err != nil {
		add("derivation_path", err.Error())
		return
	}
	defer kp.Wipe()
	if !bytes.Equal(kp.PrivateKey, priv) {
		add("derivation", "mnemonic and path do not yield the stored private key")
	}
}
