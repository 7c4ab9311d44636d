package serial

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"WalletGen/internal/wallet"
)

// WriteSummary writes a human-readable report including secrets. Callers
// decide where it goes; the CLI writes it with 0600 permissions.
func WriteSummary(w io.Writer, records []*wallet.Record, now time.Time) error {
	bw := bufio.NewWriter(w)
	network := "unknown"
	if len(records) > 0 {
		network = string(records[0].Network())
	}
	fmt.Fprintf(bw, "WalletGen - Wallet Summary\n%s\n\n", strings.Repeat("=", 50))
	fmt.Fprintf(bw, "Total Wallets Generated: %d\n", len(records))
	fmt.Fprintf(bw, "Network: %s\n", network)
	fmt.Fprintf(bw, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))

	for _, r := range records {
		f, err := r.Fields()
		if err != nil {
			return fmt.Errorf("wallet #%d: %w", r.Index(), err)
		}
		fmt.Fprintf(bw, "Wallet #%d\n%s\n", f.Index+1, strings.Repeat("-", 20))
		fmt.Fprintf(bw, "Address: %s\n", f.Address)
		if f.DerivationPath != "" {
			fmt.Fprintf(bw, "Derivation Path: %s\n", f.DerivationPath)
		}
		if f.Mnemonic != "" {
			fmt.Fprintf(bw, "Mnemonic: %s\n", f.Mnemonic)
		}
		fmt.Fprintf(bw, "Private Key: %s\n\n", f.PrivateKey)
	}
	return bw.Flush()
}

type metaMaskEntry struct {
	Address        string `json:"address"`
	PrivateKey     string `json:"privateKey"`
	Mnemonic       string `json:"mnemonic"`
	DerivationPath string `json:"derivationPath"`
}

// MarshalMetaMask renders the camelCase array MetaMask import tooling expects.
func MarshalMetaMask(records []*wallet.Record) ([]byte, error) {
	out := make([]metaMaskEntry, 0, len(records))
	for _, r := range records {
		f, err := r.Fields()
		if err != nil {
			return nil, fmt.Errorf("wallet #%d: %w", r.Index(), err)
		}
		out = append(out, metaMaskEntry{
			Address:        f.Address,
			PrivateKey:     f.PrivateKey,
			Mnemonic:       f.Mnemonic,
			DerivationPath: f.DerivationPath,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}
