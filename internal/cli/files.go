package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"WalletGen/internal/ops/audit"
	"WalletGen/internal/ops/encdec"
	"WalletGen/internal/serial"
	"WalletGen/internal/wallet"
	"WalletGen/pkg/appcfg"
	"WalletGen/pkg/logx"
)

// vaultPassword prompts for the password of path only when it is a vault.
func (a *App) vaultPassword(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	_, encrypted := serial.Detect(data)
	clear(data)
	if !encrypted {
		return nil, nil
	}
	return a.readSecret(a.msg.PasswordPrompt)
}

func (a *App) loadRecords(path string) ([]*wallet.Record, error) {
	pwd, err := a.vaultPassword(path)
	if err != nil {
		return nil, err
	}
	defer clear(pwd)
	return encdec.LoadFile(a.engine(), path, pwd)
}

func wipeAll(records []*wallet.Record) {
	for _, r := range records {
		r.Wipe()
	}
}

func newImportCmd(a *App) *cobra.Command {
	var from, keysFile, out string
	var encrypt, verify bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import wallets from raw private keys or convert a wallet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (from == "") == (keysFile == "") {
				return errors.New("exactly one of --from or --keys-file is required")
			}
			var (
				records []*wallet.Record
				err     error
			)
			if from != "" {
				records, err = a.loadRecords(from)
			} else {
				network, nerr := wallet.ParseNetwork(a.cfg.Defaults.Network)
				if nerr != nil {
					return nerr
				}
				records, err = readKeysFile(keysFile, network)
			}
			if err != nil {
				return err
			}
			defer wipeAll(records)
			if verify {
				if err := a.verifyRecords(records, from); err != nil {
					return err
				}
			}
			fmt.Fprintf(a.out, a.msg.ImportDone, len(records))
			return a.writeRecords(records, out, encrypt)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "wallet file to convert (json, csv, yaml, or a vault)")
	cmd.Flags().StringVar(&keysFile, "keys-file", "", "file with one hex private key per line")
	cmd.Flags().StringVar(&out, "out", "", "output file; the extension selects the format")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "write an encrypted vault")
	cmd.Flags().BoolVar(&verify, "verify", false, "refuse to write wallets whose mnemonic and path do not yield the key")
	cmd.Flags().String("network", "mainnet", "network label for imported keys")
	cmd.Flags().String("format", "json", "output format when --out is not given")
	return cmd
}

// verifyRecords runs the full audit, including re-derivation, over records
// that already passed the consistency checks of wallet.Restore.
func (a *App) verifyRecords(records []*wallet.Record, source string) error {
	entries := make([]serial.Entry, 0, len(records))
	defer func() { serial.WipeEntries(entries) }()
	for _, r := range records {
		e, err := serial.EntryOf(r)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	rep := audit.Check(entries, audit.Options{})
	if rep.OK() {
		return nil
	}
	for _, iss := range rep.Issues {
		fmt.Fprintln(a.out, iss.String())
	}
	logx.S().Warnw("import verification failed", "file", source, "wallets", rep.Wallets, "issues", len(rep.Issues))
	return fmt.Errorf("%s: %d of %d wallets failed verification, nothing written", source, rep.Wallets-rep.Valid, rep.Wallets)
}

// readKeysFile parses one key per line; blank lines and # comments are skipped.
func readKeysFile(path string, network wallet.Network) ([]*wallet.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*wallet.Record
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		r, err := wallet.FromPrivateKey(raw, network, len(out))
		if err != nil {
			wipeAll(out)
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		wipeAll(out)
		return nil, err
	}
	return out, nil
}

// writeRecords saves to out, or into a new import run directory when out is
// empty.
func (a *App) writeRecords(records []*wallet.Record, out string, encrypt bool) error {
	eng := a.engine()
	var pwd []byte
	if encrypt {
		var err error
		if pwd, err = a.newPassword(eng); err != nil {
			return err
		}
		defer clear(pwd)
	}
	format, err := serial.ParseFormat(a.cfg.Defaults.Format)
	if err != nil {
		return err
	}
	if out == "" {
		run, err := a.startRun("import")
		if err != nil {
			return err
		}
		out = run.Path("wallets" + format.Ext())
		if encrypt {
			out = run.Path("wallets.vault.json")
		}
	} else if f, ferr := serial.FormatFromPath(out); ferr == nil && !encrypt {
		format = f
	}
	if err := encdec.SaveFile(eng, records, out, format, pwd); err != nil {
		return err
	}
	fmt.Fprintf(a.out, a.msg.OutputWritten, out)
	return nil
}

func newValidateCmd(a *App) *cobra.Command {
	var passphrase, skipDerive bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check every wallet in a file for internal consistency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			defer clear(data)
			format, encrypted := serial.Detect(data)
			if encrypted {
				pwd, err := a.readSecret(a.msg.PasswordPrompt)
				if err != nil {
					return err
				}
				plain, err := serial.UnwrapEncrypted(a.engine(), data, pwd)
				clear(pwd)
				if err != nil {
					return err
				}
				defer clear(plain)
				data = plain
				format, _ = serial.Detect(plain)
			}
			entries, err := serial.UnmarshalEntries(data, format)
			if err != nil {
				return err
			}
			defer serial.WipeEntries(entries)

			opt := audit.Options{SkipDerive: skipDerive}
			if passphrase {
				pp, err := a.readSecret(a.msg.PassphrasePrompt)
				if err != nil {
					return err
				}
				opt.Passphrase = string(pp)
				clear(pp)
			}
			rep := audit.Check(entries, opt)
			if rep.OK() {
				fmt.Fprintf(a.out, a.msg.ValidateOK, path, rep.Wallets)
				return nil
			}
			for _, iss := range rep.Issues {
				fmt.Fprintln(a.out, iss.String())
			}
			fmt.Fprintf(a.out, a.msg.ValidateIssues, path, rep.Valid, rep.Wallets, len(rep.Issues))
			logx.S().Warnw("validation failed", "file", path, "wallets", rep.Wallets, "valid", rep.Valid, "issues", len(rep.Issues))
			return fmt.Errorf("%s: %d invalid wallets", path, rep.Wallets-rep.Valid)
		},
	}
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "prompt for the BIP-39 passphrase used at generation")
	cmd.Flags().BoolVar(&skipDerive, "skip-derive", false, "skip re-deriving keys from mnemonics")
	return cmd
}

func newListCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list [dir]",
		Short: "List wallet files in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}
			files, err := audit.ListFiles(dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(a.out, a.msg.ListEmpty)
				return nil
			}
			for _, f := range files {
				state := a.msg.ListPlain
				if f.Encrypted {
					state = a.msg.ListEncrypted
				}
				wallets := "?"
				if f.Wallets >= 0 {
					wallets = fmt.Sprint(f.Wallets)
				}
				fmt.Fprintf(a.out, a.msg.ListHeader, f.Name, f.Format, state, wallets, f.Modified.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newEncryptCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <in> [out]",
		Short: "Seal a plaintext wallet file into a vault",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			out := strings.TrimSuffix(in, filepath.Ext(in)) + ".vault.json"
			if len(args) == 2 {
				out = args[1]
			}
			eng := a.engine()
			pwd, err := a.newPassword(eng)
			if err != nil {
				return err
			}
			defer clear(pwd)
			if err := encdec.EncryptFile(eng, in, out, pwd); err != nil {
				return err
			}
			fmt.Fprintf(a.out, a.msg.OutputWritten, out)
			return nil
		},
	}
}

func newDecryptCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <in> <out>",
		Short: "Open a vault; the extension of out selects the plaintext format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := a.readSecret(a.msg.PasswordPrompt)
			if err != nil {
				return err
			}
			defer clear(pwd)
			if err := encdec.DecryptFile(a.engine(), args[0], args[1], pwd); err != nil {
				return err
			}
			fmt.Fprintf(a.out, a.msg.OutputWritten, args[1])
			return nil
		},
	}
}

func newExportKeystoreCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export-keystore <file>",
		Short: "Write every wallet of a file as a go-ethereum keystore V3 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.loadRecords(args[0])
			if err != nil {
				return err
			}
			defer wipeAll(records)

			pwd, err := a.readSecret(a.msg.KeystorePasswordPrompt)
			if err != nil {
				return err
			}
			defer clear(pwd)
			if len(pwd) == 0 {
				return errors.New("empty keystore password")
			}
			run, err := a.startRun("keystore")
			if err != nil {
				return err
			}
			rep, err := encdec.ExportKeystores(cmd.Context(), records, run.Dir, encdec.KeystoreOptions{
				Password:             pwd,
				HideSecretsInConsole: a.cfg.HideSecretsInConsole,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, a.msg.KeystoreExported, rep.OK, rep.Failed, run.Dir)
			return nil
		},
	}
}

func newImportKeystoreCmd(a *App) *cobra.Command {
	var out string
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "import-keystore <dir>",
		Short: "Decrypt keystore V3 files (all.jsonl, *.json, files/*.json) into a wallet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			network, err := wallet.ParseNetwork(a.cfg.Defaults.Network)
			if err != nil {
				return err
			}
			pwd, err := a.readSecret(a.msg.KeystorePasswordPrompt)
			if err != nil {
				return err
			}
			records, rep, err := encdec.ImportKeystores(cmd.Context(), args[0], pwd, network, a.cfg.HideSecretsInConsole)
			clear(pwd)
			defer wipeAll(records)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, a.msg.KeystoreImported, rep.OK, rep.Failed)
			if len(records) == 0 {
				return nil
			}
			return a.writeRecords(records, out, encrypt)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file; the extension selects the format")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "write an encrypted vault")
	cmd.Flags().String("network", "mainnet", "network label for imported keys")
	cmd.Flags().String("format", "json", "output format when --out is not given")
	return cmd
}

func newConfigCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a walletgen.yaml with the current settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "walletgen.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := appcfg.WriteFile(*a.cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, a.msg.ConfigWritten, path)
			return nil
		},
	})
	return cmd
}
