package cli

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"WalletGen/internal/generator"
	"WalletGen/internal/keystore"
	"WalletGen/internal/logsink"
	"WalletGen/internal/ops/encdec"
	"WalletGen/internal/serial"
	"WalletGen/internal/vault"
	"WalletGen/internal/wallet"
	"WalletGen/pkg/logx"
)

type generateFlags struct {
	encrypt    bool
	passphrase bool
	mnemonic   bool
	startIndex int
	hint       bool
	stream     string
	summary    bool
	metamask   bool
}

func newGenerateCmd(a *App) *cobra.Command {
	var fl generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, fl)
		},
	}
	f := cmd.Flags()
	f.Int("count", 1, "number of wallets")
	f.Int("strength", 128, "mnemonic entropy in bits (128, 160, 192, 224, 256)")
	f.String("network", "mainnet", "network label (mainnet, testnet, sepolia, custom)")
	f.String("path", "m/44'/60'/0'/0/{index}", "derivation path template; {index} marks the varying segment")
	f.String("mode", "independent", `"independent" (new mnemonic per wallet) or "shared" (one mnemonic)`)
	f.String("format", "json", "output format (json, csv, yaml)")
	f.BoolVar(&fl.encrypt, "encrypt", false, "write an encrypted vault")
	f.BoolVar(&fl.passphrase, "passphrase", false, "prompt for a BIP-39 passphrase")
	f.BoolVar(&fl.mnemonic, "mnemonic", false, "prompt for an existing mnemonic to continue (implies --mode shared)")
	f.IntVar(&fl.startIndex, "start-index", 0, "first value of {index}")
	f.BoolVar(&fl.hint, "hint", false, "prompt for a password hint stored in hint.txt")
	f.StringVar(&fl.stream, "stream", "", `stream records to "jsonl" or "badger" instead of one document`)
	f.BoolVar(&fl.summary, "summary", false, "also write a plaintext summary.txt")
	f.BoolVar(&fl.metamask, "metamask", false, "also write a MetaMask import file")
	return cmd
}

func (a *App) runGenerate(cmd *cobra.Command, fl generateFlags) error {
	cfg := a.cfg
	network, err := wallet.ParseNetwork(cfg.Defaults.Network)
	if err != nil {
		return err
	}
	mode, err := generator.ParseMode(cfg.Defaults.Mode)
	if err != nil {
		return err
	}
	format, err := serial.ParseFormat(cfg.Defaults.Format)
	if err != nil {
		return err
	}
	switch fl.stream {
	case "", "badger":
	case "jsonl":
		if fl.encrypt {
			return errors.New(`jsonl streams are plaintext; use --stream badger with --encrypt`)
		}
	default:
		return fmt.Errorf("unknown stream sink %q", fl.stream)
	}
	if fl.encrypt && (fl.summary || fl.metamask) {
		return errors.New("--summary and --metamask write plaintext secrets and cannot be combined with --encrypt")
	}

	req := generator.Request{
		Count:        cfg.Defaults.Count,
		StrengthBits: cfg.Defaults.Strength,
		Network:      network,
		PathTemplate: cfg.Defaults.PathTemplate,
		Mode:         mode,
		StartIndex:   fl.startIndex,
		Encrypt:      fl.encrypt,
	}
	if fl.mnemonic {
		if !cmd.Flags().Changed("mode") {
			req.Mode = generator.ModeShared
		}
		mn, err := a.readSecret(a.msg.MnemonicPrompt)
		if err != nil {
			return err
		}
		req.Mnemonic = string(mn)
		clear(mn)
	}
	gen := generator.New(generator.Options{Workers: cfg.Workers, MaxCount: cfg.Limits.MaxCount})
	if err := req.Validate(gen.MaxCount()); err != nil && !errors.Is(err, generator.ErrMissingPassword) {
		return err
	}

	eng := a.engine()
	var hint string
	if fl.encrypt {
		pwd, err := a.newPassword(eng)
		if err != nil {
			return err
		}
		defer clear(pwd)
		req.Password = pwd
		if fl.hint {
			hint = a.prompt(a.msg.HintPrompt)
		}
	}
	if fl.passphrase {
		pp, err := a.readSecret(a.msg.PassphrasePrompt)
		if err != nil {
			return err
		}
		req.Passphrase = string(pp)
		clear(pp)
	}

	run, err := a.startRun("generate")
	if err != nil {
		return err
	}
	if err := logsink.WriteHint(run.Dir, hint); err != nil {
		logx.S().Warnw("write hint failed", "err", err)
	}
	ctx := cmd.Context()

	if fl.stream != "" {
		return a.streamGenerate(cmd, gen, req, run, fl.stream, eng)
	}

	res, err := gen.Generate(ctx, req, nil)
	var ab *generator.BatchAbortedError
	if errors.As(err, &ab) {
		fmt.Fprintf(a.errOut, a.msg.GenerateAborted, ab.Completed, ab.Total, ab.Cause)
		if len(ab.Records) > 0 {
			partial := &generator.Result{Records: ab.Records}
			defer partial.Wipe()
			if serr := a.saveBatch(eng, partial.Records, run, "wallets_partial", format, req.Password); serr != nil {
				logx.S().Errorw("saving partial batch failed", "err", serr)
			}
		}
		return err
	}
	if err != nil {
		return err
	}
	defer res.Wipe()

	if err := a.saveBatch(eng, res.Records, run, "wallets", format, req.Password); err != nil {
		return err
	}
	if fl.summary {
		var buf bytes.Buffer
		if err := serial.WriteSummary(&buf, res.Records, a.now()); err != nil {
			return err
		}
		if err := writeSecretFile(a, run.Path("summary.txt"), buf.Bytes()); err != nil {
			return err
		}
	}
	if fl.metamask {
		data, err := serial.MarshalMetaMask(res.Records)
		if err != nil {
			return err
		}
		if err := writeSecretFile(a, run.Path("metamask.json"), data); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, a.msg.GenerateDone, len(res.Records), res.Elapsed.Round(time.Millisecond))
	return nil
}

func (a *App) saveBatch(eng serial.Cipher, records []*wallet.Record, run *logsink.Run, name string, f serial.Format, password []byte) error {
	path := run.Path(name + f.Ext())
	if len(password) > 0 {
		path = run.Path(name + ".vault.json")
	}
	if err := encdec.SaveFile(eng, records, path, f, password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, a.msg.OutputWritten, path)
	return nil
}

func (a *App) streamGenerate(cmd *cobra.Command, gen *generator.Generator, req generator.Request, run *logsink.Run, kind string, eng *vault.Engine) error {
	var (
		path  string
		sink  generator.Sink
		count func() (int, error)
		done  func() error
	)
	switch kind {
	case "jsonl":
		path = run.Path("wallets.jsonl")
		s, err := keystore.NewJSONLSink(path)
		if err != nil {
			return err
		}
		sink, done = s, s.Close
		count = func() (int, error) { return s.Count(), nil }
	case "badger":
		path = run.Path("wallets.db")
		var pwd []byte
		if req.Encrypt {
			pwd = req.Password
		}
		s, err := keystore.Open(path, eng, pwd)
		if err != nil {
			return err
		}
		sink, done, count = s, s.Close, s.Count
	}

	err := gen.Stream(cmd.Context(), req, sink, nil)
	n, cerr := count()
	if cerr != nil {
		logx.S().Warnw("count stored wallets failed", "err", cerr)
	}
	if derr := done(); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, a.msg.StreamDone, n, path)
	return nil
}

func writeSecretFile(a *App, path string, data []byte) error {
	defer clear(data)
	if err := logsink.WriteNew(path, data); err != nil {
		return err
	}
	fmt.Fprintf(a.out, a.msg.OutputWritten, path)
	return nil
}
