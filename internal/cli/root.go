// Package cli wires the walletgen commands onto cobra.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"WalletGen/internal/logsink"
	"WalletGen/internal/vault"
	"WalletGen/pkg/appcfg"
	"WalletGen/pkg/i18n"
	"WalletGen/pkg/logx"
)

var version = "dev"

// App carries what every command needs once configuration is loaded.
type App struct {
	cfg *appcfg.Config
	msg i18n.Messages

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// readSecret prompts for a secret without echo when stdin is a terminal.
	readSecret func(prompt string) ([]byte, error)
	now        func() time.Time

	cfgFile string
}

func NewApp() *App {
	a := &App{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		errOut: os.Stderr,
		now:    time.Now,
	}
	a.readSecret = a.promptSecret
	return a
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd(NewApp())
	ctx := withInterrupt(context.Background())
	if err := cmd.ExecuteContext(ctx); err != nil {
		logx.S().Errorw("command failed", "err", err)
		logx.Close()
		// the logger is a no-op when configuration failed
		fmt.Fprintf(os.Stderr, "walletgen: %v\n", err)
		return 1
	}
	return 0
}

func NewRootCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "walletgen",
		Short:         i18n.Get("en").RootShort,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logx.Close()
		},
	}
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	cmd.SetIn(a.in)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./walletgen.yaml or <user config dir>/walletgen/walletgen.yaml)")
	pf.String("log-level", "info", `log level ("debug", "info", "warn", "error")`)
	pf.String("lang", "en", `output language ("en", "ru")`)
	pf.Bool("hide-secrets", true, "mask private keys and mnemonics in console logs")
	pf.Int("workers", 0, "parallel workers (default GOMAXPROCS)")
	pf.String("output-dir", "output", "base directory for run outputs")

	cmd.AddCommand(
		newGenerateCmd(a),
		newImportCmd(a),
		newValidateCmd(a),
		newListCmd(a),
		newEncryptCmd(a),
		newDecryptCmd(a),
		newExportKeystoreCmd(a),
		newImportKeystoreCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := appcfg.Load(cmd.Flags(), a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.msg = i18n.Get(cfg.Language)
	return logx.Init(logx.Config{
		Level:                cfg.LogLevel,
		ConsoleOnly:          true,
		HideSecretsInConsole: cfg.HideSecretsInConsole,
		Stderr:               true,
	})
}

// startRun creates the run directory of module and tees logs into app.log
// there. File logs are always masked.
func (a *App) startRun(module string) (*logsink.Run, error) {
	run, err := logsink.MakeModuleDirs(a.cfg.OutputDir, module, a.now())
	if err != nil {
		return nil, err
	}
	if err := logx.Init(logx.Config{
		Level:                a.cfg.LogLevel,
		FilePath:             filepath.Join(run.Dir, "app.log"),
		HideSecretsInConsole: a.cfg.HideSecretsInConsole,
		Stderr:               true,
	}); err != nil {
		return nil, fmt.Errorf("logx init for %s failed: %w", module, err)
	}
	logx.S().Infow("run started", "module", module, "run_id", run.ID, "dir", run.Dir)
	return run, nil
}

// engine builds the vault engine; weak-password warnings go to stderr.
func (a *App) engine() *vault.Engine {
	cfg := a.cfg.VaultConfig()
	cfg.OnWarning = func(err error) {
		fmt.Fprintf(a.errOut, a.msg.PasswordWarning, err)
	}
	return vault.New(cfg)
}

func withInterrupt(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
