package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"WalletGen/internal/vault"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptSecret reads one line without echo on a terminal, or a plain line
// from piped stdin.
func (a *App) promptSecret(prompt string) ([]byte, error) {
	fmt.Fprint(a.errOut, prompt)
	if stdinIsTerminal() {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(a.errOut)
		return b, err
	}
	return a.readLine()
}

func (a *App) readLine() ([]byte, error) {
	line, err := a.in.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (a *App) prompt(prompt string) string {
	fmt.Fprint(a.errOut, prompt)
	b, _ := a.readLine()
	return strings.TrimSpace(string(b))
}

// newPassword asks for a vault password, applies the length policy before
// any work starts and asks for confirmation.
func (a *App) newPassword(eng *vault.Engine) ([]byte, error) {
	pwd, err := a.readSecret(a.msg.PasswordPrompt)
	if err != nil {
		return nil, err
	}
	var weak *vault.WeakPasswordWarning
	if err := eng.CheckPassword(pwd); err != nil && !errors.As(err, &weak) {
		clear(pwd)
		return nil, err
	}
	again, err := a.readSecret(a.msg.PasswordConfirm)
	if err != nil {
		clear(pwd)
		return nil, err
	}
	defer clear(again)
	if !bytes.Equal(pwd, again) {
		clear(pwd)
		return nil, errors.New(a.msg.PasswordMismatch)
	}
	return pwd, nil
}
