package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongPasswordOrCorruptData is the only error Decrypt returns. A
	// wrong password and a damaged envelope are indistinguishable on purpose.
	ErrWrongPasswordOrCorruptData = errors.New("wrong password or corrupt data")

	ErrPasswordTooShort = errors.New("password too short")
	ErrNotEnvelope      = errors.New("data is not an encrypted vault")
)

// WeakPasswordWarning is non-fatal: encryption proceeds, the caller is told.
type WeakPasswordWarning struct {
	Length      int
	Recommended int
}

func (w *WeakPasswordWarning) Error() string {
	return fmt.Sprintf("weak password: %d characters, at least %d recommended", w.Length, w.Recommended)
}
