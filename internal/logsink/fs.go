// Package logsink lays out per-run output directories and writes secret
// bearing files with owner-only permissions.
package logsink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Run is one output directory: <base>/<module>/<DD.MM.YYYY>/<module>_<HH-MM-SS>.
type Run struct {
	ID      string
	Dir     string
	Started time.Time
}

// MakeModuleDirs creates the run directory. When a run of the same module
// already used this second, the run id is appended to keep them apart.
func MakeModuleDirs(base, module string, now time.Time) (*Run, error) {
	id := uuid.NewString()
	date := now.Format("02.01.2006")
	timeDir := now.Format("15-04-05")

	dir := filepath.Join(base, module, date, module+"_"+timeDir)
	if _, err := os.Stat(dir); err == nil {
		dir += "_" + id[:8]
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", dir, err)
	}
	return &Run{ID: id, Dir: dir, Started: now}, nil
}

// Path joins name onto the run directory.
func (r *Run) Path(name string) string { return filepath.Join(r.Dir, name) }

func OpenAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

// WriteFile writes data with 0600 permissions via a temp file and rename, so
// a reader never sees a half-written vault.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteNew is WriteFile that refuses to replace an existing file.
func WriteNew(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, fs.ErrExist)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return WriteFile(path, data)
}

// WriteHint stores the user's password hint next to the vault.
func WriteHint(dir, hint string) error {
	if hint == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, "hint.txt"), []byte(hint), 0o600)
}
