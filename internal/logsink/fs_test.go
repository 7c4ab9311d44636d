package logsink

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMakeModuleDirs(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

	run, err := MakeModuleDirs(base, "generate", now)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(base, "generate", "09.03.2024", "generate_14-05-07")
	if run.Dir != want {
		t.Fatalf("dir = %s, want %s", run.Dir, want)
	}
	if run.ID == "" {
		t.Fatal("empty run id")
	}

	again, err := MakeModuleDirs(base, "generate", now)
	if err != nil {
		t.Fatal(err)
	}
	if again.Dir == run.Dir || !strings.HasPrefix(again.Dir, want+"_") {
		t.Fatalf("second run dir = %s", again.Dir)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "wallets.json")
	if err := WriteFile(path, []byte("{}")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("perm = %v, want 0600", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}

	if err := WriteNew(path, []byte("{}")); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("WriteNew over existing file: %v", err)
	}
}

func TestWriteHint(t *testing.T) {
	dir := t.TempDir()
	if err := WriteHint(dir, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hint.txt")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("empty hint must not create a file")
	}
	if err := WriteHint(dir, "favourite horse"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "hint.txt"))
	if err != nil || string(b) != "favourite horse" {
		t.Fatalf("hint = %q, %v", b, err)
	}
}
