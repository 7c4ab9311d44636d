package audit

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"WalletGen/internal/serial"
)

// FileInfo describes one wallet file. Wallets is -1 when the count cannot be
// known without a password or the file does not parse.
type FileInfo struct {
	Name      string
	Path      string
	Size      int64
	Modified  time.Time
	Encrypted bool
	Format    serial.Format
	Wallets   int
}

// ListFiles inspects regular files with a known wallet extension in dir,
// sorted by name. Unreadable files are skipped.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []FileInfo
	for _, de := range entries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		if _, err := serial.FormatFromPath(path); err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fi := FileInfo{Name: de.Name(), Path: path, Size: info.Size(), Modified: info.ModTime(), Wallets: -1}
		fi.Format, fi.Encrypted = serial.Detect(data)
		if !fi.Encrypted {
			if entries, err := serial.UnmarshalEntries(data, fi.Format); err == nil {
				fi.Wallets = len(entries)
				serial.WipeEntries(entries)
			}
		}
		clear(data)
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
