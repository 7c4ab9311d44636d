// Package serial converts wallet records to and from JSON, CSV and YAML and
// wraps any of them in an encrypted vault envelope.
package serial

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"WalletGen/internal/vault"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformed         = errors.New("malformed wallet document")
)

func Formats() []Format { return []Format{FormatJSON, FormatCSV, FormatYAML} }

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Ext is the file extension written for f.
func (f Format) Ext() string { return "." + string(f) }

// FormatFromPath picks the format from a file extension. Encrypted vaults
// always use .json regardless of the inner format.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, filepath.Base(path))
	}
	return ParseFormat(ext)
}

// Detect reports whether data is an encrypted vault and, if it is not, which
// plaintext format it most likely holds.
func Detect(data []byte) (Format, bool) {
	if vault.IsEnvelope(data) {
		return FormatJSON, true
	}
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON, false
	case bytes.HasPrefix(trimmed, []byte("address,")):
		return FormatCSV, false
	default:
		return FormatYAML, false
	}
}

var utf8BOM = []byte("\xef\xbb\xbf")
