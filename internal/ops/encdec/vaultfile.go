package encdec

import (
	"errors"
	"fmt"
	"os"

	"WalletGen/internal/logsink"
	"WalletGen/internal/serial"
	"WalletGen/internal/wallet"
	"WalletGen/pkg/logx"
)

var ErrAlreadyEncrypted = errors.New("file is already encrypted")

// EncryptFile seals a plaintext wallet document into a vault at out. The
// document is parsed and verified first so a broken file is never sealed.
func EncryptFile(c serial.Cipher, in, out string, password []byte) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	defer clear(data)

	f, encrypted := serial.Detect(data)
	if encrypted {
		return fmt.Errorf("%s: %w", in, ErrAlreadyEncrypted)
	}
	records, err := serial.Unmarshal(data, f)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	defer wipeAll(records)

	sealed, err := serial.WrapEncrypted(c, data, password)
	if err != nil {
		return err
	}
	if err := logsink.WriteNew(out, sealed); err != nil {
		return err
	}
	logx.S().Infow("vault written", "in", in, "out", out, "format", f, "wallets", len(records))
	return nil
}

// DecryptFile opens a vault and writes the inner document to out in the
// format of out's extension, converting when it differs from the inner one.
func DecryptFile(c serial.Cipher, in, out string, password []byte) error {
	records, err := LoadFile(c, in, password)
	if err != nil {
		return err
	}
	defer wipeAll(records)
	return SaveFile(c, records, out, "", nil)
}

// LoadFile reads a plaintext or encrypted wallet document. password is only
// used when the file is a vault.
func LoadFile(c serial.Cipher, path string, password []byte) ([]*wallet.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer clear(data)

	f, encrypted := serial.Detect(data)
	if encrypted {
		if len(password) == 0 {
			return nil, fmt.Errorf("%s is encrypted: password required", path)
		}
		plain, err := serial.UnwrapEncrypted(c, data, password)
		if err != nil {
			return nil, err
		}
		defer clear(plain)
		f, _ = serial.Detect(plain)
		records, err := serial.Unmarshal(plain, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logx.S().Infow("vault opened", "file", path, "format", f, "wallets", len(records))
		return records, nil
	}
	records, err := serial.Unmarshal(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// SaveFile writes records in format f, or the format implied by out's
// extension when f is empty. A non-empty password seals the document; the
// envelope is JSON whatever the inner format is.
func SaveFile(c serial.Cipher, records []*wallet.Record, out string, f serial.Format, password []byte) error {
	if f == "" {
		var err error
		if f, err = serial.FormatFromPath(out); err != nil {
			return err
		}
	}
	var (
		data []byte
		err  error
	)
	if len(password) > 0 {
		data, err = serial.MarshalEncrypted(c, records, f, password)
	} else {
		data, err = serial.Marshal(records, f)
	}
	if err != nil {
		return err
	}
	defer clear(data)
	if err := logsink.WriteNew(out, data); err != nil {
		return err
	}
	logx.S().Infow("wallets written", "out", out, "format", f, "encrypted", len(password) > 0, "wallets", len(records))
	return nil
}

func wipeAll(records []*wallet.Record) {
	for _, r := range records {
		r.Wipe()
	}
}
