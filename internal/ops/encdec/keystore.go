// Package encdec moves wallets between vault files, plaintext documents and
// go-ethereum keystore V3 files.
package encdec

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gethks "github.com/ethereum/go-ethereum/accounts/keystore"

	"WalletGen/internal/crypto"
	"WalletGen/internal/keystore"
	"WalletGen/internal/logsink"
	"WalletGen/internal/wallet"
	"WalletGen/pkg/logx"
)

// KeystoreOptions controls keystore V3 export.
type KeystoreOptions struct {
	Password             []byte // required
	ScryptN, ScryptP     int    // 0 means go-ethereum's standard parameters
	HideSecretsInConsole bool
}

// Report summarizes a bulk job; per-item failures are logged, not returned.
type Report struct {
	Total   int
	OK      int
	Failed  int
	Elapsed time.Duration
}

// ExportKeystores encrypts every record as a keystore V3 file. Results:
//
//	<outDir>/all.jsonl (one keystore JSON per line)
//	<outDir>/files/<address>.json (one file per wallet)
func ExportKeystores(ctx context.Context, records []*wallet.Record, outDir string, opt KeystoreOptions) (Report, error) {
	if len(opt.Password) == 0 {
		return Report{}, errors.New("keystore password is required")
	}
	if opt.ScryptN == 0 {
		opt.ScryptN, opt.ScryptP = gethks.StandardScryptN, gethks.StandardScryptP
	}
	app := logx.S()

	filesDir := filepath.Join(outDir, "files")
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return Report{}, fmt.Errorf("mkdir files: %w", err)
	}
	allPath := filepath.Join(outDir, "all.jsonl")

	app.Infow("keystore export started", "wallets", len(records), "out", outDir)

	var rep Report
	start := time.Now()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Total++
		addr := r.Address()

		priv, err := r.ECDSA()
		if err != nil {
			rep.Failed++
			app.Errorw("record unusable", "address", addr, "err", err)
			continue
		}
		blob, err := crypto.KeystoreJSON(priv, string(opt.Password), opt.ScryptN, opt.ScryptP)
		if err != nil {
			rep.Failed++
			app.Errorw("keystore encrypt failed", "address", addr, "err", err)
			continue
		}
		if patched, perr := forceAddressPrefix(blob, true); perr == nil {
			blob = patched
		}

		if err := keystore.AppendJSONL(allPath, blob); err != nil {
			rep.Failed++
			app.Errorw("append jsonl failed", "address", addr, "err", err)
			continue
		}
		perWallet := filepath.Join(filesDir, strings.ToLower(strings.TrimPrefix(addr, "0x"))+".json")
		if err := logsink.WriteFile(perWallet, blob); err != nil {
			rep.Failed++
			app.Errorw("write single keystore failed", "address", addr, "err", err)
			continue
		}

		rep.OK++
		if !opt.HideSecretsInConsole {
			pk, _ := r.PrivateKeyHex()
			app.Infow("ENCRYPTED", "address", addr, "private_key", pk)
		} else {
			app.Infow("ENCRYPTED", "address", addr)
		}
	}
	rep.Elapsed = time.Since(start)

	app.Infow("keystore export finished", "total", rep.Total, "ok", rep.OK, "failed", rep.Failed, "elapsed", rep.Elapsed.String())
	return rep, nil
}

// ImportKeystores decrypts {all.jsonl, *.json, files/*.json} under inDir and
// returns records indexed in discovery order. Such records carry no mnemonic.
func ImportKeystores(ctx context.Context, inDir string, password []byte, network wallet.Network, hideSecrets bool) ([]*wallet.Record, Report, error) {
	app := logx.S()
	var rep Report

	files := collectInputFiles(inDir)
	if len(files) == 0 {
		app.Warnw("no keystore files found", "dir", inDir)
		return nil, rep, nil
	}
	app.Infow("keystore import started", "inputs", inDir, "files", len(files))

	start := time.Now()
	var out []*wallet.Record
	seen := make(map[string]bool)
	add := func(src string, blob []byte) {
		rep.Total++
		addr, privHex, err := decryptOne(blob, string(password))
		if err != nil {
			rep.Failed++
			app.Errorw("decrypt failed", "file", src, "err", err)
			return
		}
		if seen[strings.ToLower(addr)] {
			app.Infow("duplicate keystore skipped", "address", addr, "file", src)
			rep.Total--
			return
		}
		r, err := wallet.FromPrivateKey(privHex, network, len(out))
		if err != nil {
			rep.Failed++
			app.Errorw("import key failed", "address", addr, "err", err)
			return
		}
		seen[strings.ToLower(addr)] = true
		rep.OK++
		out = append(out, r)
		if !hideSecrets {
			app.Infow("DECRYPTED", "address", addr, "private_key", privHex)
		} else {
			app.Infow("DECRYPTED", "address", addr)
		}
	}

	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return out, rep, err
		}
		if strings.HasSuffix(p, ".jsonl") {
			f, err := os.Open(p)
			if err != nil {
				app.Errorw("open jsonl failed", "file", p, "err", err)
				continue
			}
			sc := bufio.NewScanner(f)
			sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				add(p, []byte(line))
			}
			_ = f.Close()
			if err := sc.Err(); err != nil {
				app.Errorw("scan jsonl failed", "file", p, "err", err)
			}
			continue
		}

		blob, err := os.ReadFile(p)
		if err != nil {
			app.Errorw("read json failed", "file", p, "err", err)
			continue
		}
		add(p, blob)
	}
	rep.Elapsed = time.Since(start)

	app.Infow("keystore import finished", "total", rep.Total, "ok", rep.OK, "failed", rep.Failed, "elapsed", rep.Elapsed.String())
	return out, rep, nil
}

func collectInputFiles(inDir string) []string {
	var files []string
	allJSONL := filepath.Join(inDir, "all.jsonl")
	if st, err := os.Stat(allJSONL); err == nil && !st.IsDir() {
		files = append(files, allJSONL)
	}
	entries, _ := os.ReadDir(inDir)
	for _, de := range entries {
		if de.IsDir() {
			if de.Name() == "files" {
				sub := filepath.Join(inDir, "files")
				subEntries, _ := os.ReadDir(sub)
				for _, se := range subEntries {
					if !se.IsDir() && strings.HasSuffix(se.Name(), ".json") {
						files = append(files, filepath.Join(sub, se.Name()))
					}
				}
			}
			continue
		}
		if strings.HasSuffix(de.Name(), ".json") {
			files = append(files, filepath.Join(inDir, de.Name()))
		}
	}
	return files
}

func decryptOne(blob []byte, password string) (addr string, privHex string, err error) {
	blob = []byte(strings.TrimSpace(string(blob)))
	var js map[string]any
	if err := json.Unmarshal(blob, &js); err != nil {
		return "", "", fmt.Errorf("invalid keystore json: %w", err)
	}

	key, err := gethks.DecryptKey(blob, password)
	if err != nil {
		// Some tools write the address with 0x, which older parsers reject.
		if fixed, ferr := forceAddressPrefix(blob, false); ferr == nil {
			if key2, err2 := gethks.DecryptKey(fixed, password); err2 == nil {
				key = key2
				err = nil
			}
		}
	}
	if err != nil {
		return "", "", err
	}
	// the address field of the file is not authenticated; use the key's
	addr = crypto.AddressHex(key.PrivateKey)
	privHex = crypto.PrivToHex(key.PrivateKey)
	return addr, privHex, nil
}

// forceAddressPrefix rewrites the top-level "address" field in a keystore V3 JSON.
// If want0x=true, ensures it has 0x; if false, strips 0x if present.
func forceAddressPrefix(blob []byte, want0x bool) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, err
	}
	addr, _ := m["address"].(string)
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return blob, nil
	}
	lower := strings.ToLower(addr)
	if want0x {
		if !strings.HasPrefix(lower, "0x") {
			lower = "0x" + lower
		}
	} else {
		lower = strings.TrimPrefix(lower, "0x")
	}
	m["address"] = lower
	return json.Marshal(m)
}
