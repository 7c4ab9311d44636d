package serial

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"WalletGen/internal/wallet"
)

// Entry is the wire shape of one wallet. Index is a pointer so documents
// written before the index field existed can be told apart from index 0.
type Entry struct {
	Address        string `json:"address" yaml:"address"`
	PrivateKey     string `json:"private_key" yaml:"private_key"`
	Mnemonic       string `json:"mnemonic" yaml:"mnemonic"`
	DerivationPath string `json:"derivation_path" yaml:"derivation_path"`
	Network        string `json:"network" yaml:"network"`
	PublicKey      string `json:"public_key" yaml:"public_key"`
	Index          *int   `json:"index,omitempty" yaml:"index,omitempty"`
}

// Document is the top-level JSON and YAML structure.
type Document struct {
	Wallets []Entry `json:"wallets" yaml:"wallets"`
	Count   int     `json:"count" yaml:"count"`
}

// EntryOf renders one record. It fails on wiped records.
func EntryOf(r *wallet.Record) (Entry, error) {
	f, err := r.Fields()
	if err != nil {
		return Entry{}, fmt.Errorf("wallet #%d: %w", r.Index(), err)
	}
	idx := f.Index
	return Entry{
		Address:        f.Address,
		PrivateKey:     f.PrivateKey,
		Mnemonic:       f.Mnemonic,
		DerivationPath: f.DerivationPath,
		Network:        f.Network,
		PublicKey:      f.PublicKey,
		Index:          &idx,
	}, nil
}

// Fields converts the entry for wallet.Restore; pos is used when the entry
// carries no index.
func (e Entry) Fields(pos int) wallet.Fields {
	idx := pos
	if e.Index != nil {
		idx = *e.Index
	}
	return wallet.Fields{
		Address:        e.Address,
		PrivateKey:     e.PrivateKey,
		PublicKey:      e.PublicKey,
		Mnemonic:       e.Mnemonic,
		DerivationPath: e.DerivationPath,
		Network:        e.Network,
		Index:          idx,
	}
}

func entriesOf(records []*wallet.Record) ([]Entry, error) {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		e, err := EntryOf(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Marshal serializes records in the given format.
func Marshal(records []*wallet.Record, f Format) ([]byte, error) {
	entries, err := entriesOf(records)
	if err != nil {
		return nil, err
	}
	return MarshalEntries(entries, f)
}

func MarshalEntries(entries []Entry, f Format) ([]byte, error) {
	doc := Document{Wallets: entries, Count: len(entries)}
	if doc.Wallets == nil {
		doc.Wallets = []Entry{}
	}
	switch f {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatCSV:
		return marshalCSV(entries)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// UnmarshalEntries parses a plaintext document without validating the
// wallets; audit uses it to report on broken records.
func UnmarshalEntries(data []byte, f Format) ([]Entry, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	switch f {
	case FormatJSON:
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return checkCount(doc)
	case FormatYAML:
		var doc Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return checkCount(doc)
	case FormatCSV:
		return unmarshalCSV(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

func checkCount(doc Document) ([]Entry, error) {
	if doc.Count != len(doc.Wallets) {
		return nil, fmt.Errorf("%w: count %d but %d wallets", ErrMalformed, doc.Count, len(doc.Wallets))
	}
	return doc.Wallets, nil
}

// Unmarshal parses and restores records. Every record is verified against
// its private key; on the first failure the records built so far are wiped.
func Unmarshal(data []byte, f Format) ([]*wallet.Record, error) {
	entries, err := UnmarshalEntries(data, f)
	if err != nil {
		return nil, err
	}
	return Restore(entries)
}

func Restore(entries []Entry) ([]*wallet.Record, error) {
	out := make([]*wallet.Record, 0, len(entries))
	for i, e := range entries {
		r, err := wallet.Restore(e.Fields(i))
		if err != nil {
			for _, done := range out {
				done.Wipe()
			}
			return nil, fmt.Errorf("wallet #%d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// WipeEntries blanks the secret strings the entries hold. The underlying
// string memory is not reachable; this only drops the references.
func WipeEntries(entries []Entry) {
	for i := range entries {
		entries[i].PrivateKey = ""
		entries[i].Mnemonic = ""
	}
}
