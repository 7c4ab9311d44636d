package serial

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

var errNoHeader = errors.New("missing csv header")

var (
	csvHeader       = []string{"address", "private_key", "mnemonic", "derivation_path", "network", "public_key", "index"}
	csvLegacyHeader = csvHeader[:6]
)

func marshalCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for i, e := range entries {
		idx := i
		if e.Index != nil {
			idx = *e.Index
		}
		row := []string{e.Address, e.PrivateKey, e.Mnemonic, e.DerivationPath, e.Network, e.PublicKey, strconv.Itoa(idx)}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshalCSV(data []byte) ([]Entry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, errNoHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	withIndex := slices.Equal(header, csvHeader)
	if !withIndex && !slices.Equal(header, csvLegacyHeader) {
		return nil, fmt.Errorf("%w: unexpected csv header %v", ErrMalformed, header)
	}

	var out []Entry
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrMalformed, line, len(row), len(header))
		}
		e := Entry{
			Address:        row[0],
			PrivateKey:     row[1],
			Mnemonic:       row[2],
			DerivationPath: row[3],
			Network:        row[4],
			PublicKey:      row[5],
		}
		if withIndex {
			idx, err := strconv.Atoi(row[6])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: line %d: bad index %q", ErrMalformed, line, row[6])
			}
			e.Index = &idx
		}
		out = append(out, e)
	}
	return out, nil
}
