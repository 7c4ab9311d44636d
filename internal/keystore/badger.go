package keystore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"WalletGen/internal/serial"
	"WalletGen/internal/vault"
	"WalletGen/internal/wallet"
)

var (
	ErrNotFound = errors.New("wallet not found")
	ErrLocked   = errors.New("store is encrypted, password required")
)

var (
	prefixWallet = []byte("w/")
	keySealer    = []byte("meta/sealer")
)

// Store keeps records keyed by batch index. With a password every value is
// sealed under one key derived at open time; the index is bound as AAD.
type Store struct {
	db     *badger.DB
	sealer *vault.Sealer
}

// Open opens or creates the store at path. A nil password opens a plaintext
// store; a store created with a password refuses to open without one.
func Open(path string, eng *vault.Engine, password []byte) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("store at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.initSealer(eng, password); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSealer(eng *vault.Engine, password []byte) error {
	raw, err := s.get(keySealer)
	switch {
	case errors.Is(err, ErrNotFound):
		if len(password) == 0 {
			return nil
		}
		n, err := s.Count()
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.New("cannot add a password to a store that already holds plaintext wallets")
		}
		sealer, err := eng.NewSealer(password)
		if err != nil {
			return err
		}
		hdr, err := sealer.Header().Marshal()
		if err != nil {
			return err
		}
		if err := s.put(keySealer, hdr); err != nil {
			return err
		}
		s.sealer = sealer
		return nil
	case err != nil:
		return err
	}

	if len(password) == 0 {
		return ErrLocked
	}
	hdr, err := vault.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	sealer, err := eng.OpenSealer(hdr, password)
	if err != nil {
		return err
	}
	s.sealer = sealer
	return nil
}

// Encrypted reports whether values are sealed.
func (s *Store) Encrypted() bool { return s.sealer != nil }

func walletKey(index int) []byte {
	k := make([]byte, len(prefixWallet)+8)
	copy(k, prefixWallet)
	binary.BigEndian.PutUint64(k[len(prefixWallet):], uint64(index))
	return k
}

// Put stores r under its index, replacing any previous record.
func (s *Store) Put(r *wallet.Record) error {
	e, err := serial.EntryOf(r)
	if err != nil {
		return err
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	defer clear(val)

	key := walletKey(r.Index())
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(val, key)
		if err != nil {
			return err
		}
		return s.put(key, sealed)
	}
	return s.put(key, val)
}

// Get restores the record stored at index.
func (s *Store) Get(index int) (*wallet.Record, error) {
	key := walletKey(index)
	val, err := s.get(key)
	if err != nil {
		return nil, fmt.Errorf("wallet #%d: %w", index, err)
	}
	return s.decode(key, val)
}

// ForEach visits records in index order; returning an error stops the walk.
func (s *Store) ForEach(fn func(*wallet.Record) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixWallet
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixWallet); it.ValidForPrefix(prefixWallet); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			r, err := s.decode(key, val)
			if err != nil {
				return err
			}
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixWallet
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefixWallet); it.ValidForPrefix(prefixWallet); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) decode(key, val []byte) (*wallet.Record, error) {
	defer clear(val)
	if s.sealer != nil {
		plain, err := s.sealer.Open(val, key)
		if err != nil {
			return nil, err
		}
		defer clear(plain)
		val = plain
	}
	var e serial.Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", serial.ErrMalformed, err)
	}
	idx := int(binary.BigEndian.Uint64(key[len(prefixWallet):]))
	return wallet.Restore(e.Fields(idx))
}

func (s *Store) get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (s *Store) put(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}
