package generator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/matryer/is"

	"WalletGen/internal/crypto"
	"WalletGen/internal/hdkey"
	"WalletGen/internal/mnemonic"
	"WalletGen/internal/wallet"
)

const abandonAbout = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type zeroReader struct{}

// invalidLeaf makes every address-level child (parent depth 4) with an index
// in bad derive as invalid.
func invalidLeaf(bad func(uint32) bool) *hdkey.Deriver {
	return hdkey.NewDeriver(hdkey.Options{
		MaxRetries: 2,
		Child: func(k *hdkeychain.ExtendedKey, i uint32) (*hdkeychain.ExtendedKey, error) {
			if k.Depth() == 4 && bad(i) {
				return nil, hdkeychain.ErrInvalidChild
			}
			return k.Derive(i)
		},
	})
}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestGenerate_TestnetBatch(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 4})

	var calls []int
	res, err := g.Generate(context.Background(), Request{
		Count:        3,
		StrengthBits: 128,
		Network:      wallet.Testnet,
	}, func(done, total int) {
		is.Equal(total, 3)
		calls = append(calls, done)
	})
	is.NoErr(err)
	is.Equal(len(res.Records), 3)
	is.Equal(calls, []int{1, 2, 3})

	seen := map[string]bool{}
	for i, r := range res.Records {
		is.Equal(r.Index(), i)
		is.Equal(r.Network(), wallet.Testnet)
		is.True(crypto.ChecksumValid(r.Address()))
		is.True(!seen[r.Address()]) // addresses are distinct
		seen[r.Address()] = true

		words, err := r.Words()
		is.NoErr(err)
		is.Equal(len(words), 12)
		mn, _ := r.Mnemonic()
		is.True(mnemonic.Validate(mn))
		is.Equal(r.DerivationPath(), "m/44'/60'/0'/0/"+strconv.Itoa(i))
	}

	res.Wipe()
	_, err = res.Records[0].PrivateKey()
	is.True(errors.Is(err, wallet.ErrWiped))
}

func TestGenerate_SharedModeIsDeterministic(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 3, Rand: zeroReader{}})

	res, err := g.Generate(context.Background(), Request{
		Count:        5,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
		Mode:         ModeShared,
	}, nil)
	is.NoErr(err)
	is.Equal(len(res.Records), 5)
	is.Equal(res.Records[0].Address(), "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	is.Equal(res.Records[1].Address(), "0x6fAC4D18c912343BF86fa7049364Dd4E424Ab9C0")

	first, _ := res.Records[0].Mnemonic()
	for _, r := range res.Records {
		mn, _ := r.Mnemonic()
		is.Equal(mn, first) // one mnemonic for the whole batch
	}

	d := hdkey.NewDeriver(hdkey.Options{})
	for i, r := range res.Records {
		kp, err := d.Derive(first, r.DerivationPath())
		is.NoErr(err)
		priv, _ := r.PrivateKey()
		is.Equal(priv, kp.PrivateKey)
		is.Equal(r.Index(), i)
	}
}

func TestGenerate_AccountTemplate(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 2, Rand: zeroReader{}})
	res, err := g.Generate(context.Background(), Request{
		Count:        2,
		StrengthBits: 128,
		Network:      wallet.Sepolia,
		Mode:         ModeShared,
		PathTemplate: hdkey.AccountPathTemplate,
	}, nil)
	is.NoErr(err)
	is.Equal(res.Records[0].DerivationPath(), "m/44'/60'/0'/0/0")
	is.Equal(res.Records[1].DerivationPath(), "m/44'/60'/1'/0/0")
	is.Equal(res.Records[0].Address(), "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
}

func TestGenerate_SuppliedMnemonicAndStartIndex(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 2})
	res, err := g.Generate(context.Background(), Request{
		Count:      2,
		Network:    wallet.Mainnet,
		Mode:       ModeShared,
		Mnemonic:   "  Abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about ",
		StartIndex: 1,
	}, nil)
	is.NoErr(err)
	is.Equal(len(res.Records), 2)
	is.Equal(res.Records[0].Address(), "0x6fAC4D18c912343BF86fa7049364Dd4E424Ab9C0")
	is.Equal(res.Records[0].Index(), 1)
	is.Equal(res.Records[0].DerivationPath(), "m/44'/60'/0'/0/1")
	is.Equal(res.Records[1].Index(), 2)
	is.Equal(res.Records[1].DerivationPath(), "m/44'/60'/0'/0/2")

	mn, _ := res.Records[1].Mnemonic()
	is.Equal(mn, abandonAbout)
	kp, err := hdkey.NewDeriver(hdkey.Options{}).Derive(abandonAbout, "m/44'/60'/0'/0/2")
	is.NoErr(err)
	priv, _ := res.Records[1].PrivateKey()
	is.Equal(priv, kp.PrivateKey)
}

func TestGenerate_SharedModeSkipsInvalidIndex(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 2, Rand: zeroReader{}, Deriver: invalidLeaf(func(i uint32) bool { return i == 1 })})

	res, err := g.Generate(context.Background(), Request{
		Count:        3,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
		Mode:         ModeShared,
	}, nil)
	is.NoErr(err)
	is.Equal(len(res.Records), 3)

	paths := []string{"m/44'/60'/0'/0/0", "m/44'/60'/0'/0/2", "m/44'/60'/0'/0/3"}
	seen := map[string]bool{}
	for i, r := range res.Records {
		is.Equal(r.Index(), i) // indices stay contiguous
		is.Equal(r.DerivationPath(), paths[i])
		is.True(!seen[r.Address()])
		seen[r.Address()] = true
	}
	is.Equal(res.Records[0].Address(), "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

	kp, err := hdkey.NewDeriver(hdkey.Options{}).Derive(abandonAbout, paths[1])
	is.NoErr(err)
	priv, _ := res.Records[1].PrivateKey()
	is.Equal(priv, kp.PrivateKey)
}

func TestGenerate_SharedModeSkipsExhausted(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 2, Rand: zeroReader{}, Deriver: invalidLeaf(func(i uint32) bool { return i >= 1 })})

	_, err := g.Generate(context.Background(), Request{
		Count:        4,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
		Mode:         ModeShared,
	}, nil)
	var ab *BatchAbortedError
	is.True(errors.As(err, &ab))
	is.Equal(ab.Completed, 1)
	is.Equal(len(ab.Records), 1)
	is.Equal(ab.Records[0].DerivationPath(), "m/44'/60'/0'/0/0")

	var kde *hdkey.KeyDerivationError
	is.True(errors.As(err, &kde))
	is.Equal(kde.Segment, 4)
	is.True(errors.Is(err, hdkey.ErrInvalidChild))
	is.True(!errors.Is(err, ErrDuplicateAddress))
}

func TestGenerate_DerivationFailureAborts(t *testing.T) {
	is := is.New(t)
	// One worker keeps completion order equal to index order.
	g := New(Options{Workers: 1, Deriver: invalidLeaf(func(i uint32) bool { return i >= 2 })})

	var calls []int
	_, err := g.Generate(context.Background(), Request{
		Count:        5,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
		Mode:         ModeIndependent,
	}, func(done, _ int) { calls = append(calls, done) })

	var ab *BatchAbortedError
	is.True(errors.As(err, &ab))
	is.Equal(ab.Completed, 2)
	is.Equal(ab.Total, 5)
	is.Equal(len(ab.Records), 2)
	for i, r := range ab.Records {
		is.Equal(r.Index(), i)
		_, perr := r.PrivateKey()
		is.NoErr(perr) // the prefix is handed back intact
	}
	is.Equal(calls, []int{1, 2})

	var kde *hdkey.KeyDerivationError
	is.True(errors.As(ab.Cause, &kde))
	is.Equal(kde.Attempts, 3) // first try plus two retries
	is.True(strings.Contains(err.Error(), "wallet #2"))
}

func TestGenerate_DuplicateAddressAborts(t *testing.T) {
	is := is.New(t)
	// Zero entropy makes every independent mnemonic identical.
	g := New(Options{Workers: 2, Rand: zeroReader{}})
	_, err := g.Generate(context.Background(), Request{
		Count:        4,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
		Mode:         ModeIndependent,
	}, nil)
	is.True(errors.Is(err, ErrDuplicateAddress))

	var ab *BatchAbortedError
	is.True(errors.As(err, &ab))
	is.Equal(ab.Completed, 1)
	is.Equal(len(ab.Records), 1)
	is.Equal(ab.Records[0].Address(), "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
}

func TestGenerate_CancelKeepsPrefix(t *testing.T) {
	is := is.New(t)
	g := New(Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := g.Generate(ctx, Request{Count: 40, StrengthBits: 128, Network: wallet.Mainnet}, func(done, _ int) {
		if done == 2 {
			cancel()
		}
	})
	is.True(errors.Is(err, context.Canceled))

	var ab *BatchAbortedError
	is.True(errors.As(err, &ab))
	is.Equal(ab.Completed, 2)
	is.Equal(ab.Total, 40)
	is.Equal(len(ab.Records), 2)
	for i, r := range ab.Records {
		is.Equal(r.Index(), i)
	}
}

func TestGenerate_CanceledBeforeStart(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Generate(ctx, Request{Count: 3, StrengthBits: 128, Network: wallet.Mainnet}, nil)
	is.True(errors.Is(err, context.Canceled))
}

func TestGenerate_RejectsBadRequest(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"zero count", Request{Count: 0, StrengthBits: 128, Network: wallet.Mainnet}, ErrInvalidCount},
		{"over cap", Request{Count: 11, StrengthBits: 128, Network: wallet.Mainnet}, ErrInvalidCount},
		{"strength", Request{Count: 1, StrengthBits: 100, Network: wallet.Mainnet}, mnemonic.ErrInvalidStrength},
		{"network", Request{Count: 1, StrengthBits: 128, Network: "ropsten"}, wallet.ErrInvalidNetwork},
		{"mode", Request{Count: 1, StrengthBits: 128, Network: wallet.Mainnet, Mode: "mixed"}, ErrInvalidMode},
		{"path", Request{Count: 1, StrengthBits: 128, Network: wallet.Mainnet, PathTemplate: "m/44'/x"}, hdkey.ErrInvalidDerivationPath},
		{"shared without placeholder", Request{Count: 2, StrengthBits: 128, Network: wallet.Mainnet, Mode: ModeShared, PathTemplate: "m/44'/60'/0'/0/0"}, hdkey.ErrInvalidDerivationPath},
		{"encrypt without password", Request{Count: 1, StrengthBits: 128, Network: wallet.Mainnet, Encrypt: true}, ErrMissingPassword},
		{"negative start", Request{Count: 1, StrengthBits: 128, Network: wallet.Mainnet, StartIndex: -1}, ErrInvalidStart},
		{"start past range", Request{Count: 2, StrengthBits: 128, Network: wallet.Mainnet, StartIndex: int(hdkey.HardenedOffset) - 1}, ErrInvalidStart},
		{"mnemonic in independent mode", Request{Count: 1, Network: wallet.Mainnet, Mnemonic: abandonAbout}, ErrInvalidMode},
		{"bad mnemonic checksum", Request{Count: 1, Network: wallet.Mainnet, Mode: ModeShared, Mnemonic: strings.Repeat("abandon ", 12)}, mnemonic.ErrInvalidMnemonicChecksum},
		{"unknown word", Request{Count: 1, Network: wallet.Mainnet, Mode: ModeShared, Mnemonic: strings.Replace(abandonAbout, "about", "zzzzz", 1)}, mnemonic.ErrUnknownWord},
	}
	g := New(Options{MaxCount: 10})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), tc.req, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			var ab *BatchAbortedError
			if errors.As(err, &ab) {
				t.Fatalf("validation error must not be a batch abort: %v", err)
			}
		})
	}
}

type memSink struct {
	mu    sync.Mutex
	addrs []string
	fail  int
}

func (s *memSink) Put(r *wallet.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 && r.Index() == s.fail {
		return errors.New("disk full")
	}
	if _, err := r.PrivateKey(); err != nil {
		return err
	}
	s.addrs = append(s.addrs, r.Address())
	return nil
}

func TestStream(t *testing.T) {
	is := is.New(t)
	sink := &memSink{}
	err := New(Options{Workers: 4, Rand: zeroReader{}}).Stream(context.Background(), Request{
		Count:        6,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
		Mode:         ModeShared,
	}, sink, nil)
	is.NoErr(err)
	is.Equal(len(sink.addrs), 6)
	is.Equal(sink.addrs[0], "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	is.Equal(sink.addrs[1], "0x6fAC4D18c912343BF86fa7049364Dd4E424Ab9C0")
}

func TestStream_SinkFailureAborts(t *testing.T) {
	is := is.New(t)
	sink := &memSink{fail: 3}
	err := New(Options{Workers: 2}).Stream(context.Background(), Request{
		Count:        10,
		StrengthBits: 128,
		Network:      wallet.Mainnet,
	}, sink, nil)
	var ab *BatchAbortedError
	is.True(errors.As(err, &ab))
	is.Equal(ab.Completed, 3)
	is.True(ab.Records == nil)
	is.True(strings.Contains(err.Error(), "disk full"))
	is.Equal(len(sink.addrs), 3)
}

func TestHumanDuration(t *testing.T) {
	is := is.New(t)
	is.Equal(humanDuration(42*time.Second), "42s")
	is.Equal(humanDuration(125*time.Second), "2m05s")
	is.Equal(humanDuration(3725*time.Second), "1h02m05s")
}
