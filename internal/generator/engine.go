// Package generator produces batches of wallet records on a bounded worker
// pool and hands them to the caller in index order.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"WalletGen/internal/hdkey"
	"WalletGen/internal/mnemonic"
	"WalletGen/internal/wallet"
	"WalletGen/pkg/logx"
)

// Progress is called from the collector goroutine only, after each record
// is handed out in order.
type Progress func(done, total int)

// Sink receives streamed records. The record is wiped right after Put returns.
type Sink interface {
	Put(r *wallet.Record) error
}

type Result struct {
	Records []*wallet.Record
	Elapsed time.Duration
}

// Wipe clears the secrets of every record.
func (r *Result) Wipe() {
	if r == nil {
		return
	}
	for _, rec := range r.Records {
		rec.Wipe()
	}
}

type Generator struct {
	mnemonics   *mnemonic.Generator
	deriver     *hdkey.Deriver
	workers     int
	maxCount    int
	progressLog time.Duration
}

func New(opt Options) *Generator {
	workers := opt.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if opt.MaxCount <= 0 {
		opt.MaxCount = DefaultMaxCount
	}
	if opt.ProgressLog <= 0 {
		opt.ProgressLog = DefaultProgressLog
	}
	var r io.Reader
	if opt.Rand != nil {
		r = &lockedReader{r: opt.Rand}
	}
	d := opt.Deriver
	if d == nil {
		d = hdkey.NewDeriver(hdkey.Options{MaxRetries: opt.MaxRetries})
	}
	return &Generator{
		mnemonics:   mnemonic.NewGenerator(r),
		deriver:     d,
		workers:     workers,
		maxCount:    opt.MaxCount,
		progressLog: opt.ProgressLog,
	}
}

// MaxCount is the largest batch Generate accepts.
func (g *Generator) MaxCount() int { return g.maxCount }

// Generate builds req.Count records. On failure it returns a
// *BatchAbortedError holding the records finished so far.
func (g *Generator) Generate(ctx context.Context, req Request, progress Progress) (*Result, error) {
	start := time.Now()
	records := make([]*wallet.Record, 0, min(req.Count, g.maxCount))
	err := g.run(ctx, req, progress, func(r *wallet.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		if ab, ok := err.(*BatchAbortedError); ok {
			ab.Records = records
		}
		return nil, err
	}
	return &Result{Records: records, Elapsed: time.Since(start)}, nil
}

// Stream hands records to sink in index order without keeping them; each is
// wiped once the sink accepted it.
func (g *Generator) Stream(ctx context.Context, req Request, sink Sink, progress Progress) error {
	return g.run(ctx, req, progress, func(r *wallet.Record) error {
		defer r.Wipe()
		if err := sink.Put(r); err != nil {
			return fmt.Errorf("sink wallet #%d: %w", r.Index(), err)
		}
		return nil
	})
}

// item is the outcome of one candidate index. In shared mode a candidate
// whose {index} child is invalid comes back with skip set instead of a record.
type item struct {
	cand int
	rec  *wallet.Record
	skip error
}

func (it item) wipe() {
	if it.rec != nil {
		it.rec.Wipe()
	}
}

// job is the read-only state shared by all workers of one batch.
type job struct {
	req      Request
	tmpl     hdkey.Template
	mnemonic string // shared mode only
	seed     []byte // shared mode only
}

func (g *Generator) run(ctx context.Context, req Request, progress Progress, emit func(*wallet.Record) error) error {
	if err := req.Validate(g.maxCount); err != nil {
		return err
	}
	req.Mode = req.mode()
	tmpl, err := hdkey.ParseTemplate(req.template())
	if err != nil {
		return err
	}
	j := &job{req: req, tmpl: tmpl}
	if req.Mode == ModeShared {
		mn := mnemonic.Normalize(req.Mnemonic)
		if mn == "" {
			if mn, err = g.mnemonics.Generate(req.StrengthBits); err != nil {
				return err
			}
		}
		seed, err := mnemonic.Seed(mn, req.Passphrase)
		if err != nil {
			return err
		}
		defer clear(seed)
		j.mnemonic, j.seed = mn, seed
	}

	total := req.Count
	start := time.Now()
	logx.S().Infow("generation started",
		"count", total,
		"start_index", req.StartIndex,
		"mode", req.Mode,
		"mnemonic_supplied", req.Mnemonic != "",
		"network", req.Network,
		"strength", req.StrengthBits,
		"path_template", tmpl.String(),
		"workers", g.workers,
		"encrypt", req.Encrypt,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	results := make(chan item, g.workers*4)
	// window bounds how far workers run ahead of the in-order collector.
	window := make(chan struct{}, g.workers*4)
	// more grants the producer one extra candidate per skipped index.
	maxSkips := g.deriver.MaxRetries()
	more := make(chan struct{}, maxSkips+1)
	stop := make(chan struct{})

	var waitErr error
	go func() {
		defer close(results)
		limit := total
	produce:
		for i := 0; ; i++ {
			for i >= limit {
				select {
				case <-egctx.Done():
					break produce
				case <-stop:
					break produce
				case <-more:
					limit++
				}
			}
			select {
			case <-egctx.Done():
				break produce
			case window <- struct{}{}:
			}
			eg.Go(func() error {
				if err := egctx.Err(); err != nil {
					return err
				}
				it, err := g.build(j, i)
				if err != nil {
					return fmt.Errorf("wallet #%d: %w", req.StartIndex+i, err)
				}
				results <- it
				return nil
			})
		}
		waitErr = eg.Wait()
	}()

	var done atomic.Int64
	statusDone := make(chan struct{})
	stopStatus := make(chan struct{})
	go func() {
		defer close(statusDone)
		ticker := time.NewTicker(g.progressLog)
		defer ticker.Stop()
		for {
			select {
			case <-stopStatus:
				return
			case now := <-ticker.C:
				elapsed := now.Sub(start)
				n := done.Load()
				rate := 0.0
				if elapsed > 0 {
					rate = float64(n) / elapsed.Seconds()
				}
				logx.S().Infow("progress",
					"done", n,
					"total", total,
					"rate_wallets_per_sec", fmt.Sprintf("%.2f", rate),
					"elapsed", humanDuration(elapsed),
				)
			}
		}
	}()

	var (
		cause   error
		cand    int // next candidate to hand out
		next    int // records handed out
		skipped int
		pending = make(map[int]item)
		seen    = make(map[string]int, total)
	)
	for it := range results {
		if cause != nil || next == total {
			it.wipe()
			continue
		}
		pending[it.cand] = it
		for next < total {
			cur, ok := pending[cand]
			if !ok {
				break
			}
			delete(pending, cand)
			cand++
			<-window
			if ctx.Err() != nil {
				cur.wipe()
				cause = context.Cause(ctx)
				break
			}
			if cur.skip != nil {
				if skipped >= maxSkips {
					cause = fmt.Errorf("wallet #%d: %w", req.StartIndex+next, cur.skip)
					cancel()
					break
				}
				skipped++
				logx.S().Warnw("invalid child key skipped",
					"path", tmpl.Render(req.StartIndex+cand-1),
					"wallet", req.StartIndex+next,
				)
				more <- struct{}{}
				continue
			}
			r := cur.rec
			if want := req.StartIndex + next; r.Index() != want {
				moved, err := r.WithIndex(want)
				r.Wipe()
				if err != nil {
					cause = err
					cancel()
					break
				}
				r = moved
			}
			if prev, dup := seen[r.Address()]; dup {
				r.Wipe()
				cause = fmt.Errorf("%w: wallets #%d and #%d share %s", ErrDuplicateAddress, prev, r.Index(), r.Address())
				cancel()
				break
			}
			seen[r.Address()] = r.Index()
			if err := emit(r); err != nil {
				cause = err
				cancel()
				break
			}
			next++
			done.Store(int64(next))
			if progress != nil {
				progress(next, total)
			}
		}
		if next == total && cause == nil {
			select {
			case <-stop:
			default:
				close(stop)
			}
		}
	}
	close(stopStatus)
	<-statusDone

	// Records past a gap were produced out of order and are never handed out.
	for _, it := range pending {
		it.wipe()
	}

	if cause == nil && next < total {
		cause = waitErr
		if cause == nil {
			cause = context.Cause(ctx)
		}
	}
	if cause != nil {
		logx.S().Warnw("generation aborted",
			"done", next,
			"total", total,
			"elapsed", humanDuration(time.Since(start)),
			"err", cause,
		)
		return &BatchAbortedError{Completed: next, Total: total, Cause: cause}
	}

	logx.S().Infow("generation finished",
		"count", total,
		"skipped_indices", skipped,
		"elapsed", humanDuration(time.Since(start)),
	)
	return nil
}

// build derives candidate cand. In shared mode the {index} segment is not
// retried by the deriver: the next index belongs to the next record, so an
// invalid child there is reported as a skip and the collector shifts the
// remaining records by one.
func (g *Generator) build(j *job, cand int) (item, error) {
	index := j.req.StartIndex + cand
	path := j.tmpl.Render(index)
	var (
		mn  string
		kp  *hdkey.Keypair
		err error
	)
	if j.req.Mode == ModeShared {
		mn = j.mnemonic
		p, perr := hdkey.ParsePath(path)
		if perr != nil {
			return item{}, perr
		}
		kp, err = g.deriver.DeriveFromSeedStrict(j.seed, p, j.tmpl.Segment())
		var kde *hdkey.KeyDerivationError
		if j.tmpl.Varies() && errors.As(err, &kde) && kde.Segment == j.tmpl.Segment() && errors.Is(err, hdkey.ErrInvalidChild) {
			return item{cand: cand, skip: err}, nil
		}
	} else {
		mn, err = g.mnemonics.Generate(j.req.StrengthBits)
		if err != nil {
			return item{}, err
		}
		kp, err = g.deriver.DeriveWithPassphrase(mn, j.req.Passphrase, path)
	}
	if err != nil {
		return item{}, err
	}
	defer kp.Wipe()

	rec, err := wallet.New(wallet.Params{
		Index:          index,
		Network:        j.req.Network,
		Mnemonic:       mn,
		DerivationPath: kp.Path,
		PrivateKey:     kp.PrivateKey,
	})
	if err != nil {
		return item{}, err
	}
	return item{cand: cand, rec: rec}, nil
}

// lockedReader serializes access to an injected entropy source that may not
// be safe for concurrent reads.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
}
