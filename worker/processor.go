// Package worker implements the batch processing stage of a mempool worker.
//
// A Processor takes serialized batches, content-addresses them, optionally simulates
// transaction signature verification, persists them and announces their digests to the
// primary.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/iykyk-syn/unison-worker/bapl"
	"github.com/iykyk-syn/unison-worker/sigverify"
)

// Config holds everything a Processor is fixed with for its lifetime.
type Config struct {
	// ID of the worker announced to the primary.
	ID uint32
	// Store the batches are persisted to.
	Store bapl.Store
	// Input delivers serialized batches. Closing it stops the Processor.
	Input <-chan []byte
	// Output is the link to the primary.
	Output Link
	// Own tags announcements as OurBatch instead of OthersBatch.
	Own bool
	// Verify enables signature verification of every batch.
	Verify bool
	// Pool runs the verification work. Defaults to a new pool of sigverify.DefaultPoolSize.
	Pool *sigverify.Pool
	// Log defaults to slog.Default.
	Log *slog.Logger
}

func (cfg *Config) validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Input == nil {
		return errors.New("input channel is required")
	}
	if cfg.Output == nil {
		return errors.New("output link is required")
	}
	return nil
}

// Stats is a snapshot of Processor counters.
type Stats struct {
	// Processed is the number of batches announced to the primary.
	Processed uint64
	// Verified is the number of transactions checked against the corpus.
	Verified uint64
	// Overruns is the number of batches with more transactions than the corpus covers.
	Overruns uint64
}

// Processor hashes, verifies, stores and announces batches one at a time.
type Processor struct {
	id     uint32
	store  bapl.Store
	input  <-chan []byte
	output Link
	kind   Kind

	// nil when verification is disabled
	verifier verifier

	processed, verified, overruns atomic.Uint64

	log *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New creates a Processor.
// With verification enabled it generates a corpus of sigverify.CorpusSize entries first,
// which takes a while.
func New(ctx context.Context, cfg Config) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Pool == nil {
		cfg.Pool = sigverify.NewPool(sigverify.DefaultPoolSize())
	}

	if !cfg.Verify {
		return newProcessor(cfg, nil), nil
	}

	corpus, err := sigverify.NewCorpus(ctx, cfg.Pool, sigverify.CorpusSize)
	if err != nil {
		return nil, err
	}
	return newProcessor(cfg, sigverify.NewVerifier(cfg.Pool, corpus)), nil
}

// verifier checks the first count transactions of a batch.
type verifier interface {
	Verify(ctx context.Context, count int) error
	Capacity() int
}

func newProcessor(cfg Config, v verifier) *Processor {
	p := &Processor{
		id:       cfg.ID,
		store:    cfg.Store,
		input:    cfg.Input,
		output:   cfg.Output,
		kind:     OthersBatch,
		verifier: v,
		log:      cfg.Log,
		done:     make(chan struct{}),
	}
	if cfg.Own {
		p.kind = OurBatch
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.log = p.log.With("module", "processor", "worker_id", cfg.ID, "own", cfg.Own)
	return p
}

// Start runs the Processor in the background until Stop, input close or a fatal error.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		defer close(p.done)
		p.err = p.Run(ctx)
	}()
	p.log.Debug("started")
}

// Stop cancels a started Processor and waits for it to return.
func (p *Processor) Stop() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	<-p.done
	if errors.Is(p.err, context.Canceled) {
		return nil
	}
	return p.err
}

// Done is closed once a started Processor returns.
func (p *Processor) Done() <-chan struct{} {
	return p.done
}

// Err reports why a started Processor returned. It is valid once Done is closed.
func (p *Processor) Err() error {
	return p.err
}

func (p *Processor) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Verified:  p.verified.Load(),
		Overruns:  p.overruns.Load(),
	}
}

// Run processes batches until the input channel is closed, in which case it returns nil.
// Any failure to decode, verify, persist or announce a batch stops it with a FatalError.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case batch, ok := <-p.input:
			if !ok {
				p.log.DebugContext(ctx, "input closed")
				return nil
			}

			if err := p.process(ctx, batch); err != nil {
				if IsFatal(err) {
					p.log.ErrorContext(ctx, "processing batch", "err", err)
				}
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process takes a batch through hash, verify, persist and announce.
// The digest is always computed over the received bytes as is.
func (p *Processor) process(ctx context.Context, batch []byte) error {
	digest := bapl.Hash(batch)

	if p.verifier != nil {
		if err := p.verify(ctx, digest, batch); err != nil {
			return p.fail(ctx, err)
		}
	}

	if err := p.store.Write(ctx, digest.Bytes(), batch); err != nil {
		return p.fail(ctx, fmt.Errorf("storing batch %v: %w", digest, err))
	}

	msg := &PrimaryMessage{Kind: p.kind, Digest: digest, WorkerID: p.id}
	data, err := msg.MarshalBinary()
	if err != nil {
		return p.fail(ctx, fmt.Errorf("serializing %v: %w", msg, err))
	}
	if err = p.output.Send(ctx, data); err != nil {
		return p.fail(ctx, fmt.Errorf("sending %v: %w", msg, err))
	}

	p.processed.Add(1)
	p.log.DebugContext(ctx, "processed batch", "digest", digest, "size", len(batch))
	return nil
}

func (p *Processor) verify(ctx context.Context, digest bapl.Digest, batch []byte) error {
	txs, err := DecodeBatch(batch)
	if err != nil {
		return fmt.Errorf("decoding batch %v: %w", digest, err)
	}

	count, capacity := len(txs), p.verifier.Capacity()
	if count > capacity {
		p.overruns.Add(1)
		p.log.WarnContext(ctx, "batch size surpasses signature verification maximum",
			"digest", digest, "txs", count, "max", capacity)
		count = capacity
	}

	if err = p.verifier.Verify(ctx, count); err != nil {
		return fmt.Errorf("verifying batch %v: %w", digest, err)
	}
	p.verified.Add(uint64(count))
	return nil
}

// fail classifies err. Errors caused by ctx being done are returned as is, everything else is
// fatal.
func (p *Processor) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return unrecoverable(err)
}

// FatalError stops a Processor. It is returned for batches that can not be decoded or verified
// and when the batch can not be persisted or announced.
type FatalError struct {
	Err error
}

func unrecoverable(err error) error {
	return &FatalError{Err: err}
}

// IsFatal reports whether err stopped a Processor for good.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
