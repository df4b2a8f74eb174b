package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/iykyk-syn/unison-worker/worker"
)

// RandomBatches seals a batch of random transactions of txSize bytes every batchTime and hands it
// to push, until ctx is done.
func RandomBatches(
	ctx context.Context,
	batchSize, txSize int,
	batchTime time.Duration,
	push func(context.Context, []byte) error,
) {
	ticker := time.NewTicker(batchTime)
	defer ticker.Stop()

	log := slog.With("module", "randomizer")
	for {
		select {
		case <-ticker.C:
			batch, err := randomBatch(batchSize, txSize).MarshalBinary()
			if err != nil {
				log.ErrorContext(ctx, "serializing batch", "err", err)
				continue
			}

			if err = push(ctx, batch); err != nil {
				log.ErrorContext(ctx, "error pushing batch", "err", err)
				continue
			}
			log.DebugContext(ctx, "pushed batch", "size", len(batch))

		case <-ctx.Done():
			return
		}
	}
}

func randomBatch(batchSize, txSize int) *worker.BatchMessage {
	txSize = max(txSize, 1)
	txs := make([][]byte, 0, batchSize/txSize+1)
	for left := batchSize; left > 0; left -= txSize {
		tx := make([]byte, min(txSize, left))
		rand.Read(tx) //nolint: errcheck
		txs = append(txs, tx)
	}
	return &worker.BatchMessage{Transactions: txs}
}
