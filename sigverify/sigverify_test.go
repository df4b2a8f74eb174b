package sigverify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShards(t *testing.T) {
	counts := []int{0, 1, 5, 63, 64, 65, 100, 127, 1000, 4097, 99_999, CorpusSize}
	for _, count := range counts {
		shards := Shards(count, ShardCount)
		require.Len(t, shards, ShardCount)

		next, total := 0, 0
		for i, s := range shards {
			assert.Equal(t, next, s.Start, "shard %d of %d is not contiguous", i, count)
			assert.LessOrEqual(t, s.Start, s.End)
			assert.LessOrEqual(t, s.End, count)
			next = s.End
			total += s.Len()
		}
		assert.Equal(t, count, next)
		assert.Equal(t, count, total)
	}

	assert.Empty(t, Shards(10, 0))
	assert.Equal(t, []Shard{{0, 3}, {3, 6}, {6, 10}}, Shards(10, 3))
}

func TestShards_Small(t *testing.T) {
	// fewer entries than shards leaves most shards empty
	shards := Shards(5, ShardCount)
	var nonEmpty int
	for _, s := range shards {
		if s.Len() > 0 {
			nonEmpty++
			assert.Equal(t, 1, s.Len())
		}
	}
	assert.Equal(t, 5, nonEmpty)
}

func TestPool_Bound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	const size = 3
	pool := NewPool(size)
	assert.Equal(t, size, pool.Size())

	var running, peak, calls atomic.Int64
	task := func(int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond * 5)
		running.Add(-1)
		calls.Add(1)
		return nil
	}

	// two concurrent users share the same bound
	errCh := make(chan error, 2)
	for range 2 {
		go func() { errCh <- pool.Map(ctx, 20, task) }()
	}
	for range 2 {
		require.NoError(t, <-errCh)
	}

	assert.EqualValues(t, 40, calls.Load())
	assert.LessOrEqual(t, peak.Load(), int64(size))
}

func TestPool_Error(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	errTask := errors.New("task failed")
	pool := NewPool(2)
	err := pool.Map(ctx, 100, func(i int) error {
		if i == 7 {
			return errTask
		}
		return nil
	})
	require.ErrorIs(t, err, errTask)

	// the pool is fully released after a failure
	require.NoError(t, pool.Map(ctx, 10, func(int) error { return nil }))
}

func TestPool_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPool(1).Map(ctx, 10, func(int) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerifier(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	pool := NewPool(0)
	corpus, err := NewCorpus(ctx, pool, 1000)
	require.NoError(t, err)
	require.Equal(t, 1000, corpus.Len())

	v := NewVerifier(pool, corpus)
	for _, count := range []int{0, 1, 5, 64, 65, 999, 1000} {
		require.NoError(t, v.Verify(ctx, count), count)
	}

	require.Error(t, v.Verify(ctx, 1001))
	require.Error(t, v.Verify(ctx, -1))
}

func TestVerifier_InvalidShard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	pool := NewPool(4)
	corpus, err := NewCorpus(ctx, pool, 640)
	require.NoError(t, err)

	// swap two signatures in the middle of the corpus
	corpus.sigs[300], corpus.sigs[301] = corpus.sigs[301], corpus.sigs[300]

	v := NewVerifier(pool, corpus)
	err = v.Verify(ctx, 640)
	require.ErrorIs(t, err, ErrInvalidSignature)

	// the corrupted range is not covered by shorter prefixes
	require.NoError(t, v.Verify(ctx, 300))
}

func TestCorpus_Full(t *testing.T) {
	if testing.Short() {
		t.Skip("full corpus generation is slow")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()

	pool := NewPool(0)
	corpus, err := NewCorpus(ctx, pool, CorpusSize)
	require.NoError(t, err)
	require.Equal(t, CorpusSize, corpus.Len())

	for i, msg := range corpus.Messages() {
		require.Len(t, msg, 8)
		require.True(t, corpus.PublicKeys()[i].VerifySignature(msg, corpus.Signatures()[i]))
		if i > 100 {
			break
		}
	}

	require.NoError(t, NewVerifier(pool, corpus).Verify(ctx, CorpusSize))
}
