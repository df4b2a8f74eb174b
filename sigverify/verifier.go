package sigverify

import (
	"context"
	"errors"
	"fmt"

	"github.com/iykyk-syn/unison-worker/crypto/ed25519"
)

// ShardCount is the number of ranges a verification is split into.
const ShardCount = 64

var ErrInvalidSignature = errors.New("invalid signature")

// Shard is the index range [Start, End).
type Shard struct {
	Start, End int
}

func (s Shard) Len() int {
	return s.End - s.Start
}

// Shards splits [0, count) into n contiguous ranges, shard i covering
// [count*i/n, min(count, count*(i+1)/n)).
// The ranges are disjoint and cover every index exactly once; some may be empty.
func Shards(count, n int) []Shard {
	if n <= 0 {
		return nil
	}

	shards := make([]Shard, n)
	for i := range shards {
		shards[i] = Shard{
			Start: count * i / n,
			End:   min(count, count*(i+1)/n),
		}
	}
	return shards
}

// Verifier verifies prefixes of a Corpus in parallel shards.
type Verifier struct {
	pool   *Pool
	corpus *Corpus
}

func NewVerifier(pool *Pool, corpus *Corpus) *Verifier {
	return &Verifier{pool: pool, corpus: corpus}
}

// Capacity is the largest count Verify accepts.
func (v *Verifier) Capacity() int {
	return v.corpus.Len()
}

// Verify checks the first count corpus entries, ShardCount shards at a time on the pool,
// each shard as one batched signature check.
// It succeeds only if every shard does.
func (v *Verifier) Verify(ctx context.Context, count int) error {
	if count < 0 || count > v.corpus.Len() {
		return fmt.Errorf("verification count %d out of corpus bounds [0, %d]", count, v.corpus.Len())
	}
	if count == 0 {
		return nil
	}

	msgs, sigs, pubs := v.corpus.Messages(), v.corpus.Signatures(), v.corpus.PublicKeys()
	shards := Shards(count, ShardCount)
	return v.pool.Map(ctx, len(shards), func(i int) error {
		s := shards[i]
		if !ed25519.VerifyBatch(msgs[s.Start:s.End], sigs[s.Start:s.End], pubs[s.Start:s.End]) {
			return fmt.Errorf("shard %d [%d, %d): %w", i, s.Start, s.End, ErrInvalidSignature)
		}
		return nil
	})
}
