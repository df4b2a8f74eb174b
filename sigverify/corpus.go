package sigverify

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/iykyk-syn/unison-worker/crypto/ed25519"
)

// CorpusSize is the number of signed entries in a worker's verification Corpus.
const CorpusSize = 100_000

// Corpus is an immutable set of signed messages.
// Entry i is the 8-byte little-endian encoding of i, signed by its own fresh key pair.
type Corpus struct {
	msgs [][]byte
	sigs [][]byte
	pubs []ed25519.PublicKey
}

// NewCorpus generates n entries in parallel on the given pool.
func NewCorpus(ctx context.Context, pool *Pool, n int) (*Corpus, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative corpus size: %d", n)
	}

	c := &Corpus{
		msgs: make([][]byte, n),
		sigs: make([][]byte, n),
		pubs: make([]ed25519.PublicKey, n),
	}

	// a task per entry is too fine-grained, so split the work into a few chunks per pool worker
	chunks := Shards(n, pool.Size()*4)
	err := pool.Map(ctx, len(chunks), func(i int) error {
		for j := chunks[i].Start; j < chunks[i].End; j++ {
			pub, priv, err := ed25519.GenKeys()
			if err != nil {
				return fmt.Errorf("generating key %d: %w", j, err)
			}

			msg := binary.LittleEndian.AppendUint64(make([]byte, 0, 8), uint64(j))
			sig, err := priv.Sign(msg)
			if err != nil {
				return fmt.Errorf("signing message %d: %w", j, err)
			}

			c.msgs[j], c.sigs[j], c.pubs[j] = msg, sig, pub
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building corpus: %w", err)
	}

	return c, nil
}

func (c *Corpus) Len() int {
	return len(c.msgs)
}

// Messages returns the signed messages. The slice must not be modified.
func (c *Corpus) Messages() [][]byte {
	return c.msgs
}

// Signatures returns the signatures aligned with Messages. The slice must not be modified.
func (c *Corpus) Signatures() [][]byte {
	return c.sigs
}

// PublicKeys returns the keys aligned with Messages. The slice must not be modified.
func (c *Corpus) PublicKeys() []ed25519.PublicKey {
	return c.pubs
}
