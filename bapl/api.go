// Package bapl implements the batch pool of a worker: content addressing of serialized
// batches and the stores they are persisted to.
package bapl

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DigestSize is the size of a batch Digest in bytes.
const DigestSize = 32

// ErrNotFound is returned by Store.Read for keys that were never written.
var ErrNotFound = errors.New("batch not found")

// Digest is the content identifier of a serialized batch.
// It is the storage key of the batch and its handle in messages to the primary.
type Digest [DigestSize]byte

// Hash computes the Digest over the exact given bytes: SHA-512 truncated to its first 32 bytes.
func Hash(data []byte) Digest {
	sum := sha512.Sum512(data)

	var d Digest
	copy(d[:], sum[:DigestSize])
	return d
}

// DigestFromBytes converts raw bytes into a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("invalid digest length: want %d, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

func (d Digest) Bytes() []byte {
	return d[:]
}

func (d Digest) String() string {
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

// Store persists serialized batches by their digests.
type Store interface {
	// Write persists value under key.
	// It returns only once the value is durable and visible to Read.
	Write(ctx context.Context, key, value []byte) error
	// Read returns the value stored under key or ErrNotFound.
	Read(ctx context.Context, key []byte) ([]byte, error)
}
