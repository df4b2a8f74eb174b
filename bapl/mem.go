package bapl

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// ErrStoreClosed is returned by pending NotifyRead calls once the store is closed.
var ErrStoreClosed = errors.New("store closed")

// MemStore is an in-memory Store.
// Besides Write and Read, it lets callers wait for a key to be written with NotifyRead.
type MemStore struct {
	valuesMu   sync.Mutex
	values     map[string][]byte
	valuesSubs map[string]map[chan []byte]struct{}
	closed     bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		values:     make(map[string][]byte),
		valuesSubs: make(map[string]map[chan []byte]struct{}),
	}
}

// Close wakes up all pending NotifyRead calls with ErrStoreClosed.
func (s *MemStore) Close() {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()

	s.closed = true
	for key, subs := range s.valuesSubs {
		for sub := range subs {
			close(sub)
		}
		delete(s.valuesSubs, key)
	}
}

func (s *MemStore) Size() int {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()
	return len(s.values)
}

func (s *MemStore) Write(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	k := string(key)
	s.values[k] = bytes.Clone(value)

	subs, ok := s.valuesSubs[k]
	if ok {
		for sub := range subs {
			sub <- s.values[k] // subs are always buffered, so this won't block
		}
		delete(s.valuesSubs, k)
	}
	return nil
}

func (s *MemStore) Read(_ context.Context, key []byte) ([]byte, error) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()

	v, ok := s.values[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// NotifyRead returns the value under key, waiting for it to be written if needed.
func (s *MemStore) NotifyRead(ctx context.Context, key []byte) ([]byte, error) {
	s.valuesMu.Lock()
	k := string(key)
	v, ok := s.values[k]
	if ok {
		s.valuesMu.Unlock()
		return v, nil
	}
	if s.closed {
		s.valuesMu.Unlock()
		return nil, ErrStoreClosed
	}

	subs, ok := s.valuesSubs[k]
	if !ok {
		subs = make(map[chan []byte]struct{})
		s.valuesSubs[k] = subs
	}

	sub := make(chan []byte, 1)
	subs[sub] = struct{}{}
	s.valuesMu.Unlock()

	select {
	case v, ok := <-sub:
		if !ok {
			return nil, ErrStoreClosed
		}
		return v, nil
	case <-ctx.Done():
		// no need to keep the request, if the caller has canceled
		s.valuesMu.Lock()
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.valuesSubs, k)
		}
		s.valuesMu.Unlock()
		return nil, ctx.Err()
	}
}
