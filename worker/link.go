package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrLinkClosed is returned by Link.Send once the link to the primary is gone.
var ErrLinkClosed = errors.New("link to primary closed")

// Link delivers serialized notifications to the primary.
type Link interface {
	// Send blocks until msg is accepted by the link, the link is closed or ctx is done.
	Send(ctx context.Context, msg []byte) error
}

// ChanLink is an in-process Link backed by a channel.
type ChanLink struct {
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewChanLink creates a ChanLink buffering up to capacity messages.
func NewChanLink(capacity int) *ChanLink {
	return &ChanLink{
		out:    make(chan []byte, capacity),
		closed: make(chan struct{}),
	}
}

func (l *ChanLink) Send(ctx context.Context, msg []byte) error {
	select {
	case <-l.closed:
		return ErrLinkClosed
	default:
	}

	select {
	case l.out <- msg:
		return nil
	case <-l.closed:
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the channel notifications are delivered on.
func (l *ChanLink) C() <-chan []byte {
	return l.out
}

// Close makes every pending and future Send fail with ErrLinkClosed.
// Messages already accepted stay readable from C.
func (l *ChanLink) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
}
