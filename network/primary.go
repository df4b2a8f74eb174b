package network

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/iykyk-syn/unison-worker/worker"
)

var primaryProtocolID = protocol.ID("/unison/worker-primary/v0.0.1")

// PrimaryLink is a worker.Link delivering notifications to a remote primary.
// Every notification goes over its own stream and is acknowledged by the primary closing it.
type PrimaryLink struct {
	host    host.Host
	primary peer.ID

	protocolID protocol.ID

	log *slog.Logger
}

var _ worker.Link = (*PrimaryLink)(nil)

func NewPrimaryLink(host host.Host, primary peer.ID) *PrimaryLink {
	return &PrimaryLink{
		host:       host,
		primary:    primary,
		protocolID: primaryProtocolID,
		log:        slog.With("module", "primary-link"),
	}
}

func (l *PrimaryLink) Send(ctx context.Context, msg []byte) error {
	stream, err := l.host.NewStream(ctx, l.primary, l.protocolID)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	// set stream deadline from the context deadline.
	// if it is empty, then we assume that it will
	// hang until the primary closes the stream by the timeout.
	if dl, ok := ctx.Deadline(); ok {
		if err = stream.SetDeadline(dl); err != nil {
			l.log.WarnContext(ctx, "error setting deadline", "err", err)
		}
	}

	if _, err = stream.Write(msg); err != nil {
		return fmt.Errorf("writing notification to stream: %w", err)
	}
	if err = stream.CloseWrite(); err != nil {
		return err
	}
	// await ack from the other side
	if _, err = stream.Read(make([]byte, 1)); err != nil && err != io.EOF {
		return fmt.Errorf("awaiting acknowledgement: %w", err)
	}

	return nil
}

// PrimaryReceiver is the primary side of PrimaryLink.
// It decodes incoming notifications and delivers them on Notifications.
type PrimaryReceiver struct {
	host       host.Host
	protocolID protocol.ID

	out     chan *worker.PrimaryMessage
	closing chan struct{}

	log *slog.Logger
}

func NewPrimaryReceiver(host host.Host, capacity int) *PrimaryReceiver {
	return &PrimaryReceiver{
		host:       host,
		protocolID: primaryProtocolID,
		out:        make(chan *worker.PrimaryMessage, capacity),
		closing:    make(chan struct{}),
		log:        slog.With("module", "primary-receiver"),
	}
}

func (r *PrimaryReceiver) Start() {
	r.host.SetStreamHandler(r.protocolID, func(stream network.Stream) {
		if err := r.rcvNotification(stream); err != nil {
			r.log.Error("receiving notification", "peer", stream.Conn().RemotePeer(), "err", err)
			stream.Reset() //nolint: errcheck
		}
	})
}

// Stop stops accepting notifications. Pending senders get their streams reset.
func (r *PrimaryReceiver) Stop() {
	r.host.RemoveStreamHandler(r.protocolID)
	close(r.closing)
}

// Notifications delivers every notification received from workers.
func (r *PrimaryReceiver) Notifications() <-chan *worker.PrimaryMessage {
	return r.out
}

func (r *PrimaryReceiver) rcvNotification(s network.Stream) error {
	// TODO: SetDeadline

	data, err := io.ReadAll(s)
	if err != nil {
		return fmt.Errorf("reading notification: %w", err)
	}

	msg := &worker.PrimaryMessage{}
	if err = msg.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("decoding notification: %w", err)
	}

	select {
	case r.out <- msg:
	case <-r.closing:
		return fmt.Errorf("receiver stopped")
	}

	// ack other side that the notification is accepted by closing the stream
	if err = s.Close(); err != nil {
		return fmt.Errorf("closing Stream: %w", err)
	}
	r.log.Debug("received notification", "msg", msg)
	return nil
}
