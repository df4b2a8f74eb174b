package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

var bootstrapProtocol protocol.ID = "/unison/bootstrap"

// Bootstrap joins a worker to the network through a well known bootstrapper.
type Bootstrap struct {
	host host.Host

	log *slog.Logger
}

func NewBootstrap(host host.Host) *Bootstrap {
	return &Bootstrap{
		host: host,
		log:  slog.With("module", "bootstrap"),
	}
}

// Start connects to bootstrapper and to every peer it knows.
func (b *Bootstrap) Start(ctx context.Context, bootstrapper peer.AddrInfo) error {
	err := b.host.Connect(ctx, bootstrapper)
	if err != nil {
		return fmt.Errorf("connecting to bootstrapper: %w", err)
	}
	b.log.DebugContext(ctx, "connected to bootstrapper", "peer", bootstrapper.ID)

	// this gives time for connections to settle on the bootstrapper and gets us all the peers
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	peers, err := b.fetchPeers(ctx, bootstrapper.ID)
	if err != nil {
		return fmt.Errorf("fetching peers: %w", err)
	}

	for _, p := range peers {
		if p.ID == b.host.ID() {
			continue
		}
		go func() {
			err := b.host.Connect(ctx, p)
			if err != nil {
				b.log.Error("connecting to peer", "peer", p.ID, "err", err)
			}
		}()
	}

	b.log.Debug("started", "peers", len(peers))
	return nil
}

func (b *Bootstrap) fetchPeers(ctx context.Context, bootstrapper peer.ID) ([]peer.AddrInfo, error) {
	s, err := b.host.NewStream(ctx, bootstrapper, bootstrapProtocol)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	bytes, err := io.ReadAll(s)
	if err != nil {
		return nil, err
	}

	var peers []peer.AddrInfo
	if err = json.Unmarshal(bytes, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Serve starts answering bootstrap requests with the peers this host knows addresses of.
func (b *Bootstrap) Serve() {
	b.host.SetStreamHandler(bootstrapProtocol, func(stream network.Stream) {
		defer stream.Close()

		store := b.host.Peerstore()
		peerIDs := store.PeersWithAddrs()

		peers := make([]peer.AddrInfo, len(peerIDs))
		for i, p := range peerIDs {
			peers[i] = store.PeerInfo(p)
		}

		bytes, err := json.Marshal(peers)
		if err != nil {
			b.log.Error("marshalling peers", "err", err)
			return
		}

		if _, err = stream.Write(bytes); err != nil {
			b.log.Error("sending peers", "err", err)
			return
		}
	})
}

func (b *Bootstrap) Stop() {
	b.host.RemoveStreamHandler(bootstrapProtocol)
}
