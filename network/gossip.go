// Package network connects workers to each other and to their primary over libp2p.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Gossip disseminates serialized batches among the workers of a network over a pubsub topic.
// Batches published by other workers are delivered on Batches; the local ones are not.
type Gossip struct {
	topicName string
	self      peer.ID

	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	out chan []byte

	log    *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGossip creates a Gossip on the topic of the given network.
// Up to capacity received batches are buffered until read from Batches.
func NewGossip(networkID string, self peer.ID, ps *pubsub.PubSub, capacity int) *Gossip {
	return &Gossip{
		topicName: "/unison/batches/" + networkID,
		self:      self,
		pubsub:    ps,
		out:       make(chan []byte, capacity),
		log:       slog.With("module", "gossip"),
		done:      make(chan struct{}),
	}
}

func (g *Gossip) Start() (err error) {
	g.topic, err = g.pubsub.Join(g.topicName)
	if err != nil {
		return fmt.Errorf("joining topic %s: %w", g.topicName, err)
	}

	g.sub, err = g.topic.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribing to topic %s: %w", g.topicName, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go g.run(ctx)
	g.log.Debug("started", "topic", g.topicName)
	return nil
}

// Stop leaves the topic. Batches is closed once Stop returns.
func (g *Gossip) Stop() (err error) {
	g.sub.Cancel()
	g.cancel()
	<-g.done
	return errors.Join(err, g.topic.Close())
}

// Batches delivers batches received from other workers.
func (g *Gossip) Batches() <-chan []byte {
	return g.out
}

// Publish broadcasts a serialized batch to every worker of the network.
func (g *Gossip) Publish(ctx context.Context, batch []byte) error {
	if err := g.topic.Publish(ctx, batch); err != nil {
		return fmt.Errorf("publishing batch: %w", err)
	}
	return nil
}

// Peers lists the workers currently subscribed to the topic.
func (g *Gossip) Peers() []peer.ID {
	return g.topic.ListPeers()
}

func (g *Gossip) run(ctx context.Context) {
	defer close(g.done)
	defer close(g.out)

	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				g.log.Error("receiving batch", "err", err)
			}
			return
		}
		if msg.ReceivedFrom == g.self {
			continue
		}

		select {
		case g.out <- msg.Data:
		case <-ctx.Done():
			return
		}
	}
}
