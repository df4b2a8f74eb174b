package network

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	bhost "github.com/libp2p/go-libp2p/p2p/host/blank"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	swarmt "github.com/libp2p/go-libp2p/p2p/net/swarm/testing"
	"github.com/libp2p/go-libp2p/p2p/protocol/identify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iykyk-syn/unison-worker/bapl"
	"github.com/iykyk-syn/unison-worker/worker"
)

func TestGossip(t *testing.T) {
	const (
		nodeCount = 5
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshLinked(nodeCount)
	require.NoError(t, err)

	gossips := make([]*Gossip, nodeCount)
	for i, h := range net.Hosts() {
		psub, err := pubsub.NewFloodSub(ctx, h)
		require.NoError(t, err)

		gossips[i] = NewGossip("test", h.ID(), psub, nodeCount)
		require.NoError(t, gossips[i].Start())
	}

	connect(ctx, t, net)
	for _, g := range gossips {
		require.Eventually(t, func() bool {
			return len(g.Peers()) == nodeCount-1
		}, time.Second*5, time.Millisecond*50)
	}

	batches := make(map[bapl.Digest]bool, nodeCount)
	own := make([]bapl.Digest, nodeCount)
	wg, wctx := errgroup.WithContext(ctx)
	for i, g := range gossips {
		batch := randBytes(256)
		own[i] = bapl.Hash(batch)
		batches[own[i]] = true
		wg.Go(func() error {
			return g.Publish(wctx, batch)
		})
	}
	require.NoError(t, wg.Wait())

	// everybody gets all the batches but its own
	for i, g := range gossips {
		received := make(map[bapl.Digest]bool)
		for range nodeCount - 1 {
			select {
			case batch := <-g.Batches():
				received[bapl.Hash(batch)] = true
			case <-ctx.Done():
				t.Fatal("timeout waiting for batches")
			}
		}
		assert.Len(t, received, nodeCount-1)
		assert.False(t, received[own[i]])
		for digest := range received {
			assert.True(t, batches[digest])
		}
	}

	for _, g := range gossips {
		require.NoError(t, g.Stop())
		_, ok := <-g.Batches()
		assert.False(t, ok)
	}
}

func TestPrimaryLink(t *testing.T) {
	const (
		workerCount = 4
		batchCount  = 10
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(workerCount + 1)
	require.NoError(t, err)
	primary := net.Hosts()[0]

	rcv := NewPrimaryReceiver(primary, workerCount*batchCount)
	rcv.Start()
	t.Cleanup(rcv.Stop)

	sent := make(map[bapl.Digest]uint32)
	var sentMu sync.Mutex
	wg, wctx := errgroup.WithContext(ctx)
	for i, h := range net.Hosts()[1:] {
		link := NewPrimaryLink(h, primary.ID())
		wg.Go(func() error {
			for range batchCount {
				msg := &worker.PrimaryMessage{
					Kind:     worker.OurBatch,
					Digest:   bapl.Hash(randBytes(64)),
					WorkerID: uint32(i),
				}
				data, err := msg.MarshalBinary()
				if err != nil {
					return err
				}
				if err = link.Send(wctx, data); err != nil {
					return err
				}

				sentMu.Lock()
				sent[msg.Digest] = msg.WorkerID
				sentMu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, wg.Wait())

	// a successful Send means the notification is already queued on the primary
	require.Len(t, rcv.Notifications(), workerCount*batchCount)
	for range workerCount * batchCount {
		msg := <-rcv.Notifications()
		id, ok := sent[msg.Digest]
		require.True(t, ok)
		assert.Equal(t, id, msg.WorkerID)
		assert.Equal(t, worker.OurBatch, msg.Kind)
	}
}

func TestPrimaryLink_Rejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(2)
	require.NoError(t, err)
	primary, wrkr := net.Hosts()[0], net.Hosts()[1]

	link := NewPrimaryLink(wrkr, primary.ID())

	// nobody serves the protocol yet
	require.Error(t, link.Send(ctx, []byte("notification")))

	rcv := NewPrimaryReceiver(primary, 1)
	rcv.Start()
	t.Cleanup(rcv.Stop)

	// malformed notifications are not acknowledged
	require.Error(t, link.Send(ctx, []byte("notification")))
	assert.Empty(t, rcv.Notifications())
}

func TestProcessorOverPrimaryLink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	net, err := mocknet.FullMeshConnected(2)
	require.NoError(t, err)
	primary, wrkr := net.Hosts()[0], net.Hosts()[1]

	rcv := NewPrimaryReceiver(primary, 8)
	rcv.Start()
	t.Cleanup(rcv.Stop)

	store := bapl.NewMemStore()
	t.Cleanup(store.Close)

	input := make(chan []byte, 1)
	proc, err := worker.New(ctx, worker.Config{
		ID:     9,
		Store:  store,
		Input:  input,
		Output: NewPrimaryLink(wrkr, primary.ID()),
	})
	require.NoError(t, err)

	batch, err := (&worker.BatchMessage{Transactions: [][]byte{randBytes(32)}}).MarshalBinary()
	require.NoError(t, err)
	input <- batch
	close(input)
	require.NoError(t, proc.Run(ctx))

	msg := <-rcv.Notifications()
	assert.Equal(t, worker.OthersBatch, msg.Kind)
	assert.Equal(t, bapl.Hash(batch), msg.Digest)
	assert.EqualValues(t, 9, msg.WorkerID)

	stored, err := store.NotifyRead(ctx, msg.Digest.Bytes())
	require.NoError(t, err)
	assert.Equal(t, batch, stored)
}

func TestBootstrap(t *testing.T) {
	const (
		nodeCount = 10
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	hosts := make([]host.Host, nodeCount)
	for i := range nodeCount {
		hosts[i] = testHost(t)
	}

	bootstrapper := *host.InfoFromHost(hosts[0])

	svcs := make([]*Bootstrap, nodeCount)
	for i, h := range hosts {
		svcs[i] = NewBootstrap(h)
	}

	var wg sync.WaitGroup
	svcs[0].Serve()
	t.Cleanup(svcs[0].Stop)
	for _, svc := range svcs[1:] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Start(ctx, bootstrapper)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	for _, h := range hosts {
		require.Eventually(t, func() bool {
			return len(h.Network().Peers()) == nodeCount-1
		}, time.Second*5, time.Millisecond*50)
	}
}

func testHost(t *testing.T) host.Host {
	netw := swarmt.GenSwarm(t)
	h := bhost.NewBlankHost(netw)
	id, err := identify.NewIDService(h)
	require.NoError(t, err)
	id.Start()
	return h
}

func connect(ctx context.Context, t *testing.T, net mocknet.Mocknet) {
	hs := net.Hosts()
	subs := make([]event.Subscription, len(hs))
	for i, h := range hs {
		subs[i], _ = h.EventBus().Subscribe(&event.EvtPeerIdentificationCompleted{})
	}

	err := net.ConnectAllButSelf()
	require.NoError(t, err)

	for _, sub := range subs {
		select {
		case <-sub.Out():
		case <-ctx.Done():
			require.Fail(t, "timeout waiting for peers to connect")
		}
	}
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b) //nolint: errcheck
	return b
}
