package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/iykyk-syn/unison-worker/bapl"
	network2 "github.com/iykyk-syn/unison-worker/network"
	"github.com/iykyk-syn/unison-worker/sigverify"
	"github.com/iykyk-syn/unison-worker/worker"
)

func runWorker(ctx context.Context, f *flags) error {
	host, bootstrap, err := startHost(ctx, f)
	if err != nil {
		return err
	}
	defer host.Close()
	defer bootstrap.Stop()

	store, err := openStore(f)
	if err != nil {
		return err
	}
	switch s := store.(type) {
	case *bapl.BadgerStore:
		defer s.Close()
	case *bapl.MemStore:
		defer s.Close()
	}

	link, err := primaryLink(ctx, f, host)
	if err != nil {
		return err
	}

	pSub, err := pubsub.NewFloodSub(ctx, host)
	if err != nil {
		return err
	}

	gossip := network2.NewGossip(networkID, host.ID(), pSub, 1000)
	if err = gossip.Start(); err != nil {
		return err
	}
	defer gossip.Stop() //nolint: errcheck

	pool := sigverify.NewPool(f.poolSize)
	ownBatches := make(chan []byte, 1000)
	own, err := worker.New(ctx, worker.Config{
		ID:     f.id,
		Store:  store,
		Input:  ownBatches,
		Output: link,
		Own:    true,
		Verify: f.verify,
		Pool:   pool,
		Log:    slog.With("processor", "own"),
	})
	if err != nil {
		return fmt.Errorf("creating own batch processor: %w", err)
	}

	others, err := worker.New(ctx, worker.Config{
		ID:     f.id,
		Store:  store,
		Input:  gossip.Batches(),
		Output: link,
		Own:    false,
		Verify: f.verify,
		Pool:   pool,
		Log:    slog.With("processor", "others"),
	})
	if err != nil {
		return fmt.Errorf("creating others batch processor: %w", err)
	}

	own.Start(ctx)
	defer own.Stop() //nolint: errcheck
	others.Start(ctx)
	defer others.Stop() //nolint: errcheck

	if f.batchSize > 0 {
		go RandomBatches(ctx, f.batchSize, f.txSize, f.batchTime, func(ctx context.Context, batch []byte) error {
			select {
			case ownBatches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			return gossip.Publish(ctx, batch)
		})
	}

	select {
	case <-own.Done():
		return processorErr("own", own.Err())
	case <-others.Done():
		return processorErr("others", others.Err())
	case <-ctx.Done():
		return nil
	}
}

func processorErr(name string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%s batch processor: %w", name, err)
}

func runPrimary(ctx context.Context, f *flags) error {
	host, bootstrap, err := startHost(ctx, f)
	if err != nil {
		return err
	}
	defer host.Close()
	defer bootstrap.Stop()

	rcv := network2.NewPrimaryReceiver(host, 1000)
	rcv.Start()
	defer rcv.Stop()

	log := slog.With("module", "primary")
	announced := make(map[uint32]map[worker.Kind]int)
	for {
		select {
		case msg := <-rcv.Notifications():
			if announced[msg.WorkerID] == nil {
				announced[msg.WorkerID] = make(map[worker.Kind]int)
			}
			announced[msg.WorkerID][msg.Kind]++
			log.InfoContext(ctx, "batch announced",
				"worker_id", msg.WorkerID,
				"kind", msg.Kind,
				"digest", msg.Digest,
				"total", announced[msg.WorkerID][msg.Kind],
			)
		case <-ctx.Done():
			return nil
		}
	}
}

// startHost starts a libp2p host and joins it to the network.
func startHost(ctx context.Context, f *flags) (p2phost.Host, *network2.Bootstrap, error) {
	p2pKey, err := getIdentity(f.home)
	if err != nil {
		return nil, nil, err
	}

	host, err := newHost(p2pKey, f.listen)
	if err != nil {
		return nil, nil, err
	}

	addrs, err := peer.AddrInfoToP2pAddrs(p2phost.InfoFromHost(host))
	if err != nil {
		host.Close()
		return nil, nil, err
	}

	fmt.Println("The p2p host is listening on:")
	for _, addr := range addrs {
		fmt.Println("* ", addr.String())
	}
	fmt.Println()

	bootstrap := network2.NewBootstrap(host)
	switch {
	case f.isBootstrapper:
		bootstrap.Serve()
	case f.bootstrapper != "":
		addrInfo, err := parseAddrInfo(f.bootstrapper)
		if err != nil {
			host.Close()
			return nil, nil, fmt.Errorf("wrong bootstrapper multiaddr: %w", err)
		}

		if err = bootstrap.Start(ctx, *addrInfo); err != nil {
			host.Close()
			return nil, nil, err
		}
	}

	return host, bootstrap, nil
}

func newHost(key libp2pcrypto.PrivKey, listenAddrs []string) (p2phost.Host, error) {
	listenMAddrs := make([]multiaddr.Multiaddr, 0, len(listenAddrs))
	for _, s := range listenAddrs {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return nil, err
		}
		listenMAddrs = append(listenMAddrs, addr)
	}

	return libp2p.New(
		libp2p.Identity(key),
		libp2p.ListenAddrs(listenMAddrs...),
		libp2p.ResourceManager(&network.NullResourceManager{}),
	)
}

func openStore(f *flags) (bapl.Store, error) {
	if f.inMemory {
		return bapl.NewMemStore(), nil
	}

	dir := f.storeDir
	if dir == "" {
		dir = filepath.Join(f.home, fmt.Sprintf("store-%d", f.id))
	}
	return bapl.OpenBadgerStore(dir)
}

// primaryLink connects to the primary or, without one, logs announcements locally.
func primaryLink(ctx context.Context, f *flags, host p2phost.Host) (worker.Link, error) {
	if f.primary == "" {
		link := worker.NewChanLink(1000)
		go logAnnouncements(ctx, link)
		return link, nil
	}

	addrInfo, err := parseAddrInfo(f.primary)
	if err != nil {
		return nil, fmt.Errorf("wrong primary multiaddr: %w", err)
	}
	if err = host.Connect(ctx, *addrInfo); err != nil {
		return nil, fmt.Errorf("connecting to primary: %w", err)
	}
	return network2.NewPrimaryLink(host, addrInfo.ID), nil
}

func logAnnouncements(ctx context.Context, link *worker.ChanLink) {
	defer link.Close()

	log := slog.With("module", "local-primary")
	for {
		select {
		case data := <-link.C():
			msg := &worker.PrimaryMessage{}
			if err := msg.UnmarshalBinary(data); err != nil {
				log.ErrorContext(ctx, "decoding announcement", "err", err)
				continue
			}
			log.InfoContext(ctx, "batch announced", "kind", msg.Kind, "digest", msg.Digest, "worker_id", msg.WorkerID)
		case <-ctx.Done():
			return
		}
	}
}

func parseAddrInfo(s string) (*peer.AddrInfo, error) {
	maddr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return nil, err
	}
	return peer.AddrInfoFromP2pAddr(maddr)
}
