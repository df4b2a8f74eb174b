package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iykyk-syn/unison-worker/sigverify"
)

const networkID = "poc"

type flags struct {
	home     string
	listen   []string
	logLevel string

	isBootstrapper bool
	bootstrapper   string

	id        uint32
	storeDir  string
	inMemory  bool
	primary   string
	verify    bool
	poolSize  int
	batchSize int
	batchTime time.Duration
	txSize    int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		defer os.Exit(1)
		return
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "unison-worker",
		Short: "Runs a mempool worker sealing, verifying, storing and announcing batches",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			slog.SetLogLoggerLevel(level)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), f)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.home, "home", filepath.Join(home, ".unison-worker"), "Directory for the node identity and data")
	pf.StringSliceVar(&f.listen, "listen", []string{
		"/ip4/0.0.0.0/udp/10000/quic-v1",
		"/ip6/::/udp/10000/quic-v1",
	}, "Multiaddrs to listen on")
	pf.StringVar(&f.logLevel, "log-level", "debug", "Log level: debug, info, warn or error")
	pf.BoolVar(&f.isBootstrapper, "is-bootstrapper", false, "To indicate node is bootstrapper")
	pf.StringVar(&f.bootstrapper, "bootstrapper", "", "Specifies network bootstrapper multiaddr")

	fl := root.Flags()
	fl.Uint32Var(&f.id, "id", 0, "Worker id announced to the primary")
	fl.StringVar(&f.storeDir, "store-dir", "", "Batch store directory. Defaults to <home>/store-<id>")
	fl.BoolVar(&f.inMemory, "in-memory", false, "Keep batches in memory instead of on disk")
	fl.StringVar(&f.primary, "primary", "",
		"Multiaddr of the primary to announce batches to. If empty, announcements are logged locally",
	)
	fl.BoolVar(&f.verify, "verify", true, "Simulate signature verification of every batch")
	fl.IntVar(&f.poolSize, "pool-size", sigverify.DefaultPoolSize(), "Number of CPU workers shared by verification")
	fl.IntVar(&f.batchSize, "batch-size", 2000*125,
		"Batch size to be produced every 'batch-time' (bytes). 0 disables batch production",
	)
	fl.DurationVar(&f.batchTime, "batch-time", time.Second, "Batch production time")
	fl.IntVar(&f.txSize, "tx-size", 512, "Size of produced transactions (bytes)")

	root.AddCommand(newPrimaryCmd(f))
	return root
}

func newPrimaryCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "primary",
		Short: "Runs a stub primary logging batch announcements of workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrimary(cmd.Context(), f)
		},
	}
}
