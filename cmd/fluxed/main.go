// fluxed is the Fluxe protocol daemon: it verifies incoming transaction
// proofs, seals batches into blocks on a fixed cadence, and gossips both
// over the relay.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxe/core/internal/circuits"
	"github.com/fluxe/core/internal/relay"
	"github.com/fluxe/core/internal/state"
	"github.com/fluxe/core/internal/storage"
	"github.com/fluxe/core/internal/verifier"
)

func main() {
	var (
		listenAddr    = flag.String("listen", "/ip4/0.0.0.0/tcp/9470", "relay listen multiaddr")
		bootstrap     = flag.String("bootstrap", "", "comma-separated bootstrap peer multiaddrs")
		batchInterval = flag.Duration("batch-interval", 30*time.Second, "batch sealing cadence")
		dbEnabled     = flag.Bool("db", false, "persist state to PostgreSQL")
		dbHost        = flag.String("db-host", "localhost", "database host")
		dbName        = flag.String("db-name", "fluxe", "database name")
		dbUser        = flag.String("db-user", "fluxe", "database user")
		debug         = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Circuit setup. Keys are generated in-process; production deployments
	// load ceremony output instead.
	log.Info().Msg("compiling transaction circuits")
	registry := circuits.NewRegistry()
	if err := registry.SetupAll(); err != nil {
		log.Fatal().Err(err).Msg("circuit setup failed")
	}

	// State: fresh genesis, or replayed from the database.
	var (
		st    *state.Manager
		store *storage.PostgresStore
	)
	if *dbEnabled {
		cfg := storage.DefaultConfig()
		cfg.Host = *dbHost
		cfg.Database = *dbName
		cfg.User = *dbUser

		var err error
		store, err = storage.NewPostgresStore(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		st, err = store.LoadState(ctx, circuits.MerkleDepth)
		if err != nil {
			log.Fatal().Err(err).Msg("state replay failed")
		}
		log.Info().Msg("state loaded from database")
	} else {
		st = state.NewManager(circuits.MerkleDepth)
	}

	bv := verifier.NewBatchVerifier(st, registry, log)

	// Relay.
	relayCfg := relay.DefaultConfig()
	relayCfg.ListenAddrs = []string{*listenAddr}
	if *bootstrap != "" {
		relayCfg.BootstrapPeers = strings.Split(*bootstrap, ",")
	}

	node, err := relay.NewNode(ctx, relayCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("relay startup failed")
	}
	defer node.Close()

	// Inbound transactions feed the serialized pending queue; rejected
	// proofs drop only themselves.
	txCh := make(chan *verifier.Transaction, 256)
	node.SetTransactionHandler(func(ctx context.Context, tx *verifier.Transaction) error {
		select {
		case txCh <- tx:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	ticker := time.NewTicker(*batchInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Dur("interval", *batchInterval).Msg("fluxed running")

	for {
		select {
		case tx := <-txCh:
			if err := bv.AddTransaction(tx); err != nil {
				log.Warn().Err(err).Msg("transaction rejected")
			}

		case <-ticker.C:
			if bv.PendingCount() == 0 {
				continue
			}
			header, err := bv.ProcessBatch()
			if err != nil {
				log.Error().Err(err).Msg("batch failed")
				continue
			}
			if err := node.PublishBlockHeader(ctx, header); err != nil {
				log.Warn().Err(err).Msg("header publish failed")
			}
			if store != nil {
				if err := store.SaveBlockHeader(ctx, header); err != nil {
					log.Error().Err(err).Msg("header persist failed")
				}
				if err := store.SaveState(ctx, bv.State()); err != nil {
					log.Error().Err(err).Msg("state persist failed")
				}
			}

		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return
		}
	}
}
