// Package tracker implements the C6 Supervisor: startup preconditions,
// migration and stale-row cleanup, mempool bootstrap, and the
// fan-out/fan-in of the worker pool and every enabled source against
// a single shared task queue and a single cancellation context.
package tracker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klaytn-labs/mempool-tracker/btcrpc"
	tracklog "github.com/klaytn-labs/mempool-tracker/log"
	"github.com/klaytn-labs/mempool-tracker/sources"
	"github.com/klaytn-labs/mempool-tracker/store"
	"github.com/klaytn-labs/mempool-tracker/worker"
)

var logger = tracklog.NewModuleLogger(tracklog.ModuleSupervisor)

// taskQueueCapacity is the single bounded multi-producer queue's
// buffer size.
const taskQueueCapacity = 100_000

// Config bundles everything the Supervisor needs to wire sources,
// workers, and the Store together. A zero PruneInterval or
// MiningInfoInterval disables that ticker entirely, matching the CLI's
// disable/enable flags; the mempool-state ticker is always started.
type Config struct {
	RPCHost    string
	RPCPort    uint16
	ZMQPort    uint16
	Auth       btcrpc.Auth
	DBPath     string
	NumWorkers int

	MempoolStateInterval time.Duration
	PruneInterval        time.Duration // zero disables the prune ticker
	MiningInfoInterval   time.Duration // zero disables the mining-info ticker
	MiningInfoURL        string
}

// Run executes the full Supervisor lifecycle: preconditions,
// migration, bootstrap, fan-out, and graceful shutdown on ctx
// cancellation or the first fatal task error. It returns nil only on
// a clean, signal-triggered shutdown.
//
// Grounded on original_source/src/app.rs::{init,run} for the
// sequencing and chaindata_fetcher.go::{Start,Stop} for the Go
// goroutine-fan-out/drain shape, generalized to errgroup.
func Run(ctx context.Context, cfg Config) error {
	supervisorRPC, err := btcrpc.Dial(cfg.RPCHost, cfg.RPCPort, cfg.Auth)
	if err != nil {
		return fmt.Errorf("dial bitcoind: %w", err)
	}
	defer supervisorRPC.Shutdown()

	if err := checkPreconditions(supervisorRPC); err != nil {
		return fmt.Errorf("startup precondition failed: %w", err)
	}

	db, err := store.NewStore(cfg.DBPath, cfg.NumWorkers+4)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	removed, err := db.RemoveStaleTxs(ctx)
	if err != nil {
		return fmt.Errorf("remove stale txs: %w", err)
	}
	logger.Info("removed stale rows from prior run", "count", removed)

	if err := sources.Bootstrap(ctx, supervisorRPC, db); err != nil {
		return fmt.Errorf("bootstrap mempool: %w", err)
	}

	tasks := make(chan worker.Task, taskQueueCapacity)

	group, gctx := errgroup.WithContext(ctx)

	for i := 0; i < cfg.NumWorkers; i++ {
		workerRPC, err := btcrpc.Dial(cfg.RPCHost, cfg.RPCPort, cfg.Auth)
		if err != nil {
			return fmt.Errorf("dial bitcoind for worker %d: %w", i, err)
		}
		defer workerRPC.Shutdown()

		w := worker.New(worker.Config{
			ID:            i,
			RPC:           workerRPC,
			Store:         db,
			Tasks:         tasks,
			MiningInfoURL: cfg.MiningInfoURL,
		})
		group.Go(func() error { return w.Run(gctx) })
	}

	zmqRPC := sources.ZMQFactory{Host: cfg.RPCHost, Port: cfg.ZMQPort}
	sub, err := zmqRPC.Connect(gctx)
	if err != nil {
		return fmt.Errorf("connect zmq: %w", err)
	}
	group.Go(func() error { return sub.Run(gctx, tasks) })

	group.Go(func() error {
		return sources.MempoolStateTicker(gctx, cfg.MempoolStateInterval, tasks)
	})

	if cfg.PruneInterval > 0 {
		group.Go(func() error {
			return sources.PruneTicker(gctx, cfg.PruneInterval, tasks)
		})
	}

	if cfg.MiningInfoInterval > 0 && cfg.MiningInfoURL != "" {
		group.Go(func() error {
			return sources.MiningInfoTicker(gctx, cfg.MiningInfoInterval, tasks)
		})
	}

	logger.Info("===== mempool tracker started =====", "workers", cfg.NumWorkers)

	err = group.Wait()
	close(tasks)

	if flushErr := db.Flush(context.Background()); flushErr != nil {
		logger.Warn("final store flush failed", "err", flushErr)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("fatal task error: %w", err)
	}
	logger.Info("===== mempool tracker stopped =====")
	return nil
}

// checkPreconditions implements spec.md §4.6's fail-fast startup
// checks: the node must not be in initial block download, and its
// mempool must report itself loaded.
func checkPreconditions(rpc *btcrpc.Client) error {
	info, err := rpc.BlockchainInfo()
	if err != nil {
		return fmt.Errorf("fetch blockchain info: %w", err)
	}
	if info.InitialBlockDownload {
		return fmt.Errorf("node is still in initial block download")
	}

	mempoolInfo, err := rpc.MempoolInfo()
	if err != nil {
		return fmt.Errorf("fetch mempool info: %w", err)
	}
	if !mempoolInfo.Loaded {
		return fmt.Errorf("node's mempool is not yet loaded")
	}
	return nil
}
