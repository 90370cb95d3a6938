// Package sources implements the C5 Sources component: the one-shot
// mempool bootstrap enumerator, the live ZMQ transaction subscriber,
// and the three periodic tickers that feed the worker pool's shared
// task queue.
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/klaytn-labs/mempool-tracker/btcrpc"
	"github.com/klaytn-labs/mempool-tracker/feeresolver"
	tracklog "github.com/klaytn-labs/mempool-tracker/log"
)

var logger = tracklog.NewModuleLogger(tracklog.ModuleSources)

// bootstrapStore is the subset of *store.Store Bootstrap calls.
// Narrowed to an interface so bootstrap_test.go can exercise this
// against a fake instead of a real SQLite file.
type bootstrapStore interface {
	InsertMempoolTx(ctx context.Context, tx *wire.MsgTx, foundAt *time.Time, fee, feeRate uint64) error
}

// bootstrapRPC is the subset of *btcrpc.Client Bootstrap calls, plus
// the PrevOutValue method feeresolver.AbsoluteFee needs. Narrowed the
// same way worker.rpcClient is, so bootstrap_test.go can supply a
// canned fake instead of a live bitcoind.
type bootstrapRPC interface {
	feeresolver.PrevOutFetcher
	RawMempoolVerbose() (map[string]btcrpc.MempoolEntry, error)
	RawTransaction(txidHex string) (*wire.MsgTx, error)
}

// Bootstrap enumerates every transaction already sitting in the
// node's mempool at startup and records it directly against db, with
// found_at set to the node's own first-seen time for that entry. It
// never routes through the worker queue: the classifier's RawTx branch
// always stamps found_at with time.Now(), which would be wrong here.
//
// Grounded on original_source/src/app.rs::extract_existing_mempool.
func Bootstrap(ctx context.Context, rpc bootstrapRPC, db bootstrapStore) error {
	verbose, err := rpc.RawMempoolVerbose()
	if err != nil {
		return fmt.Errorf("fetch verbose mempool: %w", err)
	}
	logger.Info("bootstrapping existing mempool", "count", len(verbose))

	for txid, entry := range verbose {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tx, err := rpc.RawTransaction(txid)
		if err != nil {
			logger.Warn("failed to fetch bootstrap tx, skipping", "txid", txid, "err", err)
			continue
		}

		fee, err := feeresolver.AbsoluteFee(ctx, tx, rpc)
		if err != nil {
			logger.Warn("fee resolution failed for bootstrap tx, skipping", "txid", txid, "err", err)
			continue
		}
		feeRate := feeresolver.FeeRate(fee, tx)

		foundAt := time.Unix(entry.Time, 0)
		if err := db.InsertMempoolTx(ctx, tx, &foundAt, uint64(fee), feeRate); err != nil {
			logger.Warn("failed to insert bootstrap tx, skipping", "txid", txid, "err", err)
			continue
		}
	}
	return nil
}
