// Package worker implements the Classifier/Worker component: a pool
// of goroutines draining a shared task queue, each driving the Store
// through the correct state transition for whatever it dequeues.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rcrowley/go-metrics"

	"github.com/klaytn-labs/mempool-tracker/btcrpc"
	"github.com/klaytn-labs/mempool-tracker/btctx"
	"github.com/klaytn-labs/mempool-tracker/feeresolver"
	tracklog "github.com/klaytn-labs/mempool-tracker/log"
)

var logger = tracklog.NewModuleLogger(tracklog.ModuleWorker)

var (
	tasksProcessedCounter = metrics.NewRegisteredCounter("worker/tasksProcessed", nil)
	tasksDroppedCounter   = metrics.NewRegisteredCounter("worker/tasksDropped", nil)
	taskQueueDepthGauge   = metrics.NewRegisteredGauge("worker/queueDepth", nil)
)

// rpcClient is the subset of *btcrpc.Client a Worker calls. Narrowing
// to an interface here (rather than depending on *btcrpc.Client
// directly) is what lets classification logic be tested against a
// canned fake instead of a live bitcoind.
type rpcClient interface {
	RawTransactionStatus(txidHex string) (*btcrpc.TxStatus, error)
	MempoolInfo() (*btcrpc.MempoolInfo, error)
	BlockCount() (int64, error)
	BlockHash(height int64) (string, error)
	RawMempool() ([]string, error)
	PrevOutValue(ctx context.Context, txid chainhash.Hash, vout uint32) (btcutil.Amount, error)
}

// transactionStore is the subset of *store.Store a Worker calls.
type transactionStore interface {
	RecordCoinbaseTx(ctx context.Context, tx *wire.MsgTx) error
	RecordMinedTx(ctx context.Context, tx *wire.MsgTx) error
	TxExists(ctx context.Context, tx *wire.MsgTx) (bool, error)
	RecordRBF(ctx context.Context, tx *wire.MsgTx, feeTotal, feeRate uint64) error
	UpdateTxidByInputsHash(ctx context.Context, tx *wire.MsgTx) error
	InsertMempoolTx(ctx context.Context, tx *wire.MsgTx, foundAt *time.Time, fee, feeRate uint64) error
	TxidsOfTxsNotInList(ctx context.Context, upstreamTxids []string) ([]string, error)
	RecordPrunedTxs(ctx context.Context, txids []string) error
	RecordMempoolState(ctx context.Context, size, txCount uint64, blockHeight int64, blockHash string) error
	RecordMiningInfo(ctx context.Context, doc json.RawMessage) error
	Flush(ctx context.Context) error
}

// Worker repeatedly takes one Task from the shared queue until the
// queue is closed or its context is canceled. Each worker holds its own RPC connection handle
// and a shared store handle (safe to share: it wraps a connection
// pool), matching spec.md §2's "worker instances ... each holds its
// own connection handle to the upstream RPC and a cloneable handle to
// the Store."
type Worker struct {
	id            int
	rpc           rpcClient
	db            transactionStore
	tasks         <-chan Task
	miningInfoURL string
	httpClient    *http.Client
}

// Config bundles everything a Worker needs beyond its queue.
type Config struct {
	ID            int
	RPC           rpcClient
	Store         transactionStore
	Tasks         <-chan Task
	MiningInfoURL string
}

func New(cfg Config) *Worker {
	return &Worker{
		id:            cfg.ID,
		rpc:           cfg.RPC,
		db:            cfg.Store,
		tasks:         cfg.Tasks,
		miningInfoURL: cfg.MiningInfoURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Run handles tasks until the queue is closed or ctx is canceled. On
// cancellation it returns once the task in hand is finished; tasks
// still waiting in the queue are not processed. A worker never
// terminates the pipeline for a per-task error: every branch below
// logs and continues.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-w.tasks:
			if !ok {
				return nil
			}
			taskQueueDepthGauge.Update(int64(len(w.tasks)))
			w.handle(ctx, task)
			tasksProcessedCounter.Inc(1)
		}
	}
}

func (w *Worker) handle(ctx context.Context, task Task) {
	switch t := task.(type) {
	case RawTx:
		w.handleRawTx(ctx, t)
	case MempoolState:
		w.handleMempoolState(ctx)
	case PruneCheck:
		w.handlePruneCheck(ctx)
	case MiningInfo:
		w.handleMiningInfo(ctx)
	default:
		logger.Error("unknown task type", "type", fmt.Sprintf("%T", task))
	}
}

// handleRawTx implements spec.md §4.4's classification algorithm.
func (w *Worker) handleRawTx(ctx context.Context, t RawTx) {
	tx, err := decodeTx(t.Bytes)
	if err != nil {
		logger.Warn("failed to decode raw tx, dropping", "err", err)
		tasksDroppedCounter.Inc(1)
		return
	}
	txid := tx.TxHash().String()

	if btctx.IsCoinbase(tx) {
		if err := w.db.RecordCoinbaseTx(ctx, tx); err != nil {
			logger.Error("record coinbase tx failed", "txid", txid, "err", err)
		}
		w.flush(ctx)
		return
	}

	status, err := w.rpc.RawTransactionStatus(txid)
	if err != nil {
		logger.Warn("failed to fetch tx status, dropping", "txid", txid, "err", err)
		tasksDroppedCounter.Inc(1)
		return
	}

	fee, err := feeresolver.AbsoluteFee(ctx, tx, w.rpc)
	if err != nil {
		logger.Warn("fee resolution failed, dropping", "txid", txid, "err", err)
		tasksDroppedCounter.Inc(1)
		return
	}
	feeRate := feeresolver.FeeRate(fee, tx)

	switch {
	case status.Confirmations > 0:
		if err := w.db.RecordMinedTx(ctx, tx); err != nil {
			logger.Error("record mined tx failed", "txid", txid, "err", err)
		}

	default:
		exists, err := w.db.TxExists(ctx, tx)
		if err != nil {
			logger.Error("tx exists lookup failed", "txid", txid, "err", err)
			return
		}
		if exists {
			logger.Info("rbf replacement observed", "txid", txid, "fee", fee, "feeRate", feeRate)
			if err := w.db.RecordRBF(ctx, tx, uint64(fee), feeRate); err != nil {
				logger.Error("record rbf failed", "txid", txid, "err", err)
				return
			}
			if err := w.db.UpdateTxidByInputsHash(ctx, tx); err != nil {
				logger.Error("update txid by inputs hash failed", "txid", txid, "err", err)
			}
		} else {
			if err := w.db.InsertMempoolTx(ctx, tx, nil, uint64(fee), feeRate); err != nil {
				logger.Error("insert mempool tx failed", "txid", txid, "err", err)
			}
		}
	}

	w.flush(ctx)
}

func (w *Worker) handleMempoolState(ctx context.Context) {
	info, err := w.rpc.MempoolInfo()
	if err != nil {
		logger.Warn("failed to fetch mempool info", "err", err)
		return
	}
	height, err := w.rpc.BlockCount()
	if err != nil {
		logger.Warn("failed to fetch block count", "err", err)
		return
	}
	hash, err := w.rpc.BlockHash(height)
	if err != nil {
		logger.Warn("failed to fetch block hash", "height", height, "err", err)
		return
	}
	if err := w.db.RecordMempoolState(ctx, info.Bytes, info.Size, height, hash); err != nil {
		logger.Error("record mempool state failed", "err", err)
	}
}

// handlePruneCheck runs the Store-backed set difference, which may
// scan many rows, on a dedicated goroutine. The worker waits for that
// goroutine's result before it takes its next task.
func (w *Worker) handlePruneCheck(ctx context.Context) {
	upstream, err := w.rpc.RawMempool()
	if err != nil {
		logger.Warn("failed to fetch raw mempool for prune check", "err", err)
		return
	}

	errCh := make(chan error, 1)
	go func() {
		missing, err := w.db.TxidsOfTxsNotInList(ctx, upstream)
		if err != nil {
			errCh <- err
			return
		}
		if len(missing) > 0 {
			logger.Info("pruning txs no longer in mempool", "count", len(missing))
		}
		errCh <- w.db.RecordPrunedTxs(ctx, missing)
	}()

	if err := <-errCh; err != nil {
		logger.Error("prune check failed", "err", err)
	}
}

func (w *Worker) handleMiningInfo(ctx context.Context) {
	if w.miningInfoURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.miningInfoURL, nil)
	if err != nil {
		logger.Error("build mining info request failed", "err", err)
		return
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		logger.Warn("mining info fetch failed", "err", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("mining info read failed", "err", err)
		return
	}
	if !json.Valid(body) {
		logger.Warn("mining info response was not valid json, storing as-is", "len", len(body))
	}
	if err := w.db.RecordMiningInfo(ctx, json.RawMessage(body)); err != nil {
		logger.Error("record mining info failed", "err", err)
	}
}

func (w *Worker) flush(ctx context.Context) {
	if err := w.db.Flush(ctx); err != nil {
		logger.Warn("store flush failed", "err", err)
	}
}
