package worker

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
)

// Task is the tagged-union unit of work the supervisor's single
// bounded queue carries. Using one interface with a type switch in
// the worker's dispatch loop (rather than several separate channels,
// as the teacher's chaindata_fetcher.go does with chainCh/reqCh) keeps
// a single FIFO-per-producer ordering guarantee across all four task
// kinds, which spec.md §5 requires.
type Task interface {
	isTask()
}

// RawTx carries a consensus-encoded transaction received from the
// live push-stream.
type RawTx struct {
	Bytes []byte
}

// MempoolState requests a pool-wide snapshot of the node's current
// tip and mempool size.
type MempoolState struct{}

// PruneCheck requests a sweep comparing our live rows against the
// node's current raw mempool.
type PruneCheck struct{}

// MiningInfo requests a fetch of the external hash-rate-distribution
// feed.
type MiningInfo struct{}

func (RawTx) isTask()        {}
func (MempoolState) isTask() {}
func (PruneCheck) isTask()   {}
func (MiningInfo) isTask()   {}

var (
	_ Task = RawTx{}
	_ Task = MempoolState{}
	_ Task = PruneCheck{}
	_ Task = MiningInfo{}
)

// decodeTx parses a consensus-encoded transaction payload.
func decodeTx(raw []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
