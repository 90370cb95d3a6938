package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaytn-labs/mempool-tracker/btcrpc"
)

// fakeRPC is a canned rpcClient: every method returns whatever the
// test pre-seeded, so classification branches can be exercised
// without a live bitcoind.
type fakeRPC struct {
	status      *btcrpc.TxStatus
	prevOutVal  btcutil.Amount
	mempoolInfo *btcrpc.MempoolInfo
	blockCount  int64
	blockHash   string
	rawMempool  []string
}

func (f *fakeRPC) RawTransactionStatus(string) (*btcrpc.TxStatus, error) { return f.status, nil }
func (f *fakeRPC) MempoolInfo() (*btcrpc.MempoolInfo, error)             { return f.mempoolInfo, nil }
func (f *fakeRPC) BlockCount() (int64, error)                            { return f.blockCount, nil }
func (f *fakeRPC) BlockHash(int64) (string, error)                       { return f.blockHash, nil }
func (f *fakeRPC) RawMempool() ([]string, error)                         { return f.rawMempool, nil }
func (f *fakeRPC) PrevOutValue(context.Context, chainhash.Hash, uint32) (btcutil.Amount, error) {
	return f.prevOutVal, nil
}

// fakeStore is an in-memory transactionStore recording which method
// was called, so tests can assert the classification branch taken
// without a real SQLite file.
type fakeStore struct {
	coinbaseRecorded bool
	minedRecorded    bool
	rbfRecorded      bool
	insertedNew      bool
	existsResult     bool
	prunedTxids      []string
	pruneCalled      bool
	mempoolState     bool
	miningInfo       bool
}

func (f *fakeStore) RecordCoinbaseTx(context.Context, *wire.MsgTx) error { f.coinbaseRecorded = true; return nil }
func (f *fakeStore) RecordMinedTx(context.Context, *wire.MsgTx) error    { f.minedRecorded = true; return nil }
func (f *fakeStore) TxExists(context.Context, *wire.MsgTx) (bool, error) { return f.existsResult, nil }
func (f *fakeStore) RecordRBF(context.Context, *wire.MsgTx, uint64, uint64) error {
	f.rbfRecorded = true
	return nil
}
func (f *fakeStore) UpdateTxidByInputsHash(context.Context, *wire.MsgTx) error { return nil }
func (f *fakeStore) InsertMempoolTx(context.Context, *wire.MsgTx, *time.Time, uint64, uint64) error {
	f.insertedNew = true
	return nil
}
func (f *fakeStore) TxidsOfTxsNotInList(context.Context, []string) ([]string, error) { return nil, nil }
func (f *fakeStore) RecordPrunedTxs(_ context.Context, txids []string) error {
	f.pruneCalled = true
	f.prunedTxids = txids
	return nil
}
func (f *fakeStore) RecordMempoolState(context.Context, uint64, uint64, int64, string) error {
	f.mempoolState = true
	return nil
}
func (f *fakeStore) RecordMiningInfo(context.Context, json.RawMessage) error {
	f.miningInfo = true
	return nil
}
func (f *fakeStore) Flush(context.Context) error { return nil }

var prevTxid = "00000000000000000000000000000000000000000000000000000000000000bb"

func buildSpendingTx() *wire.MsgTx {
	hash, err := chainhash.NewHashFromStr(prevTxid)
	if err != nil {
		panic(err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: *hash, Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: 9_000, PkScript: []byte{0x51}})
	return tx
}

func encodeForTask(t *testing.T, tx *wire.MsgTx) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

func newWorker(rpc *fakeRPC, db *fakeStore) *Worker {
	return New(Config{ID: 0, RPC: rpc, Store: db, Tasks: make(chan Task)})
}

func TestHandleRawTxMinedBranch(t *testing.T) {
	tx := buildSpendingTx()
	rpc := &fakeRPC{status: &btcrpc.TxStatus{Confirmations: 6}, prevOutVal: 10_000}
	db := &fakeStore{}
	w := newWorker(rpc, db)

	w.handle(context.Background(), RawTx{Bytes: encodeForTask(t, tx)})

	assert.True(t, db.minedRecorded)
	assert.False(t, db.rbfRecorded)
	assert.False(t, db.insertedNew)
}

func TestHandleRawTxNewMempoolBranch(t *testing.T) {
	tx := buildSpendingTx()
	rpc := &fakeRPC{status: &btcrpc.TxStatus{Confirmations: 0}, prevOutVal: 10_000}
	db := &fakeStore{existsResult: false}
	w := newWorker(rpc, db)

	w.handle(context.Background(), RawTx{Bytes: encodeForTask(t, tx)})

	assert.True(t, db.insertedNew)
	assert.False(t, db.rbfRecorded)
	assert.False(t, db.minedRecorded)
}

func TestHandleRawTxRBFBranch(t *testing.T) {
	tx := buildSpendingTx()
	rpc := &fakeRPC{status: &btcrpc.TxStatus{Confirmations: 0}, prevOutVal: 10_000}
	db := &fakeStore{existsResult: true}
	w := newWorker(rpc, db)

	w.handle(context.Background(), RawTx{Bytes: encodeForTask(t, tx)})

	assert.True(t, db.rbfRecorded)
	assert.False(t, db.insertedNew)
	assert.False(t, db.minedRecorded)
}

func TestHandleRawTxCoinbaseBranch(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}})
	tx.AddTxOut(&wire.TxOut{Value: 5_000_000_000, PkScript: []byte{0x51}})

	rpc := &fakeRPC{}
	db := &fakeStore{}
	w := newWorker(rpc, db)

	w.handle(context.Background(), RawTx{Bytes: encodeForTask(t, tx)})

	assert.True(t, db.coinbaseRecorded)
	assert.False(t, db.minedRecorded)
}

func TestHandleRawTxMalformedBytesIsDropped(t *testing.T) {
	db := &fakeStore{}
	w := newWorker(&fakeRPC{}, db)

	w.handle(context.Background(), RawTx{Bytes: []byte{0xff, 0xff}})

	assert.False(t, db.coinbaseRecorded)
	assert.False(t, db.minedRecorded)
	assert.False(t, db.insertedNew)
}

func TestHandleMempoolState(t *testing.T) {
	rpc := &fakeRPC{
		mempoolInfo: &btcrpc.MempoolInfo{Bytes: 4096, Size: 12, Loaded: true},
		blockCount:  800_000,
		blockHash:   "abc123",
	}
	db := &fakeStore{}
	w := newWorker(rpc, db)

	w.handle(context.Background(), MempoolState{})

	assert.True(t, db.mempoolState)
}

func TestHandlePruneCheck(t *testing.T) {
	rpc := &fakeRPC{rawMempool: []string{"a", "b"}}
	db := &fakeStore{}
	w := newWorker(rpc, db)

	w.handle(context.Background(), PruneCheck{})

	// fakeStore.TxidsOfTxsNotInList returns (nil, nil); RecordPrunedTxs
	// should still have been called (with a nil/empty slice).
	assert.True(t, db.pruneCalled)
	assert.Empty(t, db.prunedTxids)
}

func TestHandleMiningInfoNoopWithoutURL(t *testing.T) {
	db := &fakeStore{}
	w := newWorker(&fakeRPC{}, db)

	w.handle(context.Background(), MiningInfo{})

	assert.False(t, db.miningInfo)
}
