package feeresolver

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaytn-labs/mempool-tracker/btctx"
)

// cannedFetcher satisfies PrevOutFetcher from a fixed in-memory map,
// keyed by txid (the output index is ignored), standing in for a live
// node in tests.
type cannedFetcher map[string]btcutil.Amount

func (c cannedFetcher) PrevOutValue(_ context.Context, txid chainhash.Hash, _ uint32) (btcutil.Amount, error) {
	v, ok := c[txid.String()]
	if !ok {
		return 0, assert.AnError
	}
	return v, nil
}

var prevTxid = "00000000000000000000000000000000000000000000000000000000000000bb"

func buildSpendingTx(inValue, outValue btcutil.Amount) *wire.MsgTx {
	hash, err := chainhash.NewHashFromStr(prevTxid)
	if err != nil {
		panic(err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: *hash, Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: int64(outValue), PkScript: []byte{0x51}})
	return tx
}

func TestAbsoluteFeeComputesDifference(t *testing.T) {
	tx := buildSpendingTx(10_000, 9_000)
	fetcher := cannedFetcher{prevTxid: 10_000}

	fee, err := AbsoluteFee(context.Background(), tx, fetcher)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, fee)
}

func TestAbsoluteFeeNegativeIsError(t *testing.T) {
	tx := buildSpendingTx(1_000, 2_000)
	fetcher := cannedFetcher{prevTxid: 1_000}

	_, err := AbsoluteFee(context.Background(), tx, fetcher)
	assert.Error(t, err)
}

func TestAbsoluteFeeCoinbaseIsZero(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}})
	tx.AddTxOut(&wire.TxOut{Value: 5_000_000_000, PkScript: []byte{0x51}})

	fee, err := AbsoluteFee(context.Background(), tx, cannedFetcher{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, fee)
}

func TestFeeRateFloorsDivision(t *testing.T) {
	tx := buildSpendingTx(10_000, 9_000)
	vb := uint64(btctx.VBytes(tx))

	rate := FeeRate(btcutil.Amount(vb*3+1), tx)
	assert.EqualValues(t, 3, rate)
}

func TestFeeRateZeroFeeIsZeroRate(t *testing.T) {
	tx := buildSpendingTx(10_000, 10_000)
	assert.EqualValues(t, 0, FeeRate(0, tx))
}
