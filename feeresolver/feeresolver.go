// Package feeresolver computes the absolute fee and fee rate of a
// transaction by resolving its previous outputs over RPC. It is a
// pure function over (transaction, rpc) — it never touches the Store
// — and issues one round trip per input, so callers must assume it is
// slow and must never hold a Store connection while awaiting it.
package feeresolver

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/klaytn-labs/mempool-tracker/btctx"
)

// PrevOutFetcher resolves a previous output's value given its txid
// and output index. btcrpc.Client satisfies this; tests supply a
// canned map instead of a live node.
type PrevOutFetcher interface {
	PrevOutValue(ctx context.Context, txid chainhash.Hash, vout uint32) (btcutil.Amount, error)
}

// AbsoluteFee returns the absolute fee of tx in satoshis: the sum of
// its resolved input values minus the sum of its output values.
// Coinbase transactions have no spendable inputs and return zero by
// definition. A negative result is impossible for a valid mempool
// transaction and is surfaced as an error rather than silently
// clamped, since it would indicate a resolver or node inconsistency.
func AbsoluteFee(ctx context.Context, tx *wire.MsgTx, fetcher PrevOutFetcher) (btcutil.Amount, error) {
	if btctx.IsCoinbase(tx) {
		return 0, nil
	}

	var outTotal btcutil.Amount
	for _, out := range tx.TxOut {
		outTotal += btcutil.Amount(out.Value)
	}

	var inTotal btcutil.Amount
	for _, in := range tx.TxIn {
		value, err := fetcher.PrevOutValue(ctx, in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index)
		if err != nil {
			return 0, fmt.Errorf("resolve prevout %s:%d: %w", in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index, err)
		}
		inTotal += value
	}

	fee := inTotal - outTotal
	if fee < 0 {
		return 0, fmt.Errorf("negative fee for tx %s: inputs=%d outputs=%d", tx.TxHash(), inTotal, outTotal)
	}
	return fee, nil
}

// FeeRate returns the floor-rounded fee rate in sat/vB: floor(fee /
// vbytes). Coinbase transactions have zero fee rate by definition; a
// zero or negative numerator is also defined as a zero rate.
func FeeRate(fee btcutil.Amount, tx *wire.MsgTx) uint64 {
	if fee <= 0 {
		return 0
	}
	vb := btctx.VBytes(tx)
	if vb <= 0 {
		return 0
	}
	return uint64(fee) / uint64(vb)
}
