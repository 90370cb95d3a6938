// Package btctx holds small, dependency-free helpers over
// wire.MsgTx that every other package in the tracker needs: coinbase
// detection, virtual size, and hex (de)serialization of the canonical
// transaction encoding stored in the transactions table.
package btctx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// IsCoinbase reports whether tx is a coinbase transaction: exactly
// one input whose previous outpoint is null (zero hash, max index).
func IsCoinbase(tx *wire.MsgTx) bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prevOut := &tx.TxIn[0].PreviousOutPoint
	return prevOut.Index == math.MaxUint32 && prevOut.Hash == chainhash.Hash{}
}

// VBytes returns the ceiling of tx's weight divided by 4, the
// denominator for sat/vB fee rates.
func VBytes(tx *wire.MsgTx) int64 {
	weight := int64(tx.SerializeSizeStripped()*3 + tx.SerializeSize())
	return (weight + 3) / 4
}

// Encode returns the canonical (witness-aware) serialization of tx,
// hex-encoded for storage.
func Encode(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// Decode parses the hex-encoded canonical form stored in the
// transactions table back into a wire.MsgTx.
func Decode(data string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode hex tx: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserialize tx: %w", err)
	}
	return tx, nil
}
