package store

import "github.com/btcsuite/btcd/wire"

// PruneWitnesses returns a deep copy of tx with every input's
// witness stack cleared; tx itself is left unchanged. Outputs and signature scripts are untouched;
// this is the storage-compaction step applied only on the transition
// to "mined" (spec: "large witness pruning").
func PruneWitnesses(tx *wire.MsgTx) *wire.MsgTx {
	pruned := tx.Copy()
	for _, in := range pruned.TxIn {
		in.Witness = nil
	}
	return pruned
}
