package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"
)

// InputsHash computes the identity used to link RBF replacements that
// spend the same outpoint set in the same order: SHA-256 over the
// concatenated canonical encoding of every input, in order. The
// encoding is self-delimiting (no outer length prefix is needed) and
// deliberately excludes each input's witness stack, so two
// transactions that spend the same inputs and differ only in witness
// data (for example a re-signed segwit input) hash identically. The
// signature script is part of the hash: inputs whose scriptSig differs
// produce a different inputs-hash.
func InputsHash(inputs []*wire.TxIn) [32]byte {
	h := sha256.New()
	for _, in := range inputs {
		h.Write(in.PreviousOutPoint.Hash[:])

		var idx [4]byte
		binary.LittleEndian.PutUint32(idx[:], in.PreviousOutPoint.Index)
		h.Write(idx[:])

		h.Write(encodeVarInt(uint64(len(in.SignatureScript))))
		h.Write(in.SignatureScript)

		var seq [4]byte
		binary.LittleEndian.PutUint32(seq[:], in.Sequence)
		h.Write(seq[:])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// encodeVarInt mirrors Bitcoin's CompactSize encoding so the script
// length prefix is byte-identical to what the wire protocol itself
// would produce, keeping the hash self-delimiting without needing an
// outer length field.
func encodeVarInt(v uint64) []byte {
	switch {
	case v < 0xfd:
		return []byte{byte(v)}
	case v <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(v))
		return b
	case v <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(v))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], v)
		return b
	}
}

// InputsHashHex is the hex-encoded form stored as the transactions
// table's primary key.
func InputsHashHex(inputs []*wire.TxIn) string {
	sum := InputsHash(inputs)
	return hex.EncodeToString(sum[:])
}
