package mempool

import (
	"encoding/binary"

	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// Serialize renders txs (typically Pool.Snapshot()'s output) as
// length-prefixed canonical transaction bytes, for the state snapshot
// file's pending-transactions section. Each entry is re-derived
// from internal/ledger's canonical codec rather than this package's own
// Entry struct, so a restart always restores exactly what a fresh
// AdmitLocked call would have produced.
func Serialize(txs []*ledger.Transaction) ([]byte, error) {
	var buf []byte
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(txs)))
	buf = append(buf, tmp[:]...)
	for _, tx := range txs {
		encoded, err := ledger.CanonicalTransactionBytes(tx, true)
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(tmp[:], uint32(len(encoded)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, encoded...)
	}
	return buf, nil
}

// DeserializeTransactions decodes a pending_txs blob produced by
// Serialize back into its transactions, for startup recovery. Callers
// re-admit each one through Pool.Admit rather than
// inserting it directly, since a transaction pooled before a crash may
// no longer validate against the state it is restored into.
func DeserializeTransactions(b []byte) ([]*ledger.Transaction, error) {
	if len(b) < 4 {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated mempool snapshot")
	}
	n := binary.BigEndian.Uint32(b[:4])
	pos := 4
	out := make([]*ledger.Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		if pos+4 > len(b) {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated mempool entry header")
		}
		size := int(binary.BigEndian.Uint32(b[pos : pos+4]))
		pos += 4
		if pos+size > len(b) {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated mempool entry body")
		}
		tx, err := ledger.DecodeTransaction(b[pos : pos+size])
		if err != nil {
			return nil, err
		}
		pos += size
		out = append(out, tx)
	}
	if pos != len(b) {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "trailing bytes in mempool snapshot")
	}
	return out, nil
}
