package utxo

import (
	"encoding/binary"
	"sort"

	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// Serialize renders the set's live entries as a deterministic byte blob
// for the state snapshot file, sorted by
// outpoint so two snapshots of the same logical set are byte-identical.
func (s *Set) Serialize() []byte {
	type kv struct {
		op Outpoint
		e  Entry
	}
	entries := make([]kv, 0, len(s.entries))
	for op, e := range s.entries {
		entries = append(entries, kv{op, e})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].op, entries[j].op
		for k := range a.TxID {
			if a.TxID[k] != b.TxID[k] {
				return a.TxID[k] < b.TxID[k]
			}
		}
		return a.Vout < b.Vout
	})

	var buf []byte
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(len(entries)))
	buf = append(buf, tmp[:]...)
	for _, kv := range entries {
		buf = append(buf, kv.op.TxID[:]...)
		binary.BigEndian.PutUint32(tmp[:4], kv.op.Vout)
		buf = append(buf, tmp[:4]...)
		buf = append(buf, boolByte(kv.e.IsCoinbase))
		addr := []byte(kv.e.Output.Address)
		binary.BigEndian.PutUint32(tmp[:4], uint32(len(addr)))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, addr...)
		amt := []byte(kv.e.Output.Amount.String())
		binary.BigEndian.PutUint32(tmp[:4], uint32(len(amt)))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, amt...)
	}
	return buf
}

// Deserialize reconstructs a Set from bytes produced by Serialize. The
// resulting set has an empty undo log: it is a fresh generation, not a
// continuation of whatever history produced the serialized bytes.
func Deserialize(b []byte) (*Set, error) {
	s := NewSet()
	if len(b) < 8 {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated UTXO snapshot")
	}
	n := binary.BigEndian.Uint64(b[:8])
	pos := 8
	for i := uint64(0); i < n; i++ {
		var op Outpoint
		if pos+32+4+1+4 > len(b) {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated UTXO entry header")
		}
		copy(op.TxID[:], b[pos:pos+32])
		pos += 32
		op.Vout = binary.BigEndian.Uint32(b[pos : pos+4])
		pos += 4
		isCoinbase := b[pos] != 0
		pos++
		addrLen := int(binary.BigEndian.Uint32(b[pos : pos+4]))
		pos += 4
		if pos+addrLen+4 > len(b) {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated UTXO address field")
		}
		address := string(b[pos : pos+addrLen])
		pos += addrLen
		amtLen := int(binary.BigEndian.Uint32(b[pos : pos+4]))
		pos += 4
		if pos+amtLen > len(b) {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated UTXO amount field")
		}
		amt, err := amount.Parse(string(b[pos : pos+amtLen]))
		if err != nil {
			return nil, err
		}
		pos += amtLen

		s.insert(op, Entry{Output: ledger.TxOutput{Address: address, Amount: amt}, IsCoinbase: isCoinbase})
	}
	if pos != len(b) {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "trailing bytes in UTXO snapshot")
	}
	return s, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
