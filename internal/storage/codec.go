package storage

import (
	"encoding/binary"

	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// canonicalWriterLite/canonicalReaderLite are a small varint+length-
// prefixed codec for storage's own on-disk records (checkpoints,
// snapshots), which are not hash or signature preimages and so need
// only be self-consistent, not byte-for-byte canonical across
// implementations the way internal/ledger's codec must be.
type canonicalWriterLite struct {
	buf []byte
}

func (w *canonicalWriterLite) writeUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *canonicalWriterLite) write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *canonicalWriterLite) writeBytes(b []byte) {
	w.writeUvarint(uint64(len(b)))
	w.write(b)
}

func (w *canonicalWriterLite) writeString(s string) {
	w.writeBytes([]byte(s))
}

type canonicalReaderLite struct {
	b   []byte
	pos int
}

func (r *canonicalReaderLite) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.pos:])
	if n <= 0 {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated or invalid varint")
	}
	r.pos += n
	return v, nil
}

func (r *canonicalReaderLite) readFixed(n int) ([]byte, error) {
	if n > len(r.b)-r.pos {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated fixed-size field")
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *canonicalReaderLite) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	return r.readFixed(int(n))
}

func (r *canonicalReaderLite) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
