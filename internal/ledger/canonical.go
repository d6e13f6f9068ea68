package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"strconv"

	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// canonicalWriter builds a deterministic byte sequence: no whitespace,
// every variable-length field length-prefixed with a canonical varint,
// every map emitted with lexicographically sorted keys, and every
// number emitted as unambiguous text — integers as minimal decimal
// strings, fixed-point amounts as 8-decimal strings. Varints appear
// only as framing (lengths and element counts), never as the
// representation of a numeric field. This is the single source of
// truth for every hash and signature preimage in the ledger.
type canonicalWriter struct {
	buf bytes.Buffer
}

func (w *canonicalWriter) writeUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

// writeUint/writeInt render a numeric field as its canonical decimal
// string, length-prefixed like any other string.
func (w *canonicalWriter) writeUint(v uint64) {
	w.writeString(strconv.FormatUint(v, 10))
}

func (w *canonicalWriter) writeInt(v int64) {
	w.writeString(strconv.FormatInt(v, 10))
}

func (w *canonicalWriter) writeBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *canonicalWriter) writeBytes(b []byte) {
	w.writeUvarint(uint64(len(b)))
	w.buf.Write(b)
}

func (w *canonicalWriter) writeString(s string) {
	w.writeBytes([]byte(s))
}

func (w *canonicalWriter) writeAmount(a amount.Amount) {
	w.writeString(a.String())
}

func (w *canonicalWriter) writeMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.writeUvarint(uint64(len(keys)))
	for _, k := range keys {
		w.writeString(k)
		w.writeString(m[k])
	}
}

// canonicalReader is the inverse of canonicalWriter. Any malformed or
// non-canonical input (truncated data, trailing bytes, unsorted map
// keys) is rejected with ledgererr.KindMalformedEncoding.
type canonicalReader struct {
	b   []byte
	pos int
}

func newCanonicalReader(b []byte) *canonicalReader {
	return &canonicalReader{b: b}
}

func (r *canonicalReader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.pos:])
	if n <= 0 {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated or invalid varint")
	}
	r.pos += n
	return v, nil
}

// readUint/readInt parse a decimal-text numeric field, accepting only
// the single canonical rendering of each value: no leading zeros, no
// sign on zero, no whitespace.
func (r *canonicalReader) readUint() (uint64, error) {
	s, err := r.readString()
	if err != nil {
		return 0, err
	}
	if !canonicalDigits(s) {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "non-canonical unsigned integer %q", s)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ledgererr.Wrap(ledgererr.KindMalformedEncoding, err, "unsigned integer %q out of range", s)
	}
	return v, nil
}

func (r *canonicalReader) readInt() (int64, error) {
	s, err := r.readString()
	if err != nil {
		return 0, err
	}
	digits := s
	if len(s) > 0 && s[0] == '-' {
		digits = s[1:]
		if digits == "0" {
			return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "non-canonical signed integer %q", s)
		}
	}
	if !canonicalDigits(digits) {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "non-canonical signed integer %q", s)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ledgererr.Wrap(ledgererr.KindMalformedEncoding, err, "signed integer %q out of range", s)
	}
	return v, nil
}

// canonicalDigits reports whether s is the minimal decimal rendering of
// a non-negative integer: at least one digit, only digits, and no
// leading zero unless the value is exactly "0".
func canonicalDigits(s string) bool {
	if s == "" {
		return false
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (r *canonicalReader) readBool() (bool, error) {
	if r.pos >= len(r.b) {
		return false, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated bool")
	}
	v := r.b[r.pos]
	r.pos++
	if v != 0 && v != 1 {
		return false, ledgererr.New(ledgererr.KindMalformedEncoding, "non-canonical bool byte %d", v)
	}
	return v == 1, nil
}

func (r *canonicalReader) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.b)-r.pos) {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "length prefix %d exceeds remaining input", n)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *canonicalReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *canonicalReader) readAmount() (amount.Amount, error) {
	s, err := r.readString()
	if err != nil {
		return 0, err
	}
	a, err := amount.Parse(s)
	if err != nil {
		return 0, err
	}
	if a.String() != s {
		return 0, ledgererr.New(ledgererr.KindMalformedEncoding, "non-canonical amount %q", s)
	}
	return a, nil
}

func (r *canonicalReader) readMap() (map[string]string, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	m := make(map[string]string, n)
	prevKey := ""
	for i := uint64(0); i < n; i++ {
		k, err := r.readString()
		if err != nil {
			return nil, err
		}
		v, err := r.readString()
		if err != nil {
			return nil, err
		}
		if i > 0 && k <= prevKey {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "map keys not in canonical sorted order")
		}
		prevKey = k
		m[k] = v
	}
	return m, nil
}

func (r *canonicalReader) finish() error {
	if r.pos != len(r.b) {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "%d trailing bytes after canonical decode", len(r.b)-r.pos)
	}
	return nil
}

// CanonicalTransactionBytes serializes tx deterministically. When
// includeSignature is false, the signature field is omitted entirely;
// that form is the preimage signed by the sender and verified against
// PublicKey. The TxID field is never emitted; it is derived from this
// encoding with includeSignature=true, never an input to it.
func CanonicalTransactionBytes(tx *Transaction, includeSignature bool) ([]byte, error) {
	if len(tx.Metadata) > 0 {
		var probe canonicalWriter
		probe.writeMap(tx.Metadata)
		if probe.buf.Len() > MaxMetadataBytes {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "metadata exceeds %d byte cap", MaxMetadataBytes)
		}
	}

	var w canonicalWriter
	w.writeString(tx.Sender)
	w.writeString(tx.Recipient)
	w.writeAmount(tx.Amount)
	w.writeAmount(tx.Fee)
	w.writeBytes(tx.PublicKey)
	w.writeString(string(tx.TxType))

	w.writeBool(tx.HasNonce)
	if tx.HasNonce {
		w.writeInt(tx.Nonce)
	}

	w.writeUvarint(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		w.buf.Write(in.PrevTxID[:])
		w.writeUint(uint64(in.PrevVout))
	}

	w.writeUvarint(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		w.writeString(out.Address)
		w.writeAmount(out.Amount)
	}

	w.writeBool(tx.RBFEnabled)
	w.writeBool(tx.ReplacesTxID != nil)
	if tx.ReplacesTxID != nil {
		w.buf.Write(tx.ReplacesTxID[:])
	}

	w.writeInt(tx.Timestamp)
	w.writeMap(tx.Metadata)

	w.writeBool(tx.Governance != nil)
	if tx.Governance != nil {
		w.writeString(tx.Governance.ProposalID)
		w.writeString(tx.Governance.Title)
		w.writeString(tx.Governance.Body)
		w.writeString(tx.Governance.Choice)
		w.writeBytes(tx.Governance.ExecutePayload)
	}

	w.writeBool(includeSignature)
	if includeSignature {
		w.writeBytes(tx.Signature)
	}

	return w.buf.Bytes(), nil
}

// SigningPreimage returns the bytes a sender signs and a verifier checks
// a signature against.
func (tx *Transaction) SigningPreimage() ([]byte, error) {
	return CanonicalTransactionBytes(tx, false)
}

// ComputeTxID derives the content hash that identifies tx, over the full
// canonical encoding (including the signature once present).
func (tx *Transaction) ComputeTxID() (TxID, error) {
	b, err := CanonicalTransactionBytes(tx, true)
	if err != nil {
		return TxID{}, err
	}
	return sha256.Sum256(b), nil
}

// DecodeTransaction is the inverse of CanonicalTransactionBytes(tx,
// true): it reconstructs a Transaction and populates TxID, rejecting any
// non-canonical input.
func DecodeTransaction(b []byte) (*Transaction, error) {
	if len(b) > MaxTxSize {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "encoded transaction exceeds %d bytes", MaxTxSize)
	}
	r := newCanonicalReader(b)
	tx := &Transaction{}

	var err error
	if tx.Sender, err = r.readString(); err != nil {
		return nil, err
	}
	if tx.Recipient, err = r.readString(); err != nil {
		return nil, err
	}
	if tx.Amount, err = r.readAmount(); err != nil {
		return nil, err
	}
	if tx.Fee, err = r.readAmount(); err != nil {
		return nil, err
	}
	if tx.PublicKey, err = r.readBytes(); err != nil {
		return nil, err
	}
	txType, err := r.readString()
	if err != nil {
		return nil, err
	}
	tx.TxType = TxType(txType)

	if tx.HasNonce, err = r.readBool(); err != nil {
		return nil, err
	}
	if tx.HasNonce {
		if tx.Nonce, err = r.readInt(); err != nil {
			return nil, err
		}
	}

	nIn, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if nIn > 0 {
		tx.Inputs = make([]TxInput, nIn)
	}
	for i := range tx.Inputs {
		raw, err := r.readFixed(32)
		if err != nil {
			return nil, err
		}
		copy(tx.Inputs[i].PrevTxID[:], raw)
		v, err := r.readUint()
		if err != nil {
			return nil, err
		}
		if v > math.MaxUint32 {
			return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "input vout %d out of range", v)
		}
		tx.Inputs[i].PrevVout = uint32(v)
	}

	nOut, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if nOut > 0 {
		tx.Outputs = make([]TxOutput, nOut)
	}
	for i := range tx.Outputs {
		if tx.Outputs[i].Address, err = r.readString(); err != nil {
			return nil, err
		}
		if tx.Outputs[i].Amount, err = r.readAmount(); err != nil {
			return nil, err
		}
	}

	if tx.RBFEnabled, err = r.readBool(); err != nil {
		return nil, err
	}
	hasReplaces, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if hasReplaces {
		raw, err := r.readFixed(32)
		if err != nil {
			return nil, err
		}
		var id TxID
		copy(id[:], raw)
		tx.ReplacesTxID = &id
	}

	if tx.Timestamp, err = r.readInt(); err != nil {
		return nil, err
	}

	if tx.Metadata, err = r.readMap(); err != nil {
		return nil, err
	}

	hasGov, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if hasGov {
		g := &GovernancePayload{}
		if g.ProposalID, err = r.readString(); err != nil {
			return nil, err
		}
		if g.Title, err = r.readString(); err != nil {
			return nil, err
		}
		if g.Body, err = r.readString(); err != nil {
			return nil, err
		}
		if g.Choice, err = r.readString(); err != nil {
			return nil, err
		}
		if g.ExecutePayload, err = r.readBytes(); err != nil {
			return nil, err
		}
		tx.Governance = g
	}

	hasSig, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if !hasSig {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "encoded transaction missing signature frame")
	}
	if tx.Signature, err = r.readBytes(); err != nil {
		return nil, err
	}

	if err := r.finish(); err != nil {
		return nil, err
	}

	txid, err := tx.ComputeTxID()
	if err != nil {
		return nil, err
	}
	tx.TxID = txid
	return tx, nil
}

func (r *canonicalReader) readFixed(n int) ([]byte, error) {
	if n > len(r.b)-r.pos {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "truncated fixed-size field")
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// CanonicalHeaderPreimage serializes a header's content fields in a fixed
// order, always excluding Hash (derived) and Signature (computed over
// the resulting hash, not embedded in its own preimage).
func CanonicalHeaderPreimage(h *BlockHeader) []byte {
	var w canonicalWriter
	w.writeUint(h.Index)
	w.buf.Write(h.PreviousHash[:])
	w.buf.Write(h.MerkleRoot[:])
	w.writeInt(h.Timestamp)
	w.writeUint(uint64(h.Difficulty))
	w.writeUint(h.Nonce)
	w.writeInt(int64(h.Version))
	w.writeBytes(h.MinerPubKey)
	return w.buf.Bytes()
}

// ComputeHeaderHash derives the header's content hash. Proof of work
// requires this hash to start with h.Difficulty leading hex-zero
// nibbles, and the header signature verifies the miner's key over this
// hash (not over the preimage bytes themselves).
func ComputeHeaderHash(h *BlockHeader) BlockHash {
	return sha256.Sum256(CanonicalHeaderPreimage(h))
}

// CanonicalBlockBytes serializes a full block: header bytes (including
// hash/signature, since by the time a block is persisted both are set)
// followed by its ordered transaction list.
func CanonicalBlockBytes(b *Block) ([]byte, error) {
	var w canonicalWriter
	w.buf.Write(CanonicalHeaderPreimage(&b.Header))
	w.buf.Write(b.Header.Hash[:])
	w.writeBytes(b.Header.Signature)

	w.writeUvarint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		txBytes, err := CanonicalTransactionBytes(tx, true)
		if err != nil {
			return nil, err
		}
		w.writeBytes(txBytes)
	}
	return w.buf.Bytes(), nil
}

// DecodeBlock is the inverse of CanonicalBlockBytes.
func DecodeBlock(b []byte) (*Block, error) {
	r := newCanonicalReader(b)
	h := BlockHeader{}

	var err error
	if h.Index, err = r.readUint(); err != nil {
		return nil, err
	}
	prevHash, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(h.PreviousHash[:], prevHash)
	merkle, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(h.MerkleRoot[:], merkle)
	if h.Timestamp, err = r.readInt(); err != nil {
		return nil, err
	}
	diff, err := r.readUint()
	if err != nil {
		return nil, err
	}
	if diff > math.MaxUint32 {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "difficulty %d out of range", diff)
	}
	h.Difficulty = uint32(diff)
	if h.Nonce, err = r.readUint(); err != nil {
		return nil, err
	}
	version, err := r.readInt()
	if err != nil {
		return nil, err
	}
	if version > math.MaxInt32 || version < math.MinInt32 {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "version %d out of range", version)
	}
	h.Version = int32(version)
	if h.MinerPubKey, err = r.readBytes(); err != nil {
		return nil, err
	}
	hash, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(h.Hash[:], hash)
	if h.Signature, err = r.readBytes(); err != nil {
		return nil, err
	}

	nTx, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, nTx)
	for i := range txs {
		txBytes, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	if err := r.finish(); err != nil {
		return nil, err
	}

	wantHash := ComputeHeaderHash(&h)
	if wantHash != h.Hash {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "decoded header hash does not match recomputed hash")
	}

	return &Block{Header: h, Transactions: txs}, nil
}
