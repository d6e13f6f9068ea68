package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// Checkpoint is a durable, periodically-written record of a confirmed
// block: height, block hash, a digest of the UTXO set at that height,
// total supply, and the checkpoint signatures attesting to it. The
// chain engine refuses any reorganization that would fork below the
// newest one.
type Checkpoint struct {
	Height      uint64
	BlockHash   ledger.BlockHash
	UTXODigest  [32]byte
	TotalSupply amount.Amount
	Signatures  [][]byte
}

func (s *Store) checkpointPath(height uint64) string {
	return filepath.Join(s.dataDir, checkpointsSubdir, fmt.Sprintf("%d.ckpt", height))
}

// encodeCheckpoint is a small fixed-order encoding, independent of the
// transaction/block canonical codec since a Checkpoint is not a hash or
// signature preimage for anything else.
func encodeCheckpoint(c *Checkpoint) []byte {
	var w canonicalWriterLite
	w.writeUvarint(c.Height)
	w.write(c.BlockHash[:])
	w.write(c.UTXODigest[:])
	w.writeString(c.TotalSupply.String())
	w.writeUvarint(uint64(len(c.Signatures)))
	for _, sig := range c.Signatures {
		w.writeBytes(sig)
	}
	return w.buf
}

func decodeCheckpoint(b []byte) (*Checkpoint, error) {
	r := canonicalReaderLite{b: b}
	c := &Checkpoint{}
	var err error
	if c.Height, err = r.readUvarint(); err != nil {
		return nil, err
	}
	blockHash, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(c.BlockHash[:], blockHash)
	digest, err := r.readFixed(32)
	if err != nil {
		return nil, err
	}
	copy(c.UTXODigest[:], digest)
	supplyStr, err := r.readString()
	if err != nil {
		return nil, err
	}
	if c.TotalSupply, err = amount.Parse(supplyStr); err != nil {
		return nil, err
	}
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	c.Signatures = make([][]byte, n)
	for i := range c.Signatures {
		if c.Signatures[i], err = r.readBytes(); err != nil {
			return nil, err
		}
	}
	if r.pos != len(r.b) {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "trailing bytes in checkpoint file")
	}
	return c, nil
}

// PutCheckpoint durably writes a checkpoint and records it as the
// latest. Checkpoints are immutable once written: this never
// overwrites an existing checkpoint file at the same height.
func (s *Store) PutCheckpoint(c *Checkpoint) error {
	path := s.checkpointPath(c.Height)
	if _, err := os.Stat(path); err == nil {
		return ledgererr.New(ledgererr.KindCheckpointViolation, "checkpoint at height %d already exists and is immutable", c.Height)
	}
	if err := writeFileAtomic(path, encodeCheckpoint(c)); err != nil {
		return err
	}
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], c.Height)
	if err := s.index.Put([]byte(latestCheckpointKey), heightBuf[:], nil); err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "recording latest checkpoint pointer")
	}
	if log != nil {
		log.Infof("wrote checkpoint at height %d", c.Height)
	}
	return nil
}

// LatestCheckpoint returns the newest checkpoint written, or ok=false
// if none has ever been written.
func (s *Store) LatestCheckpoint() (*Checkpoint, bool, error) {
	heightBuf, err := s.index.Get([]byte(latestCheckpointKey), nil)
	if err != nil {
		return nil, false, nil
	}
	height := binary.BigEndian.Uint64(heightBuf)
	raw, err := os.ReadFile(s.checkpointPath(height))
	if err != nil {
		return nil, false, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "reading latest checkpoint file at height %d", height)
	}
	c, err := decodeCheckpoint(raw)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// CheckpointAt reads the checkpoint at an exact height, if one exists.
func (s *Store) CheckpointAt(height uint64) (*Checkpoint, bool, error) {
	raw, err := os.ReadFile(s.checkpointPath(height))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "reading checkpoint file at height %d", height)
	}
	c, err := decodeCheckpoint(raw)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}
