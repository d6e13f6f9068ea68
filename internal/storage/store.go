// Package storage is the ledger's durable layer: one flat file per
// block named by height, a goleveldb-backed height/hash index, a
// checkpoint index, and snapshot files. Every write-then-publish step
// goes through a write-to-temp-then-rename so a crash mid-write never
// leaves a torn file where a reader expects a complete one.
package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.STOR)

const (
	blocksSubdir      = "blocks"
	checkpointsSubdir = "checkpoints"
	indexSubdir       = "index"
	snapshotFileName  = "snapshot.dat"

	hashToHeightPrefix  = "h2h:"
	heightToHashPrefix  = "h2b:"
	latestCheckpointKey = "latest_checkpoint"
)

// Store owns a data directory and every durable artifact beneath it:
// block files, the height/hash index, checkpoint files, and the state
// snapshot.
type Store struct {
	dataDir string
	index   *leveldb.DB
}

// Open opens (creating if absent) the store rooted at dataDir.
func Open(dataDir string) (*Store, error) {
	for _, sub := range []string{blocksSubdir, checkpointsSubdir, indexSubdir} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "creating data_dir subdirectory %s", sub)
		}
	}
	db, err := leveldb.OpenFile(filepath.Join(dataDir, indexSubdir), nil)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "opening height/hash index")
	}
	if log != nil {
		log.Infof("storage opened at %s", dataDir)
	}
	return &Store{dataDir: dataDir, index: db}, nil
}

// Close releases the index database handle.
func (s *Store) Close() error {
	if err := s.index.Close(); err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "closing height/hash index")
	}
	return nil
}

func (s *Store) blockPath(height uint64) string {
	return filepath.Join(s.dataDir, blocksSubdir, fmt.Sprintf("%d.blk", height))
}

// writeFileAtomic writes data to path via a temp file in the same
// directory followed by an atomic rename, so a reader never observes a
// partially written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "creating temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "writing temp file %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "fsyncing temp file %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "closing temp file %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "renaming temp file onto %s", path)
	}
	return nil
}

// PutBlock durably appends block at its header's height, fsyncs it,
// and publishes the height/hash index entries. The caller's commit step
// is responsible for ordering this call before the UTXO apply that
// follows it.
func (s *Store) PutBlock(block *ledger.Block) error {
	height := block.Header.Index
	encoded, err := ledger.CanonicalBlockBytes(block)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.blockPath(height), encoded); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(heightKey(height), block.Header.Hash[:])
	batch.Put(hashKey(block.Header.Hash), heightBytes(height))
	if err := s.index.Write(batch, nil); err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "publishing height/hash index for height %d", height)
	}
	if log != nil {
		log.Debugf("persisted block at height %d hash %x", height, block.Header.Hash)
	}
	return nil
}

// GetBlock reads and decodes the block at height.
func (s *Store) GetBlock(height uint64) (*ledger.Block, error) {
	raw, err := os.ReadFile(s.blockPath(height))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ledgererr.New(ledgererr.KindUnknownParent, "no block stored at height %d", height)
		}
		return nil, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "reading block file at height %d", height)
	}
	return ledger.DecodeBlock(raw)
}

// DeleteBlock removes the block file and index entries at height,
// called when a reorg leaves the height above the surviving tip.
func (s *Store) DeleteBlock(height uint64) error {
	hashBytes, err := s.index.Get(heightKey(height), nil)
	if err == nil {
		batch := new(leveldb.Batch)
		batch.Delete(heightKey(height))
		var h ledger.BlockHash
		copy(h[:], hashBytes)
		batch.Delete(hashKey(h))
		if err := s.index.Write(batch, nil); err != nil {
			return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "removing index entries for height %d", height)
		}
	}
	if err := os.Remove(s.blockPath(height)); err != nil && !os.IsNotExist(err) {
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "removing block file at height %d", height)
	}
	return nil
}

// DeleteHashMapping removes only the hash-to-height index entry for
// hash, used when a reorg overwrites a height with a different block
// and the replaced block's hash must stop resolving.
func (s *Store) DeleteHashMapping(hash ledger.BlockHash) error {
	if err := s.index.Delete(hashKey(hash), nil); err != nil {
		return ledgererr.Wrap(ledgererr.KindStorageFailure, err, "removing hash mapping %x", hash)
	}
	return nil
}

// HeightForHash resolves a block hash to its stored height.
func (s *Store) HeightForHash(hash ledger.BlockHash) (uint64, bool, error) {
	v, err := s.index.Get(hashKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "looking up height for hash %x", hash)
	}
	return binary.BigEndian.Uint64(v), true, nil
}

// HashForHeight resolves a stored height to its block hash.
func (s *Store) HashForHeight(height uint64) (ledger.BlockHash, bool, error) {
	v, err := s.index.Get(heightKey(height), nil)
	if err == leveldb.ErrNotFound {
		return ledger.BlockHash{}, false, nil
	}
	if err != nil {
		return ledger.BlockHash{}, false, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "looking up hash for height %d", height)
	}
	var h ledger.BlockHash
	copy(h[:], v)
	return h, true, nil
}

// HighestStoredHeight scans the index for the greatest height with a
// stored block, used on startup to resume from the last persisted tip.
func (s *Store) HighestStoredHeight() (uint64, bool, error) {
	iter := s.index.NewIterator(util.BytesPrefix([]byte(heightToHashPrefix)), nil)
	defer iter.Release()
	found := false
	var best uint64
	for iter.Next() {
		h := binary.BigEndian.Uint64(iter.Key()[len(heightToHashPrefix):])
		if !found || h > best {
			best = h
			found = true
		}
	}
	if err := iter.Error(); err != nil {
		return 0, false, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "scanning height index")
	}
	return best, found, nil
}

func heightKey(height uint64) []byte {
	return append([]byte(heightToHashPrefix), heightBytes(height)...)
}

func hashKey(hash ledger.BlockHash) []byte {
	return append([]byte(hashToHeightPrefix), hash[:]...)
}

func heightBytes(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return b[:]
}
