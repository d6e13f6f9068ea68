package storage

import (
	"testing"

	"github.com/xai-blockchain/xai-sub013/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBlock(height uint64) *ledger.Block {
	h := ledger.BlockHeader{
		Index:      height,
		Difficulty: 0,
		Version:    1,
	}
	ledger.FinalizeHeaderHash(&h)
	return &ledger.Block{Header: h}
}

func TestPutGetBlockRoundTrip(t *testing.T) {
	s := newTestStore(t)
	block := sampleBlock(5)

	if err := s.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, err := s.GetBlock(5)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Header.Hash != block.Header.Hash {
		t.Errorf("GetBlock: hash mismatch got %x want %x", got.Header.Hash, block.Header.Hash)
	}

	height, ok, err := s.HeightForHash(block.Header.Hash)
	if err != nil {
		t.Fatalf("HeightForHash: %v", err)
	}
	if !ok || height != 5 {
		t.Errorf("HeightForHash: got (%d, %v), want (5, true)", height, ok)
	}

	hash, ok, err := s.HashForHeight(5)
	if err != nil {
		t.Fatalf("HashForHeight: %v", err)
	}
	if !ok || hash != block.Header.Hash {
		t.Errorf("HashForHeight: got (%x, %v), want (%x, true)", hash, ok, block.Header.Hash)
	}
}

func TestGetBlockMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetBlock(99); err == nil {
		t.Errorf("GetBlock: expected error for missing height, got nil")
	}
}

func TestDeleteBlockRemovesIndexAndFile(t *testing.T) {
	s := newTestStore(t)
	block := sampleBlock(1)
	if err := s.PutBlock(block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := s.DeleteBlock(1); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if _, err := s.GetBlock(1); err == nil {
		t.Errorf("GetBlock: expected error after DeleteBlock, got nil")
	}
	if _, ok, err := s.HashForHeight(1); err != nil || ok {
		t.Errorf("HashForHeight after delete: got ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestHighestStoredHeight(t *testing.T) {
	s := newTestStore(t)
	for _, h := range []uint64{0, 1, 2, 5} {
		if err := s.PutBlock(sampleBlock(h)); err != nil {
			t.Fatalf("PutBlock(%d): %v", h, err)
		}
	}
	best, found, err := s.HighestStoredHeight()
	if err != nil {
		t.Fatalf("HighestStoredHeight: %v", err)
	}
	if !found || best != 5 {
		t.Errorf("HighestStoredHeight: got (%d, %v), want (5, true)", best, found)
	}
}

func TestCheckpointImmutable(t *testing.T) {
	s := newTestStore(t)
	c := &Checkpoint{Height: 10, BlockHash: ledger.BlockHash{1}, TotalSupply: 0}

	if err := s.PutCheckpoint(c); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}
	if err := s.PutCheckpoint(c); err == nil {
		t.Errorf("PutCheckpoint: expected error writing over an existing checkpoint, got nil")
	}

	got, ok, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if !ok || got.Height != 10 {
		t.Errorf("LatestCheckpoint: got (%+v, %v), want height 10", got, ok)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	sections := SnapshotSections{
		UTXOSet:         []byte("utxo-bytes"),
		PendingTxs:      []byte("pending-bytes"),
		GovernanceState: []byte("gov-bytes"),
		Receipts:        []byte("receipts-bytes"),
	}
	if err := s.WriteSnapshot(sections); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, ok, err := s.ReadSnapshot()
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !ok {
		t.Fatalf("ReadSnapshot: expected ok=true")
	}
	if string(got.UTXOSet) != "utxo-bytes" || string(got.PendingTxs) != "pending-bytes" {
		t.Errorf("ReadSnapshot: got %+v", got)
	}
}

func TestReadSnapshotMissingIsNotError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.ReadSnapshot()
	if err != nil {
		t.Fatalf("ReadSnapshot on fresh store: %v", err)
	}
	if ok {
		t.Errorf("ReadSnapshot on fresh store: expected ok=false")
	}
}
