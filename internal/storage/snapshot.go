package storage

import (
	"os"
	"path/filepath"

	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// SnapshotSections holds the opaque serialized payload each subsystem
// contributes to the single state snapshot file: the UTXO set, the
// pending mempool, governance state, and receipts. Storage never
// interprets these bytes; each subsystem owns its own serialization,
// which keeps this package free of a dependency on any of them.
// Governance proposal/vote state is the node's only persistent
// contract-like state, so it fills the contract section.
type SnapshotSections struct {
	UTXOSet         []byte
	PendingTxs      []byte
	GovernanceState []byte
	Receipts        []byte
}

func encodeSnapshot(s SnapshotSections) []byte {
	var w canonicalWriterLite
	w.writeBytes(s.UTXOSet)
	w.writeBytes(s.PendingTxs)
	w.writeBytes(s.GovernanceState)
	w.writeBytes(s.Receipts)
	return w.buf
}

func decodeSnapshot(b []byte) (SnapshotSections, error) {
	r := canonicalReaderLite{b: b}
	var s SnapshotSections
	var err error
	if s.UTXOSet, err = r.readBytes(); err != nil {
		return s, err
	}
	if s.PendingTxs, err = r.readBytes(); err != nil {
		return s, err
	}
	if s.GovernanceState, err = r.readBytes(); err != nil {
		return s, err
	}
	if s.Receipts, err = r.readBytes(); err != nil {
		return s, err
	}
	if r.pos != len(r.b) {
		return s, ledgererr.New(ledgererr.KindMalformedEncoding, "trailing bytes in snapshot file")
	}
	return s, nil
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.dataDir, snapshotFileName)
}

// WriteSnapshot durably overwrites the single state snapshot file via
// write-to-temp-then-rename, so a concurrent reader or a crash
// mid-write never observes a torn snapshot.
func (s *Store) WriteSnapshot(sections SnapshotSections) error {
	if err := writeFileAtomic(s.snapshotPath(), encodeSnapshot(sections)); err != nil {
		return err
	}
	if log != nil {
		log.Debugf("wrote state snapshot (%d bytes utxo, %d bytes mempool)", len(sections.UTXOSet), len(sections.PendingTxs))
	}
	return nil
}

// ReadSnapshot loads the most recently written state snapshot, or
// ok=false if none has been written yet (a fresh data_dir).
func (s *Store) ReadSnapshot() (SnapshotSections, bool, error) {
	raw, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return SnapshotSections{}, false, nil
		}
		return SnapshotSections{}, false, ledgererr.Wrap(ledgererr.KindStorageFailure, err, "reading state snapshot")
	}
	sections, err := decodeSnapshot(raw)
	if err != nil {
		return SnapshotSections{}, false, err
	}
	return sections, true, nil
}
