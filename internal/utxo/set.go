// Package utxo implements the ledger's accounting record: a set of
// unspent transaction outputs keyed by (txid, vout), with a per-address
// balance index and a generation-indexed undo log standing in for
// copy-on-write snapshots. Because the chain is linear with one live
// tip at a time, rollback needs no diff-of-diffs structure; an undo log
// that Snapshot and Restore walk covers it.
package utxo

import (
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.UTXO)

// Outpoint identifies a single output of a transaction.
type Outpoint struct {
	TxID ledger.TxID
	Vout uint32
}

// Entry is a live UTXO: the output it pays, plus whether it originated
// from a coinbase (coinbase outputs may carry maturity rules a future
// extension could add; recorded now so that hook exists).
type Entry struct {
	Output     ledger.TxOutput
	IsCoinbase bool
}

type undoKind uint8

const (
	undoAdd undoKind = iota
	undoRemove
)

type undoRecord struct {
	kind     undoKind
	outpoint Outpoint
	entry    Entry // the entry added (undoAdd) or removed (undoRemove)
}

// Set is the live UTXO set plus its undo log and balance index.
type Set struct {
	entries map[Outpoint]Entry
	balance map[string]amount.Amount
	undo    []undoRecord
}

// NewSet returns an empty UTXO set, e.g. for a fresh chain at genesis.
func NewSet() *Set {
	return &Set{
		entries: make(map[Outpoint]Entry),
		balance: make(map[string]amount.Amount),
	}
}

// Get looks up a live UTXO.
func (s *Set) Get(op Outpoint) (Entry, bool) {
	e, ok := s.entries[op]
	return e, ok
}

// Contains reports whether op is currently a live UTXO.
func (s *Set) Contains(op Outpoint) bool {
	_, ok := s.entries[op]
	return ok
}

func (s *Set) insert(op Outpoint, e Entry) {
	s.entries[op] = e
	bal := s.balance[e.Output.Address]
	bal += e.Output.Amount
	s.balance[e.Output.Address] = bal
}

func (s *Set) deleteEntry(op Outpoint, e Entry) {
	delete(s.entries, op)
	bal := s.balance[e.Output.Address]
	bal -= e.Output.Amount
	s.balance[e.Output.Address] = bal
}

// ApplyOutputs inserts every output of tx as a new live UTXO.
func (s *Set) ApplyOutputs(tx *ledger.Transaction) {
	isCoinbase := tx.TxType == ledger.TxTypeCoinbase
	for i, out := range tx.Outputs {
		op := Outpoint{TxID: tx.TxID, Vout: uint32(i)}
		entry := Entry{Output: out, IsCoinbase: isCoinbase}
		s.insert(op, entry)
		s.undo = append(s.undo, undoRecord{kind: undoAdd, outpoint: op, entry: entry})
	}
}

// ApplyInputs consumes every input of tx, removing the referenced UTXO.
// An input that is already absent is a DoubleSpend, not a silent
// no-op.
func (s *Set) ApplyInputs(tx *ledger.Transaction) error {
	type removal struct {
		op    Outpoint
		entry Entry
	}
	removals := make([]removal, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		op := Outpoint{TxID: in.PrevTxID, Vout: in.PrevVout}
		entry, ok := s.entries[op]
		if !ok {
			return ledgererr.New(ledgererr.KindDoubleSpend, "input %x:%d is not a live UTXO", in.PrevTxID, in.PrevVout)
		}
		removals = append(removals, removal{op: op, entry: entry})
	}
	for _, r := range removals {
		s.deleteEntry(r.op, r.entry)
		s.undo = append(s.undo, undoRecord{kind: undoRemove, outpoint: r.op, entry: r.entry})
	}
	return nil
}

// ApplyTransaction is the common case: consume inputs then create
// outputs, for one transaction within a block being applied.
func (s *Set) ApplyTransaction(tx *ledger.Transaction) error {
	if len(tx.Inputs) > 0 {
		if err := s.ApplyInputs(tx); err != nil {
			return err
		}
	}
	s.ApplyOutputs(tx)
	return nil
}

// Snapshot returns an opaque token identifying the set's current
// generation. Restore(token) cheaply reverts to this point by walking
// the undo log rather than copying the set.
func (s *Set) Snapshot() int {
	return len(s.undo)
}

// Restore reverts the set to the generation identified by token,
// replaying the undo log backwards. token must have come from a prior
// Snapshot call on this same Set.
func (s *Set) Restore(token int) error {
	if token < 0 || token > len(s.undo) {
		return ledgererr.New(ledgererr.KindStorageFailure, "invalid UTXO snapshot token %d", token)
	}
	for i := len(s.undo) - 1; i >= token; i-- {
		rec := s.undo[i]
		switch rec.kind {
		case undoAdd:
			s.deleteEntry(rec.outpoint, rec.entry)
		case undoRemove:
			s.insert(rec.outpoint, rec.entry)
		}
	}
	s.undo = s.undo[:token]
	if log != nil {
		log.Debugf("restored UTXO set to generation %d", token)
	}
	return nil
}

// Balance returns the sum of live UTXO amounts paid to address.
func (s *Set) Balance(address string) amount.Amount {
	return s.balance[address]
}

// ConsistencyReport summarizes the structural invariant check
// VerifyConsistency performs.
type ConsistencyReport struct {
	EntryCount       int
	TotalSupply      amount.Amount
	BalanceIndexOK   bool
	NegativeBalances []string
}

// VerifyConsistency recomputes the balance index from the primary map
// and compares it against the maintained index, used after
// load-from-disk and after a reorg commit.
func (s *Set) VerifyConsistency() ConsistencyReport {
	recomputed := make(map[string]amount.Amount, len(s.balance))
	var total amount.Amount
	for _, e := range s.entries {
		recomputed[e.Output.Address] += e.Output.Amount
		total += e.Output.Amount
	}
	ok := len(recomputed) == len(s.balance)
	if ok {
		for addr, bal := range recomputed {
			if s.balance[addr] != bal {
				ok = false
				break
			}
		}
	}
	var negative []string
	for addr, bal := range s.balance {
		if bal < 0 {
			negative = append(negative, addr)
		}
	}
	return ConsistencyReport{
		EntryCount:       len(s.entries),
		TotalSupply:      total,
		BalanceIndexOK:   ok,
		NegativeBalances: negative,
	}
}

// Clone deep-copies the set, used when the caller needs an isolated
// working copy (e.g. the miner's hypothetical in-block validation)
// rather than an undo-log rollback on the live set.
func (s *Set) Clone() *Set {
	clone := &Set{
		entries: make(map[Outpoint]Entry, len(s.entries)),
		balance: make(map[string]amount.Amount, len(s.balance)),
	}
	for k, v := range s.entries {
		clone.entries[k] = v
	}
	for k, v := range s.balance {
		clone.balance[k] = v
	}
	return clone
}
