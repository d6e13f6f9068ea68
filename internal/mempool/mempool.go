// Package mempool holds unconfirmed transactions awaiting a block,
// ordered by fee-rate with replace-by-fee and per-sender nonce
// sequencing. The pool never holds orphans: admission requires the full
// validation pipeline, including the coverage check against confirmed
// UTXOs, to pass before a transaction enters the pool at all, so there
// is no orphan dependency graph to maintain. A transaction whose inputs
// are not yet confirmed is simply rejected, not parked.
package mempool

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
	"github.com/xai-blockchain/xai-sub013/internal/validator"
)

var log, _ = logger.Get(logger.SubsystemTags.MEMP)

// Entry is a transaction held in the pool plus the metadata its
// ordering depends on.
type Entry struct {
	Tx      *ledger.Transaction
	FeeRate float64 // fee per serialized byte, descending sort key
	Size    int
	Arrival int64 // monotonic arrival counter, ascending tie-break
}

type prioItem struct {
	txid    ledger.TxID
	feeRate float64
	arrival int64
	index   int
}

// prioQueue is a max-heap by feeRate, ties broken by earlier
// arrival.
type prioQueue []*prioItem

func (pq prioQueue) Len() int { return len(pq) }

func (pq prioQueue) Less(i, j int) bool {
	if pq[i].feeRate != pq[j].feeRate {
		return pq[i].feeRate > pq[j].feeRate
	}
	return pq[i].arrival < pq[j].arrival
}

func (pq prioQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *prioQueue) Push(x interface{}) {
	item := x.(*prioItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *prioQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// Pool is the mempool: a fee-ordered admission set with RBF and a size
// cap. Exported methods take the pool's lock; a caller composing
// several mempool, UTXO, and nonce-tracker steps into one atomic
// operation holds the lock itself via Lock/Unlock and uses the *Locked
// variants, since sync.Mutex has no re-entrant form.
type Pool struct {
	mu sync.Mutex

	entries map[ledger.TxID]*Entry
	items   map[ledger.TxID]*prioItem
	queue   prioQueue

	// bySender maps sender -> nonce -> txid, for RBF/NonceConflict
	// detection and for per-sender nonce-ordered iteration.
	bySender map[string]map[int64]ledger.TxID

	// outpoints maps each input consumed by a pooled transaction to the
	// transaction claiming it, so two pooled transactions can never
	// spend the same output: the second submission is rejected as a
	// double spend at admission, before a miner could ever pick both.
	outpoints map[ledger.TxInput]ledger.TxID

	maxSize           int
	minRBFBumpPercent int
	nextArrival       int64
}

// New returns an empty pool capped at maxSize transactions.
// minRBFBumpPercent is the minimum fee-rate improvement, in percent, a
// replacement must carry over the transaction it displaces.
func New(maxSize int, minRBFBumpPercent int) *Pool {
	return &Pool{
		entries:           make(map[ledger.TxID]*Entry),
		items:             make(map[ledger.TxID]*prioItem),
		bySender:          make(map[string]map[int64]ledger.TxID),
		outpoints:         make(map[ledger.TxInput]ledger.TxID),
		maxSize:           maxSize,
		minRBFBumpPercent: minRBFBumpPercent,
	}
}

// Lock/Unlock expose the pool's mutex so a caller can compose an admit
// + UTXO double-spend check + insert as one atomic step.
func (p *Pool) Lock()   { p.mu.Lock() }
func (p *Pool) Unlock() { p.mu.Unlock() }

func feeRate(tx *ledger.Transaction, size int) float64 {
	if size == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(size)
}

// Admit runs vctx.Validate(tx) and, if it passes, inserts tx into the
// pool honoring the RBF and eviction rules. Callers already holding the
// pool's lock should call AdmitLocked instead.
func (p *Pool) Admit(vctx *validator.Context, tx *ledger.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AdmitLocked(vctx, tx)
}

// AdmitLocked is Admit's lock-free core, for callers that already hold
// the pool's lock as part of a larger atomic operation.
func (p *Pool) AdmitLocked(vctx *validator.Context, tx *ledger.Transaction) error {
	// Bind the validator's pending-nonce view to this pool so a sender
	// can queue contiguous nonces and duplicates fall through to the
	// RBF decision below. Safe without further locking: the pool's lock
	// is already held for the whole admission.
	bound := *vctx
	bound.PendingNonce = func(sender string, nonce int64) bool {
		_, ok := p.bySender[sender][nonce]
		return ok
	}
	if err := bound.Validate(tx); err != nil {
		return err
	}

	encoded, err := ledger.CanonicalTransactionBytes(tx, true)
	if err != nil {
		return err
	}
	size := len(encoded)
	rate := feeRate(tx, size)

	var incumbentID ledger.TxID
	if existingID, exists := p.bySender[tx.Sender][tx.Nonce]; exists {
		if existingID == tx.TxID {
			return nil // already admitted, idempotent re-submission
		}
		incumbent := p.entries[existingID]
		if !incumbent.Tx.RBFEnabled {
			return ledgererr.New(ledgererr.KindNonceConflict, "sender %s nonce %d already pending and not RBF-eligible", tx.Sender, tx.Nonce)
		}
		minBump := incumbent.FeeRate * (1 + float64(p.minRBFBumpPercent)/100)
		if rate < minBump {
			return ledgererr.New(ledgererr.KindNonceConflict, "replacement fee-rate %.8f does not exceed incumbent %.8f by required %d%% bump", rate, incumbent.FeeRate, p.minRBFBumpPercent)
		}
		incumbentID = existingID
	}

	// An input claimed by any pooled transaction other than the RBF
	// incumbent being displaced is a double spend. Checked before the
	// incumbent is removed so a failed admission leaves the pool
	// untouched.
	for _, in := range tx.Inputs {
		if claimant, ok := p.outpoints[in]; ok && claimant != incumbentID {
			return ledgererr.New(ledgererr.KindDoubleSpend, "input %x:%d already claimed by pooled tx %x", in.PrevTxID, in.PrevVout, claimant)
		}
	}

	if incumbentID != (ledger.TxID{}) {
		p.removeLocked(incumbentID)
	}

	if len(p.entries) >= p.maxSize {
		evictID, ok := p.lowestFeeRateBelow(rate)
		if !ok {
			return ledgererr.New(ledgererr.KindFeeTooLow, "mempool full and tx fee-rate %.8f does not exceed any evictable entry", rate)
		}
		p.removeLocked(evictID)
	}

	item := &prioItem{txid: tx.TxID, feeRate: rate, arrival: p.nextArrival}
	p.nextArrival++
	heap.Push(&p.queue, item)
	p.items[tx.TxID] = item
	p.entries[tx.TxID] = &Entry{Tx: tx, FeeRate: rate, Size: size, Arrival: item.arrival}
	if p.bySender[tx.Sender] == nil {
		p.bySender[tx.Sender] = make(map[int64]ledger.TxID)
	}
	p.bySender[tx.Sender][tx.Nonce] = tx.TxID
	for _, in := range tx.Inputs {
		p.outpoints[in] = tx.TxID
	}

	if log != nil {
		log.Debugf("admitted tx %x sender %s nonce %d fee-rate %.8f", tx.TxID, tx.Sender, tx.Nonce, rate)
	}
	return nil
}

func (p *Pool) lowestFeeRateBelow(rate float64) (ledger.TxID, bool) {
	var worstID ledger.TxID
	worstRate := rate
	found := false
	for id, e := range p.entries {
		if e.FeeRate < worstRate {
			worstRate = e.FeeRate
			worstID = id
			found = true
		}
	}
	return worstID, found
}

// Remove deletes txid from the pool, a no-op if absent.
func (p *Pool) Remove(txid ledger.TxID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txid)
}

func (p *Pool) removeLocked(txid ledger.TxID) {
	entry, ok := p.entries[txid]
	if !ok {
		return
	}
	if item, ok := p.items[txid]; ok {
		heap.Remove(&p.queue, item.index)
		delete(p.items, txid)
	}
	delete(p.entries, txid)
	for _, in := range entry.Tx.Inputs {
		if p.outpoints[in] == txid {
			delete(p.outpoints, in)
		}
	}
	if bySender, ok := p.bySender[entry.Tx.Sender]; ok {
		if bySender[entry.Tx.Nonce] == txid {
			delete(bySender, entry.Tx.Nonce)
		}
		if len(bySender) == 0 {
			delete(p.bySender, entry.Tx.Sender)
		}
	}
}

// Get returns the pooled transaction for txid, if present.
func (p *Pool) Get(txid ledger.TxID) (*ledger.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[txid]
	if !ok {
		return nil, false
	}
	return e.Tx, true
}

// Len reports the number of transactions currently pooled.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Snapshot returns every currently pooled transaction, for callers
// that need to revalidate the whole pool against new state (post-reorg
// revalidation, state snapshot persistence).
func (p *Pool) Snapshot() []*ledger.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*ledger.Transaction, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Tx)
	}
	return out
}

// Entries returns every pooled entry ordered by fee-rate descending,
// arrival ascending, the order a miner would drain them in.
func (p *Pool) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FeeRate != out[j].FeeRate {
			return out[i].FeeRate > out[j].FeeRate
		}
		return out[i].Arrival < out[j].Arrival
	})
	return out
}

// Clear empties the pool, used immediately before a post-reorg
// revalidation pass re-admits only the transactions that still pass.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[ledger.TxID]*Entry)
	p.items = make(map[ledger.TxID]*prioItem)
	p.queue = nil
	p.bySender = make(map[string]map[int64]ledger.TxID)
	p.outpoints = make(map[ledger.TxInput]ledger.TxID)
}

// IterTop returns up to k candidates ordered by fee-rate descending,
// honoring per-sender nonce order: a transaction is only selected once
// every earlier nonce from the same sender (confirmed or already
// selected this call) has been accounted for. getConfirmed supplies
// each sender's last confirmed nonce (noncetracker.Tracker.Get).
func (p *Pool) IterTop(k int, getConfirmed func(sender string) int64) []*ledger.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]*prioItem, len(p.queue))
	copy(candidates, p.queue)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].feeRate != candidates[j].feeRate {
			return candidates[i].feeRate > candidates[j].feeRate
		}
		return candidates[i].arrival < candidates[j].arrival
	})

	nextExpected := make(map[string]int64)
	selected := make([]*ledger.Transaction, 0, k)

	for len(selected) < k {
		progressed := false
		for _, item := range candidates {
			if len(selected) >= k {
				break
			}
			entry, ok := p.entries[item.txid]
			if !ok {
				continue
			}
			sender := entry.Tx.Sender
			next, seen := nextExpected[sender]
			if !seen {
				next = getConfirmed(sender) + 1
			}
			if entry.Tx.Nonce != next {
				continue
			}
			selected = append(selected, entry.Tx)
			nextExpected[sender] = next + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return selected
}
