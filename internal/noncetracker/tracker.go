// Package noncetracker maintains, per sender, the last confirmed nonce
// plus any nonces reserved in-flight during block assembly. The only
// dependency a nonce has is its predecessor, so the bookkeeping is a
// single linear chain per sender rather than a general dependency
// graph.
package noncetracker

import (
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// NoNonce is the sentinel "last confirmed nonce" for a sender who has
// never had a confirmed transaction.
const NoNonce int64 = -1

// Tracker holds confirmed nonces and the reservations made while
// assembling a block.
type Tracker struct {
	confirmed   map[string]int64
	reservation map[string]map[int64]bool
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		confirmed:   make(map[string]int64),
		reservation: make(map[string]map[int64]bool),
	}
}

// Get returns sender's last confirmed nonce, or NoNonce if it has never
// confirmed a transaction.
func (t *Tracker) Get(sender string) int64 {
	if n, ok := t.confirmed[sender]; ok {
		return n
	}
	return NoNonce
}

// NextExpected is the nonce admission requires for sender's next
// transaction: confirmed+1, or the next value after the highest
// contiguous in-flight reservation if any are already held.
func (t *Tracker) NextExpected(sender string) int64 {
	next := t.Get(sender) + 1
	reserved := t.reservation[sender]
	for {
		if reserved == nil || !reserved[next] {
			return next
		}
		next++
	}
}

// Reserve marks n as in-flight for sender during block assembly. It
// does not itself check contiguity; callers are expected to have
// already checked NextExpected before assembling a candidate list.
func (t *Tracker) Reserve(sender string, n int64) {
	if t.reservation[sender] == nil {
		t.reservation[sender] = make(map[int64]bool)
	}
	t.reservation[sender][n] = true
}

// IsReserved reports whether n is currently reserved for sender.
func (t *Tracker) IsReserved(sender string, n int64) bool {
	return t.reservation[sender][n]
}

// Commit makes n the new confirmed nonce for sender. It must only be
// called after the block carrying the corresponding transaction is
// durably persisted. It also clears the reservation for n, since it is
// no longer in-flight.
func (t *Tracker) Commit(sender string, n int64) error {
	if n != t.Get(sender)+1 {
		return ledgererr.New(ledgererr.KindNonceGap, "cannot commit nonce %d for sender %s: expected %d", n, sender, t.Get(sender)+1)
	}
	t.confirmed[sender] = n
	delete(t.reservation[sender], n)
	return nil
}

// Rollback clears every in-flight reservation without touching
// confirmed nonces, used when block assembly or commit fails.
func (t *Tracker) Rollback() {
	t.reservation = make(map[string]map[int64]bool)
}

// RollbackSender clears only sender's reservations, used when a single
// transaction is evicted from consideration without discarding the
// whole in-flight batch.
func (t *Tracker) RollbackSender(sender string) {
	delete(t.reservation, sender)
}

// RollbackConfirmed reverts sender's confirmed nonce to n, used when a
// reorg unwinds blocks past a transaction that had already been
// committed.
func (t *Tracker) RollbackConfirmed(sender string, n int64) {
	if n < 0 {
		delete(t.confirmed, sender)
		return
	}
	t.confirmed[sender] = n
}
