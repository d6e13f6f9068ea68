package blockchain

import (
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/validator"
)

// AssembleCandidateTransactions selects up to maxCount mempool
// transactions (capped further by maxBytes of canonical-encoded size)
// for the miner to build a candidate block from. It reuses
// validateBlockLocked's exact
// in-block simulation idiom (a disposable working UTXO clone, a
// disposable working governance clone, and nonce reservations rolled
// back before the lock releases) so the miner never needs its own copy
// of the validation pipeline and a transaction admitted to the pool
// under stale state can never slip into a block without being
// re-checked against the chain's current live state.
func (c *Chain) AssembleCandidateTransactions(maxCount, maxBytes int) []*ledger.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil || maxCount <= 0 {
		return nil
	}

	working := c.utxo.Clone()
	workingGov := c.gov.Clone()
	vctx := &validator.Context{
		Prefix:     c.params.AddressPrefix,
		UTXOSet:    working,
		Nonces:     c.nonces,
		MaxFee:     c.params.MaxFee,
		MaxTxSize:  ledger.MaxTxSize,
		Governance: workingGov,
	}
	defer c.nonces.Rollback()

	candidates := c.pool.IterTop(maxCount, c.nonces.Get)
	selected := make([]*ledger.Transaction, 0, len(candidates))
	var size int
	for _, tx := range candidates {
		if err := vctx.Validate(tx); err != nil {
			if log != nil {
				log.Debugf("dropping mempool candidate %x from assembly: %s", tx.TxID, err)
			}
			continue
		}
		encoded, err := ledger.CanonicalTransactionBytes(tx, true)
		if err != nil {
			continue
		}
		if maxBytes > 0 && size+len(encoded) > maxBytes {
			continue
		}
		if err := working.ApplyTransaction(tx); err != nil {
			continue
		}
		if tx.HasNonce {
			c.nonces.Reserve(tx.Sender, tx.Nonce)
		}
		if tx.TxType.IsGovernance() {
			if _, err := workingGov.Apply(tx); err != nil {
				continue
			}
		}
		selected = append(selected, tx)
		size += len(encoded)
	}
	return selected
}

// MedianTimePast returns the median timestamp of the trailing window
// validateBlockLocked checks a new block's timestamp against, so the
// miner can pick a timestamp its own candidate is guaranteed to
// pass.
func (c *Chain) MedianTimePast() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	window := c.recentWindow(c.medianTimeWindow())
	if len(window) == 0 {
		return 0
	}
	return medianTimestamp(window)
}
