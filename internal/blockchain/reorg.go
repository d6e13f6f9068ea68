package blockchain

import (
	"sort"

	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/storage"
)

// resolveBranchLocked walks backward from block through the sidechain
// pool until it reaches a canonical ancestor, returning the fork height
// and the branch (oldest first, including block) that would extend from
// it. ok is false if some ancestor is neither canonical nor already a
// known sidechain block.
func (c *Chain) resolveBranchLocked(block *ledger.Block) (forkHeight uint64, branch []*ledger.Block, ok bool) {
	reverse := []*ledger.Block{block}
	cur := block
	for {
		if cur.Header.Index == 0 {
			return 0, nil, false
		}
		parentHeight := cur.Header.Index - 1
		parentHash := cur.Header.PreviousHash

		if parentHeight < uint64(len(c.headers)) && c.headers[parentHeight].Hash == parentHash {
			branch = make([]*ledger.Block, len(reverse))
			for i, b := range reverse {
				branch[len(reverse)-1-i] = b
			}
			return parentHeight, branch, true
		}

		if parent, found := c.sidechain[parentHash]; found && parent.Header.Index == parentHeight {
			reverse = append(reverse, parent)
			cur = parent
			continue
		}

		return 0, nil, false
	}
}

// parkOrphanLocked buffers block under its (currently unknown) parent
// hash.
func (c *Chain) parkOrphanLocked(block *ledger.Block) {
	parent := block.Header.PreviousHash
	c.orphans[parent] = append(c.orphans[parent], block)
	if log != nil {
		log.Debugf("parked orphan block %x awaiting parent %x", block.Header.Hash, parent)
	}
}

// promoteOrphansLocked recursively admits any orphan whose parent hash
// is newTip, after a successful extension or reorganization.
func (c *Chain) promoteOrphansLocked(newTip ledger.BlockHash) {
	waiting, ok := c.orphans[newTip]
	if !ok {
		return
	}
	delete(c.orphans, newTip)
	for _, orphan := range waiting {
		if _, err := c.addBlockLocked(orphan); err != nil && log != nil {
			log.Warnf("dropping orphan %x on promotion: %s", orphan.Header.Hash, err)
		}
	}
}

// reorganizeLocked rewinds the canonical chain to forkHeight, then
// advances along branch, restoring the pre-reorg state on any failure
// so a reorg is never partially applied.
func (c *Chain) reorganizeLocked(forkHeight uint64, branch []*ledger.Block) (depth uint64, err error) {
	tip := c.tipLocked()
	depth = tip.Height - forkHeight
	if depth > c.params.MaxReorgDepth {
		return 0, ledgererr.New(ledgererr.KindReorgTooDeep, "reorg depth %d exceeds max %d", depth, c.params.MaxReorgDepth)
	}
	if cp, ok, cerr := c.store.LatestCheckpoint(); cerr == nil && ok && forkHeight < cp.Height {
		return 0, ledgererr.New(ledgererr.KindCheckpointViolation, "fork point %d is older than checkpoint at %d", forkHeight, cp.Height)
	}

	headersBackup := append([]*ledger.BlockHeader(nil), c.headers...)
	cumDiffBackup := append([]uint64(nil), c.cumDiff...)
	snapBackup := append([]int(nil), c.snapshotAtHeight...)
	supplyBackup := c.totalSupply
	utxoToken := c.utxo.Snapshot()

	rescue, rewound, err := c.rewindToLocked(forkHeight)
	if err != nil {
		c.restoreAfterFailedReorgLocked(utxoToken, headersBackup, cumDiffBackup, snapBackup, supplyBackup)
		return 0, err
	}

	for _, b := range branch {
		if err := c.validateBlockLocked(b, b.Header.Index); err != nil {
			c.restoreAfterFailedReorgLocked(utxoToken, headersBackup, cumDiffBackup, snapBackup, supplyBackup)
			return 0, err
		}
		if err := c.applyAdvanceLocked(b); err != nil {
			c.restoreAfterFailedReorgLocked(utxoToken, headersBackup, cumDiffBackup, snapBackup, supplyBackup)
			return 0, err
		}
		delete(c.sidechain, b.Header.Hash)
	}

	// The new branch is fully durable; only now drop the replaced
	// branch's stored blocks and stale hash mappings. Heights the new
	// branch reused were overwritten in place by applyAdvanceLocked.
	newTipHeight := c.headers[len(c.headers)-1].Index
	for _, old := range rewound {
		if old.Index > newTipHeight {
			if err := c.store.DeleteBlock(old.Index); err != nil && log != nil {
				log.Warnf("removing replaced block at height %d: %s", old.Index, err)
			}
			continue
		}
		if err := c.store.DeleteHashMapping(old.Hash); err != nil && log != nil {
			log.Warnf("removing stale hash mapping %x: %s", old.Hash, err)
		}
	}

	c.revalidateAfterReorgLocked(rescue)

	// Snapshot and checkpoint failures past this point are logged, not
	// returned: the reorganized chain is already durable and replayable,
	// and a stale snapshot is detected on the next load, where its UTXO
	// section no longer matches the replayed set, and is superseded by
	// the next commit.
	if err := c.persistStateLocked(); err != nil && log != nil {
		log.Errorf("persisting state snapshot after reorg: %s", err)
	}
	if err := c.maybeCheckpointLocked(); err != nil && log != nil {
		log.Errorf("writing checkpoint after reorg: %s", err)
	}

	if report := c.utxo.VerifyConsistency(); !report.BalanceIndexOK && log != nil {
		log.Errorf("UTXO balance index inconsistent after reorg at tip %d", newTipHeight)
	}

	if log != nil {
		log.Infof("reorganized chain: fork height %d, depth %d, new tip %x", forkHeight, depth, c.tipLocked().Hash)
	}
	return depth, nil
}

// rewindToLocked reverts the canonical chain from its current tip down
// to forkHeight, using the UTXO set's own undo log (the snapshot token
// recorded when forkHeight was first committed) rather than manually
// reverse-applying each transaction. It also rebuilds the nonce tracker
// by replaying the surviving prefix, since the tracker has no undo log
// of its own. The rewound blocks' stored files are left in place;
// deleting them only after the replacement branch is fully durable
// keeps the on-disk chain recoverable if the advance half fails. The
// transactions the rewound blocks carried (excluding coinbases) are
// collected into the rescue buffer; the rewound headers are returned so
// the caller can clean up storage once the reorg commits.
func (c *Chain) rewindToLocked(forkHeight uint64) (rescue []*ledger.Transaction, rewound []*ledger.BlockHeader, err error) {
	tipHeight := c.headers[len(c.headers)-1].Index
	for h := tipHeight; h > forkHeight; h-- {
		block, err := c.store.GetBlock(h)
		if err != nil {
			return nil, nil, err
		}
		for _, tx := range block.Transactions {
			if tx.TxType != ledger.TxTypeCoinbase {
				rescue = append(rescue, tx)
			}
		}
		c.totalSupply -= totalOutputs(block.Transactions[0])
		rewound = append(rewound, c.headers[h])
	}

	if err := c.utxo.Restore(c.snapshotAtHeight[forkHeight]); err != nil {
		return nil, nil, err
	}
	c.headers = c.headers[:forkHeight+1]
	c.cumDiff = c.cumDiff[:forkHeight+1]
	c.snapshotAtHeight = c.snapshotAtHeight[:forkHeight+1]
	c.rebuildNoncesFromSurvivingChainLocked()
	return rescue, rewound, nil
}

// rebuildNoncesFromSurvivingChainLocked recomputes every sender's
// confirmed nonce, and every proposal's governance status, from the
// canonical headers that remain after a rewind, by re-reading each
// surviving block's transactions from storage. The tracker is reset
// first, so a sender whose only confirmed transactions sat in rewound
// blocks is left with no confirmed nonce. Simpler and safer than
// decrementing nonces (or unwinding governance transitions) one
// transaction at a time, at the cost of re-reading every surviving
// block, from genesis up, on each call.
// Governance state carries no undo log at all, so this full replay is
// its only rebuild path, not just the cheaper one.
func (c *Chain) rebuildNoncesFromSurvivingChainLocked() {
	*c.nonces = *noncetracker.New()
	c.gov.Reset()
	fresh := make(map[string]int64)
	for h := range c.headers {
		block, err := c.store.GetBlock(uint64(h))
		if err != nil {
			continue
		}
		for _, tx := range block.Transactions {
			if tx.HasNonce {
				fresh[tx.Sender] = tx.Nonce
			}
			if tx.TxType.IsGovernance() {
				if _, err := c.gov.Apply(tx); err != nil && log != nil {
					log.Warnf("replaying governance tx %x during rebuild: %s", tx.TxID, err)
				}
			}
		}
	}
	for sender, nonce := range fresh {
		c.nonces.RollbackConfirmed(sender, nonce)
	}
}

// applyAdvanceLocked applies one block of the winning branch forward:
// a durable storage write (overwriting any block already stored at that
// height), then for each transaction in order its UTXO apply, nonce
// commit and governance apply, then the header append. Unlike
// commitExtensionLocked it writes no state snapshot; reorganizeLocked
// persists one after the whole branch is applied.
func (c *Chain) applyAdvanceLocked(block *ledger.Block) error {
	if err := c.store.PutBlock(block); err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		if err := c.utxo.ApplyTransaction(tx); err != nil {
			return err
		}
		if tx.HasNonce {
			if err := c.nonces.Commit(tx.Sender, tx.Nonce); err != nil {
				return err
			}
		}
		if tx.TxType.IsGovernance() {
			if _, err := c.gov.Apply(tx); err != nil {
				return err
			}
		}
	}
	c.headers = append(c.headers, &block.Header)
	var prevCum uint64
	if len(c.cumDiff) > 0 {
		prevCum = c.cumDiff[len(c.cumDiff)-1]
	}
	c.cumDiff = append(c.cumDiff, prevCum+uint64(block.Header.Difficulty))
	c.totalSupply += totalOutputs(block.Transactions[0])
	c.snapshotAtHeight = append(c.snapshotAtHeight, c.utxo.Snapshot())
	return nil
}

// restoreAfterFailedReorgLocked reverts in-memory chain state to a
// pre-reorg snapshot, used when any step of reorganizeLocked fails.
func (c *Chain) restoreAfterFailedReorgLocked(utxoToken int, headers []*ledger.BlockHeader, cumDiff []uint64, snapshotAtHeight []int, supply amount.Amount) {
	_ = c.utxo.Restore(utxoToken)
	c.headers = headers
	c.cumDiff = cumDiff
	c.snapshotAtHeight = snapshotAtHeight
	c.totalSupply = supply
	c.rebuildNoncesFromSurvivingChainLocked()
}

// revalidateAfterReorgLocked re-validates every rescued transaction
// plus everything still in the mempool against the post-reorg state;
// only survivors remain pooled.
func (c *Chain) revalidateAfterReorgLocked(rescue []*ledger.Transaction) {
	if c.pool == nil {
		return
	}
	candidates := append([]*ledger.Transaction(nil), rescue...)
	candidates = append(candidates, c.pool.Snapshot()...)
	c.pool.Clear()

	// Rescued transactions surface newest-block-first; admission
	// requires each sender's nonces to arrive in ascending order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Nonce < candidates[j].Nonce
	})

	vctx := c.NewValidatorContext()
	seen := make(map[ledger.TxID]bool, len(candidates))
	for _, tx := range candidates {
		if seen[tx.TxID] {
			continue
		}
		seen[tx.TxID] = true
		if err := c.pool.Admit(vctx, tx); err != nil && log != nil {
			log.Debugf("dropping tx %x after reorg: %s", tx.TxID, err)
		}
	}
}

// maybeCheckpointLocked emits a checkpoint every
// params.CheckpointInterval blocks, self-signed with the node's
// checkpoint key pair if one has been set.
func (c *Chain) maybeCheckpointLocked() error {
	tip := c.headers[len(c.headers)-1]
	if c.params.CheckpointInterval == 0 || tip.Index%c.params.CheckpointInterval != 0 {
		return nil
	}
	if _, exists, err := c.store.CheckpointAt(tip.Index); err == nil && exists {
		return nil
	}

	digest := crypto.Sha256(c.utxo.Serialize())
	var utxoDigest [32]byte
	copy(utxoDigest[:], digest)

	cp := &storage.Checkpoint{
		Height:      tip.Index,
		BlockHash:   tip.Hash,
		UTXODigest:  utxoDigest,
		TotalSupply: c.totalSupply,
	}
	if c.checkpointKey != nil {
		sig, err := crypto.Sign(c.checkpointKey, utxoDigest[:])
		if err != nil {
			return err
		}
		cp.Signatures = [][]byte{sig}
	}
	return c.store.PutCheckpoint(cp)
}
