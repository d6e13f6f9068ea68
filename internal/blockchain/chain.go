// Package blockchain implements the chain engine: tip tracking over an
// in-memory header array, an orphan buffer for blocks whose parent
// hasn't arrived yet, checkpoint-guarded reorganization, and post-reorg
// mempool revalidation. Fork choice is longest cumulative difficulty,
// with earliest-timestamp and lowest-hash tie-breaks.
package blockchain

import (
	"sort"
	"sync"

	"github.com/xai-blockchain/xai-sub013/chaincfg"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/difficulty"
	"github.com/xai-blockchain/xai-sub013/internal/governance"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
	"github.com/xai-blockchain/xai-sub013/internal/mempool"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/storage"
	"github.com/xai-blockchain/xai-sub013/internal/utxo"
	"github.com/xai-blockchain/xai-sub013/internal/validator"
)

var log, _ = logger.Get(logger.SubsystemTags.CHAN)

// ResultKind is the outcome of submitting a block. A typed error is
// returned separately, never folded into this type.
type ResultKind int

const (
	Extended ResultKind = iota
	Reorganized
	// Orphaned covers both the literal unknown-parent case and a
	// known-parent sidechain block that does not yet out-weigh the
	// current tip: in both cases the block is buffered, the tip is
	// unchanged, and nothing is rejected outright.
	Orphaned
)

// Result is returned by AddBlock.
type Result struct {
	Kind  ResultKind
	Depth uint64 // populated only for Reorganized
}

// Tip describes the canonical chain's highest block.
type Tip struct {
	Height               uint64
	Hash                 ledger.BlockHash
	CumulativeDifficulty uint64
}

// Chain owns the canonical header array, the live UTXO/nonce/mempool
// state it implies, the sidechain and orphan buffers, and the storage
// handle blocks are durably committed through.
type Chain struct {
	mu sync.Mutex

	params *chaincfg.Params
	store  *storage.Store
	utxo   *utxo.Set
	nonces *noncetracker.Tracker
	pool   *mempool.Pool
	gov    *governance.State

	// headers and cumDiff are parallel, indexed by height; headers[0] is
	// genesis. Full blocks are loaded lazily from store when a rewind or
	// replay needs transaction bodies.
	headers []*ledger.BlockHeader
	cumDiff []uint64
	// snapshotAtHeight[h] is the utxo.Set.Snapshot() token captured right
	// after the block at height h was committed, so a reorg can rewind
	// the UTXO set back to any earlier height in one Restore call instead
	// of reverse-applying each rewound block's transactions individually.
	snapshotAtHeight []int

	// sidechain holds full blocks whose parent is known (canonical or
	// another sidechain block) but which have not (yet) become
	// canonical.
	sidechain map[ledger.BlockHash]*ledger.Block
	// orphans holds full blocks keyed by their missing parent hash.
	orphans map[ledger.BlockHash][]*ledger.Block

	totalSupply amount.Amount

	// checkpointKey self-signs each emitted checkpoint. nil is
	// accepted: a node that never sets one still checkpoints, just with
	// zero signatures.
	checkpointKey *crypto.KeyPair
}

// SetCheckpointKey installs the key pair maybeCheckpointLocked signs new
// checkpoints with. cmd/xainoded calls it once during startup, before
// it builds the coordinator.
func (c *Chain) SetCheckpointKey(key *crypto.KeyPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpointKey = key
}

// New constructs a Chain seeded with params.GenesisBlock, or resumes
// from storage if a prior chain was persisted there.
func New(params *chaincfg.Params, store *storage.Store, utxoSet *utxo.Set, nonces *noncetracker.Tracker, pool *mempool.Pool) (*Chain, error) {
	c := &Chain{
		params:    params,
		store:     store,
		utxo:      utxoSet,
		nonces:    nonces,
		pool:      pool,
		gov:       governance.New(),
		sidechain: make(map[ledger.BlockHash]*ledger.Block),
		orphans:   make(map[ledger.BlockHash][]*ledger.Block),
	}

	highest, ok, err := store.HighestStoredHeight()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := c.seedGenesis(); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.loadFromStorage(highest); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) seedGenesis() error {
	genesis := c.params.GenesisBlock
	if err := c.store.PutBlock(genesis); err != nil {
		return err
	}
	c.headers = []*ledger.BlockHeader{&genesis.Header}
	c.cumDiff = []uint64{uint64(genesis.Header.Difficulty)}
	c.utxo.ApplyOutputs(genesis.Transactions[0])
	c.snapshotAtHeight = []int{c.utxo.Snapshot()}
	if log != nil {
		log.Infof("seeded genesis block %x", genesis.Header.Hash)
	}
	return nil
}

// loadFromStorage replays every stored block from height 0 through
// highest, rebuilding the header array and UTXO/nonce state, then
// cross-checks the result against the persisted state snapshot. Replay
// from genesis is always authoritative; the snapshot contributes the
// pending mempool and a consistency check, never the UTXO state
// itself.
func (c *Chain) loadFromStorage(highest uint64) error {
	for h := uint64(0); h <= highest; h++ {
		block, err := c.store.GetBlock(h)
		if err != nil {
			return err
		}
		c.headers = append(c.headers, &block.Header)
		var prevCum uint64
		if h > 0 {
			prevCum = c.cumDiff[h-1]
		}
		c.cumDiff = append(c.cumDiff, prevCum+uint64(block.Header.Difficulty))
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
		c.totalSupply += totalOutputs(block.Transactions[0])
		c.snapshotAtHeight = append(c.snapshotAtHeight, c.utxo.Snapshot())
	}

	report := c.utxo.VerifyConsistency()
	if !report.BalanceIndexOK || len(report.NegativeBalances) > 0 {
		return ledgererr.New(ledgererr.KindStorageFailure, "UTXO set inconsistent after replay: index ok=%t, %d negative balances", report.BalanceIndexOK, len(report.NegativeBalances))
	}

	// Cross-check the replayed UTXO set against the last persisted
	// snapshot and re-admit its pending transactions. A mismatch between
	// the snapshot's serialized UTXO section and the replayed set means the snapshot is from a block the replay didn't cover (a
	// crash landed between the block write and the snapshot write), in
	// which case the replayed chain is authoritative and the stale
	// snapshot is simply rewritten on the next commit.
	sections, ok, err := c.store.ReadSnapshot()
	if err != nil {
		return err
	}
	if ok {
		if !bytesEqual(sections.UTXOSet, c.utxo.Serialize()) {
			if log != nil {
				log.Warnf("state snapshot does not match replayed chain at height %d; continuing from replayed state", highest)
			}
		} else if c.pool != nil && len(sections.PendingTxs) > 0 {
			pending, err := mempool.DeserializeTransactions(sections.PendingTxs)
			if err != nil {
				return err
			}
			sort.SliceStable(pending, func(i, j int) bool {
				return pending[i].Nonce < pending[j].Nonce
			})
			vctx := c.NewValidatorContext()
			for _, tx := range pending {
				if err := c.pool.Admit(vctx, tx); err != nil && log != nil {
					log.Debugf("dropping persisted pending tx %x on reload: %s", tx.TxID, err)
				}
			}
		}
	}

	if log != nil {
		log.Infof("replayed %d blocks from storage, tip height %d", highest+1, highest)
	}
	return nil
}

func totalOutputs(tx *ledger.Transaction) amount.Amount {
	var sum amount.Amount
	for _, out := range tx.Outputs {
		sum += out.Amount
	}
	return sum
}

// Tip returns the canonical chain's current tip.
func (c *Chain) Tip() Tip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipLocked()
}

func (c *Chain) tipLocked() Tip {
	h := len(c.headers) - 1
	return Tip{
		Height:               c.headers[h].Index,
		Hash:                 c.headers[h].Hash,
		CumulativeDifficulty: c.cumDiff[h],
	}
}

// HashForHeight resolves a canonical height to its block hash.
func (c *Chain) HashForHeight(height uint64) (ledger.BlockHash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height >= uint64(len(c.headers)) {
		return ledger.BlockHash{}, false
	}
	return c.headers[height].Hash, true
}

// GetBlock returns the full block at height, loaded from storage.
func (c *Chain) GetBlock(height uint64) (*ledger.Block, error) {
	return c.store.GetBlock(height)
}

// GetBlockByHash returns the full block identified by hash, if it is on
// the canonical chain.
func (c *Chain) GetBlockByHash(hash ledger.BlockHash) (*ledger.Block, error) {
	height, ok, err := c.store.HeightForHash(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledgererr.New(ledgererr.KindUnknownParent, "no canonical block with hash %x", hash)
	}
	return c.store.GetBlock(height)
}

// UTXOSet exposes the live UTXO set for read-only balance queries.
// Mutation must go through AddBlock.
func (c *Chain) UTXOSet() *utxo.Set { return c.utxo }

// Mempool exposes the pool backing this chain, for transaction
// submission and mempool views.
func (c *Chain) Mempool() *mempool.Pool { return c.pool }

// Governance exposes the governance state machine for read-only
// proposal lookups (the Coordinator's governance read surface) and for
// the miner's validator context wiring.
func (c *Chain) Governance() *governance.State { return c.gov }

// Params exposes the chain's network parameters, for the miner's
// candidate assembly and the Coordinator's startup wiring.
func (c *Chain) Params() *chaincfg.Params { return c.params }

// NewValidatorContext builds a validator.Context bound to the chain's
// current live state, for mempool admission.
func (c *Chain) NewValidatorContext() *validator.Context {
	return &validator.Context{
		Prefix:     c.params.AddressPrefix,
		UTXOSet:    c.utxo,
		Nonces:     c.nonces,
		MaxFee:     c.params.MaxFee,
		MaxTxSize:  ledger.MaxTxSize,
		Governance: c.gov,
	}
}

// recentWindow returns up to n of the most recent headers ending at the
// canonical tip, oldest first, for the difficulty controller and the
// median-time-past rule.
func (c *Chain) recentWindow(n uint64) []*ledger.BlockHeader {
	total := uint64(len(c.headers))
	if n > total {
		n = total
	}
	return c.headers[total-n:]
}

// NextDifficulty computes the difficulty the next block (extending the
// current tip) must satisfy.
func (c *Chain) NextDifficulty() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextDifficultyLocked(c.recentWindow(c.params.DifficultyWindow + 1))
}

func (c *Chain) nextDifficultyLocked(window []*ledger.BlockHeader) uint32 {
	blocks := make([]difficulty.BlockTimestamps, len(window))
	for i, h := range window {
		blocks[i] = difficulty.BlockTimestamps{Timestamp: h.Timestamp, Difficulty: h.Difficulty}
	}
	next := difficulty.NextDifficulty(blocks, difficulty.Params{
		TargetBlockTimeSeconds: int64(c.params.TargetBlockTime.Seconds()),
		Window:                 c.params.DifficultyWindow,
		MaxAdjustmentFactor:    c.params.MaxAdjustmentFactor,
		MinDifficulty:          chaincfg.MinDifficulty,
		MaxDifficulty:          chaincfg.MaxDifficulty,
	})
	if c.params.FastMiningEnabled && next > c.params.MaxTestMiningDifficulty {
		next = c.params.MaxTestMiningDifficulty
	}
	return next
}

// ConsecutiveStreak counts how many of the most recent blocks ending
// at the tip were mined by pubKey, the input to the streak bonus.
func (c *Chain) ConsecutiveStreak(pubKey []byte) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveStreakLocked(pubKey)
}

func (c *Chain) consecutiveStreakLocked(pubKey []byte) uint64 {
	var streak uint64
	for i := len(c.headers) - 1; i >= 1; i-- { // genesis (index 0) has no miner
		if !bytesEqual(c.headers[i].MinerPubKey, pubKey) {
			break
		}
		streak++
	}
	return streak
}

// TotalSupply returns the coin supply emitted by the canonical chain
// so far.
func (c *Chain) TotalSupply() amount.Amount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSupply
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AddBlock extends the tip, parks an orphan, or initiates
// reorganization, always returning exactly one of {Extended,
// Reorganized, Orphaned} or a typed error; there is no partial-success
// state.
func (c *Chain) AddBlock(block *ledger.Block) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addBlockLocked(block)
}

func (c *Chain) addBlockLocked(block *ledger.Block) (Result, error) {
	hash := block.Header.Hash
	if _, ok := c.sidechain[hash]; ok {
		return Result{Kind: Orphaned}, nil // idempotent resubmission
	}

	tip := c.tipLocked()
	if block.Header.PreviousHash == tip.Hash {
		if err := c.validateBlockLocked(block, tip.Height+1); err != nil {
			return Result{}, err
		}
		if err := c.commitExtensionLocked(block); err != nil {
			return Result{}, err
		}
		c.promoteOrphansLocked(hash)
		return Result{Kind: Extended}, nil
	}

	forkHeight, branch, ok := c.resolveBranchLocked(block)
	if !ok {
		c.parkOrphanLocked(block)
		return Result{Kind: Orphaned}, nil
	}

	for _, b := range branch {
		c.sidechain[b.Header.Hash] = b
	}

	branchDiff := c.cumDiff[forkHeight]
	for _, b := range branch {
		branchDiff += uint64(b.Header.Difficulty)
	}

	if !outweighs(branchDiff, branch[len(branch)-1], tip.CumulativeDifficulty, c.headers[tip.Height]) {
		return Result{Kind: Orphaned}, nil
	}

	depth, err := c.reorganizeLocked(forkHeight, branch)
	if err != nil {
		return Result{}, err
	}
	c.promoteOrphansLocked(hash)
	return Result{Kind: Reorganized, Depth: depth}, nil
}

// outweighs implements fork choice: longest cumulative difficulty
// wins, ties broken by earliest timestamp, and a further tie by lowest
// header hash - cheap and deterministic even when both difficulty and
// timestamp tie.
func outweighs(candidateDiff uint64, candidateTip *ledger.Block, currentDiff uint64, currentTip *ledger.BlockHeader) bool {
	if candidateDiff != currentDiff {
		return candidateDiff > currentDiff
	}
	if candidateTip.Header.Timestamp != currentTip.Timestamp {
		return candidateTip.Header.Timestamp < currentTip.Timestamp
	}
	return lessHash(candidateTip.Header.Hash, currentTip.Hash)
}

func lessHash(a, b ledger.BlockHash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// commitExtensionLocked is the extend path's commit step: append the
// block to storage (durable), apply its transactions to the UTXO set
// and governance state, persist the state snapshot, commit nonces, and
// update the in-memory header array, in that order. Nonces may only
// advance after the block is durable.
func (c *Chain) commitExtensionLocked(block *ledger.Block) error {
	if err := c.store.PutBlock(block); err != nil {
		return err
	}

	snap := c.utxo.Snapshot()
	for _, tx := range block.Transactions {
		if err := c.utxo.ApplyTransaction(tx); err != nil {
			_ = c.utxo.Restore(snap)
			_ = c.store.DeleteBlock(block.Header.Index)
			return err
		}
	}

	for _, tx := range block.Transactions {
		if tx.TxType.IsGovernance() {
			if _, err := c.gov.Apply(tx); err != nil {
				_ = c.utxo.Restore(snap)
				_ = c.store.DeleteBlock(block.Header.Index)
				c.rebuildNoncesFromSurvivingChainLocked()
				return err
			}
		}
	}

	c.revalidateMempoolEntryLocked(block)

	// Persist the state snapshot before any nonce advances: a crash
	// after this point replays to the same state, a crash before it
	// replays to the pre-block state, and in neither case has a nonce
	// moved ahead of durable storage.
	if err := c.persistStateLocked(); err != nil {
		_ = c.utxo.Restore(snap)
		_ = c.store.DeleteBlock(block.Header.Index)
		c.rebuildNoncesFromSurvivingChainLocked()
		return err
	}

	for _, tx := range block.Transactions {
		if tx.HasNonce {
			if err := c.nonces.Commit(tx.Sender, tx.Nonce); err != nil {
				_ = c.utxo.Restore(snap)
				_ = c.store.DeleteBlock(block.Header.Index)
				c.rebuildNoncesFromSurvivingChainLocked()
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
	delete(c.sidechain, block.Header.Hash)

	// The block is committed; a checkpoint-write failure must not
	// un-commit it. The next eligible height retries.
	if err := c.maybeCheckpointLocked(); err != nil && log != nil {
		log.Errorf("writing checkpoint at height %d: %s", block.Header.Index, err)
	}

	if log != nil {
		log.Infof("extended chain to height %d hash %x", block.Header.Index, block.Header.Hash)
	}
	return nil
}

// revalidateMempoolEntryLocked drops any pooled transaction now consumed
// (or double-spent) by a newly committed block, since it is no longer a
// valid mempool candidate.
func (c *Chain) revalidateMempoolEntryLocked(block *ledger.Block) {
	if c.pool == nil {
		return
	}
	for _, tx := range block.Transactions {
		c.pool.Remove(tx.TxID)
	}
	for _, tx := range c.pool.Snapshot() {
		for _, in := range tx.Inputs {
			if !c.utxo.Contains(utxo.Outpoint{TxID: in.PrevTxID, Vout: in.PrevVout}) {
				c.pool.Remove(tx.TxID)
				break
			}
		}
	}
}

// persistStateLocked durably rewrites the single state snapshot file
// from the live UTXO set, the pending mempool, and the governance
// proposal ledger. On the extend path it runs after a block's UTXO and
// governance effects are applied and before its nonces commit; after a
// reorg it runs once, after the whole branch, nonces included, is
// applied.
func (c *Chain) persistStateLocked() error {
	var pending []byte
	if c.pool != nil {
		encoded, err := mempool.Serialize(c.pool.Snapshot())
		if err != nil {
			return err
		}
		pending = encoded
	}
	return c.store.WriteSnapshot(storage.SnapshotSections{
		UTXOSet:         c.utxo.Serialize(),
		PendingTxs:      pending,
		GovernanceState: c.gov.Serialize(),
	})
}
