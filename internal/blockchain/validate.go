package blockchain

import (
	"sort"

	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/validator"
)

// medianTimeWindow is how many trailing blocks the median-time-past
// rule looks at. It reuses the difficulty retarget window, since both
// rules exist to smooth out a single miner's clock skew over the same
// trailing slice of the chain.
func (c *Chain) medianTimeWindow() uint64 {
	n := c.params.DifficultyWindow
	if n == 0 {
		n = 1
	}
	return n
}

func medianTimestamp(headers []*ledger.BlockHeader) int64 {
	ts := make([]int64, len(headers))
	for i, h := range headers {
		ts[i] = h.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts[len(ts)/2]
}

// validateBlockLocked runs block-level validation: the full per-tx
// pipeline applied to each transaction against a working UTXO/nonce
// view, plus the block-level rules (size, tx count, exactly-one
// coinbase, coinbase amount, merkle root, PoW, header signature,
// median-time-past).
func (c *Chain) validateBlockLocked(block *ledger.Block, expectedHeight uint64) error {
	if block.Header.Index != expectedHeight {
		return ledgererr.New(ledgererr.KindUnknownParent, "block height %d does not match expected %d", block.Header.Index, expectedHeight)
	}

	maxSize := c.params.MaxBlockSize
	encoded, err := ledger.CanonicalBlockBytes(block)
	if err != nil {
		return err
	}
	if len(encoded) > maxSize {
		return ledgererr.New(ledgererr.KindBlockSizeExceeded, "block %d bytes exceeds max %d", len(encoded), maxSize)
	}
	if len(block.Transactions) == 0 || len(block.Transactions) > c.params.MaxTxPerBlock {
		return ledgererr.New(ledgererr.KindTxCountExceeded, "block carries %d transactions, max is %d", len(block.Transactions), c.params.MaxTxPerBlock)
	}

	coinbaseCount := 0
	for i, tx := range block.Transactions {
		if tx.TxType == ledger.TxTypeCoinbase {
			coinbaseCount++
			if i != 0 {
				return ledgererr.New(ledgererr.KindMalformedEncoding, "coinbase transaction must be first in block")
			}
		}
	}
	if coinbaseCount != 1 {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "block must carry exactly one coinbase transaction, found %d", coinbaseCount)
	}

	if err := c.validateCoinbaseAmountLocked(block, expectedHeight); err != nil {
		return err
	}

	gotRoot := ledger.TransactionMerkleRoot(block.Transactions)
	if gotRoot != block.Header.MerkleRoot {
		return ledgererr.New(ledgererr.KindMerkleMismatch, "block %d merkle root does not match transactions", block.Header.Index)
	}

	expectedDifficulty := c.nextDifficultyLocked(c.recentWindow(c.params.DifficultyWindow + 1))
	if block.Header.Difficulty != expectedDifficulty {
		return ledgererr.New(ledgererr.KindInvalidProofOfWork, "block %d difficulty %d does not match expected %d", block.Header.Index, block.Header.Difficulty, expectedDifficulty)
	}
	if ledger.LeadingZeroNibbles(block.Header.Hash) < block.Header.Difficulty {
		return ledgererr.New(ledgererr.KindInvalidProofOfWork, "block %d hash does not satisfy difficulty %d", block.Header.Index, block.Header.Difficulty)
	}
	if err := ledger.VerifyHeaderSignature(&block.Header); err != nil {
		return err
	}

	window := c.recentWindow(c.medianTimeWindow())
	if len(window) > 0 && block.Header.Timestamp <= medianTimestamp(window) {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "block %d timestamp does not exceed median of last %d blocks", block.Header.Index, len(window))
	}

	working := c.utxo.Clone()
	// workingGov is a disposable copy so that two governance
	// transactions on the same proposal within one block (e.g. a vote
	// followed by a review) are checked against each other's effects in
	// order, the same way workingGov's UTXO counterpart lets a later
	// transaction spend an earlier one's output within the block.
	workingGov := c.gov.Clone()
	vctx := &validator.Context{
		Prefix:     c.params.AddressPrefix,
		UTXOSet:    working,
		Nonces:     c.nonces,
		MaxFee:     c.params.MaxFee,
		MaxTxSize:  ledger.MaxTxSize,
		Governance: workingGov,
	}
	// Reserve each nonce as its transaction validates, so a second
	// transaction from the same sender later in the block sees the
	// first as already accounted for. Reservations never outlive this
	// check.
	defer c.nonces.Rollback()
	for _, tx := range block.Transactions[1:] {
		if err := vctx.Validate(tx); err != nil {
			return err
		}
		if err := working.ApplyTransaction(tx); err != nil {
			return err
		}
		if tx.HasNonce {
			c.nonces.Reserve(tx.Sender, tx.Nonce)
		}
		if tx.TxType.IsGovernance() {
			if _, err := workingGov.Apply(tx); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateCoinbaseAmountLocked checks the coinbase exactness
// invariant: the coinbase pays exactly the block reward plus the sum of
// fees plus the streak bonus, and the bonus never pushes total supply
// past MaxSupply.
func (c *Chain) validateCoinbaseAmountLocked(block *ledger.Block, height uint64) error {
	coinbase := block.Transactions[0]
	var fees amount.Amount
	for _, tx := range block.Transactions[1:] {
		var err error
		fees, err = amount.Add(fees, tx.Fee)
		if err != nil {
			return err
		}
	}
	base := BlockReward(height, c.params)
	streak := c.consecutiveStreakLocked(block.Header.MinerPubKey)
	bonus := StreakBonus(streak, base)

	newIssuance, err := amount.Add(base, bonus)
	if err != nil {
		return err
	}
	if c.totalSupply+newIssuance > MaxSupply(c.params) {
		// The bonus must never push total supply past the cap. The base
		// reward alone always fits, since MaxSupply already accounts for
		// every halving epoch.
		bonus = amount.Zero
	}

	expected, err := amount.Add(base, fees)
	if err != nil {
		return err
	}
	expected, err = amount.Add(expected, bonus)
	if err != nil {
		return err
	}

	coinbasePaid := totalOutputs(coinbase)
	if coinbasePaid != expected {
		return ledgererr.New(ledgererr.KindSupplyCapExceeded, "coinbase pays %s, expected %s (reward %s + fees %s + bonus %s)", coinbasePaid, expected, base, fees, bonus)
	}
	return nil
}
