package blockchain

import (
	"github.com/xai-blockchain/xai-sub013/chaincfg"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
)

// BlockReward computes the new-issuance subsidy paid to the miner of the
// block at height, halving every params.SubsidyHalvingInterval blocks
// (Glossary: "Block reward"). Height 0 (genesis) never pays a reward;
// genesis is seeded directly by chaincfg, not mined.
func BlockReward(height uint64, params *chaincfg.Params) amount.Amount {
	if height == 0 {
		return amount.Zero
	}
	halvings := (height - 1) / params.SubsidyHalvingInterval
	if halvings >= 64 {
		return amount.Zero
	}
	return amount.Amount(int64(params.InitialBlockReward) >> halvings)
}

// MaxSupply sums BlockReward across every halving epoch until the
// reward rounds to zero, giving the theoretical ceiling the streak
// bonus must never push total supply past.
func MaxSupply(params *chaincfg.Params) amount.Amount {
	var total amount.Amount
	reward := params.InitialBlockReward
	for reward > 0 {
		epochBlocks := amount.Amount(params.SubsidyHalvingInterval)
		total += reward * epochBlocks
		reward /= 2
	}
	return total
}

// MaxStreakBonusPercent bounds the streak bonus to at most this
// percentage of the base reward, regardless of how long a miner's
// streak runs.
const MaxStreakBonusPercent = 20

// StreakLengthCap is the streak length at which the bonus percentage
// saturates.
const StreakLengthCap = MaxStreakBonusPercent

// StreakBonus computes the additional coinbase payout for having mined
// streakLen consecutive blocks at the current tip: 1% of baseReward per
// consecutive block, capped at MaxStreakBonusPercent. Callers must
// ensure baseReward + fees + this bonus never pushes total supply past
// MaxSupply.
func StreakBonus(streakLen uint64, baseReward amount.Amount) amount.Amount {
	if streakLen > StreakLengthCap {
		streakLen = StreakLengthCap
	}
	return amount.Amount(int64(baseReward) * int64(streakLen) / 100)
}
