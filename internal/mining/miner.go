// Package mining implements the mining pipeline: select transactions
// from the mempool, assemble a candidate block, search for a
// proof-of-work nonce, sign, and hand the finished block to the chain
// engine for its own validate-then-commit path. The hand-off is
// AddBlock itself, so the miner never reimplements the commit-ordering
// or per-tx validation blockchain.Chain already owns.
package mining

import (
	"context"
	"time"

	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/blockchain"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.MINR)

// Miner drives one chain's mining pipeline under a single key pair. A
// node that mines under several identities (tests, multi-miner
// simulations) constructs one Miner per key.
type Miner struct {
	chain *blockchain.Chain
	key   *crypto.KeyPair
}

// New returns a Miner that builds and submits blocks to chain, mined
// under key's identity.
func New(chain *blockchain.Chain, key *crypto.KeyPair) *Miner {
	return &Miner{chain: chain, key: key}
}

// MineOne runs the pipeline end to end: select, assemble, PoW, sign,
// submit. It blocks until a valid block is found and accepted or ctx is
// cancelled; the nonce search checks ctx between attempts. A second
// block arriving from elsewhere and winning the tip race is reported as
// a typed error rather than silently retried; the caller decides
// whether to mine again against the new tip.
func (m *Miner) MineOne(ctx context.Context) (*ledger.Block, error) {
	params := m.chain.Params()
	tip := m.chain.Tip()
	height := tip.Height + 1

	txSlots := params.MaxTxPerBlock - 1 // reserve slot 0 for the coinbase
	txs := m.chain.AssembleCandidateTransactions(txSlots, params.MaxBlockSize)

	minerAddr := address.FromPublicKey(params.AddressPrefix, m.key.PublicKeyBytes())
	coinbase, err := m.buildCoinbase(minerAddr, height, txs)
	if err != nil {
		return nil, err
	}
	all := append([]*ledger.Transaction{coinbase}, txs...)

	timestamp := time.Now().Unix()
	if mtp := m.chain.MedianTimePast(); timestamp <= mtp {
		timestamp = mtp + 1
	}

	header := ledger.BlockHeader{
		Index:        height,
		PreviousHash: tip.Hash,
		MerkleRoot:   ledger.TransactionMerkleRoot(all),
		Timestamp:    timestamp,
		Difficulty:   m.chain.NextDifficulty(),
		Version:      1,
		MinerPubKey:  m.key.PublicKeyBytes(),
	}

	if err := m.searchNonce(ctx, &header); err != nil {
		return nil, err
	}
	if err := ledger.SignHeader(&header, m.key); err != nil {
		return nil, err
	}

	block := &ledger.Block{Header: header, Transactions: all}
	result, err := m.chain.AddBlock(block)
	if err != nil {
		return nil, err
	}
	if result.Kind != blockchain.Extended {
		return nil, ledgererr.New(ledgererr.KindUnknownParent, "mined block at height %d lost the tip race to a competing block", height)
	}

	if log != nil {
		log.Infof("mined block %d hash %x with %d transactions", height, header.Hash, len(all))
	}
	return block, nil
}

// buildCoinbase constructs the block reward transaction: base subsidy
// plus the sum of selected transactions' fees plus a streak bonus,
// clamped against MaxSupply exactly the way the chain's own
// coinbase-amount check clamps it, so a block this miner produces
// always satisfies the chain's own validation of it.
func (m *Miner) buildCoinbase(minerAddr string, height uint64, txs []*ledger.Transaction) (*ledger.Transaction, error) {
	var fees amount.Amount
	for _, tx := range txs {
		var err error
		fees, err = amount.Add(fees, tx.Fee)
		if err != nil {
			return nil, err
		}
	}

	params := m.chain.Params()
	base := blockchain.BlockReward(height, params)
	streak := m.chain.ConsecutiveStreak(m.key.PublicKeyBytes())
	bonus := blockchain.StreakBonus(streak, base)

	newIssuance, err := amount.Add(base, bonus)
	if err != nil {
		return nil, err
	}
	if m.chain.TotalSupply()+newIssuance > blockchain.MaxSupply(params) {
		bonus = amount.Zero
	}

	reward, err := amount.Add(base, fees)
	if err != nil {
		return nil, err
	}
	reward, err = amount.Add(reward, bonus)
	if err != nil {
		return nil, err
	}

	coinbase := &ledger.Transaction{
		TxType:    ledger.TxTypeCoinbase,
		Recipient: minerAddr,
		Amount:    reward,
		Outputs:   []ledger.TxOutput{{Address: minerAddr, Amount: reward}},
		Timestamp: time.Now().Unix(),
	}
	txid, err := coinbase.ComputeTxID()
	if err != nil {
		return nil, err
	}
	coinbase.TxID = txid
	return coinbase, nil
}

// searchNonce increments header.Nonce until its finalized hash carries
// header.Difficulty leading zero hex-nibbles, checking ctx between
// attempts so a long search can be cancelled promptly.
func (m *Miner) searchNonce(ctx context.Context, header *ledger.BlockHeader) error {
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return ledgererr.Wrap(ledgererr.KindCancelled, ctx.Err(), "mining cancelled at nonce %d", nonce)
		default:
		}
		header.Nonce = nonce
		ledger.FinalizeHeaderHash(header)
		if ledger.LeadingZeroNibbles(header.Hash) >= header.Difficulty {
			return nil
		}
	}
}
