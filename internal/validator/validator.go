// Package validator runs the single fixed-order transaction validation
// pipeline: structural, signature, nonce, coverage, policy. Cheapest
// and most deterministic checks run first, so a spam flood of malformed
// transactions is rejected before any map lookups or cryptographic
// verification.
package validator

import (
	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/utxo"
)

// DustThreshold is the minimum non-zero output amount the policy check
// accepts, expressed in base units.
const DustThreshold = amount.Amount(1000)

// Context bundles the read access a validation pass needs: the network
// prefix for address checks, the live UTXO set, and the nonce tracker.
// The caller (mempool admission or block-level revalidation) owns
// locking; Context performs no locking of its own.
type Context struct {
	Prefix    address.Prefix
	UTXOSet   *utxo.Set
	Nonces    *noncetracker.Tracker
	MaxFee    amount.Amount
	MaxTxSize int

	// Governance, if set, is consulted for governance transaction types
	// as an additional read-only check before the tx is admitted to a
	// block or the mempool: e.g. a vote against an unknown or closed
	// proposal is rejected here, the same way coverage rejects a tx
	// spending an unknown UTXO. Left nil, governance transactions skip
	// this check.
	Governance interface {
		CanApply(tx *ledger.Transaction) error
	}

	// PendingNonce, if set, reports whether (sender, nonce) is already
	// held by an unconfirmed pooled transaction. Mempool admission wires
	// this to its own sender index so a sender can queue several
	// contiguous nonces, and so a duplicate nonce falls through to the
	// pool's replace-by-fee decision instead of failing here. Block
	// assembly and block-level validation leave it nil; there, in-block
	// sequencing runs on nonce reservations alone.
	PendingNonce func(sender string, nonce int64) bool
}

// Validate runs every step of the fixed pipeline against tx and
// returns the first failure encountered, or nil if tx is acceptable.
// Coinbase transactions skip the nonce and coverage steps; they are
// instead checked for reward exactness by the block-level rules in
// internal/blockchain, not here.
func (c *Context) Validate(tx *ledger.Transaction) error {
	if err := c.validateStructural(tx); err != nil {
		return err
	}
	if err := c.validateSignature(tx); err != nil {
		return err
	}
	if tx.TxType != ledger.TxTypeCoinbase {
		if err := c.validateNonce(tx); err != nil {
			return err
		}
		if err := c.validateCoverage(tx); err != nil {
			return err
		}
	}
	if err := c.validatePolicy(tx); err != nil {
		return err
	}
	if tx.TxType.IsGovernance() && c.Governance != nil {
		if err := c.Governance.CanApply(tx); err != nil {
			return err
		}
	}
	return nil
}

// validateStructural is step 1: field presence, types, fixed-point
// precision, address checksum, size bound.
func (c *Context) validateStructural(tx *ledger.Transaction) error {
	if tx.Sender == "" && tx.TxType != ledger.TxTypeCoinbase {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "transaction missing sender")
	}
	if len(tx.Outputs) == 0 {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "transaction has no outputs")
	}
	if !tx.Amount.IsNonNegative() || !tx.Fee.IsNonNegative() {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "transaction amount/fee must be non-negative")
	}
	for _, out := range tx.Outputs {
		if !out.Amount.IsNonNegative() {
			return ledgererr.New(ledgererr.KindMalformedEncoding, "output amount must be non-negative")
		}
		if err := address.Validate(c.Prefix, out.Address); err != nil {
			return err
		}
	}
	if tx.Sender != "" {
		if err := address.Validate(c.Prefix, tx.Sender); err != nil {
			return err
		}
	}
	if tx.Recipient != "" {
		if err := address.Validate(c.Prefix, tx.Recipient); err != nil {
			return err
		}
	}
	if tx.TxType != ledger.TxTypeCoinbase && !tx.HasNonce {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "non-coinbase transaction must carry a nonce")
	}
	if metaSize := metadataBytes(tx.Metadata); metaSize > ledger.MaxMetadataBytes {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "transaction metadata %d bytes exceeds max %d", metaSize, ledger.MaxMetadataBytes)
	}
	encoded, err := ledger.CanonicalTransactionBytes(tx, true)
	if err != nil {
		return err
	}
	maxSize := c.MaxTxSize
	if maxSize == 0 {
		maxSize = ledger.MaxTxSize
	}
	if len(encoded) > maxSize {
		return ledgererr.New(ledgererr.KindBlockSizeExceeded, "transaction %d bytes exceeds max size %d", len(encoded), maxSize)
	}
	return nil
}

// validateSignature is step 2: verify over canonical bytes with the
// signature field excluded. Coinbase transactions are exempt: they are
// constructed by the miner, not signed by a sender, and are instead
// trusted via the header signature that covers the whole block.
func (c *Context) validateSignature(tx *ledger.Transaction) error {
	if tx.TxType == ledger.TxTypeCoinbase {
		return nil
	}
	preimage, err := tx.SigningPreimage()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(tx.PublicKey, preimage, tx.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return ledgererr.New(ledgererr.KindInvalidSignature, "signature does not verify for tx %x", tx.TxID)
	}
	expectedSender := address.FromPublicKey(c.Prefix, tx.PublicKey)
	if !address.IsReserved(c.Prefix, tx.Sender) && expectedSender != tx.Sender {
		return ledgererr.New(ledgererr.KindInvalidSignature, "public key does not derive sender address %s", tx.Sender)
	}
	return nil
}

// validateNonce is step 3: equal to expected next, or part of a
// contiguous pending sequence already reserved or pooled for this
// sender. A nonce that duplicates a pooled one passes here; whether the
// duplicate survives is the pool's replace-by-fee decision.
func (c *Context) validateNonce(tx *ledger.Transaction) error {
	if c.PendingNonce != nil && c.PendingNonce(tx.Sender, tx.Nonce) {
		return nil
	}
	expected := c.Nonces.Get(tx.Sender) + 1
	for c.Nonces.IsReserved(tx.Sender, expected) || (c.PendingNonce != nil && c.PendingNonce(tx.Sender, expected)) {
		expected++
	}
	if tx.Nonce != expected {
		return ledgererr.New(ledgererr.KindNonceGap, "tx %x nonce %d does not match expected %d for sender %s", tx.TxID, tx.Nonce, expected, tx.Sender)
	}
	return nil
}

// validateCoverage is step 4: inputs exist, are unspent, and cover
// amount+fee+change, with each input's address matching the sender.
func (c *Context) validateCoverage(tx *ledger.Transaction) error {
	if len(tx.Inputs) == 0 {
		return ledgererr.New(ledgererr.KindInsufficientFunds, "tx %x has no inputs", tx.TxID)
	}
	var total amount.Amount
	for _, in := range tx.Inputs {
		op := utxo.Outpoint{TxID: in.PrevTxID, Vout: in.PrevVout}
		entry, ok := c.UTXOSet.Get(op)
		if !ok {
			return ledgererr.New(ledgererr.KindDoubleSpend, "tx %x input %x:%d is not a live UTXO", tx.TxID, in.PrevTxID, in.PrevVout)
		}
		if entry.Output.Address != tx.Sender {
			return ledgererr.New(ledgererr.KindInvalidAddress, "tx %x input %x:%d does not belong to sender %s", tx.TxID, in.PrevTxID, in.PrevVout, tx.Sender)
		}
		var err error
		total, err = amount.Add(total, entry.Output.Amount)
		if err != nil {
			return err
		}
	}
	required, err := amount.Add(tx.Amount, tx.Fee)
	if err != nil {
		return err
	}
	var outputsSum amount.Amount
	for _, out := range tx.Outputs {
		outputsSum, err = amount.Add(outputsSum, out.Amount)
		if err != nil {
			return err
		}
	}
	spent, err := amount.Add(outputsSum, tx.Fee)
	if err != nil {
		return err
	}
	if spent > total {
		return ledgererr.New(ledgererr.KindInsufficientFunds, "tx %x outputs %s plus fee %s exceed input total %s", tx.TxID, outputsSum, tx.Fee, total)
	}
	if total < required {
		return ledgererr.New(ledgererr.KindInsufficientFunds, "tx %x inputs %s do not cover amount+fee %s", tx.TxID, total, required)
	}
	return nil
}

// validatePolicy is step 5: non-dust amount, fee within [0, MAX_FEE],
// rbf/replaces-txid consistency.
func (c *Context) validatePolicy(tx *ledger.Transaction) error {
	for _, out := range tx.Outputs {
		if out.Amount > 0 && out.Amount < DustThreshold {
			return ledgererr.New(ledgererr.KindMalformedEncoding, "output amount %s is below dust threshold", out.Amount)
		}
	}
	maxFee := c.MaxFee
	if maxFee == 0 {
		maxFee = amount.Amount(1000 * amount.BaseUnit)
	}
	if tx.Fee < 0 || tx.Fee > maxFee {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "tx %x fee %s outside allowed range [0, %s]", tx.TxID, tx.Fee, maxFee)
	}
	if tx.ReplacesTxID != nil && !tx.RBFEnabled {
		return ledgererr.New(ledgererr.KindMalformedEncoding, "tx %x sets replaces_txid without rbf_enabled", tx.TxID)
	}
	return nil
}

// metadataBytes sums the raw key and value byte lengths of a transaction's
// metadata map, without the canonical length prefixes, so it is a lower
// bound on the encoded size that ledger.MaxMetadataBytes bounds;
// CanonicalTransactionBytes enforces the cap on the encoded size itself.
func metadataBytes(meta map[string]string) int {
	var n int
	for k, v := range meta {
		n += len(k) + len(v)
	}
	return n
}
