// Package ledger holds the ledger's core data model, transactions,
// blocks, and headers, together with the canonical codec that is the
// single source of truth for every hash and signature preimage. Hashes
// cover canonical bytes with the hash and signature fields excluded;
// the encoding is deterministic: sorted map keys, decimal amount
// strings, no alternative encodings accepted on decode.
package ledger

import (
	"github.com/xai-blockchain/xai-sub013/internal/amount"
)

// TxID is the content hash identifying a transaction.
type TxID [32]byte

// BlockHash is the content hash identifying a block header.
type BlockHash [32]byte

// TxType is the closed set of transaction variants.
type TxType string

const (
	TxTypeNormal TxType = "normal"
	TxTypeCoinbase TxType = "coinbase"

	// Governance sub-variants, all sharing the "governance_" prefix.
	// TxTypeGovernanceRollback reverts an executed proposal back to
	// rejected.
	TxTypeGovernanceSubmit   TxType = "governance_submit"
	TxTypeGovernanceVote     TxType = "governance_vote"
	TxTypeGovernanceReview   TxType = "governance_review"
	TxTypeGovernanceExecute  TxType = "governance_execute"
	TxTypeGovernanceRollback TxType = "governance_rollback"
)

// IsGovernance reports whether t is one of the governance_* sub-variants.
func (t TxType) IsGovernance() bool {
	switch t {
	case TxTypeGovernanceSubmit, TxTypeGovernanceVote, TxTypeGovernanceReview, TxTypeGovernanceExecute, TxTypeGovernanceRollback:
		return true
	}
	return false
}

// TxOutput is a single payment to an address.
type TxOutput struct {
	Address string
	Amount  amount.Amount
}

// TxInput references an output produced by a prior confirmed
// transaction, or by a prior transaction earlier in the same block.
type TxInput struct {
	PrevTxID TxID
	PrevVout uint32
}

// GovernancePayload carries the proposal/vote/review/execute data for
// governance_* transactions. Only the fields relevant to TxType are
// meaningful; the rest are zero. Interpreted by internal/governance, not
// by this package.
type GovernancePayload struct {
	ProposalID string
	// Title/Body are only set on governance_submit.
	Title string
	Body  string
	// Choice is only set on governance_vote: "yes", "no", or "abstain".
	Choice string
	// ExecutePayload is opaque calldata-like data for governance_execute.
	ExecutePayload []byte
}

// Transaction is the ledger's atomic unit of state transition.
type Transaction struct {
	// TxID is derived from CanonicalTransactionBytes, never supplied by
	// the caller directly.
	TxID TxID

	Sender    string
	Recipient string

	Amount amount.Amount
	Fee    amount.Amount

	PublicKey []byte
	Signature []byte

	TxType TxType

	// Nonce is the per-sender monotonic sequence number. HasNonce is
	// false for coinbase transactions, which carry no nonce.
	Nonce    int64
	HasNonce bool

	Inputs  []TxInput
	Outputs []TxOutput

	RBFEnabled   bool
	ReplacesTxID *TxID

	Timestamp int64 // unix seconds

	// Metadata is an opaque canonical key/value container, capped at
	// MaxMetadataBytes of canonical-encoded size.
	Metadata map[string]string

	Governance *GovernancePayload
}

// MaxMetadataBytes is the canonical-encoded size cap on a transaction's
// metadata map, a conservative bound applied to the whole map.
const MaxMetadataBytes = 2048

// MaxTxSize bounds a single transaction's canonical-encoded size,
// independent of the block-level MaxBlockSize clamp.
const MaxTxSize = 128 * 1024

// BlockHeader binds a block to its parent, its transaction set, and its
// proof of work.
type BlockHeader struct {
	Index         uint64
	PreviousHash  BlockHash
	MerkleRoot    [32]byte
	Timestamp     int64
	Difficulty    uint32
	Nonce         uint64
	Version       int32
	MinerPubKey   []byte
	Signature     []byte
	// Hash is derived from CanonicalHeaderPreimage, never supplied
	// directly.
	Hash BlockHash
}

// Block is a header plus its ordered transaction list.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// CoinbaseTx returns the block's coinbase transaction (always index 0
// once the block passes structural validation).
func (b *Block) CoinbaseTx() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}
