package ledger

import (
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// FinalizeHeaderHash computes and assigns h.Hash from its content fields.
// Callers must do this before signing or persisting a header.
func FinalizeHeaderHash(h *BlockHeader) {
	h.Hash = ComputeHeaderHash(h)
}

// SignHeader signs h.Hash with the miner's key pair and assigns the
// result to h.Signature. h.Hash must already be finalized and
// h.MinerPubKey must match key's public key.
func SignHeader(h *BlockHeader, key *crypto.KeyPair) error {
	sig, err := crypto.Sign(key, h.Hash[:])
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindInvalidSignature, err, "signing block header")
	}
	h.Signature = sig
	return nil
}

// LeadingZeroNibbles counts how many leading hex nibbles of hash are
// zero, the quantity the proof-of-work rule compares against a header's
// difficulty. Shared by the chain engine's block-level PoW check and
// the miner's own nonce search, so the two sides can never drift
// apart.
func LeadingZeroNibbles(hash BlockHash) uint32 {
	var n uint32
	for _, b := range hash {
		if b == 0 {
			n += 2
			continue
		}
		if b < 0x10 {
			n++
		}
		break
	}
	return n
}

// VerifyHeaderSignature checks that h.Signature is a valid signature by
// h.MinerPubKey over h.Hash, and that h.Hash matches the header's
// content fields.
func VerifyHeaderSignature(h *BlockHeader) error {
	if ComputeHeaderHash(h) != h.Hash {
		return ledgererr.New(ledgererr.KindInvalidProofOfWork, "header hash does not match content fields")
	}
	ok, err := crypto.Verify(h.MinerPubKey, h.Hash[:], h.Signature)
	if err != nil {
		return ledgererr.Wrap(ledgererr.KindInvalidSignature, err, "verifying header signature")
	}
	if !ok {
		return ledgererr.New(ledgererr.KindInvalidSignature, "header signature does not verify against miner public key")
	}
	return nil
}
