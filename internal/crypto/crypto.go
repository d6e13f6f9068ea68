// Package crypto implements the ledger's secp256k1 key, sign, and hash
// primitives: deterministic, free of global state, with a secure RNG
// for key generation and RFC 6979 deterministic nonces for signing.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// SignatureSize is the length in bytes of a compact ECDSA signature:
// 32 bytes of R followed by 32 bytes of S.
const SignatureSize = 64

// PublicKeySize is the length in bytes of a serialized compressed public
// key.
const PublicKeySize = 33

// KeyPair holds a secp256k1 private/public key pair.
type KeyPair struct {
	priv *btcec.PrivateKey
}

// GenerateKeyPair creates a new key pair using a cryptographically secure
// random source. It never reuses entropy and never touches package-level
// state.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating secp256k1 private key")
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromPrivateKeyBytes reconstructs a KeyPair from 32 raw private
// key bytes, e.g. when loading a miner identity from disk.
func KeyPairFromPrivateKeyBytes(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "private key must be 32 bytes, got %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return &KeyPair{priv: priv}, nil
}

// PrivateKeyBytes returns the raw 32-byte private key.
func (k *KeyPair) PrivateKeyBytes() []byte {
	return k.priv.Serialize()
}

// PublicKeyBytes returns the 33-byte compressed public key.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// Sign produces a 64-byte compact R||S ECDSA signature over
// sha256(msg), using RFC 6979 deterministic nonces so that signing the
// same message twice with the same key yields byte-identical
// signatures.
func Sign(k *KeyPair, msg []byte) ([]byte, error) {
	digest := Sha256(msg)
	compact, err := ecdsa.SignCompact(k.priv, digest, true)
	if err != nil {
		return nil, errors.Wrap(err, "signing message")
	}
	// SignCompact prepends a one-byte public-key recovery header. The
	// verifier is always handed the public key, so only the fixed
	// 64-byte R||S payload goes on the wire.
	return compact[1:], nil
}

// Verify checks a compact R||S signature produced by Sign against a
// compressed public key and the original message bytes.
func Verify(pubKeyBytes []byte, msg []byte, sig []byte) (bool, error) {
	if len(sig) != SignatureSize {
		return false, nil
	}
	pub, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, nil
	}
	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false, nil
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false, nil
	}
	digest := Sha256(msg)
	return ecdsa.NewSignature(&r, &s).Verify(digest, pub), nil
}

// ParsePublicKey validates that b is a well-formed compressed secp256k1
// public key.
func ParsePublicKey(b []byte) (*btcec.PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.KindInvalidSignature, err, "parsing public key")
	}
	return pub, nil
}

// Sha256 returns the 32-byte SHA-256 digest of b.
func Sha256(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// SecureRandomBytes returns n cryptographically secure random bytes, for
// callers that need entropy outside of key generation (e.g. PoW test
// fixtures).
func SecureRandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "reading secure random bytes")
	}
	return buf, nil
}
