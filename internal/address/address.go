// Package address implements the ledger's address format: a network
// prefix ("XAI" mainnet, "TXAI" testnet) followed by a 40-character hex
// body with an EIP-55-style mixed-case checksum derived from sha3 of
// the lowercase body, plus a small set of reserved system addresses
// that bypass the hex-body rule entirely.
package address

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// BodyLength is the length in hex characters of a standard address body
// (20-byte payload).
const BodyLength = 40

// Reserved addresses bypass the hex-body/checksum rule.
const (
	ReservedCoinbase    = "COINBASE"
	ReservedGovernance  = "GOVERNANCE"
	ReservedStaking     = "STAKING"
	ReservedTimeCapsule = "TIMECAPSULE"
	ReservedTradeFee    = "TRADEFEE"
)

var reservedBodies = map[string]bool{
	ReservedCoinbase:    true,
	ReservedGovernance:  true,
	ReservedStaking:     true,
	ReservedTimeCapsule: true,
	ReservedTradeFee:    true,
}

// Prefix identifies which network an address belongs to.
type Prefix string

const (
	PrefixMainnet Prefix = "XAI"
	PrefixTestnet Prefix = "TXAI"
)

// FromPublicKey derives the canonical checksummed address for a public
// key on the given network: sha256(pubkey) truncated to 20 bytes, hex
// encoded, then EIP-55 checksummed.
func FromPublicKey(prefix Prefix, pubKeyBytes []byte) string {
	digest := sha256.Sum256(pubKeyBytes)
	body := hex.EncodeToString(digest[:20])
	return string(prefix) + Checksum(body)
}

// Checksum applies the EIP-55-style mixed-case checksum to a lowercase
// hex body: each hex digit of body is upper-cased iff the corresponding
// nibble of sha3(lowercase body) is >= 8.
func Checksum(lowerBody string) string {
	lowerBody = strings.ToLower(lowerBody)
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(lowerBody))
	hashed := hash.Sum(nil)

	out := make([]byte, len(lowerBody))
	for i, c := range lowerBody {
		if c >= '0' && c <= '9' {
			out[i] = byte(c)
			continue
		}
		// nibble i of hashed: high nibble for even i, low nibble for odd i.
		var nibble byte
		if i%2 == 0 {
			nibble = hashed[i/2] >> 4
		} else {
			nibble = hashed[i/2] & 0x0f
		}
		if nibble >= 8 {
			out[i] = byte(strings.ToUpper(string(c))[0])
		} else {
			out[i] = byte(c)
		}
	}
	return string(out)
}

// Validate checks that addr is well-formed for the given network:
// either one of the reserved names, or prefix+40 lowercase-hex-derived
// checksum body matching BodyLength.
func Validate(prefix Prefix, addr string) error {
	if !strings.HasPrefix(addr, string(prefix)) {
		return ledgererr.New(ledgererr.KindInvalidAddress, "address %q does not carry network prefix %q", addr, prefix)
	}
	body := addr[len(prefix):]

	if reservedBodies[body] {
		return nil
	}

	if len(body) != BodyLength {
		return ledgererr.New(ledgererr.KindInvalidAddress, "address body %q must be %d hex chars", body, BodyLength)
	}
	lower := strings.ToLower(body)
	if _, err := hex.DecodeString(lower); err != nil {
		return ledgererr.Wrap(ledgererr.KindInvalidAddress, err, "address body %q is not valid hex", body)
	}
	want := Checksum(lower)
	if want != body {
		return ledgererr.New(ledgererr.KindInvalidAddress, "address %q fails checksum (expected %s%s)", addr, prefix, want)
	}
	return nil
}

// IsReserved reports whether addr's body (ignoring prefix) names one of
// the reserved system addresses.
func IsReserved(prefix Prefix, addr string) bool {
	body := strings.TrimPrefix(addr, string(prefix))
	return reservedBodies[body]
}
