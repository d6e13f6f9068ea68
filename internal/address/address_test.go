package address

import (
	"strings"
	"testing"
)

func TestChecksumIsStableAndMixedCase(t *testing.T) {
	body := "aaaabbbbccccddddeeeeffff0000111122223333"
	sum := Checksum(body)
	if strings.ToLower(sum) != body {
		t.Fatalf("checksum changed the hex digits: %s", sum)
	}
	if sum != Checksum(strings.ToUpper(body)) {
		t.Errorf("checksum must be case-insensitive over its input")
	}
}

func TestValidateAcceptsDerivedAddress(t *testing.T) {
	pub := []byte{0x02, 1, 2, 3, 4, 5}
	addr := FromPublicKey(PrefixMainnet, pub)
	if err := Validate(PrefixMainnet, addr); err != nil {
		t.Fatalf("Validate(%s): %v", addr, err)
	}
	if err := Validate(PrefixTestnet, addr); err == nil {
		t.Errorf("mainnet address must fail testnet validation")
	}
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	pub := []byte{0x03, 9, 9, 9}
	addr := FromPublicKey(PrefixMainnet, pub)
	flipped := string(PrefixMainnet) + strings.ToLower(addr[len(PrefixMainnet):])
	if flipped == addr {
		t.Skip("derived address happens to be all lowercase")
	}
	if err := Validate(PrefixMainnet, flipped); err == nil {
		t.Errorf("Validate should reject a body with the wrong case pattern")
	}
}

func TestValidateAcceptsReserved(t *testing.T) {
	for _, body := range []string{ReservedCoinbase, ReservedGovernance, ReservedStaking, ReservedTimeCapsule, ReservedTradeFee} {
		addr := string(PrefixMainnet) + body
		if err := Validate(PrefixMainnet, addr); err != nil {
			t.Errorf("Validate(%s): %v", addr, err)
		}
		if !IsReserved(PrefixMainnet, addr) {
			t.Errorf("IsReserved(%s) = false, want true", addr)
		}
	}
}

func TestValidateRejectsWrongLength(t *testing.T) {
	if err := Validate(PrefixMainnet, "XAIdeadbeef"); err == nil {
		t.Errorf("Validate should reject a short body")
	}
}
