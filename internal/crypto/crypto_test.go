package crypto

import (
	"bytes"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("the canonical preimage of a transaction")

	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature length = %d, want %d", len(sig), SignatureSize)
	}

	ok, err := Verify(key.PublicKeyBytes(), msg, sig)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Errorf("Verify: valid signature did not verify")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("same message, same key")

	sig1, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("Sign(1): %v", err)
	}
	sig2, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("Sign(2): %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Errorf("signing the same message twice produced different signatures")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("original message")
	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if ok, _ := Verify(key.PublicKeyBytes(), []byte("tampered message"), sig); ok {
		t.Errorf("signature verified against a different message")
	}

	flipped := append([]byte(nil), sig...)
	flipped[10] ^= 0xff
	if ok, _ := Verify(key.PublicKeyBytes(), msg, flipped); ok {
		t.Errorf("tampered signature verified")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair(other): %v", err)
	}
	if ok, _ := Verify(other.PublicKeyBytes(), msg, sig); ok {
		t.Errorf("signature verified against the wrong public key")
	}
}

func TestVerifyRejectsMalformedInputs(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("msg")
	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if ok, err := Verify(key.PublicKeyBytes(), msg, sig[:SignatureSize-1]); ok || err != nil {
		t.Errorf("short signature: got (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := Verify([]byte{0x00, 0x01}, msg, sig); ok || err != nil {
		t.Errorf("malformed public key: got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestKeyPairFromPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	restored, err := KeyPairFromPrivateKeyBytes(key.PrivateKeyBytes())
	if err != nil {
		t.Fatalf("KeyPairFromPrivateKeyBytes: %v", err)
	}
	if !bytes.Equal(restored.PublicKeyBytes(), key.PublicKeyBytes()) {
		t.Errorf("restored key pair derives a different public key")
	}
	if len(key.PublicKeyBytes()) != PublicKeySize {
		t.Errorf("public key length = %d, want %d", len(key.PublicKeyBytes()), PublicKeySize)
	}

	if _, err := KeyPairFromPrivateKeyBytes([]byte{1, 2, 3}); err == nil {
		t.Errorf("KeyPairFromPrivateKeyBytes: expected error for short input")
	}
}

func TestSha256IsStable(t *testing.T) {
	a := Sha256([]byte("abc"))
	b := Sha256([]byte("abc"))
	if !bytes.Equal(a, b) || len(a) != 32 {
		t.Errorf("Sha256 must be a stable 32-byte digest")
	}
	if bytes.Equal(a, Sha256([]byte("abd"))) {
		t.Errorf("different inputs hashed to the same digest")
	}
}
