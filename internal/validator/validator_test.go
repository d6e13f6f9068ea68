package validator

import (
	"testing"

	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/utxo"
)

const testPrefix = address.PrefixMainnet

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	if err != nil {
		t.Fatalf("amount.Parse(%q): %v", s, err)
	}
	return a
}

// fundedContext builds a Context with one live UTXO owned by a fresh
// key pair's address, funding is.Output.Amount, and returns the context
// along with the key and the funding outpoint so tests can build a
// spending transaction.
func fundedContext(t *testing.T, fundAmount string) (*Context, *crypto.KeyPair, string, utxo.Outpoint) {
	t.Helper()
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	addr := address.FromPublicKey(testPrefix, key.PublicKeyBytes())

	set := utxo.NewSet()
	funding := &ledger.Transaction{
		TxType:  ledger.TxTypeCoinbase,
		Outputs: []ledger.TxOutput{{Address: addr, Amount: mustAmount(t, fundAmount)}},
	}
	funding.TxID[0] = 7
	set.ApplyOutputs(funding)

	ctx := &Context{
		Prefix:  testPrefix,
		UTXOSet: set,
		Nonces:  noncetracker.New(),
		MaxFee:  mustAmount(t, "1000.00000000"),
	}
	return ctx, key, addr, utxo.Outpoint{TxID: funding.TxID, Vout: 0}
}

func signedTx(t *testing.T, key *crypto.KeyPair, tx *ledger.Transaction) *ledger.Transaction {
	t.Helper()
	tx.PublicKey = key.PublicKeyBytes()
	preimage, err := tx.SigningPreimage()
	if err != nil {
		t.Fatalf("SigningPreimage: %v", err)
	}
	sig, err := crypto.Sign(key, preimage)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Signature = sig
	txid, err := tx.ComputeTxID()
	if err != nil {
		t.Fatalf("ComputeTxID: %v", err)
	}
	tx.TxID = txid
	return tx
}

func TestValidateAcceptsWellFormedSpend(t *testing.T) {
	ctx, key, addr, op := fundedContext(t, "10.00000000")
	other := address.FromPublicKey(testPrefix, mustKey(t).PublicKeyBytes())

	tx := &ledger.Transaction{
		Sender:    addr,
		Recipient: other,
		Amount:    mustAmount(t, "5.00000000"),
		Fee:       mustAmount(t, "0.00100000"),
		TxType:    ledger.TxTypeNormal,
		HasNonce:  true,
		Nonce:     0,
		Inputs:    []ledger.TxInput{{PrevTxID: op.TxID, PrevVout: op.Vout}},
		Outputs: []ledger.TxOutput{
			{Address: other, Amount: mustAmount(t, "5.00000000")},
			{Address: addr, Amount: mustAmount(t, "4.99900000")},
		},
		Timestamp: 1700000000,
	}
	signedTx(t, key, tx)

	if err := ctx.Validate(tx); err != nil {
		t.Errorf("Validate: unexpected error for well-formed spend: %v", err)
	}
}

func mustKey(t *testing.T) *crypto.KeyPair {
	t.Helper()
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return key
}

func TestValidateRejectsBadSignature(t *testing.T) {
	ctx, key, addr, op := fundedContext(t, "10.00000000")
	tx := &ledger.Transaction{
		Sender:   addr,
		Amount:   mustAmount(t, "1.00000000"),
		Fee:      mustAmount(t, "0.00100000"),
		TxType:   ledger.TxTypeNormal,
		HasNonce: true,
		Nonce:    0,
		Inputs:   []ledger.TxInput{{PrevTxID: op.TxID, PrevVout: op.Vout}},
		Outputs:  []ledger.TxOutput{{Address: addr, Amount: mustAmount(t, "8.99900000")}},
	}
	signedTx(t, key, tx)
	tx.Signature[0] ^= 0xff

	err := ctx.Validate(tx)
	if !ledgererr.Is(err, ledgererr.KindInvalidSignature) {
		t.Errorf("Validate: expected InvalidSignature, got %v", err)
	}
}

func TestValidateRejectsNonceGap(t *testing.T) {
	ctx, key, addr, op := fundedContext(t, "10.00000000")
	tx := &ledger.Transaction{
		Sender:   addr,
		Amount:   mustAmount(t, "1.00000000"),
		Fee:      mustAmount(t, "0.00100000"),
		TxType:   ledger.TxTypeNormal,
		HasNonce: true,
		Nonce:    5,
		Inputs:   []ledger.TxInput{{PrevTxID: op.TxID, PrevVout: op.Vout}},
		Outputs:  []ledger.TxOutput{{Address: addr, Amount: mustAmount(t, "8.99900000")}},
	}
	signedTx(t, key, tx)

	err := ctx.Validate(tx)
	if !ledgererr.Is(err, ledgererr.KindNonceGap) {
		t.Errorf("Validate: expected NonceGap, got %v", err)
	}
}

func TestValidateRejectsDoubleSpend(t *testing.T) {
	ctx, key, addr, _ := fundedContext(t, "10.00000000")
	tx := &ledger.Transaction{
		Sender:   addr,
		Amount:   mustAmount(t, "1.00000000"),
		Fee:      mustAmount(t, "0.00100000"),
		TxType:   ledger.TxTypeNormal,
		HasNonce: true,
		Nonce:    0,
		Inputs:   []ledger.TxInput{{PrevTxID: ledger.TxID{0xaa}, PrevVout: 0}},
		Outputs:  []ledger.TxOutput{{Address: addr, Amount: mustAmount(t, "8.99900000")}},
	}
	signedTx(t, key, tx)

	err := ctx.Validate(tx)
	if !ledgererr.Is(err, ledgererr.KindDoubleSpend) {
		t.Errorf("Validate: expected DoubleSpend, got %v", err)
	}
}

func TestValidateRejectsInsufficientFunds(t *testing.T) {
	ctx, key, addr, op := fundedContext(t, "1.00000000")
	tx := &ledger.Transaction{
		Sender:   addr,
		Amount:   mustAmount(t, "5.00000000"),
		Fee:      mustAmount(t, "0.00100000"),
		TxType:   ledger.TxTypeNormal,
		HasNonce: true,
		Nonce:    0,
		Inputs:   []ledger.TxInput{{PrevTxID: op.TxID, PrevVout: op.Vout}},
		Outputs:  []ledger.TxOutput{{Address: addr, Amount: mustAmount(t, "5.00000000")}},
	}
	signedTx(t, key, tx)

	err := ctx.Validate(tx)
	if !ledgererr.Is(err, ledgererr.KindInsufficientFunds) {
		t.Errorf("Validate: expected InsufficientFunds, got %v", err)
	}
}

func TestValidateRejectsDustOutput(t *testing.T) {
	ctx, key, addr, op := fundedContext(t, "10.00000000")
	tx := &ledger.Transaction{
		Sender:   addr,
		Amount:   mustAmount(t, "0.00000010"),
		Fee:      mustAmount(t, "0.00100000"),
		TxType:   ledger.TxTypeNormal,
		HasNonce: true,
		Nonce:    0,
		Inputs:   []ledger.TxInput{{PrevTxID: op.TxID, PrevVout: op.Vout}},
		Outputs: []ledger.TxOutput{
			{Address: addr, Amount: amount.Amount(1)},
		},
	}
	signedTx(t, key, tx)

	err := ctx.Validate(tx)
	if err == nil {
		t.Errorf("Validate: expected dust rejection, got nil")
	}
}

func TestValidateCoinbaseSkipsNonceAndCoverage(t *testing.T) {
	ctx, _, addr, _ := fundedContext(t, "10.00000000")
	tx := &ledger.Transaction{
		Sender:    string(testPrefix) + address.ReservedCoinbase,
		Recipient: addr,
		TxType:    ledger.TxTypeCoinbase,
		Outputs:   []ledger.TxOutput{{Address: addr, Amount: mustAmount(t, "50.00000000")}},
	}
	txid, err := tx.ComputeTxID()
	if err != nil {
		t.Fatalf("ComputeTxID: %v", err)
	}
	tx.TxID = txid

	if err := ctx.Validate(tx); err != nil {
		t.Errorf("Validate: unexpected error for coinbase: %v", err)
	}
}
