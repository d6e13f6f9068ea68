package chaincfg

import (
	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
)

// genesisCoinbase is the single transaction seeded into height 0: a
// zero-value coinbase with no inputs, paying the reserved COINBASE
// address nothing. It exists only to anchor the UTXO set and chain at a
// well-known root; it carries no signature and the chain engine trusts
// it unconditionally. Coinbase transactions already skip the nonce and
// coverage checks; genesis additionally skips the PoW and signature
// checks every other header must satisfy.
func genesisCoinbase(prefix address.Prefix) *ledger.Transaction {
	tx := &ledger.Transaction{
		Sender:    string(prefix) + address.ReservedCoinbase,
		Recipient: string(prefix) + address.ReservedCoinbase,
		Amount:    amount.Zero,
		Fee:       amount.Zero,
		TxType:    ledger.TxTypeCoinbase,
		Outputs: []ledger.TxOutput{
			{Address: string(prefix) + address.ReservedCoinbase, Amount: amount.Zero},
		},
		Timestamp: 0,
	}
	txid, err := tx.ComputeTxID()
	if err != nil {
		// Unreachable: a fixed, well-formed literal transaction with no
		// metadata always canonically encodes.
		panic(err)
	}
	tx.TxID = txid
	return tx
}

// genesisBlock builds the height-0 block for the given network prefix.
// Difficulty 0 marks it as the one header exempt from the leading-zero
// proof-of-work check; every descendant header is bound by the normal
// rule.
func genesisBlock(prefix address.Prefix) *ledger.Block {
	coinbase := genesisCoinbase(prefix)
	header := ledger.BlockHeader{
		Index:        0,
		PreviousHash: ledger.BlockHash{},
		MerkleRoot:   ledger.TransactionMerkleRoot([]*ledger.Transaction{coinbase}),
		Timestamp:    0,
		Difficulty:   0,
		Nonce:        0,
		Version:      1,
	}
	ledger.FinalizeHeaderHash(&header)
	return &ledger.Block{Header: header, Transactions: []*ledger.Transaction{coinbase}}
}

func mainNetGenesisBlock() *ledger.Block {
	return genesisBlock(address.PrefixMainnet)
}

func testNetGenesisBlock() *ledger.Block {
	return genesisBlock(address.PrefixTestnet)
}
