package mining

import (
	"context"
	"testing"

	"github.com/xai-blockchain/xai-sub013/chaincfg"
	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/blockchain"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/mempool"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/storage"
	"github.com/xai-blockchain/xai-sub013/internal/utxo"
)

func testParams() *chaincfg.Params {
	p := chaincfg.TestNetParams
	p.MaxTestMiningDifficulty = 0
	p.CheckpointInterval = 0
	return &p
}

func newTestChain(t *testing.T, p *chaincfg.Params) *blockchain.Chain {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c, err := blockchain.New(p, store, utxo.NewSet(), noncetracker.New(), mempool.New(p.MempoolMax, p.MinRBFBumpPercent))
	if err != nil {
		t.Fatalf("blockchain.New: %v", err)
	}
	return c
}

func TestMineOneExtendsTip(t *testing.T) {
	p := testParams()
	c := newTestChain(t, p)
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	m := New(c, key)

	block, err := m.MineOne(context.Background())
	if err != nil {
		t.Fatalf("MineOne: %v", err)
	}
	if block.Header.Index != 1 {
		t.Fatalf("mined block height = %d, want 1", block.Header.Index)
	}

	tip := c.Tip()
	if tip.Hash != block.Header.Hash || tip.Height != 1 {
		t.Fatalf("Tip = %+v, want height 1 hash %x", tip, block.Header.Hash)
	}

	minerAddr := address.FromPublicKey(p.AddressPrefix, key.PublicKeyBytes())
	wantBalance := blockchain.BlockReward(1, p)
	if got := c.UTXOSet().Balance(minerAddr); got != wantBalance {
		t.Errorf("miner balance = %s, want %s", got, wantBalance)
	}
}

func TestMineOneStreakAcrossBlocks(t *testing.T) {
	p := testParams()
	c := newTestChain(t, p)
	key, _ := crypto.GenerateKeyPair()
	m := New(c, key)

	for i := 0; i < 3; i++ {
		if _, err := m.MineOne(context.Background()); err != nil {
			t.Fatalf("MineOne iteration %d: %v", i, err)
		}
	}

	if streak := c.ConsecutiveStreak(key.PublicKeyBytes()); streak != 3 {
		t.Fatalf("ConsecutiveStreak after mining 3 consecutive blocks = %d, want 3", streak)
	}
}
