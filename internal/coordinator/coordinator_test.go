package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/xai-blockchain/xai-sub013/chaincfg"
	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/blockchain"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/mempool"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/storage"
	"github.com/xai-blockchain/xai-sub013/internal/utxo"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *chaincfg.Params) {
	t.Helper()
	p := chaincfg.TestNetParams
	p.MaxTestMiningDifficulty = 0
	p.CheckpointInterval = 0

	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	chain, err := blockchain.New(&p, store, utxo.NewSet(), noncetracker.New(), mempool.New(p.MempoolMax, p.MinRBFBumpPercent))
	if err != nil {
		t.Fatalf("blockchain.New: %v", err)
	}
	return New(chain), &p
}

func TestMineOnePublishesTipChanged(t *testing.T) {
	co, _ := newTestCoordinator(t)
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	sub := co.Subscribe()
	defer co.Unsubscribe(sub)

	block, err := co.MineOne(context.Background(), key)
	if err != nil {
		t.Fatalf("MineOne: %v", err)
	}

	select {
	case ev := <-sub:
		if ev.Kind != TipChanged {
			t.Fatalf("first event kind = %v, want TipChanged", ev.Kind)
		}
		if ev.Tip.Hash != block.Header.Hash {
			t.Fatalf("event tip hash = %x, want %x", ev.Tip.Hash, block.Header.Hash)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TipChanged event")
	}
}

func TestGetBalanceReflectsMinedReward(t *testing.T) {
	co, p := newTestCoordinator(t)
	key, _ := crypto.GenerateKeyPair()

	if _, err := co.MineOne(context.Background(), key); err != nil {
		t.Fatalf("MineOne: %v", err)
	}

	minerAddr := address.FromPublicKey(p.AddressPrefix, key.PublicKeyBytes())
	wantBalance := blockchain.BlockReward(1, p)
	if got := co.GetBalance(minerAddr); got != wantBalance {
		t.Errorf("GetBalance = %s, want %s", got, wantBalance)
	}
}

func TestGetMempoolViewEmptyByDefault(t *testing.T) {
	co, _ := newTestCoordinator(t)
	if view := co.GetMempoolView(); len(view) != 0 {
		t.Fatalf("GetMempoolView on a fresh chain = %v, want empty", view)
	}
}
