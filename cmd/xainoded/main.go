// xainoded runs the ledger core's node process: config parsing,
// storage open, chain load/seed, and a mining loop, wired through the
// coordinator facade. P2P transport and the RPC surface live in other
// services; this process is the consensus core alone.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xai-blockchain/xai-sub013/internal/blockchain"
	"github.com/xai-blockchain/xai-sub013/internal/config"
	"github.com/xai-blockchain/xai-sub013/internal/coordinator"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
	"github.com/xai-blockchain/xai-sub013/internal/mempool"
	"github.com/xai-blockchain/xai-sub013/internal/noncetracker"
	"github.com/xai-blockchain/xai-sub013/internal/storage"
	"github.com/xai-blockchain/xai-sub013/internal/utxo"
)

var log, _ = logger.Get(logger.SubsystemTags.CORD)

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "xainoded: %s\n", err)
		os.Exit(1)
	}
}

func realMain() error {
	cfg, params, err := config.Parse()
	if err != nil {
		return err
	}

	if cfg.LogDir != "" {
		logger.InitLogRotator(cfg.LogDir + "/xainoded.log")
	}
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	chain, err := blockchain.New(params, store, utxo.NewSet(), noncetracker.New(), mempool.New(params.MempoolMax, params.MinRBFBumpPercent))
	if err != nil {
		return err
	}

	if cfg.CheckpointKeyFile != "" {
		keyBytes, err := os.ReadFile(cfg.CheckpointKeyFile)
		if err != nil {
			return err
		}
		checkpointKey, err := crypto.KeyPairFromPrivateKeyBytes(keyBytes)
		if err != nil {
			return err
		}
		chain.SetCheckpointKey(checkpointKey)
	}

	co := coordinator.New(chain)

	miningKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		log.Infof("received shutdown signal")
		cancel()
	}()

	log.Infof("xainoded started: network %s, tip height %d", params.Name, co.GetTip().Height)
	runMiningLoop(ctx, co, miningKey)
	log.Infof("xainoded shutting down")
	return nil
}

// runMiningLoop repeatedly calls MineOne until ctx is cancelled. A
// block lost to a competing submission is logged and retried against
// the new tip rather than treated as fatal.
func runMiningLoop(ctx context.Context, co *coordinator.Coordinator, key *crypto.KeyPair) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := co.MineOne(ctx, key); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("mining attempt failed: %s", err)
		}
	}
}
