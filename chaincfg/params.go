// Package chaincfg holds the per-network parameters: the address
// prefix, the genesis block, and the sizing of every ledger constant -
// block limits, reorg depth, difficulty window, mempool capacity,
// checkpoint interval, and the reward schedule.
package chaincfg

import (
	"time"

	"github.com/xai-blockchain/xai-sub013/internal/address"
	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

// Default ledger constants. Every field here may be overridden per
// Params; these are the values MainNetParams/TestNetParams use unless
// a test harness substitutes faster ones.
const (
	DefaultMaxBlockSize        = 2_000_000
	DefaultMaxTxPerBlock       = 5000
	DefaultMaxReorgDepth       = 100
	DefaultTargetBlockTime     = 120 * time.Second
	DefaultDifficultyWindow    = 10
	DefaultMaxAdjustmentFactor = 4
	DefaultMempoolMax          = 50_000
	DefaultMinRBFBumpPercent   = 10
	DefaultCheckpointInterval  = 1000

	// MinDifficulty is the lowest difficulty (required leading hex-zero
	// nibbles) next_difficulty will ever return.
	MinDifficulty = 1
	// MaxDifficulty bounds difficulty so fast/test networks cannot spiral
	// into an unminable target.
	MaxDifficulty = 64

	// SubsidyHalvingInterval is the number of blocks between successive
	// halvings of the block reward (Glossary: "Block reward").
	SubsidyHalvingInterval = 210_000
)

// MaxFee is the fixed-point per-transaction fee ceiling.
var MaxFee = amount.Amount(1000 * amount.BaseUnit)

// InitialBlockReward is the coinbase subsidy paid at height 1, before any
// halving has occurred.
var InitialBlockReward = amount.Amount(50 * amount.BaseUnit)

// Params groups every network-specific knob a node needs at startup:
// which address prefix to accept, what genesis block to seed an empty
// chain with, and how the difficulty/reorg/mempool/checkpoint
// subsystems should be sized. Selected once at startup from the
// configured network type.
type Params struct {
	Name string

	// AddressPrefix is the network's address prefix.
	AddressPrefix address.Prefix

	// GenesisBlock is the first block of the chain; height 0.
	GenesisBlock *ledger.Block

	MaxBlockSize        int
	MaxTxPerBlock       int
	MaxReorgDepth       uint64
	TargetBlockTime     time.Duration
	DifficultyWindow    uint64
	MaxAdjustmentFactor uint32
	MempoolMax          int
	MinRBFBumpPercent   int
	CheckpointInterval  uint64

	SubsidyHalvingInterval uint64
	InitialBlockReward     amount.Amount
	MaxFee                 amount.Amount

	// FastMiningEnabled caps PoW difficulty at MaxTestMiningDifficulty,
	// for test and development networks.
	FastMiningEnabled       bool
	MaxTestMiningDifficulty uint32
}

// MainNetParams is the production network: standard difficulty, no
// mining shortcuts.
var MainNetParams = Params{
	Name:                   "mainnet",
	AddressPrefix:          address.PrefixMainnet,
	GenesisBlock:           mainNetGenesisBlock(),
	MaxBlockSize:           DefaultMaxBlockSize,
	MaxTxPerBlock:          DefaultMaxTxPerBlock,
	MaxReorgDepth:          DefaultMaxReorgDepth,
	TargetBlockTime:        DefaultTargetBlockTime,
	DifficultyWindow:       DefaultDifficultyWindow,
	MaxAdjustmentFactor:    DefaultMaxAdjustmentFactor,
	MempoolMax:             DefaultMempoolMax,
	MinRBFBumpPercent:      DefaultMinRBFBumpPercent,
	CheckpointInterval:     DefaultCheckpointInterval,
	SubsidyHalvingInterval: SubsidyHalvingInterval,
	InitialBlockReward:     InitialBlockReward,
	MaxFee:                 MaxFee,
	FastMiningEnabled:      false,
}

// TestNetParams mirrors MainNetParams but allows fast_mining_enabled so
// test harnesses and CI can mine blocks without burning wall-clock time.
var TestNetParams = Params{
	Name:                    "testnet",
	AddressPrefix:           address.PrefixTestnet,
	GenesisBlock:            testNetGenesisBlock(),
	MaxBlockSize:            DefaultMaxBlockSize,
	MaxTxPerBlock:           DefaultMaxTxPerBlock,
	MaxReorgDepth:           DefaultMaxReorgDepth,
	TargetBlockTime:         DefaultTargetBlockTime,
	DifficultyWindow:        DefaultDifficultyWindow,
	MaxAdjustmentFactor:     DefaultMaxAdjustmentFactor,
	MempoolMax:              DefaultMempoolMax,
	MinRBFBumpPercent:       DefaultMinRBFBumpPercent,
	CheckpointInterval:      DefaultCheckpointInterval,
	SubsidyHalvingInterval:  SubsidyHalvingInterval,
	InitialBlockReward:      InitialBlockReward,
	MaxFee:                  MaxFee,
	FastMiningEnabled:       true,
	MaxTestMiningDifficulty: 2,
}

// ByNetworkType resolves a configured network type string to its
// Params.
func ByNetworkType(networkType string) (*Params, error) {
	switch networkType {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet":
		return &TestNetParams, nil
	default:
		return nil, ledgererr.New(ledgererr.KindMalformedEncoding, "unknown network_type %q", networkType)
	}
}
