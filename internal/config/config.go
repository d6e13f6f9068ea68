// Package config parses the node's startup options: data directory,
// network type, fast mining, mempool capacity, checkpoint interval, and
// logging. Every option has a documented default, and unknown options
// fail loudly.
package config

import (
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/xai-blockchain/xai-sub013/chaincfg"
)

const (
	defaultDataDir                 = "data"
	defaultNetworkType             = "mainnet"
	defaultMaxTestMiningDifficulty = 2
	defaultDebugLevel              = "info"
)

// Config is the full set of startup options, including the logging
// knobs.
type Config struct {
	DataDir     string `short:"b" long:"datadir" description:"Directory to store blocks, state, and checkpoints"`
	NetworkType string `short:"n" long:"networktype" description:"Network to run: mainnet or testnet"`

	FastMiningEnabled       bool   `long:"fastmining" description:"Cap difficulty at maxtestminingdifficulty, for fast local/test mining"`
	MaxTestMiningDifficulty uint32 `long:"maxtestminingdifficulty" description:"Difficulty cap applied when fastmining is enabled"`

	MempoolMaxSize     int    `long:"mempoolmaxsize" description:"Override the network default mempool capacity"`
	CheckpointInterval uint64 `long:"checkpointinterval" description:"Override the network default checkpoint interval, in blocks"`

	CheckpointKeyFile string `long:"checkpointkeyfile" description:"Path to a private key file this node signs emitted checkpoints with (optional)"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}, or <subsystem>=<level>,... for individual subsystems"`
	LogDir     string `long:"logdir" description:"Directory to write the rotated log file to"`
}

// Parse parses os.Args (via go-flags) into a Config, applies the
// documented defaults for every unset option, resolves NetworkType to
// its chaincfg.Params, and validates the result. Unrecognized flags
// are rejected by the underlying parser itself.
func Parse() (*Config, *chaincfg.Params, error) {
	cfg := &Config{
		DataDir:                 defaultDataDir,
		NetworkType:             defaultNetworkType,
		MaxTestMiningDifficulty: defaultMaxTestMiningDifficulty,
		DebugLevel:              defaultDebugLevel,
	}

	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, nil, err
	}

	params, err := chaincfg.ByNetworkType(cfg.NetworkType)
	if err != nil {
		return nil, nil, err
	}

	// Copy, never mutate, the package-level Params: several nodes in one
	// process (tests, multi-network tooling) must not share overrides.
	resolved := *params
	resolved.FastMiningEnabled = cfg.FastMiningEnabled || resolved.FastMiningEnabled
	if cfg.MaxTestMiningDifficulty != 0 {
		resolved.MaxTestMiningDifficulty = cfg.MaxTestMiningDifficulty
	}
	if cfg.MempoolMaxSize > 0 {
		resolved.MempoolMax = cfg.MempoolMaxSize
	}
	if cfg.CheckpointInterval > 0 {
		resolved.CheckpointInterval = cfg.CheckpointInterval
	}

	if cfg.DataDir == "" {
		return nil, nil, errors.New("datadir may not be empty")
	}

	return cfg, &resolved, nil
}
