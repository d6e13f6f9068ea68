// Package coordinator implements the node's facade: the single entry
// point external collaborators (network peers, an RPC/API layer, a CLI)
// call into, serializing every state-changing call through the chain
// engine's own writer lock and publishing tip/mempool/reorg events to
// subscribers over plain buffered channels. Fire-and-forget
// notification is all the contract needs, so there is no typed
// multi-subscriber filtering layer.
package coordinator

import (
	"context"
	"sync"

	"github.com/xai-blockchain/xai-sub013/internal/amount"
	"github.com/xai-blockchain/xai-sub013/internal/blockchain"
	"github.com/xai-blockchain/xai-sub013/internal/crypto"
	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
	"github.com/xai-blockchain/xai-sub013/internal/mining"
)

var log, _ = logger.Get(logger.SubsystemTags.CORD)

// EventKind distinguishes the notifications subscribers can receive:
// a tip change from either an extension or a reorg, a completed
// reorganization, and a mempool change from admission or post-reorg
// revalidation.
type EventKind int

const (
	TipChanged EventKind = iota
	MempoolChanged
	ReorgCompleted
)

// Event is published to every subscriber after a state-changing call
// completes.
type Event struct {
	Kind  EventKind
	Tip   blockchain.Tip
	Depth uint64 // populated only for ReorgCompleted
}

// eventBufferSize bounds how far a subscriber can lag before it starts
// missing events; a subscriber that can't keep up is better served
// stale than allowed to block every other writer.
const eventBufferSize = 64

// MempoolSummary is one line of GetMempoolView's output.
type MempoolSummary struct {
	TxID    ledger.TxID
	Sender  string
	FeeRate float64
	Size    int
}

// Coordinator is the node's narrow, re-entrancy-safe external surface.
// It owns no locking of its own beyond what the chain and mempool
// already provide; the single writer lock is Chain's own mutex, which
// every state-changing operation here passes through exactly once per
// call.
type Coordinator struct {
	chain *blockchain.Chain

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New wraps chain in a Coordinator ready to serve external callers.
func New(chain *blockchain.Chain) *Coordinator {
	return &Coordinator{
		chain: chain,
		subs:  make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new event channel. The caller must keep
// reading it (or call Unsubscribe) to avoid missing events once the
// internal buffer fills.
func (co *Coordinator) Subscribe() chan Event {
	ch := make(chan Event, eventBufferSize)
	co.subMu.Lock()
	defer co.subMu.Unlock()
	co.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (co *Coordinator) Unsubscribe(ch chan Event) {
	co.subMu.Lock()
	defer co.subMu.Unlock()
	if _, ok := co.subs[ch]; ok {
		delete(co.subs, ch)
		close(ch)
	}
}

// publish fans ev out to every subscriber without blocking: a
// subscriber whose buffer is full simply misses this event rather than
// stalling the writer that produced it.
func (co *Coordinator) publish(ev Event) {
	co.subMu.Lock()
	defer co.subMu.Unlock()
	for ch := range co.subs {
		select {
		case ch <- ev:
		default:
			if log != nil {
				log.Warnf("dropping event %v for slow subscriber", ev.Kind)
			}
		}
	}
}

// SubmitTransaction admits tx to the mempool and notifies
// subscribers.
func (co *Coordinator) SubmitTransaction(tx *ledger.Transaction) error {
	pool := co.chain.Mempool()
	vctx := co.chain.NewValidatorContext()
	if err := pool.Admit(vctx, tx); err != nil {
		return err
	}
	co.publish(Event{Kind: MempoolChanged, Tip: co.chain.Tip()})
	return nil
}

// validationBudgetFactor bounds how much oversized a submitted block may
// be before SubmitBlock refuses to spend validation work on it at all. A
// block within the factor but over the consensus caps still gets a full
// validation pass and its precise rejection kind.
const validationBudgetFactor = 4

// SubmitBlock runs block through the chain engine's validate-then-commit
// path. A block grossly over the size or count caps is refused before
// any per-transaction work, so a hostile peer cannot buy minutes of
// signature checking with one giant submission.
func (co *Coordinator) SubmitBlock(block *ledger.Block) (blockchain.ResultKind, error) {
	params := co.chain.Params()
	if len(block.Transactions) > validationBudgetFactor*params.MaxTxPerBlock {
		return 0, ledgererr.New(ledgererr.KindResourceExhausted, "block carries %d transactions, beyond the validation budget", len(block.Transactions))
	}
	if encoded, err := ledger.CanonicalBlockBytes(block); err != nil {
		return 0, err
	} else if len(encoded) > validationBudgetFactor*params.MaxBlockSize {
		return 0, ledgererr.New(ledgererr.KindResourceExhausted, "block is %d bytes, beyond the validation budget", len(encoded))
	}

	result, err := co.chain.AddBlock(block)
	if err != nil {
		return 0, err
	}
	ev := Event{Kind: TipChanged, Tip: co.chain.Tip()}
	co.publish(ev)
	if result.Kind == blockchain.Reorganized {
		co.publish(Event{Kind: ReorgCompleted, Tip: ev.Tip, Depth: result.Depth})
	}
	co.publish(Event{Kind: MempoolChanged, Tip: ev.Tip})
	return result.Kind, nil
}

// MineOne drives one mining pipeline pass under miner's key pair.
func (co *Coordinator) MineOne(ctx context.Context, miner *crypto.KeyPair) (*ledger.Block, error) {
	m := mining.New(co.chain, miner)
	block, err := m.MineOne(ctx)
	if err != nil {
		return nil, err
	}
	co.publish(Event{Kind: TipChanged, Tip: co.chain.Tip()})
	co.publish(Event{Kind: MempoolChanged, Tip: co.chain.Tip()})
	return block, nil
}

// GetTip returns the canonical chain's current tip.
func (co *Coordinator) GetTip() blockchain.Tip {
	return co.chain.Tip()
}

// GetBlock returns the full block at height.
func (co *Coordinator) GetBlock(height uint64) (*ledger.Block, error) {
	return co.chain.GetBlock(height)
}

// GetBlockByHash returns the full block identified by hash.
func (co *Coordinator) GetBlockByHash(hash ledger.BlockHash) (*ledger.Block, error) {
	return co.chain.GetBlockByHash(hash)
}

// GetBalance returns addr's confirmed balance.
func (co *Coordinator) GetBalance(addr string) amount.Amount {
	return co.chain.UTXOSet().Balance(addr)
}

// GetMempoolView returns every pooled transaction as a sorted
// summary.
func (co *Coordinator) GetMempoolView() []MempoolSummary {
	entries := co.chain.Mempool().Entries()
	out := make([]MempoolSummary, len(entries))
	for i, e := range entries {
		out[i] = MempoolSummary{TxID: e.Tx.TxID, Sender: e.Tx.Sender, FeeRate: e.FeeRate, Size: e.Size}
	}
	return out
}

// Chain exposes the underlying chain engine for collaborators that need
// lower-level access (the governance read surface, checkpoint key
// installation at startup) without widening this package's own surface
// to cover every Chain method.
func (co *Coordinator) Chain() *blockchain.Chain { return co.chain }
