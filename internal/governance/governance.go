// Package governance implements the on-chain proposal state machine
// layered on top of governance-tagged transactions: submit, vote,
// review, execute, and rollback, mutating a proposal's status in
// lockstep with the underlying ledger transaction that drives it. Only
// an executed proposal may be rolled back; rollback moves it to
// rejected and clears its execute payload.
//
// State carries no monetary side effects beyond what the underlying
// transaction already encodes; it is fully replayable from the
// confirmed chain, the same way internal/blockchain rebuilds the nonce
// tracker after a reorg rewind rather than keeping an undo log for
// it.
package governance

import (
	"sync"

	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
	"github.com/xai-blockchain/xai-sub013/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.GOVN)

// Status is a proposal's position in the lifecycle: pending, then
// active once voting starts, then approved or rejected at review, then
// executed, with executed able to fall back to rejected via a
// rollback.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

// Choice values a governance vote may carry.
const (
	ChoiceYes     = "yes"
	ChoiceNo      = "no"
	ChoiceAbstain = "abstain"
)

// Proposal is the governance state machine's unit of record.
type Proposal struct {
	ID     string
	Title  string
	Body   string
	Status Status

	// Submitter is the sender of the governance_submit transaction that
	// created this proposal, recorded for informational purposes only;
	// it grants no submitter-only privileges.
	Submitter string

	// Votes maps voter address -> choice, last vote per address wins
	// (re-voting replaces a prior vote, mirroring RBF's
	// last-valid-submission-wins ethos elsewhere in the ledger).
	Votes map[string]string

	ExecutePayload []byte
}

// tally counts votes cast so far.
func (p *Proposal) tally() (yes, no, abstain int) {
	for _, choice := range p.Votes {
		switch choice {
		case ChoiceYes:
			yes++
		case ChoiceNo:
			no++
		default:
			abstain++
		}
	}
	return
}

// Outcome describes what a single Apply call did, returned to the
// caller (the chain engine, during commit) for logging/eventing.
type Outcome struct {
	ProposalID string
	NewStatus  Status
}

// State holds every proposal known to the chain. Exported methods take
// the lock; callers composing governance with other locked state (the
// Chain, which already holds its own mutex while calling these) rely on
// State's lock being uncontended in practice since the Chain serializes
// all writes itself; State's own lock exists so read-only callers
// (CanApply from mempool admission, which runs without the Chain's
// lock held) never race a concurrent commit-time Apply.
type State struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
}

// New returns an empty governance state, seeded at genesis exactly like
// a fresh UTXO set.
func New() *State {
	return &State{proposals: make(map[string]*Proposal)}
}

// Get returns the proposal with the given ID, if any.
func (s *State) Get(id string) (Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return *cloneProposal(p), true
}

// List returns every known proposal, for the Coordinator's read
// surface.
func (s *State) List() []Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, *cloneProposal(p))
	}
	return out
}

func cloneProposal(p *Proposal) *Proposal {
	votes := make(map[string]string, len(p.Votes))
	for k, v := range p.Votes {
		votes[k] = v
	}
	return &Proposal{
		ID: p.ID, Title: p.Title, Body: p.Body, Status: p.Status,
		Submitter: p.Submitter, Votes: votes, ExecutePayload: p.ExecutePayload,
	}
}

// CanApply is the read-only precondition check plugged into
// validator.Context.Governance: can tx be applied against the proposal
// state as it
// stands right now, without mutating anything. Mempool admission and
// block-level revalidation call this before a governance transaction
// is ever committed; Apply re-derives the identical check at commit
// time so the two never disagree about what is acceptable.
func (s *State) CanApply(tx *ledger.Transaction) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, _, err := s.checkLocked(tx)
	return err
}

// checkLocked validates tx against the current proposal state and
// returns the proposal it targets (nil for governance_submit, which
// creates one) plus the status it would transition to, without
// mutating state.
func (s *State) checkLocked(tx *ledger.Transaction) (*Proposal, Status, error) {
	gp := tx.Governance
	if gp == nil {
		return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "tx %x is tagged %s but carries no governance payload", tx.TxID, tx.TxType)
	}

	switch tx.TxType {
	case ledger.TxTypeGovernanceSubmit:
		if gp.ProposalID == "" {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "governance_submit tx %x has no proposal_id", tx.TxID)
		}
		if _, exists := s.proposals[gp.ProposalID]; exists {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "proposal %s already exists", gp.ProposalID)
		}
		if gp.Title == "" {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "governance_submit tx %x has no title", tx.TxID)
		}
		return nil, StatusPending, nil

	case ledger.TxTypeGovernanceVote:
		p, ok := s.proposals[gp.ProposalID]
		if !ok {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "vote on unknown proposal %s", gp.ProposalID)
		}
		if p.Status != StatusPending && p.Status != StatusActive {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "proposal %s is %s, not open for voting", gp.ProposalID, p.Status)
		}
		switch gp.Choice {
		case ChoiceYes, ChoiceNo, ChoiceAbstain:
		default:
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "vote on proposal %s has invalid choice %q", gp.ProposalID, gp.Choice)
		}
		return p, StatusActive, nil

	case ledger.TxTypeGovernanceReview:
		p, ok := s.proposals[gp.ProposalID]
		if !ok {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "review of unknown proposal %s", gp.ProposalID)
		}
		if p.Status != StatusActive {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "proposal %s is %s, not ready for review", gp.ProposalID, p.Status)
		}
		yes, no, _ := p.tally()
		next := StatusRejected
		if yes > no {
			next = StatusApproved
		}
		return p, next, nil

	case ledger.TxTypeGovernanceExecute:
		p, ok := s.proposals[gp.ProposalID]
		if !ok {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "execute of unknown proposal %s", gp.ProposalID)
		}
		if p.Status != StatusApproved {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "proposal %s is %s, not approved for execution", gp.ProposalID, p.Status)
		}
		return p, StatusExecuted, nil

	case ledger.TxTypeGovernanceRollback:
		p, ok := s.proposals[gp.ProposalID]
		if !ok {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "rollback of unknown proposal %s", gp.ProposalID)
		}
		if p.Status != StatusExecuted {
			return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "proposal %s is %s, not executed, cannot roll back", gp.ProposalID, p.Status)
		}
		return p, StatusRejected, nil

	default:
		return nil, "", ledgererr.New(ledgererr.KindGovernanceInvalid, "tx %x carries non-governance type %s", tx.TxID, tx.TxType)
	}
}

// Apply mutates state for a committed governance transaction,
// re-running CanApply's check under the write lock so a transaction
// that raced ahead of a conflicting one since admission is still
// rejected rather than silently misapplied (mirrors utxo.Set.
// ApplyTransaction re-checking double-spend at commit time instead of
// trusting mempool admission alone).
func (s *State) Apply(tx *ledger.Transaction) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, next, err := s.checkLocked(tx)
	if err != nil {
		return Outcome{}, err
	}
	gp := tx.Governance

	switch tx.TxType {
	case ledger.TxTypeGovernanceSubmit:
		s.proposals[gp.ProposalID] = &Proposal{
			ID:        gp.ProposalID,
			Title:     gp.Title,
			Body:      gp.Body,
			Status:    next,
			Submitter: tx.Sender,
			Votes:     make(map[string]string),
		}

	case ledger.TxTypeGovernanceVote:
		existing.Status = next
		existing.Votes[tx.Sender] = gp.Choice

	case ledger.TxTypeGovernanceReview:
		existing.Status = next

	case ledger.TxTypeGovernanceExecute:
		existing.Status = next
		existing.ExecutePayload = gp.ExecutePayload

	case ledger.TxTypeGovernanceRollback:
		existing.Status = next
		existing.ExecutePayload = nil
	}

	if log != nil {
		log.Debugf("applied %s tx %x: proposal %s -> %s", tx.TxType, tx.TxID, gp.ProposalID, next)
	}
	return Outcome{ProposalID: gp.ProposalID, NewStatus: next}, nil
}

// Clone returns a deep copy of s, for block-level validation to
// simulate a whole block's governance transactions in order against a
// disposable working copy before any of them touch the live state,
// mirroring utxo.Set.Clone()'s role in the same validation pass.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := New()
	for id, p := range s.proposals {
		clone.proposals[id] = cloneProposal(p)
	}
	return clone
}

// Reset clears all proposal state, used when a reorg rewind needs to
// rebuild governance state from scratch by replaying the surviving
// chain (mirrors blockchain.rebuildNoncesFromSurvivingChainLocked's
// full-replay approach to an undo-log-free piece of state).
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = make(map[string]*Proposal)
}
