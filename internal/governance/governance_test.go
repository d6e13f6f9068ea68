package governance

import (
	"testing"

	"github.com/xai-blockchain/xai-sub013/internal/ledger"
	"github.com/xai-blockchain/xai-sub013/internal/ledgererr"
)

func govTx(txType ledger.TxType, sender string, gp *ledger.GovernancePayload) *ledger.Transaction {
	tx := &ledger.Transaction{
		Sender:     sender,
		TxType:     txType,
		HasNonce:   true,
		Governance: gp,
	}
	tx.TxID[0] = byte(len(sender)) // distinct enough for log output
	return tx
}

func TestProposalLifecycle(t *testing.T) {
	s := New()

	submit := govTx(ledger.TxTypeGovernanceSubmit, "alice", &ledger.GovernancePayload{
		ProposalID: "prop-1",
		Title:      "Raise block reward",
		Body:       "details",
	})
	out, err := s.Apply(submit)
	if err != nil {
		t.Fatalf("Apply(submit): %v", err)
	}
	if out.NewStatus != StatusPending {
		t.Fatalf("submit -> %s, want %s", out.NewStatus, StatusPending)
	}

	vote := govTx(ledger.TxTypeGovernanceVote, "bob", &ledger.GovernancePayload{
		ProposalID: "prop-1",
		Choice:     ChoiceYes,
	})
	out, err = s.Apply(vote)
	if err != nil {
		t.Fatalf("Apply(vote): %v", err)
	}
	if out.NewStatus != StatusActive {
		t.Fatalf("vote -> %s, want %s", out.NewStatus, StatusActive)
	}

	review := govTx(ledger.TxTypeGovernanceReview, "carol", &ledger.GovernancePayload{ProposalID: "prop-1"})
	out, err = s.Apply(review)
	if err != nil {
		t.Fatalf("Apply(review): %v", err)
	}
	if out.NewStatus != StatusApproved {
		t.Fatalf("review with 1 yes / 0 no -> %s, want %s", out.NewStatus, StatusApproved)
	}

	execute := govTx(ledger.TxTypeGovernanceExecute, "alice", &ledger.GovernancePayload{
		ProposalID:     "prop-1",
		ExecutePayload: []byte{0x01},
	})
	out, err = s.Apply(execute)
	if err != nil {
		t.Fatalf("Apply(execute): %v", err)
	}
	if out.NewStatus != StatusExecuted {
		t.Fatalf("execute -> %s, want %s", out.NewStatus, StatusExecuted)
	}

	rollback := govTx(ledger.TxTypeGovernanceRollback, "alice", &ledger.GovernancePayload{ProposalID: "prop-1"})
	out, err = s.Apply(rollback)
	if err != nil {
		t.Fatalf("Apply(rollback): %v", err)
	}
	if out.NewStatus != StatusRejected {
		t.Fatalf("rollback -> %s, want %s", out.NewStatus, StatusRejected)
	}
	p, ok := s.Get("prop-1")
	if !ok {
		t.Fatalf("Get after rollback: proposal missing")
	}
	if len(p.ExecutePayload) != 0 {
		t.Errorf("rollback should clear the execute payload, got %x", p.ExecutePayload)
	}
}

func TestReviewRejectsWhenNoWins(t *testing.T) {
	s := New()
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceSubmit, "alice", &ledger.GovernancePayload{ProposalID: "p", Title: "t"})); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceVote, "bob", &ledger.GovernancePayload{ProposalID: "p", Choice: ChoiceNo})); err != nil {
		t.Fatalf("vote: %v", err)
	}
	out, err := s.Apply(govTx(ledger.TxTypeGovernanceReview, "carol", &ledger.GovernancePayload{ProposalID: "p"}))
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if out.NewStatus != StatusRejected {
		t.Fatalf("review with 0 yes / 1 no -> %s, want %s", out.NewStatus, StatusRejected)
	}
	// A rejected proposal cannot be executed.
	_, err = s.Apply(govTx(ledger.TxTypeGovernanceExecute, "alice", &ledger.GovernancePayload{ProposalID: "p"}))
	if !ledgererr.Is(err, ledgererr.KindGovernanceInvalid) {
		t.Errorf("execute on rejected proposal: expected GovernanceInvalid, got %v", err)
	}
}

func TestApplyRejectsInvalidTransitions(t *testing.T) {
	s := New()

	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceVote, "bob", &ledger.GovernancePayload{ProposalID: "nope", Choice: ChoiceYes})); !ledgererr.Is(err, ledgererr.KindGovernanceInvalid) {
		t.Errorf("vote on unknown proposal: expected GovernanceInvalid, got %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceSubmit, "alice", &ledger.GovernancePayload{ProposalID: "", Title: "t"})); !ledgererr.Is(err, ledgererr.KindGovernanceInvalid) {
		t.Errorf("submit with empty id: expected GovernanceInvalid, got %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceSubmit, "alice", &ledger.GovernancePayload{ProposalID: "dup", Title: "t"})); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceSubmit, "bob", &ledger.GovernancePayload{ProposalID: "dup", Title: "t2"})); !ledgererr.Is(err, ledgererr.KindGovernanceInvalid) {
		t.Errorf("duplicate submit: expected GovernanceInvalid, got %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceVote, "bob", &ledger.GovernancePayload{ProposalID: "dup", Choice: "maybe"})); !ledgererr.Is(err, ledgererr.KindGovernanceInvalid) {
		t.Errorf("vote with invalid choice: expected GovernanceInvalid, got %v", err)
	}
}

func TestCanApplyDoesNotMutate(t *testing.T) {
	s := New()
	submit := govTx(ledger.TxTypeGovernanceSubmit, "alice", &ledger.GovernancePayload{ProposalID: "p", Title: "t"})
	if err := s.CanApply(submit); err != nil {
		t.Fatalf("CanApply(submit): %v", err)
	}
	if _, ok := s.Get("p"); ok {
		t.Fatalf("CanApply must not create the proposal")
	}
	if err := s.CanApply(submit); err != nil {
		t.Errorf("second CanApply should still pass, got %v", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := New()
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceSubmit, "alice", &ledger.GovernancePayload{ProposalID: "p1", Title: "one", Body: "b"})); err != nil {
		t.Fatalf("submit p1: %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceVote, "bob", &ledger.GovernancePayload{ProposalID: "p1", Choice: ChoiceYes})); err != nil {
		t.Fatalf("vote p1: %v", err)
	}
	if _, err := s.Apply(govTx(ledger.TxTypeGovernanceSubmit, "carol", &ledger.GovernancePayload{ProposalID: "p2", Title: "two"})); err != nil {
		t.Fatalf("submit p2: %v", err)
	}

	restored, err := DeserializeState(s.Serialize())
	if err != nil {
		t.Fatalf("DeserializeState: %v", err)
	}
	for _, id := range []string{"p1", "p2"} {
		want, _ := s.Get(id)
		got, ok := restored.Get(id)
		if !ok {
			t.Fatalf("restored state missing proposal %s", id)
		}
		if got.Status != want.Status || got.Title != want.Title || got.Submitter != want.Submitter || len(got.Votes) != len(want.Votes) {
			t.Errorf("proposal %s mismatch after round trip:\n got %+v\nwant %+v", id, got, want)
		}
	}
	if !bytesEq(restored.Serialize(), s.Serialize()) {
		t.Errorf("re-serialized state differs from original")
	}
}

func bytesEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
