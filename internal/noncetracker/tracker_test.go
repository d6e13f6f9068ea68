package noncetracker

import "testing"

func TestGetDefaultsToNoNonce(t *testing.T) {
	tr := New()
	if got := tr.Get("alice"); got != NoNonce {
		t.Errorf("Get on unseen sender = %d, want %d", got, NoNonce)
	}
	if got := tr.NextExpected("alice"); got != 0 {
		t.Errorf("NextExpected on unseen sender = %d, want 0", got)
	}
}

func TestCommitAdvancesConfirmed(t *testing.T) {
	tr := New()
	if err := tr.Commit("alice", 0); err != nil {
		t.Fatalf("Commit(alice, 0): %v", err)
	}
	if got := tr.Get("alice"); got != 0 {
		t.Errorf("Get after commit = %d, want 0", got)
	}
	if got := tr.NextExpected("alice"); got != 1 {
		t.Errorf("NextExpected after commit = %d, want 1", got)
	}
}

func TestCommitRejectsGap(t *testing.T) {
	tr := New()
	if err := tr.Commit("alice", 1); err == nil {
		t.Errorf("expected NonceGap committing nonce 1 with no prior confirmed nonce")
	}
}

func TestReserveExtendsNextExpected(t *testing.T) {
	tr := New()
	tr.Reserve("alice", 0)
	tr.Reserve("alice", 1)
	if got := tr.NextExpected("alice"); got != 2 {
		t.Errorf("NextExpected with contiguous reservations 0,1 = %d, want 2", got)
	}
	// A gap in reservations stops the contiguous run.
	tr.Reserve("alice", 3)
	if got := tr.NextExpected("alice"); got != 2 {
		t.Errorf("NextExpected with gap at 2 = %d, want 2", got)
	}
}

func TestRollbackClearsReservationsNotConfirmed(t *testing.T) {
	tr := New()
	if err := tr.Commit("alice", 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	tr.Reserve("alice", 1)
	tr.Rollback()
	if tr.IsReserved("alice", 1) {
		t.Errorf("expected reservation cleared after Rollback")
	}
	if got := tr.Get("alice"); got != 0 {
		t.Errorf("expected confirmed nonce unaffected by Rollback, got %d", got)
	}
}

func TestRollbackConfirmedReverts(t *testing.T) {
	tr := New()
	if err := tr.Commit("alice", 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tr.Commit("alice", 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	tr.RollbackConfirmed("alice", 0)
	if got := tr.Get("alice"); got != 0 {
		t.Errorf("Get after RollbackConfirmed = %d, want 0", got)
	}
}
