package domain

import "testing"

func TestCommitment_Reaches(t *testing.T) {
	tests := []struct {
		observed Commitment
		required Commitment
		want     bool
	}{
		{CommitmentProcessed, CommitmentProcessed, true},
		{CommitmentProcessed, CommitmentConfirmed, false},
		{CommitmentConfirmed, CommitmentConfirmed, true},
		{CommitmentFinalized, CommitmentConfirmed, true},
		{CommitmentConfirmed, CommitmentFinalized, false},
		{Commitment(""), CommitmentProcessed, false},
		{Commitment("max"), CommitmentProcessed, false},
	}
	for _, tt := range tests {
		if got := tt.observed.Reaches(tt.required); got != tt.want {
			t.Errorf("%q.Reaches(%q) = %v, want %v", tt.observed, tt.required, got, tt.want)
		}
	}
}

func TestCommitment_IsValid(t *testing.T) {
	for _, c := range []Commitment{CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized} {
		if !c.IsValid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if Commitment("recent").IsValid() {
		t.Error("deprecated level should be invalid")
	}
}

func TestCheckpoint_Expired(t *testing.T) {
	cp := Checkpoint{Token: "hash", ExpiryHeight: 1150}

	if cp.Expired(1149) || cp.Expired(1150) {
		t.Error("checkpoint is valid up to and including its expiry height")
	}
	if !cp.Expired(1151) {
		t.Error("checkpoint must expire once height exceeds expiry height")
	}
}

func TestConfirmationStatus_Terminal(t *testing.T) {
	if (ConfirmationStatus{State: ConfirmationPending}).Terminal() {
		t.Error("pending is not terminal")
	}
	for _, st := range []ConfirmationStatus{
		Confirmed(1, CommitmentConfirmed),
		Failed("InstructionError", 1),
		TimedOut(TimeoutDeadline, 10),
	} {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st.State)
		}
	}
}

func TestNewMintRequest(t *testing.T) {
	req := NewMintRequest("ipfs://cid", "Name", "SYM")
	if req.RoyaltyBasisPoints != 0 || !req.Mutable {
		t.Errorf("unexpected defaults: %+v", req)
	}
}

func TestPuzzle_Validate(t *testing.T) {
	valid := Puzzle{ID: 1, Name: "a", ImagePath: "a.png"}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, p := range []Puzzle{
		{Name: "a", ImagePath: "a.png"},
		{ID: 1, ImagePath: "a.png"},
		{ID: 1, Name: "a"},
	} {
		if err := p.Validate(); err == nil {
			t.Errorf("expected error for %+v", p)
		}
	}
}
