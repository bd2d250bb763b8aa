package market

import (
	"math/big"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to completed", from: StatusPending, to: StatusCompleted, want: true},
		{name: "pending to cancelled", from: StatusPending, to: StatusCancelled, want: true},
		{name: "pending to disputed", from: StatusPending, to: StatusDisputed, want: false},
		{name: "completed is terminal", from: StatusCompleted, to: StatusCancelled, want: false},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusCompleted, want: false},
		{name: "no regression to pending", from: StatusCompleted, to: StatusPending, want: false},
		{name: "disputed never leaves", from: StatusDisputed, to: StatusCompleted, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusDisputed.Terminal() {
		t.Fatalf("pending and disputed are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatalf("completed and cancelled are terminal")
	}
}

func TestSessionClone(t *testing.T) {
	session := &Session{
		ID:          1,
		Requester:   newTestAddress(0x01),
		Provider:    newTestAddress(0x02),
		Amount:      big.NewInt(2_000_000),
		PlatformFee: big.NewInt(100_000),
	}
	clone := session.Clone()
	clone.Amount.SetInt64(1)
	clone.RequesterConfirmed = true
	if session.Amount.Int64() != 2_000_000 {
		t.Fatalf("clone must not alias the amount")
	}
	if session.RequesterConfirmed {
		t.Fatalf("clone must not alias flags")
	}
}

func TestSanitizeSession(t *testing.T) {
	base := func() *Session {
		return &Session{
			ID:          1,
			Requester:   newTestAddress(0x01),
			Provider:    newTestAddress(0x02),
			Amount:      big.NewInt(2_000_000),
			PlatformFee: big.NewInt(100_000),
			Status:      StatusPending,
		}
	}

	if _, err := SanitizeSession(base()); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}
	if _, err := SanitizeSession(nil); err == nil {
		t.Fatalf("nil session must be rejected")
	}

	s := base()
	s.ID = 0
	if _, err := SanitizeSession(s); err == nil {
		t.Fatalf("unassigned id must be rejected")
	}

	s = base()
	s.Provider = s.Requester
	if _, err := SanitizeSession(s); err == nil {
		t.Fatalf("identical participants must be rejected")
	}

	s = base()
	s.Status = Status(99)
	if _, err := SanitizeSession(s); err == nil {
		t.Fatalf("unknown status must be rejected")
	}

	s = base()
	s.Amount = nil
	sanitized, err := SanitizeSession(s)
	if err != nil {
		t.Fatalf("nil amount should normalise to zero: %v", err)
	}
	if sanitized.Amount.Sign() != 0 {
		t.Fatalf("expected zero amount, got %s", sanitized.Amount)
	}
}

func TestSanitizeReview(t *testing.T) {
	review := &Review{
		ID:          1,
		Requester:   newTestAddress(0x01),
		Reviewer:    newTestAddress(0x03),
		Bounty:      big.NewInt(500_000),
		PlatformFee: big.NewInt(25_000),
		Status:      StatusPending,
	}
	if _, err := SanitizeReview(review); err != nil {
		t.Fatalf("valid review rejected: %v", err)
	}

	review.Reviewer = review.Requester
	if _, err := SanitizeReview(review); err == nil {
		t.Fatalf("identical participants must be rejected")
	}
}
