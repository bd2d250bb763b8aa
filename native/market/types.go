package market

import (
	"fmt"
	"math/big"
)

// Status captures the lifecycle of a session or review record. Records start
// pending and move exactly once to completed or cancelled; both are terminal.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompleted
	StatusCancelled
	// StatusDisputed is reserved in the status domain. No operation
	// transitions a record into or out of it.
	StatusDisputed
)

// Minimum committed amounts accepted by the engine, in base units.
var (
	MinSessionPayment = big.NewInt(1_000_000)
	MinReviewBounty   = big.NewInt(500_000)
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusDisputed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the status machine permits moving to next.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	return next == StatusCompleted || next == StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Session is a two-party coding-session escrow. Funds equal to Amount sit in
// the vault from creation until both participants confirm completion
// (release) or the requester cancels (refund). PlatformFee is fixed at
// creation time so later fee-rate changes never affect an open session.
type Session struct {
	ID                 uint64   `json:"id"`
	Requester          [20]byte `json:"requester"`
	Provider           [20]byte `json:"provider"`
	Amount             *big.Int `json:"amount"`
	PlatformFee        *big.Int `json:"platformFee"`
	Status             Status   `json:"status"`
	RequesterConfirmed bool     `json:"requesterConfirmed"`
	ProviderConfirmed  bool     `json:"providerConfirmed"`
	CreatedAt          int64    `json:"createdAt"`
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Amount = cloneBigInt(s.Amount)
	clone.PlatformFee = cloneBigInt(s.PlatformFee)
	return &clone
}

// Participant reports whether addr is the requester or the provider.
func (s *Session) Participant(addr [20]byte) bool {
	if s == nil {
		return false
	}
	return addr == s.Requester || addr == s.Provider
}

// Review is a single-completion code-review bounty. Completion authority
// belongs solely to the requester; the reviewer never confirms.
type Review struct {
	ID          uint64   `json:"id"`
	Requester   [20]byte `json:"requester"`
	Reviewer    [20]byte `json:"reviewer"`
	Bounty      *big.Int `json:"bounty"`
	PlatformFee *big.Int `json:"platformFee"`
	Status      Status   `json:"status"`
	CreatedAt   int64    `json:"createdAt"`
}

// Clone returns a deep copy of the review record.
func (r *Review) Clone() *Review {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Bounty = cloneBigInt(r.Bounty)
	clone.PlatformFee = cloneBigInt(r.PlatformFee)
	return &clone
}

// SanitizeSession validates a session record before it is persisted, returning
// a cloned instance with non-nil amount fields.
func SanitizeSession(s *Session) (*Session, error) {
	if s == nil {
		return nil, fmt.Errorf("nil session")
	}
	clone := s.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("session id must be assigned")
	}
	if clone.Requester == clone.Provider {
		return nil, fmt.Errorf("session requester and provider must differ")
	}
	if clone.Amount.Sign() < 0 || clone.PlatformFee.Sign() < 0 {
		return nil, fmt.Errorf("session amounts must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid session status: %d", clone.Status)
	}
	return clone, nil
}

// SanitizeReview validates a review record before it is persisted, returning a
// cloned instance with non-nil amount fields.
func SanitizeReview(r *Review) (*Review, error) {
	if r == nil {
		return nil, fmt.Errorf("nil review")
	}
	clone := r.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("review id must be assigned")
	}
	if clone.Requester == clone.Reviewer {
		return nil, fmt.Errorf("review requester and reviewer must differ")
	}
	if clone.Bounty.Sign() < 0 || clone.PlatformFee.Sign() < 0 {
		return nil, fmt.Errorf("review amounts must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid review status: %d", clone.Status)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
