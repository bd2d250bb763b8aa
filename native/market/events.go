package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"devmarket/core/types"
)

const (
	EventTypeSessionCreated    = "market.session.created"
	EventTypeSessionConfirmed  = "market.session.confirmed"
	EventTypeSessionReleased   = "market.session.released"
	EventTypeSessionCancelled  = "market.session.cancelled"
	EventTypeReviewCreated     = "market.review.created"
	EventTypeReviewCompleted   = "market.review.completed"
	EventTypeReviewCancelled   = "market.review.cancelled"
	EventTypeTipSent           = "market.tip.sent"
	EventTypeTreasuryWithdrawn = "market.treasury.withdrawn"
)

// NewSessionCreatedEvent returns the canonical payload for a newly created
// session escrow.
func NewSessionCreatedEvent(s *Session) *types.Event {
	return newSessionEvent(EventTypeSessionCreated, s, [20]byte{})
}

// NewSessionConfirmedEvent returns the payload emitted when one participant
// records a completion confirmation without triggering release.
func NewSessionConfirmedEvent(s *Session, confirmer [20]byte) *types.Event {
	return newSessionEvent(EventTypeSessionConfirmed, s, confirmer)
}

// NewSessionReleasedEvent returns the payload emitted when both confirmations
// are present and the escrowed funds settle to the provider.
func NewSessionReleasedEvent(s *Session) *types.Event {
	return newSessionEvent(EventTypeSessionReleased, s, [20]byte{})
}

// NewSessionCancelledEvent returns the payload emitted when the requester
// cancels and is refunded in full.
func NewSessionCancelledEvent(s *Session) *types.Event {
	return newSessionEvent(EventTypeSessionCancelled, s, [20]byte{})
}

// NewReviewCreatedEvent returns the canonical payload for a new review bounty.
func NewReviewCreatedEvent(r *Review) *types.Event {
	return newReviewEvent(EventTypeReviewCreated, r)
}

// NewReviewCompletedEvent returns the payload emitted when the bounty settles
// to the reviewer.
func NewReviewCompletedEvent(r *Review) *types.Event {
	return newReviewEvent(EventTypeReviewCompleted, r)
}

// NewReviewCancelledEvent returns the payload emitted when the requester
// cancels and is refunded in full.
func NewReviewCancelledEvent(r *Review) *types.Event {
	return newReviewEvent(EventTypeReviewCancelled, r)
}

// NewTipSentEvent returns the payload for a settled tip. Tips leave no
// persistent record, so the event id is the only correlation handle.
func NewTipSentEvent(sender, recipient [20]byte, amount, fee *big.Int) *types.Event {
	attrs := newEventAttrs()
	attrs["sender"] = hex.EncodeToString(sender[:])
	attrs["recipient"] = hex.EncodeToString(recipient[:])
	attrs["amount"] = cloneBigInt(amount).String()
	attrs["fee"] = cloneBigInt(fee).String()
	return &types.Event{Type: EventTypeTipSent, Attributes: attrs}
}

// NewTreasuryWithdrawnEvent returns the payload for an owner withdrawal.
func NewTreasuryWithdrawnEvent(owner [20]byte, amount, remaining *big.Int) *types.Event {
	attrs := newEventAttrs()
	attrs["owner"] = hex.EncodeToString(owner[:])
	attrs["amount"] = cloneBigInt(amount).String()
	attrs["remaining"] = cloneBigInt(remaining).String()
	return &types.Event{Type: EventTypeTreasuryWithdrawn, Attributes: attrs}
}

func newEventAttrs() map[string]string {
	return map[string]string{"eventId": uuid.NewString()}
}

func newSessionEvent(eventType string, s *Session, confirmer [20]byte) *types.Event {
	attrs := newEventAttrs()
	if s == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeSession(s)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["requester"] = hex.EncodeToString(sanitized.Requester[:])
	attrs["provider"] = hex.EncodeToString(sanitized.Provider[:])
	attrs["amount"] = sanitized.Amount.String()
	attrs["platformFee"] = sanitized.PlatformFee.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if confirmer != ([20]byte{}) {
		attrs["confirmer"] = hex.EncodeToString(confirmer[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newReviewEvent(eventType string, r *Review) *types.Event {
	attrs := newEventAttrs()
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeReview(r)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(sanitized.ID, 10)
	attrs["requester"] = hex.EncodeToString(sanitized.Requester[:])
	attrs["reviewer"] = hex.EncodeToString(sanitized.Reviewer[:])
	attrs["bounty"] = sanitized.Bounty.String()
	attrs["platformFee"] = sanitized.PlatformFee.String()
	attrs["status"] = sanitized.Status.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
