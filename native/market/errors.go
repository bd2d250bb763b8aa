package market

import "errors"

var (
	// ErrNotAuthorized marks callers without authority over the record:
	// non-requesters cancelling, non-requesters completing a review, or a
	// non-owner withdrawing treasury earnings.
	ErrNotAuthorized = errors.New("market: not authorized")
	// ErrNotSessionParticipant marks confirmation attempts by accounts that
	// are neither the session requester nor its provider.
	ErrNotSessionParticipant = errors.New("market: not a session participant")

	// ErrInvalidAmount marks committed amounts below the configured minimum
	// or non-positive tip and withdrawal amounts.
	ErrInvalidAmount = errors.New("market: invalid amount")
	// ErrInvalidParticipant marks operations where caller and counterparty
	// are the same account.
	ErrInvalidParticipant = errors.New("market: invalid participant")
	// ErrInvalidFeePercentage is part of the error domain but is never
	// produced; the fee rates are compile-time constants.
	ErrInvalidFeePercentage = errors.New("market: invalid fee percentage")

	// ErrSessionNotFound marks mutations addressed to an unknown session id.
	ErrSessionNotFound = errors.New("market: session not found")
	// ErrReviewNotFound marks mutations addressed to an unknown review id.
	ErrReviewNotFound = errors.New("market: review not found")

	// ErrSessionAlreadyCompleted marks session mutations after the record
	// reached a terminal status.
	ErrSessionAlreadyCompleted = errors.New("market: session already completed")
	// ErrReviewAlreadyCompleted marks review mutations after the record
	// reached a terminal status.
	ErrReviewAlreadyCompleted = errors.New("market: review already completed")
	// ErrEscrowAlreadyReleased is part of the error domain but is never
	// produced; terminal-status checks subsume it.
	ErrEscrowAlreadyReleased = errors.New("market: escrow already released")

	// ErrInsufficientFunds marks withdrawals exceeding accrued earnings.
	ErrInsufficientFunds = errors.New("market: insufficient funds")
	// ErrPaymentFailed wraps any balance transfer failure. The enclosing
	// operation rolls back in full when it occurs.
	ErrPaymentFailed = errors.New("market: payment failed")
)
