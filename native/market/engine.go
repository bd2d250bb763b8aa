package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"devmarket/core/events"
	"devmarket/core/types"
	"devmarket/native/fees"
)

var errNilState = errors.New("market engine: state not configured")

// engineState is the narrow slice of state-manager functionality the engine
// consumes. Snapshot/RevertToSnapshot give every public operation all-or-
// nothing semantics: a failed transfer discards each earlier write made in
// the same call.
type engineState interface {
	SessionPut(*Session) error
	SessionGet(id uint64) (*Session, bool)
	ReviewPut(*Review) error
	ReviewGet(id uint64) (*Review, bool)
	NextSessionID() (uint64, error)
	NextReviewID() (uint64, error)
	TreasuryBalance() (*big.Int, error)
	TreasuryAdd(amount *big.Int) error
	TreasurySub(amount *big.Int) error
	VaultAddress() [20]byte
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine implements the marketplace settlement state machine: session
// dual-confirmation escrow, single-completion review bounties, tips, and the
// platform treasury. The host supplies caller identity, transaction ordering
// and persistence; the engine supplies the transitions.
type Engine struct {
	state   engineState
	emitter events.Emitter
	owner   [20]byte
	nowFn   func() int64
}

// NewEngine creates a settlement engine owned by the supplied account. The
// owner is fixed for the lifetime of the engine and is the only account
// permitted to withdraw treasury earnings.
func NewEngine(owner [20]byte) *Engine {
	return &Engine{
		owner:   owner,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// Owner returns the account entitled to treasury withdrawals.
func (e *Engine) Owner() [20]byte { return e.owner }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// transfer moves amount between account balances. Zero amounts are a no-op.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("market: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureDefaults()
	toAcc = toAcc.EnsureDefaults()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("market: insufficient balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func paymentFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
}

// CreateSession escrows amount from the caller and opens a pending session
// with the supplied provider, returning the assigned session id.
func (e *Engine) CreateSession(caller, provider [20]byte, amount *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if caller == provider {
		return 0, ErrInvalidParticipant
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(MinSessionPayment) < 0 {
		return 0, ErrInvalidAmount
	}
	snap := e.state.Snapshot()
	id, err := e.state.NextSessionID()
	if err != nil {
		e.state.RevertToSnapshot(snap)
		return 0, err
	}
	session := &Session{
		ID:          id,
		Requester:   caller,
		Provider:    provider,
		Amount:      amt,
		PlatformFee: fees.PlatformFee(amt),
		Status:      StatusPending,
		CreatedAt:   e.now(),
	}
	if err := e.transfer(caller, e.state.VaultAddress(), amt); err != nil {
		e.state.RevertToSnapshot(snap)
		return 0, paymentFailed(err)
	}
	if err := e.state.SessionPut(session); err != nil {
		e.state.RevertToSnapshot(snap)
		return 0, err
	}
	e.emit(NewSessionCreatedEvent(session))
	return id, nil
}

// ConfirmSessionCompletion records the caller's completion confirmation. When
// the second confirmation arrives the escrowed amount settles to the provider
// net of the platform fee in the same operation. Confirming twice from the
// same account is idempotent and never triggers a second release.
func (e *Engine) ConfirmSessionCompletion(caller [20]byte, sessionID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	session, ok := e.state.SessionGet(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if !session.Participant(caller) {
		return ErrNotSessionParticipant
	}
	if session.Status != StatusPending {
		return ErrSessionAlreadyCompleted
	}
	if caller == session.Requester {
		session.RequesterConfirmed = true
	} else {
		session.ProviderConfirmed = true
	}
	snap := e.state.Snapshot()
	if !session.RequesterConfirmed || !session.ProviderConfirmed {
		if err := e.state.SessionPut(session); err != nil {
			e.state.RevertToSnapshot(snap)
			return err
		}
		e.emit(NewSessionConfirmedEvent(session, caller))
		return nil
	}
	if err := e.releaseSession(session); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

// releaseSession settles a fully confirmed session: the provider receives the
// escrowed amount net of the platform fee and the fee accrues to the
// treasury. Only reachable from ConfirmSessionCompletion.
func (e *Engine) releaseSession(session *Session) error {
	if !session.Status.CanTransition(StatusCompleted) {
		return ErrSessionAlreadyCompleted
	}
	session.Status = StatusCompleted
	payout := fees.Net(session.Amount, session.PlatformFee)
	if err := e.transfer(e.state.VaultAddress(), session.Provider, payout); err != nil {
		return paymentFailed(err)
	}
	if err := e.state.TreasuryAdd(session.PlatformFee); err != nil {
		return err
	}
	if err := e.state.SessionPut(session); err != nil {
		return err
	}
	e.emit(NewSessionReleasedEvent(session))
	return nil
}

// CancelSession refunds the full escrowed amount to the requester and marks
// the session cancelled. No fee is retained on cancellation.
func (e *Engine) CancelSession(caller [20]byte, sessionID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	session, ok := e.state.SessionGet(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if caller != session.Requester {
		return ErrNotAuthorized
	}
	if !session.Status.CanTransition(StatusCancelled) {
		return ErrSessionAlreadyCompleted
	}
	session.Status = StatusCancelled
	snap := e.state.Snapshot()
	if err := e.transfer(e.state.VaultAddress(), session.Requester, session.Amount); err != nil {
		e.state.RevertToSnapshot(snap)
		return paymentFailed(err)
	}
	if err := e.state.SessionPut(session); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewSessionCancelledEvent(session))
	return nil
}

// CreateReviewRequest escrows bounty from the caller and opens a pending
// review assigned to the supplied reviewer, returning the new review id.
func (e *Engine) CreateReviewRequest(caller, reviewer [20]byte, bounty *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if caller == reviewer {
		return 0, ErrInvalidParticipant
	}
	amt := cloneBigInt(bounty)
	if amt.Cmp(MinReviewBounty) < 0 {
		return 0, ErrInvalidAmount
	}
	snap := e.state.Snapshot()
	id, err := e.state.NextReviewID()
	if err != nil {
		e.state.RevertToSnapshot(snap)
		return 0, err
	}
	review := &Review{
		ID:          id,
		Requester:   caller,
		Reviewer:    reviewer,
		Bounty:      amt,
		PlatformFee: fees.PlatformFee(amt),
		Status:      StatusPending,
		CreatedAt:   e.now(),
	}
	if err := e.transfer(caller, e.state.VaultAddress(), amt); err != nil {
		e.state.RevertToSnapshot(snap)
		return 0, paymentFailed(err)
	}
	if err := e.state.ReviewPut(review); err != nil {
		e.state.RevertToSnapshot(snap)
		return 0, err
	}
	e.emit(NewReviewCreatedEvent(review))
	return id, nil
}

// CompleteReview settles the bounty to the reviewer net of the platform fee.
// Completion authority belongs solely to the requester.
func (e *Engine) CompleteReview(caller [20]byte, reviewID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	review, ok := e.state.ReviewGet(reviewID)
	if !ok {
		return ErrReviewNotFound
	}
	if caller != review.Requester {
		return ErrNotAuthorized
	}
	if !review.Status.CanTransition(StatusCompleted) {
		return ErrReviewAlreadyCompleted
	}
	review.Status = StatusCompleted
	payout := fees.Net(review.Bounty, review.PlatformFee)
	snap := e.state.Snapshot()
	if err := e.transfer(e.state.VaultAddress(), review.Reviewer, payout); err != nil {
		e.state.RevertToSnapshot(snap)
		return paymentFailed(err)
	}
	if err := e.state.TreasuryAdd(review.PlatformFee); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if err := e.state.ReviewPut(review); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewReviewCompletedEvent(review))
	return nil
}

// CancelReview refunds the full bounty to the requester and marks the review
// cancelled. No fee is retained on cancellation.
func (e *Engine) CancelReview(caller [20]byte, reviewID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	review, ok := e.state.ReviewGet(reviewID)
	if !ok {
		return ErrReviewNotFound
	}
	if caller != review.Requester {
		return ErrNotAuthorized
	}
	if !review.Status.CanTransition(StatusCancelled) {
		return ErrReviewAlreadyCompleted
	}
	review.Status = StatusCancelled
	snap := e.state.Snapshot()
	if err := e.transfer(e.state.VaultAddress(), review.Requester, review.Bounty); err != nil {
		e.state.RevertToSnapshot(snap)
		return paymentFailed(err)
	}
	if err := e.state.ReviewPut(review); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewReviewCancelledEvent(review))
	return nil
}

// SendTip moves amount from the caller to the recipient, skimming the tip fee
// into the vault and accruing it to the treasury. Tips leave no persistent
// record.
func (e *Engine) SendTip(caller, recipient [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller == recipient {
		return ErrInvalidParticipant
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fee := fees.TipFee(amt)
	payout := fees.Net(amt, fee)
	snap := e.state.Snapshot()
	if err := e.transfer(caller, recipient, payout); err != nil {
		e.state.RevertToSnapshot(snap)
		return paymentFailed(err)
	}
	if err := e.transfer(caller, e.state.VaultAddress(), fee); err != nil {
		e.state.RevertToSnapshot(snap)
		return paymentFailed(err)
	}
	if err := e.state.TreasuryAdd(fee); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewTipSentEvent(caller, recipient, amt, fee))
	return nil
}

// WithdrawPlatformEarnings pays out accrued platform fees from the vault to
// the owner. Only the deployment owner may withdraw.
func (e *Engine) WithdrawPlatformEarnings(caller [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.owner {
		return ErrNotAuthorized
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	earnings, err := e.state.TreasuryBalance()
	if err != nil {
		return err
	}
	if amt.Cmp(earnings) > 0 {
		return ErrInsufficientFunds
	}
	snap := e.state.Snapshot()
	if err := e.state.TreasurySub(amt); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if err := e.transfer(e.state.VaultAddress(), e.owner, amt); err != nil {
		e.state.RevertToSnapshot(snap)
		return paymentFailed(err)
	}
	remaining := new(big.Int).Sub(earnings, amt)
	e.emit(NewTreasuryWithdrawnEvent(e.owner, amt, remaining))
	return nil
}

// PlatformEarnings returns the current treasury accumulator value.
func (e *Engine) PlatformEarnings() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.TreasuryBalance()
}

// GetSession performs a pure lookup; a missing id is reported as absence,
// never as an error.
func (e *Engine) GetSession(id uint64) (*Session, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	return e.state.SessionGet(id)
}

// GetReview performs a pure lookup; a missing id is reported as absence,
// never as an error.
func (e *Engine) GetReview(id uint64) (*Review, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	return e.state.ReviewGet(id)
}

// IsSessionCompleted reports whether the session exists and has settled.
func (e *Engine) IsSessionCompleted(id uint64) bool {
	session, ok := e.GetSession(id)
	return ok && session.Status == StatusCompleted
}

// IsReviewCompleted reports whether the review exists and has settled.
func (e *Engine) IsReviewCompleted(id uint64) bool {
	review, ok := e.GetReview(id)
	return ok && review.Status == StatusCompleted
}
