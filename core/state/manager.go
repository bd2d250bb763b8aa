package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"devmarket/core/types"
	"devmarket/native/market"
	"devmarket/storage"
)

const (
	sessionPrefix = "market/session/"
	reviewPrefix  = "market/review/"
	accountPrefix = "account/"
)

var (
	sessionSeqKey = []byte("market/seq/session")
	reviewSeqKey  = []byte("market/seq/review")
	treasuryKey   = []byte("market/treasury")
	genesisKey    = []byte("genesis/applied")
)

// vaultAddress is the module-owned account holding escrowed funds and accrued
// fees between settlement operations.
var vaultAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], "devmarket/vault")
	return addr
}()

// ErrTreasuryUnderflow marks attempts to decrement the treasury accumulator
// below zero.
var ErrTreasuryUnderflow = errors.New("state: treasury accumulator underflow")

type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// Manager persists settlement state in an id-keyed key-value layout and
// journals every write so an in-flight operation can be reverted wholesale.
// Callers must serialize operations; the RPC server holds a lock across each
// engine call, matching the serial execution the engine assumes.
type Manager struct {
	db      storage.Database
	journal []journalEntry
}

// NewManager wraps the supplied database in a settlement state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Snapshot marks the current journal position. Passing the returned id to
// RevertToSnapshot undoes every write recorded after this call.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot restores the database to the state it had when the
// snapshot was taken and truncates the journal.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.existed {
			_ = m.db.Put([]byte(entry.key), entry.prev)
		} else {
			_ = m.db.Delete([]byte(entry.key))
		}
	}
	m.journal = m.journal[:id]
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	existed, err := m.db.Has(key)
	if err != nil {
		return err
	}
	var prev []byte
	if existed {
		prev, err = m.db.Get(key)
		if err != nil {
			return err
		}
	}
	if err := m.db.Put(key, encoded); err != nil {
		return err
	}
	m.journal = append(m.journal, journalEntry{key: string(key), prev: prev, existed: existed})
	return nil
}

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(value, out); err != nil {
		return false, err
	}
	return true, nil
}

func sessionKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", sessionPrefix, id))
}

func reviewKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", reviewPrefix, id))
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountPrefix + hex.EncodeToString(addr[:]))
}

// SessionPut validates and stores the session record.
func (m *Manager) SessionPut(session *market.Session) error {
	sanitized, err := market.SanitizeSession(session)
	if err != nil {
		return err
	}
	return m.kvPut(sessionKey(sanitized.ID), sanitized)
}

// SessionGet loads the session with the given id, reporting absence via the
// boolean.
func (m *Manager) SessionGet(id uint64) (*market.Session, bool) {
	session := new(market.Session)
	ok, err := m.kvGet(sessionKey(id), session)
	if err != nil || !ok {
		return nil, false
	}
	return session, true
}

// ReviewPut validates and stores the review record.
func (m *Manager) ReviewPut(review *market.Review) error {
	sanitized, err := market.SanitizeReview(review)
	if err != nil {
		return err
	}
	return m.kvPut(reviewKey(sanitized.ID), sanitized)
}

// ReviewGet loads the review with the given id, reporting absence via the
// boolean.
func (m *Manager) ReviewGet(id uint64) (*market.Review, bool) {
	review := new(market.Review)
	ok, err := m.kvGet(reviewKey(id), review)
	if err != nil || !ok {
		return nil, false
	}
	return review, true
}

func (m *Manager) nextID(key []byte) (uint64, error) {
	var next uint64
	ok, err := m.kvGet(key, &next)
	if err != nil {
		return 0, err
	}
	if !ok {
		next = 1
	}
	if err := m.kvPut(key, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// NextSessionID assigns the next session id. Ids start at 1 and are never
// reused.
func (m *Manager) NextSessionID() (uint64, error) {
	return m.nextID(sessionSeqKey)
}

// NextReviewID assigns the next review id. Ids start at 1 and are never
// reused.
func (m *Manager) NextReviewID() (uint64, error) {
	return m.nextID(reviewSeqKey)
}

// TreasuryBalance returns the accrued platform earnings.
func (m *Manager) TreasuryBalance() (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.kvGet(treasuryKey, balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// TreasuryAdd increases the accumulator by amount. Nil and zero amounts are
// no-ops.
func (m *Manager) TreasuryAdd(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative treasury credit")
	}
	balance, err := m.TreasuryBalance()
	if err != nil {
		return err
	}
	return m.kvPut(treasuryKey, new(big.Int).Add(balance, amount))
}

// TreasurySub decreases the accumulator by amount, failing on underflow so
// the accumulator can never go negative.
func (m *Manager) TreasurySub(amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative treasury debit")
	}
	balance, err := m.TreasuryBalance()
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrTreasuryUnderflow
	}
	return m.kvPut(treasuryKey, new(big.Int).Sub(balance, amount))
}

// VaultAddress returns the module account holding escrowed balances.
func (m *Manager) VaultAddress() [20]byte {
	return vaultAddress
}

// GetAccount loads the account for addr, returning a zero-balance account for
// addresses never seen before.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := m.kvGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	return account.EnsureDefaults(), nil
}

// ApplyGenesis credits the supplied allocations exactly once per database.
// It reports whether the allocations were applied on this call; subsequent
// calls are no-ops so restarting the daemon never double-funds accounts.
func (m *Manager) ApplyGenesis(allocations map[[20]byte]*big.Int) (bool, error) {
	var applied bool
	ok, err := m.kvGet(genesisKey, &applied)
	if err != nil {
		return false, err
	}
	if ok && applied {
		return false, nil
	}
	snap := m.Snapshot()
	for addr, amount := range allocations {
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		account, err := m.GetAccount(addr)
		if err != nil {
			m.RevertToSnapshot(snap)
			return false, err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		if err := m.PutAccount(addr, account); err != nil {
			m.RevertToSnapshot(snap)
			return false, err
		}
	}
	if err := m.kvPut(genesisKey, true); err != nil {
		m.RevertToSnapshot(snap)
		return false, err
	}
	return true, nil
}

// PutAccount stores the account for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.kvPut(accountKey(addr), account.EnsureDefaults())
}
