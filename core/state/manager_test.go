package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"devmarket/core/types"
	"devmarket/native/market"
	"devmarket/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	session := &market.Session{
		ID:          1,
		Requester:   testAddr(0x01),
		Provider:    testAddr(0x02),
		Amount:      big.NewInt(2_000_000),
		PlatformFee: big.NewInt(100_000),
		Status:      market.StatusPending,
		CreatedAt:   42,
	}
	require.NoError(t, m.SessionPut(session))

	loaded, ok := m.SessionGet(1)
	require.True(t, ok)
	require.Equal(t, session.Requester, loaded.Requester)
	require.Equal(t, session.Provider, loaded.Provider)
	require.Zero(t, loaded.Amount.Cmp(session.Amount))
	require.Zero(t, loaded.PlatformFee.Cmp(session.PlatformFee))
	require.Equal(t, market.StatusPending, loaded.Status)
	require.False(t, loaded.RequesterConfirmed)
	require.False(t, loaded.ProviderConfirmed)

	_, ok = m.SessionGet(2)
	require.False(t, ok)
}

func TestReviewRoundTrip(t *testing.T) {
	m := newTestManager(t)
	review := &market.Review{
		ID:          1,
		Requester:   testAddr(0x01),
		Reviewer:    testAddr(0x03),
		Bounty:      big.NewInt(500_000),
		PlatformFee: big.NewInt(25_000),
		Status:      market.StatusPending,
		CreatedAt:   7,
	}
	require.NoError(t, m.ReviewPut(review))

	loaded, ok := m.ReviewGet(1)
	require.True(t, ok)
	require.Equal(t, review.Reviewer, loaded.Reviewer)
	require.Zero(t, loaded.Bounty.Cmp(review.Bounty))

	_, ok = m.ReviewGet(99)
	require.False(t, ok)
}

func TestSessionPutRejectsInvalidRecords(t *testing.T) {
	m := newTestManager(t)
	same := testAddr(0x05)
	err := m.SessionPut(&market.Session{
		ID:          1,
		Requester:   same,
		Provider:    same,
		Amount:      big.NewInt(2_000_000),
		PlatformFee: big.NewInt(100_000),
	})
	require.Error(t, err)
	_, ok := m.SessionGet(1)
	require.False(t, ok)
}

func TestIDCountersStartAtOne(t *testing.T) {
	m := newTestManager(t)

	id, err := m.NextSessionID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	id, err = m.NextSessionID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	id, err = m.NextReviewID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestTreasuryAccumulator(t *testing.T) {
	m := newTestManager(t)

	balance, err := m.TreasuryBalance()
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	require.NoError(t, m.TreasuryAdd(big.NewInt(100_000)))
	require.NoError(t, m.TreasuryAdd(big.NewInt(25_000)))

	balance, err = m.TreasuryBalance()
	require.NoError(t, err)
	require.Equal(t, int64(125_000), balance.Int64())

	require.NoError(t, m.TreasurySub(big.NewInt(50_000)))
	balance, err = m.TreasuryBalance()
	require.NoError(t, err)
	require.Equal(t, int64(75_000), balance.Int64())

	err = m.TreasurySub(big.NewInt(100_000))
	require.ErrorIs(t, err, ErrTreasuryUnderflow)
}

func TestAccountsDefaultToZeroBalance(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x09)

	account, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, account.Balance.Sign())

	account.Balance = big.NewInt(1_000)
	require.NoError(t, m.PutAccount(addr, account))

	loaded, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), loaded.Balance.Int64())
}

func TestApplyGenesisRunsOnce(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x02)
	allocations := map[[20]byte]*big.Int{addr: big.NewInt(5_000_000)}

	applied, err := m.ApplyGenesis(allocations)
	require.NoError(t, err)
	require.True(t, applied)

	account, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), account.Balance.Int64())

	applied, err = m.ApplyGenesis(allocations)
	require.NoError(t, err)
	require.False(t, applied, "genesis must not double-fund accounts")

	account, err = m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), account.Balance.Int64())
}

func TestRevertToSnapshot(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x01)
	require.NoError(t, m.PutAccount(addr, &types.Account{Balance: big.NewInt(500)}))

	snap := m.Snapshot()

	id, err := m.NextSessionID()
	require.NoError(t, err)
	require.NoError(t, m.SessionPut(&market.Session{
		ID:          id,
		Requester:   addr,
		Provider:    testAddr(0x02),
		Amount:      big.NewInt(2_000_000),
		PlatformFee: big.NewInt(100_000),
	}))
	require.NoError(t, m.PutAccount(addr, &types.Account{Balance: big.NewInt(0)}))
	require.NoError(t, m.TreasuryAdd(big.NewInt(100_000)))

	m.RevertToSnapshot(snap)

	_, ok := m.SessionGet(id)
	require.False(t, ok, "session write should be rolled back")

	account, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, int64(500), account.Balance.Int64(), "account balance should be restored")

	balance, err := m.TreasuryBalance()
	require.NoError(t, err)
	require.Zero(t, balance.Sign(), "treasury accrual should be rolled back")

	next, err := m.NextSessionID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), next, "id counter should be restored")
}
