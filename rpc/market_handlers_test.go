package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"devmarket/core/state"
	"devmarket/core/types"
	"devmarket/crypto"
	"devmarket/native/market"
	"devmarket/storage"
)

const testToken = "test-token"

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.DVMPrefix, addr).String()
}

func newTestServer(t *testing.T) (*Server, *state.Manager, [20]byte) {
	t.Helper()
	owner := testAddr(0x01)
	manager := state.NewManager(storage.NewMemDB())
	engine := market.NewEngine(owner)
	engine.SetState(manager)
	engine.SetNowFunc(func() int64 { return 1_000 })
	return NewServer(engine, testToken, nil), manager, owner
}

func rpcCall(t *testing.T, server *Server, token, method string, params interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	encodedParams, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	payload := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":[%s]}`, method, encodedParams)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)

	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, recorder.Body.String())
	}
	return recorder, resp
}

func fund(t *testing.T, manager *state.Manager, addr [20]byte, amount int64) {
	t.Helper()
	if err := manager.PutAccount(addr, &types.Account{Balance: big.NewInt(amount)}); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func TestCreateSessionRequiresAuth(t *testing.T) {
	server, _, _ := newTestServer(t)
	requester := testAddr(0x02)
	provider := testAddr(0x03)

	recorder, resp := rpcCall(t, server, "", "market_createSession", createSessionParams{
		Caller:   bech(requester),
		Provider: bech(provider),
		Amount:   "2000000",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}
}

func TestCreateSessionHappyPath(t *testing.T) {
	server, manager, _ := newTestServer(t)
	requester := testAddr(0x02)
	provider := testAddr(0x03)
	fund(t, manager, requester, 2_000_000)

	recorder, resp := rpcCall(t, server, testToken, "market_createSession", createSessionParams{
		Caller:   bech(requester),
		Provider: bech(provider),
		Amount:   "2000000",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", recorder.Code, recorder.Body.String())
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	encoded, _ := json.Marshal(resp.Result)
	var result createResult
	if err := json.Unmarshal(encoded, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ID != 1 {
		t.Fatalf("expected session id 1, got %d", result.ID)
	}

	_, getResp := rpcCall(t, server, "", "market_getSession", recordIDParams{ID: 1})
	encoded, _ = json.Marshal(getResp.Result)
	var session sessionJSON
	if err := json.Unmarshal(encoded, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.Status != "pending" {
		t.Fatalf("expected pending, got %s", session.Status)
	}
	if session.PlatformFee != "100000" {
		t.Fatalf("expected fee 100000, got %s", session.PlatformFee)
	}
	if session.Requester != bech(requester) {
		t.Fatalf("unexpected requester %s", session.Requester)
	}
}

func TestCreateSessionBelowMinimum(t *testing.T) {
	server, manager, _ := newTestServer(t)
	requester := testAddr(0x02)
	fund(t, manager, requester, 2_000_000)

	recorder, resp := rpcCall(t, server, testToken, "market_createSession", createSessionParams{
		Caller:   bech(requester),
		Provider: bech(testAddr(0x03)),
		Amount:   "1",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMarketInvalidParams {
		t.Fatalf("expected invalid params code, got %+v", resp.Error)
	}
}

func TestConfirmAndSettleOverRPC(t *testing.T) {
	server, manager, _ := newTestServer(t)
	requester := testAddr(0x02)
	provider := testAddr(0x03)
	fund(t, manager, requester, 2_000_000)

	_, _ = rpcCall(t, server, testToken, "market_createSession", createSessionParams{
		Caller:   bech(requester),
		Provider: bech(provider),
		Amount:   "2000000",
	})

	_, resp := rpcCall(t, server, testToken, "market_confirmSession", recordActionParams{Caller: bech(provider), ID: 1})
	if resp.Error != nil {
		t.Fatalf("provider confirm failed: %+v", resp.Error)
	}
	_, resp = rpcCall(t, server, testToken, "market_confirmSession", recordActionParams{Caller: bech(requester), ID: 1})
	if resp.Error != nil {
		t.Fatalf("requester confirm failed: %+v", resp.Error)
	}

	_, earningsResp := rpcCall(t, server, "", "market_getPlatformEarnings", struct{}{})
	encoded, _ := json.Marshal(earningsResp.Result)
	var earnings earningsResult
	if err := json.Unmarshal(encoded, &earnings); err != nil {
		t.Fatalf("decode earnings: %v", err)
	}
	if earnings.Earnings != "100000" {
		t.Fatalf("expected earnings 100000, got %s", earnings.Earnings)
	}

	account, err := manager.GetAccount(provider)
	if err != nil {
		t.Fatalf("load provider account: %v", err)
	}
	if account.Balance.Int64() != 1_900_000 {
		t.Fatalf("expected provider payout 1900000, got %s", account.Balance)
	}
}

func TestGetSessionMissingIsNull(t *testing.T) {
	server, _, _ := newTestServer(t)
	recorder, resp := rpcCall(t, server, "", "market_getSession", recordIDParams{ID: 404})
	if recorder.Code != http.StatusOK {
		t.Fatalf("missing records are absence, not an error; got %d", recorder.Code)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != nil {
		t.Fatalf("expected null result, got %v", resp.Result)
	}
}

func TestWithdrawForbiddenForNonOwner(t *testing.T) {
	server, manager, owner := newTestServer(t)
	requester := testAddr(0x02)
	reviewer := testAddr(0x04)
	fund(t, manager, requester, 500_000)

	_, _ = rpcCall(t, server, testToken, "market_createReview", createReviewParams{
		Caller:   bech(requester),
		Reviewer: bech(reviewer),
		Bounty:   "500000",
	})
	_, resp := rpcCall(t, server, testToken, "market_completeReview", recordActionParams{Caller: bech(requester), ID: 1})
	if resp.Error != nil {
		t.Fatalf("complete review failed: %+v", resp.Error)
	}

	recorder, resp := rpcCall(t, server, testToken, "market_withdrawEarnings", withdrawParams{
		Caller: bech(requester),
		Amount: "1000",
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMarketForbidden {
		t.Fatalf("expected forbidden code, got %+v", resp.Error)
	}

	_, resp = rpcCall(t, server, testToken, "market_withdrawEarnings", withdrawParams{
		Caller: bech(owner),
		Amount: "25000",
	})
	if resp.Error != nil {
		t.Fatalf("owner withdrawal failed: %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	server, _, _ := newTestServer(t)
	recorder, resp := rpcCall(t, server, "", "market_unknown", struct{}{})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}
