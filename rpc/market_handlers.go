package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"devmarket/crypto"
	"devmarket/native/market"
)

const (
	codeMarketInvalidParams = -32021
	codeMarketNotFound      = -32022
	codeMarketForbidden     = -32023
	codeMarketConflict      = -32024
	codeMarketInternal      = -32025
	codeMarketFunds         = -32026
)

type createSessionParams struct {
	Caller   string `json:"caller"`
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
}

type createReviewParams struct {
	Caller   string `json:"caller"`
	Reviewer string `json:"reviewer"`
	Bounty   string `json:"bounty"`
}

type recordActionParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type sendTipParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type withdrawParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type recordIDParams struct {
	ID uint64 `json:"id"`
}

type createResult struct {
	ID uint64 `json:"id"`
}

type earningsResult struct {
	Earnings string `json:"earnings"`
}

type sessionJSON struct {
	ID                 uint64 `json:"id"`
	Requester          string `json:"requester"`
	Provider           string `json:"provider"`
	Amount             string `json:"amount"`
	PlatformFee        string `json:"platformFee"`
	Status             string `json:"status"`
	RequesterConfirmed bool   `json:"requesterConfirmed"`
	ProviderConfirmed  bool   `json:"providerConfirmed"`
	CreatedAt          int64  `json:"createdAt"`
}

type reviewJSON struct {
	ID          uint64 `json:"id"`
	Requester   string `json:"requester"`
	Reviewer    string `json:"reviewer"`
	Bounty      string `json:"bounty"`
	PlatformFee string `json:"platformFee"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
}

func sessionToJSON(s *market.Session) *sessionJSON {
	if s == nil {
		return nil
	}
	return &sessionJSON{
		ID:                 s.ID,
		Requester:          crypto.NewAddress(crypto.DVMPrefix, s.Requester).String(),
		Provider:           crypto.NewAddress(crypto.DVMPrefix, s.Provider).String(),
		Amount:             s.Amount.String(),
		PlatformFee:        s.PlatformFee.String(),
		Status:             s.Status.String(),
		RequesterConfirmed: s.RequesterConfirmed,
		ProviderConfirmed:  s.ProviderConfirmed,
		CreatedAt:          s.CreatedAt,
	}
}

func reviewToJSON(r *market.Review) *reviewJSON {
	if r == nil {
		return nil
	}
	return &reviewJSON{
		ID:          r.ID,
		Requester:   crypto.NewAddress(crypto.DVMPrefix, r.Requester).String(),
		Reviewer:    crypto.NewAddress(crypto.DVMPrefix, r.Reviewer).String(),
		Bounty:      r.Bounty.String(),
		PlatformFee: r.PlatformFee.String(),
		Status:      r.Status.String(),
		CreatedAt:   r.CreatedAt,
	}
}

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeEngineError maps settlement errors onto the module error code block.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrSessionNotFound), errors.Is(err, market.ErrReviewNotFound):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, "not_found", err.Error())
	case errors.Is(err, market.ErrNotAuthorized), errors.Is(err, market.ErrNotSessionParticipant):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, "forbidden", err.Error())
	case errors.Is(err, market.ErrInvalidAmount), errors.Is(err, market.ErrInvalidParticipant):
		writeError(w, http.StatusBadRequest, id, codeMarketInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, market.ErrSessionAlreadyCompleted), errors.Is(err, market.ErrReviewAlreadyCompleted):
		writeError(w, http.StatusConflict, id, codeMarketConflict, "conflict", err.Error())
	case errors.Is(err, market.ErrInsufficientFunds), errors.Is(err, market.ErrPaymentFailed):
		writeError(w, http.StatusConflict, id, codeMarketFunds, "funds", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeMarketInternal, "internal", err.Error())
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params createSessionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	provider, err := parseAddress(params.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	id, err := s.engine.CreateSession(caller, provider, amount)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("session created", "id", id, "requester", params.Caller)
	writeResult(w, req.ID, createResult{ID: id})
}

func (s *Server) handleConfirmSession(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.decodeRecordAction(w, r, req)
	if !ok {
		return
	}
	s.mu.Lock()
	err := s.engine.ConfirmSessionCompletion(caller, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.decodeRecordAction(w, r, req)
	if !ok {
		return
	}
	s.mu.Lock()
	err := s.engine.CancelSession(caller, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params createReviewParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	reviewer, err := parseAddress(params.Reviewer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	bounty, err := parseAmount(params.Bounty)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	id, err := s.engine.CreateReviewRequest(caller, reviewer, bounty)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("review created", "id", id, "requester", params.Caller)
	writeResult(w, req.ID, createResult{ID: id})
}

func (s *Server) handleCompleteReview(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.decodeRecordAction(w, r, req)
	if !ok {
		return
	}
	s.mu.Lock()
	err := s.engine.CompleteReview(caller, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleCancelReview(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, id, ok := s.decodeRecordAction(w, r, req)
	if !ok {
		return
	}
	s.mu.Lock()
	err := s.engine.CancelReview(caller, id)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSendTip(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params sendTipParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.SendTip(caller, recipient, amount)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleWithdrawEarnings(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params withdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	err = s.engine.WithdrawPlatformEarnings(caller, amount)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.logger.Info("treasury withdrawal", "amount", params.Amount)
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params recordIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	session, ok := s.engine.GetSession(params.ID)
	s.mu.Unlock()
	if !ok {
		// Missing ids are absence, not an error.
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, sessionToJSON(session))
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params recordIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	review, ok := s.engine.GetReview(params.ID)
	s.mu.Unlock()
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, reviewToJSON(review))
}

func (s *Server) handleGetPlatformEarnings(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.mu.Lock()
	earnings, err := s.engine.PlatformEarnings()
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, earningsResult{Earnings: earnings.String()})
}

func (s *Server) decodeRecordAction(w http.ResponseWriter, r *http.Request, req *RPCRequest) ([20]byte, uint64, bool) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return [20]byte{}, 0, false
	}
	var params recordActionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, 0, false
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, 0, false
	}
	return caller, params.ID, true
}
