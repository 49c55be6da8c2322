package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type CashDrawerHandler struct {
	service interfaces.CashDrawerService
	logger  logger.Logger
}

func NewCashDrawerHandler(service interfaces.CashDrawerService, lgr logger.Logger) *CashDrawerHandler {
	return &CashDrawerHandler{service: service, logger: lgr}
}

func (h *CashDrawerHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /cash-sessions", h.OpenSession)
	mux.HandleFunc("POST /cash-sessions/{id}/withdrawals", h.RecordWithdrawal)
	mux.HandleFunc("GET /cash-sessions/{id}/reconciliation", h.Reconcile)
	mux.HandleFunc("POST /cash-sessions/{id}/close", h.CloseSession)
}

type openSessionRequest struct {
	DrawerID     string          `json:"drawer_id"`
	OperatorID   uuid.UUID       `json:"operator_id"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
}

type sessionResponse struct {
	ID              int64                `json:"id"`
	DrawerID        string               `json:"drawer_id"`
	Status          domain.SessionStatus `json:"status"`
	OpeningFloat    decimal.Decimal      `json:"opening_float"`
	ExpectedBalance *decimal.Decimal     `json:"expected_balance,omitempty"`
	CountedBalance  *decimal.Decimal     `json:"counted_balance,omitempty"`
	Variance        *decimal.Decimal     `json:"variance,omitempty"`
}

func toSessionResponse(s *domain.CashDrawerSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		DrawerID:        s.DrawerID,
		Status:          s.Status,
		OpeningFloat:    s.OpeningFloat,
		ExpectedBalance: s.ExpectedBalance,
		CountedBalance:  s.CountedBalance,
		Variance:        s.Variance,
	}
}

func (h *CashDrawerHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	session, err := h.service.OpenSession(r.Context(), interfaces.OpenSessionCommand{
		TenantID:     tenant,
		DrawerID:     req.DrawerID,
		OperatorID:   req.OperatorID,
		OpeningFloat: req.OpeningFloat,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toSessionResponse(session))
}

type withdrawalRequest struct {
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

type withdrawalResponse struct {
	ID        int64                 `json:"id"`
	SessionID int64                 `json:"session_id"`
	Kind      domain.WithdrawalKind `json:"kind"`
	Amount    decimal.Decimal       `json:"amount"`
	Note      string                `json:"note,omitempty"`
}

func (h *CashDrawerHandler) RecordWithdrawal(w http.ResponseWriter, r *http.Request) {
	tenant, sessionID, err := sessionScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	withdrawal, err := h.service.RecordWithdrawal(r.Context(), interfaces.WithdrawalCommand{
		TenantID:  tenant,
		SessionID: sessionID,
		Kind:      req.Kind,
		Amount:    req.Amount,
		Note:      req.Note,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, withdrawalResponse{
		ID:        withdrawal.ID,
		SessionID: withdrawal.SessionID,
		Kind:      withdrawal.Kind,
		Amount:    withdrawal.Amount,
		Note:      withdrawal.Note,
	})
}

type reconciliationResponse struct {
	SessionID       int64                     `json:"session_id"`
	OpeningFloat    decimal.Decimal           `json:"opening_float"`
	CashInflows     decimal.Decimal           `json:"cash_inflows"`
	ChangeGiven     decimal.Decimal           `json:"change_given"`
	Withdrawals     decimal.Decimal           `json:"withdrawals"`
	ExpectedBalance decimal.Decimal           `json:"expected_balance"`
	ByMethod        []methodBreakdownResponse `json:"by_method"`
}

type methodBreakdownResponse struct {
	Method domain.PaymentMethod `json:"method"`
	Count  int                  `json:"count"`
	Amount decimal.Decimal      `json:"amount"`
}

func (h *CashDrawerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	tenant, sessionID, err := sessionScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := h.service.Reconcile(r.Context(), tenant, sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	byMethod := make([]methodBreakdownResponse, 0, len(result.ByMethod))
	for _, mb := range result.ByMethod {
		byMethod = append(byMethod, methodBreakdownResponse{Method: mb.Method, Count: mb.Count, Amount: mb.Amount})
	}
	respondJSON(w, http.StatusOK, reconciliationResponse{
		SessionID:       result.SessionID,
		OpeningFloat:    result.OpeningFloat,
		CashInflows:     result.CashInflows,
		ChangeGiven:     result.ChangeGiven,
		Withdrawals:     result.Withdrawals,
		ExpectedBalance: result.ExpectedBalance,
		ByMethod:        byMethod,
	})
}

type closeSessionRequest struct {
	CountedBalance decimal.Decimal `json:"counted_balance"`
	Notes          string          `json:"notes,omitempty"`
	OperatorID     uuid.UUID       `json:"operator_id"`
}

func (h *CashDrawerHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	tenant, sessionID, err := sessionScope(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	session, err := h.service.CloseSession(r.Context(), interfaces.CloseSessionCommand{
		TenantID:       tenant,
		SessionID:      sessionID,
		CountedBalance: req.CountedBalance,
		Notes:          req.Notes,
		OperatorID:     req.OperatorID,
	})
	if err != nil {
		h.logger.Error("session_close_failed", "Failed to close cash session", "", map[string]interface{}{
			"session_id": sessionID,
		}, err)
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(session))
}

func sessionScope(r *http.Request) (uuid.UUID, int64, error) {
	tenant, err := tenantID(r)
	if err != nil {
		return uuid.Nil, 0, err
	}
	sessionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return uuid.Nil, 0, domain.NewValidationError("session_id", "session id must be numeric")
	}
	return tenant, sessionID, nil
}
