package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type PaymentHandler struct {
	service interfaces.PaymentService
	logger  logger.Logger
}

func NewPaymentHandler(service interfaces.PaymentService, lgr logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: lgr}
}

func (h *PaymentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments/charge", h.Charge)
	mux.HandleFunc("GET /payments/consult/{provider}/{externalID}", h.Consult)
}

type chargeRequest struct {
	OrderID                   int64             `json:"order_id"`
	Amount                    decimal.Decimal   `json:"amount"`
	Method                    string            `json:"method"`
	MethodRef                 *uuid.UUID        `json:"method_ref,omitempty"`
	Metadata                  map[string]string `json:"metadata,omitempty"`
	ExistingProviderPaymentID *string           `json:"existing_provider_payment_id,omitempty"`
	ActorID                   *uuid.UUID        `json:"actor_id,omitempty"`
}

type paymentResponse struct {
	TransactionID     int64                `json:"transaction_id"`
	OrderID           int64                `json:"order_id"`
	Provider          string               `json:"provider"`
	Method            domain.PaymentMethod `json:"method"`
	Status            domain.PaymentStatus `json:"status"`
	Amount            decimal.Decimal      `json:"amount"`
	Currency          string               `json:"currency"`
	ProviderPaymentID *string              `json:"provider_payment_id,omitempty"`
	QRCode            *string              `json:"qr_code,omitempty"`
	QRCodeImage       *string              `json:"qr_code_image,omitempty"`
}

func toPaymentResponse(result *interfaces.PaymentResult) paymentResponse {
	tx := result.Transaction
	return paymentResponse{
		TransactionID:     tx.ID,
		OrderID:           tx.OrderID,
		Provider:          tx.Provider,
		Method:            tx.Method,
		Status:            tx.Status,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		ProviderPaymentID: tx.ProviderPaymentID,
		QRCode:            result.QRCode,
		QRCodeImage:       result.QRCodeImage,
	}
}

func (h *PaymentHandler) Charge(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.NewValidationError("body", "invalid request body"))
		return
	}

	result, err := h.service.Charge(r.Context(), interfaces.ChargeCommand{
		TenantID:                  tenant,
		OrderID:                   req.OrderID,
		Amount:                    req.Amount,
		Method:                    req.Method,
		MethodRef:                 req.MethodRef,
		Metadata:                  req.Metadata,
		ExistingProviderPaymentID: req.ExistingProviderPaymentID,
		ActorID:                   req.ActorID,
	})
	if err != nil {
		h.logger.Error("charge_failed", "Failed to charge order", "", map[string]interface{}{
			"order_id": req.OrderID,
		}, err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toPaymentResponse(result))
}

func (h *PaymentHandler) Consult(w http.ResponseWriter, r *http.Request) {
	tenant, err := tenantID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := h.service.Consult(r.Context(), tenant, r.PathValue("provider"), r.PathValue("externalID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentResponse(result))
}
