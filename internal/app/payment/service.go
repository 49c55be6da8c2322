package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type Service struct {
	payments  interfaces.PaymentRepository
	orders    interfaces.OrderRepository
	provider  interfaces.PaymentProvider
	publisher interfaces.EventPublisher
	logger    logger.Logger
	currency  string
}

func NewService(payments interfaces.PaymentRepository, orders interfaces.OrderRepository, provider interfaces.PaymentProvider, publisher interfaces.EventPublisher, lgr logger.Logger, currency string) *Service {
	return &Service{
		payments:  payments,
		orders:    orders,
		provider:  provider,
		publisher: publisher,
		logger:    lgr,
		currency:  currency,
	}
}

// Charge records a payment attempt against the order. Only the
// instant online method goes through the provider; every other method
// has no external capture step and settles synchronously as paid.
func (s *Service) Charge(ctx context.Context, cmd interfaces.ChargeCommand) (*interfaces.PaymentResult, error) {
	method, err := domain.ParsePaymentMethod(cmd.Method)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if cmd.ExistingProviderPaymentID != nil && *cmd.ExistingProviderPaymentID != "" {
		return s.retryExisting(ctx, cmd, order, method)
	}

	if !method.Instant() {
		return s.settleLocal(ctx, cmd, order, method)
	}
	return s.chargeInstant(ctx, cmd, order, method, nil)
}

// retryExisting is the idempotent path: the provider payment is
// fetched, never recreated, and the one existing transaction row is
// refreshed in place.
func (s *Service) retryExisting(ctx context.Context, cmd interfaces.ChargeCommand, order *domain.Order, method domain.PaymentMethod) (*interfaces.PaymentResult, error) {
	existingID := *cmd.ExistingProviderPaymentID
	tx, err := s.payments.FindByProviderPaymentID(ctx, cmd.TenantID, s.provider.Name(), existingID)
	if err == nil {
		return s.refresh(ctx, order, tx)
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}
	// No local row yet for this provider payment: fetch it and record
	// a single transaction for it.
	return s.chargeInstant(ctx, cmd, order, method, &existingID)
}

func (s *Service) settleLocal(ctx context.Context, cmd interfaces.ChargeCommand, order *domain.Order, method domain.PaymentMethod) (*interfaces.PaymentResult, error) {
	tx, err := domain.NewPaymentTransaction(cmd.TenantID, order.ID, cmd.MethodRef, "internal", method, cmd.Amount, s.currency)
	if err != nil {
		return nil, err
	}

	// No external capture exists for counter methods; the transaction
	// is born settled under a locally synthesized id.
	localID := "local-" + uuid.NewString()
	tx.ProviderPaymentID = &localID
	tx.ApplyStatus(domain.PaymentPaid, time.Now().UTC())

	if err := s.payments.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.recordSettlement(ctx, order, tx)
	return &interfaces.PaymentResult{Transaction: tx}, nil
}

func (s *Service) chargeInstant(ctx context.Context, cmd interfaces.ChargeCommand, order *domain.Order, method domain.PaymentMethod, existingID *string) (*interfaces.PaymentResult, error) {
	tx, err := domain.NewPaymentTransaction(cmd.TenantID, order.ID, cmd.MethodRef, s.provider.Name(), method, cmd.Amount, s.currency)
	if err != nil {
		return nil, err
	}

	req := interfaces.ProviderPaymentRequest{
		ExternalRef: order.Number,
		Amount:      cmd.Amount,
		Metadata:    cmd.Metadata,
		ExistingID:  existingID,
	}
	if payload, err := json.Marshal(req); err == nil {
		tx.RequestPayload = payload
	}

	// Persist as pending before the provider call, so a timeout leaves
	// a consultable row instead of a phantom charge.
	if err := s.payments.Create(ctx, tx); err != nil {
		return nil, err
	}

	providerPayment, err := s.provider.CreateOrFetchPayment(ctx, req)
	if err != nil {
		// Network or timeout: the transaction stays pending; it must
		// never be optimistically marked paid. The caller decides on
		// retry or consult.
		s.logger.Error("provider_call_failed", "Payment provider call failed", "", map[string]interface{}{
			"order_number":   order.Number,
			"transaction_id": tx.ID,
		}, err)
		return nil, err
	}

	s.applyProviderPayment(tx, providerPayment)
	if err := s.payments.Update(ctx, tx); err != nil {
		return nil, err
	}

	if tx.Settled() {
		s.recordSettlement(ctx, order, tx)
	}

	return &interfaces.PaymentResult{
		Transaction: tx,
		QRCode:      providerPayment.QRCode,
		QRCodeImage: providerPayment.QRCodeImage,
	}, nil
}

// Consult refreshes a transaction from the provider, for webhooks and
// reconciliation jobs.
func (s *Service) Consult(ctx context.Context, tenantID uuid.UUID, provider, externalID string) (*interfaces.PaymentResult, error) {
	tx, err := s.payments.FindByProviderPaymentID(ctx, tenantID, provider, externalID)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, tenantID, tx.OrderID)
	if err != nil {
		return nil, err
	}
	return s.refreshFromProvider(ctx, order, tx)
}

func (s *Service) refresh(ctx context.Context, order *domain.Order, tx *domain.PaymentTransaction) (*interfaces.PaymentResult, error) {
	if tx.ProviderPaymentID == nil || !tx.Method.Instant() {
		return &interfaces.PaymentResult{Transaction: tx}, nil
	}
	return s.refreshFromProvider(ctx, order, tx)
}

func (s *Service) refreshFromProvider(ctx context.Context, order *domain.Order, tx *domain.PaymentTransaction) (*interfaces.PaymentResult, error) {
	providerPayment, err := s.provider.GetPayment(ctx, *tx.ProviderPaymentID)
	if err != nil {
		return nil, err
	}

	wasSettled := tx.Settled()
	s.applyProviderPayment(tx, providerPayment)
	if err := s.payments.Update(ctx, tx); err != nil {
		return nil, err
	}
	if !wasSettled && tx.Settled() {
		s.recordSettlement(ctx, order, tx)
	}

	return &interfaces.PaymentResult{
		Transaction: tx,
		QRCode:      providerPayment.QRCode,
		QRCodeImage: providerPayment.QRCodeImage,
	}, nil
}

func (s *Service) applyProviderPayment(tx *domain.PaymentTransaction, pp *interfaces.ProviderPayment) {
	if tx.ProviderPaymentID == nil && pp.ID != "" {
		id := pp.ID
		tx.ProviderPaymentID = &id
	}
	tx.ResponsePayload = pp.Raw
	tx.ApplyStatus(domain.MapProviderStatus(pp.Status), time.Now().UTC())
}

// recordSettlement appends a history entry on the order and emits the
// settlement event. Payment status never forces an order transition;
// that call belongs to the workflow layer.
func (s *Service) recordSettlement(ctx context.Context, order *domain.Order, tx *domain.PaymentTransaction) {
	entry := &domain.HistoryEntry{
		OrderID:    order.ID,
		PrevStatus: order.Status,
		NewStatus:  order.Status,
		Operation:  domain.OpPaymentEvent,
		Reason:     fmt.Sprintf("Payment %s via %s: %s", tx.Amount.StringFixed(2), tx.Method, tx.Status),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.orders.AppendHistory(ctx, entry); err != nil {
		s.logger.Error("history_append_failed", "Failed to record payment on order history", "", map[string]interface{}{
			"order_number":   order.Number,
			"transaction_id": tx.ID,
		}, err)
	}

	event := interfaces.PaymentSettledEvent{
		TenantID:          tx.TenantID,
		OrderID:           order.ID,
		TransactionID:     tx.ID,
		Provider:          tx.Provider,
		Method:            tx.Method,
		Status:            tx.Status,
		Amount:            tx.Amount.StringFixed(2),
		Currency:          tx.Currency,
		ProviderPaymentID: tx.ProviderPaymentID,
		Timestamp:         time.Now().UTC(),
	}
	if err := s.publisher.PublishPaymentSettled(ctx, event); err != nil {
		s.logger.Error("publish_failed", "Failed to publish payment event", "", map[string]interface{}{
			"transaction_id": tx.ID,
		}, err)
	}
}
