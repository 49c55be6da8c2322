package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-pos/comanda/internal/domain"
)

// RabbitMQ event payloads. Consumers (printers, notification dispatch,
// delivery tracking) live outside this core.
type OrderStatusEvent struct {
	TenantID    uuid.UUID          `json:"tenant_id"`
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Channel     domain.Channel     `json:"channel"`
	OldStatus   domain.OrderStatus `json:"old_status"`
	NewStatus   domain.OrderStatus `json:"new_status"`
	Reason      string             `json:"reason"`
	Timestamp   time.Time          `json:"timestamp"`
}

type PaymentSettledEvent struct {
	TenantID          uuid.UUID            `json:"tenant_id"`
	OrderID           int64                `json:"order_id"`
	TransactionID     int64                `json:"transaction_id"`
	Provider          string               `json:"provider"`
	Method            domain.PaymentMethod `json:"method"`
	Status            domain.PaymentStatus `json:"status"`
	Amount            string               `json:"amount"`
	Currency          string               `json:"currency"`
	ProviderPaymentID *string              `json:"provider_payment_id"`
	Timestamp         time.Time            `json:"timestamp"`
}

type EventPublisher interface {
	PublishOrderStatus(ctx context.Context, event OrderStatusEvent) error
	PublishPaymentSettled(ctx context.Context, event PaymentSettledEvent) error
}
