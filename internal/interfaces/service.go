package interfaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/domain"
)

// Service interfaces (business logic).
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
	AddLineItem(ctx context.Context, cmd AddLineItemCommand) (*domain.Order, error)
	RemoveLineItem(ctx context.Context, cmd RemoveLineItemCommand) (*domain.Order, error)
	TransitionStatus(ctx context.Context, cmd TransitionCommand) (*domain.Order, error)
	ReopenOrder(ctx context.Context, cmd ReopenCommand) (*domain.Order, error)
	GetOrder(ctx context.Context, tenantID uuid.UUID, orderID int64) (*domain.Order, error)
	GetHistory(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.HistoryEntry, error)
}

type PaymentService interface {
	Charge(ctx context.Context, cmd ChargeCommand) (*PaymentResult, error)
	Consult(ctx context.Context, tenantID uuid.UUID, provider, externalID string) (*PaymentResult, error)
}

type CashDrawerService interface {
	OpenSession(ctx context.Context, cmd OpenSessionCommand) (*domain.CashDrawerSession, error)
	RecordWithdrawal(ctx context.Context, cmd WithdrawalCommand) (*domain.CashWithdrawal, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID, sessionID int64) (*domain.Reconciliation, error)
	CloseSession(ctx context.Context, cmd CloseSessionCommand) (*domain.CashDrawerSession, error)
}

type CreateOrderCommand struct {
	TenantID         uuid.UUID
	Channel          string
	CustomerRef      *uuid.UUID
	AddressSnapshot  *string
	TableRef         *int
	PaymentMethodRef *uuid.UUID
	Discount         decimal.Decimal
	DeliveryFee      decimal.Decimal
	ServiceFee       decimal.Decimal
	AmountTendered   *decimal.Decimal
	InitialStatus    string
	// NumberPrefix overrides the channel default ("DV", "PK", ...).
	NumberPrefix string
	ActorID      *uuid.UUID
}

type AddLineItemCommand struct {
	TenantID  uuid.UUID
	OrderID   int64
	ProductID *uuid.UUID
	RecipeID  *uuid.UUID
	BundleID  *uuid.UUID
	Quantity  int
	Note      string
	Groups    []ComplementGroupCommand
	ActorID   *uuid.UUID
}

type ComplementGroupCommand struct {
	GroupRef     uuid.UUID
	Name         string
	Required     bool
	Quantitative bool
	MinSelection int
	MaxSelection int
	Addons       []AddonSelectionCommand
}

type AddonSelectionCommand struct {
	AddonRef  uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type RemoveLineItemCommand struct {
	TenantID uuid.UUID
	OrderID  int64
	ItemID   int64
	ActorID  *uuid.UUID
}

type TransitionCommand struct {
	TenantID uuid.UUID
	OrderID  int64
	Status   string
	Reason   string
	ActorID  *uuid.UUID
}

type ReopenCommand struct {
	TenantID uuid.UUID
	OrderID  int64
	// Status is the non-terminal status to reopen into; empty means
	// pending.
	Status  string
	Reason  string
	ActorID *uuid.UUID
}

type ChargeCommand struct {
	TenantID  uuid.UUID
	OrderID   int64
	Amount    decimal.Decimal
	Method    string
	MethodRef *uuid.UUID
	Metadata  map[string]string
	// ExistingProviderPaymentID makes the call an idempotent retry:
	// the provider payment is fetched instead of created.
	ExistingProviderPaymentID *string
	ActorID                   *uuid.UUID
}

type PaymentResult struct {
	Transaction *domain.PaymentTransaction
	QRCode      *string
	QRCodeImage *string
}

type OpenSessionCommand struct {
	TenantID     uuid.UUID
	DrawerID     string
	OperatorID   uuid.UUID
	OpeningFloat decimal.Decimal
}

type WithdrawalCommand struct {
	TenantID  uuid.UUID
	SessionID int64
	Kind      string
	Amount    decimal.Decimal
	Note      string
}

type CloseSessionCommand struct {
	TenantID       uuid.UUID
	SessionID      int64
	CountedBalance decimal.Decimal
	Notes          string
	OperatorID     uuid.UUID
}
