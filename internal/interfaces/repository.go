package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-pos/comanda/internal/domain"
)

// Repository interfaces (adapter/postgres). Every mutation that spans
// more than one table runs in a single transaction inside the adapter.
type OrderRepository interface {
	// Create persists the order together with its opening history
	// entry. A duplicate (tenant, number) surfaces as ConflictError.
	Create(ctx context.Context, order *domain.Order, entry *domain.HistoryEntry) error
	FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.Order, error)
	FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*domain.Order, error)
	// UpdateStatus persists the order's status fields and the history
	// entry of the transition in one transaction.
	UpdateStatus(ctx context.Context, order *domain.Order, entry *domain.HistoryEntry) error
	// AddItem persists the new line item (with its groups and addons),
	// the recomputed totals and the history entry in one transaction.
	AddItem(ctx context.Context, order *domain.Order, item *domain.LineItem, entry *domain.HistoryEntry) error
	// RemoveItem deletes the line item and persists the recomputed
	// totals and the history entry in one transaction.
	RemoveItem(ctx context.Context, order *domain.Order, itemID int64, entry *domain.HistoryEntry) error
	AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error
	History(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.HistoryEntry, error)
}

// NumberAllocator issues unique, monotonically increasing order
// numbers per (tenant, prefix).
type NumberAllocator interface {
	// Allocate uses one atomic sequence step; concurrent callers for
	// the same (tenant, prefix) never receive the same number.
	Allocate(ctx context.Context, tenantID uuid.UUID, prefix string, width int) (string, error)
	// AllocateScoped serializes allocations sharing (tenant, scope)
	// under an advisory lock and scans MAX+1. Kept for numbering that
	// must stay stable per a secondary dimension, e.g. per table.
	AllocateScoped(ctx context.Context, tenantID uuid.UUID, scopeCode int64, prefix string, width int) (string, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, tx *domain.PaymentTransaction) error
	Update(ctx context.Context, tx *domain.PaymentTransaction) error
	FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.PaymentTransaction, error)
	FindByProviderPaymentID(ctx context.Context, tenantID uuid.UUID, provider, providerPaymentID string) (*domain.PaymentTransaction, error)
	ListForOrder(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.PaymentTransaction, error)
	// LatestForOrder serves legacy single-transaction callers.
	LatestForOrder(ctx context.Context, tenantID uuid.UUID, orderID int64) (*domain.PaymentTransaction, error)
}

type CashDrawerRepository interface {
	// OpenSession fails with ConflictError when the drawer already has
	// an open session for the tenant.
	OpenSession(ctx context.Context, session *domain.CashDrawerSession) error
	FindSession(ctx context.Context, tenantID uuid.UUID, sessionID int64) (*domain.CashDrawerSession, error)
	FindOpenSession(ctx context.Context, tenantID uuid.UUID, drawerID string) (*domain.CashDrawerSession, error)
	AddWithdrawal(ctx context.Context, w *domain.CashWithdrawal) error
	ListWithdrawals(ctx context.Context, sessionID int64) ([]domain.CashWithdrawal, error)
	// ListSettlements returns paid transactions of completed orders
	// whose settlement timestamp falls inside [from, to].
	ListSettlements(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.CashSettlement, error)
	CloseSession(ctx context.Context, session *domain.CashDrawerSession) error
}
