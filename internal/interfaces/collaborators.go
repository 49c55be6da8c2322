package interfaces

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/domain"
)

// CatalogService is the external catalog collaborator. The core only
// reads it when a line item is added; the returned values are frozen
// onto the item as snapshots.
type CatalogService interface {
	GetItemPrice(ctx context.Context, tenantID uuid.UUID, ref domain.ItemRef) (*CatalogItem, error)
}

type CatalogItem struct {
	UnitPrice   decimal.Decimal
	Available   bool
	Description string
	ImageRef    *string
}

// PaymentProvider abstracts the external settlement provider for the
// instant online payment method.
type PaymentProvider interface {
	// CreateOrFetchPayment creates a provider payment, or fetches the
	// existing one when req.ExistingID is set (idempotent retry path).
	CreateOrFetchPayment(ctx context.Context, req ProviderPaymentRequest) (*ProviderPayment, error)
	GetPayment(ctx context.Context, id string) (*ProviderPayment, error)
	Name() string
}

type ProviderPaymentRequest struct {
	ExternalRef string
	Amount      decimal.Decimal
	Metadata    map[string]string
	ExistingID  *string
}

type ProviderPayment struct {
	ID          string
	Status      string
	QRCode      *string
	QRCodeImage *string
	Raw         json.RawMessage
}
