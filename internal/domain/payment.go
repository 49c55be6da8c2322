package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	// PaymentMethodPix is the only method routed to an external
	// provider; everything else settles synchronously at the counter.
	PaymentMethodPix     PaymentMethod = "pix"
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodCredit  PaymentMethod = "credit_card"
	PaymentMethodDebit   PaymentMethod = "debit_card"
	PaymentMethodVoucher PaymentMethod = "voucher"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodPix, PaymentMethodCash, PaymentMethodCredit, PaymentMethodDebit, PaymentMethodVoucher:
		return PaymentMethod(s), nil
	}
	return "", NewValidationError("method", "unknown payment method: "+s)
}

// Instant reports whether the method requires an online capture step
// at an external provider.
func (m PaymentMethod) Instant() bool {
	return m == PaymentMethodPix
}

// IsCash reports whether the method counts toward the physical drawer.
func (m PaymentMethod) IsCash() bool {
	return m == PaymentMethodCash
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentPaid       PaymentStatus = "paid"
	PaymentRefused    PaymentStatus = "refused"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// providerStatusMap converts the provider's status vocabulary to the
// internal enum. Anything unlisted maps to pending rather than failing,
// so a provider-side vocabulary addition never breaks a consult.
var providerStatusMap = map[string]PaymentStatus{
	"pending":      PaymentPending,
	"opened":       PaymentPending,
	"in_process":   PaymentPending,
	"in_mediation": PaymentPending,
	"authorized":   PaymentAuthorized,
	"approved":     PaymentPaid,
	"accredited":   PaymentPaid,
	"rejected":     PaymentRefused,
	"refused":      PaymentRefused,
	"cancelled":    PaymentCancelled,
	"expired":      PaymentCancelled,
	"refunded":     PaymentRefunded,
	"charged_back": PaymentRefunded,
}

func MapProviderStatus(providerStatus string) PaymentStatus {
	if s, ok := providerStatusMap[providerStatus]; ok {
		return s
	}
	return PaymentPending
}

// paymentStatusRank orders statuses by settlement progress; a
// lower-ranked update never overwrites a higher-ranked one.
var paymentStatusRank = map[PaymentStatus]int{
	PaymentPending:    0,
	PaymentAuthorized: 1,
	PaymentPaid:       2,
	PaymentRefused:    2,
	PaymentCancelled:  3,
	PaymentRefunded:   3,
}

// PaymentTransaction is one payment attempt against an order. An order
// may carry several (retries, split methods); callers that predate
// multi-transaction support read the most recent one.
type PaymentTransaction struct {
	ID                int64
	OrderID           int64
	TenantID          uuid.UUID
	MethodRef         *uuid.UUID
	Provider          string
	Method            PaymentMethod
	Amount            decimal.Decimal
	Currency          string
	Status            PaymentStatus
	ProviderPaymentID *string
	RequestPayload    []byte
	ResponsePayload   []byte
	AuthorizedAt      *time.Time
	PaidAt            *time.Time
	CancelledAt       *time.Time
	RefundedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewPaymentTransaction(tenantID uuid.UUID, orderID int64, methodRef *uuid.UUID, provider string, method PaymentMethod, amount decimal.Decimal, currency string) (*PaymentTransaction, error) {
	if orderID == 0 {
		return nil, NewValidationError("order_id", "order id is required")
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "amount must be positive")
	}
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &PaymentTransaction{
		OrderID:   orderID,
		TenantID:  tenantID,
		MethodRef: methodRef,
		Provider:  provider,
		Method:    method,
		Amount:    amount,
		Currency:  currency,
		Status:    PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyStatus moves the transaction to a new status and stamps the
// matching timestamp on first arrival. Timestamps are set once and
// never cleared; an earlier-stage update never regresses a settled
// status. Returns true when anything changed.
func (t *PaymentTransaction) ApplyStatus(next PaymentStatus, at time.Time) bool {
	if next == t.Status {
		return false
	}
	if paymentStatusRank[next] < paymentStatusRank[t.Status] {
		return false
	}

	t.Status = next
	t.UpdatedAt = at

	switch next {
	case PaymentAuthorized:
		if t.AuthorizedAt == nil {
			t.AuthorizedAt = &at
		}
	case PaymentPaid:
		if t.PaidAt == nil {
			t.PaidAt = &at
		}
	case PaymentCancelled:
		if t.CancelledAt == nil {
			t.CancelledAt = &at
		}
	case PaymentRefunded:
		if t.RefundedAt == nil {
			t.RefundedAt = &at
		}
	}
	return true
}

// Settled reports whether the transaction reached a state worth
// recording on the order's history.
func (t *PaymentTransaction) Settled() bool {
	switch t.Status {
	case PaymentPaid, PaymentAuthorized, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// SettledAt anchors shift attribution: the paid timestamp when the
// capture was recorded, falling back to the transaction's creation
// time for legacy rows that predate per-status timestamps.
func (t *PaymentTransaction) SettledAt() time.Time {
	if t.PaidAt != nil {
		return *t.PaidAt
	}
	return t.CreatedAt
}
