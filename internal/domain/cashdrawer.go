package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

type WithdrawalKind string

const (
	WithdrawalPettyCash WithdrawalKind = "petty_cash"
	WithdrawalExpense   WithdrawalKind = "expense"
)

// CashDrawerSession is the open-to-close window of a physical drawer.
// At most one open session exists per (tenant, drawer).
type CashDrawerSession struct {
	ID              int64
	TenantID        uuid.UUID
	DrawerID        string
	OperatorID      uuid.UUID
	OpeningFloat    decimal.Decimal
	ExpectedBalance *decimal.Decimal
	CountedBalance  *decimal.Decimal
	Variance        *decimal.Decimal
	Notes           *string
	Status          SessionStatus
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

func NewCashDrawerSession(tenantID uuid.UUID, drawerID string, operatorID uuid.UUID, openingFloat decimal.Decimal) (*CashDrawerSession, error) {
	if tenantID == uuid.Nil {
		return nil, NewValidationError("tenant_id", "tenant id is required")
	}
	if drawerID == "" {
		return nil, NewValidationError("drawer_id", "drawer id is required")
	}
	if openingFloat.IsNegative() {
		return nil, NewValidationError("opening_float", "opening float cannot be negative")
	}
	return &CashDrawerSession{
		TenantID:     tenantID,
		DrawerID:     drawerID,
		OperatorID:   operatorID,
		OpeningFloat: openingFloat,
		Status:       SessionOpen,
		OpenedAt:     time.Now().UTC(),
	}, nil
}

// Window is the settlement interval the session covers; an open
// session extends to now.
func (s *CashDrawerSession) Window(now time.Time) (time.Time, time.Time) {
	if s.ClosedAt != nil {
		return s.OpenedAt, *s.ClosedAt
	}
	return s.OpenedAt, now
}

// Close snapshots the reconciliation result onto the session. The
// counted balance is what the operator physically counted.
func (s *CashDrawerSession) Close(expected, counted decimal.Decimal, notes string, operatorID uuid.UUID, at time.Time) error {
	if s.Status != SessionOpen {
		return NewConflictError("cash_session", "session "+formatID(s.ID)+" is already closed")
	}
	variance := counted.Sub(expected)
	s.ExpectedBalance = &expected
	s.CountedBalance = &counted
	s.Variance = &variance
	if notes != "" {
		s.Notes = &notes
	}
	s.OperatorID = operatorID
	s.Status = SessionClosed
	s.ClosedAt = &at
	return nil
}

// CashWithdrawal is a removal of cash from the drawer during a
// session, not tied to any order. Append-only: withdrawals are never
// edited or deleted once recorded.
type CashWithdrawal struct {
	ID        int64
	SessionID int64
	Kind      WithdrawalKind
	Amount    decimal.Decimal
	Note      string
	CreatedAt time.Time
}

func NewCashWithdrawal(sessionID int64, kind WithdrawalKind, amount decimal.Decimal, note string) (*CashWithdrawal, error) {
	if kind != WithdrawalPettyCash && kind != WithdrawalExpense {
		return nil, NewValidationError("kind", "withdrawal kind must be petty_cash or expense")
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "withdrawal amount must be positive")
	}
	if kind == WithdrawalExpense && note == "" {
		return nil, NewValidationError("note", "expense withdrawals require a note")
	}
	return &CashWithdrawal{
		SessionID: sessionID,
		Kind:      kind,
		Amount:    amount,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CashSettlement is one paid transaction of a completed order, joined
// with the order figures the reconciliation needs. Rows are already
// filtered to the session window by settlement timestamp.
type CashSettlement struct {
	OrderID        int64
	Method         PaymentMethod
	Amount         decimal.Decimal
	OrderTotal     decimal.Decimal
	AmountTendered *decimal.Decimal
	SettledAt      time.Time
}

type MethodBreakdown struct {
	Method PaymentMethod
	Count  int
	Amount decimal.Decimal
}

type Reconciliation struct {
	SessionID       int64
	OpeningFloat    decimal.Decimal
	CashInflows     decimal.Decimal
	ChangeGiven     decimal.Decimal
	Withdrawals     decimal.Decimal
	ExpectedBalance decimal.Decimal
	ByMethod        []MethodBreakdown
}

// Reconcile computes the expected drawer balance:
//
//	expected = opening float + cash inflows - change given - withdrawals
//
// A cash transaction recorded with the tendered amount contributes at
// most the order's total; the excess is what came back out as change
// and must not inflate revenue. A malformed row aborts the whole
// computation instead of producing a silently short or inflated sum.
func Reconcile(session *CashDrawerSession, settlements []CashSettlement, withdrawals []CashWithdrawal) (*Reconciliation, error) {
	inflows := decimal.Zero
	change := decimal.Zero
	byMethod := make(map[PaymentMethod]*MethodBreakdown)
	changeCounted := make(map[int64]bool)

	for _, st := range settlements {
		if st.Amount.IsNegative() || st.OrderTotal.IsNegative() {
			return nil, NewValidationError("settlement", "settlement for order "+formatID(st.OrderID)+" has a negative amount")
		}

		counted := st.Amount
		if st.Method.IsCash() && counted.GreaterThan(st.OrderTotal) {
			counted = st.OrderTotal
		}

		if st.Method.IsCash() {
			inflows = inflows.Add(counted)
			if !changeCounted[st.OrderID] && st.AmountTendered != nil && st.AmountTendered.GreaterThan(st.OrderTotal) {
				change = change.Add(st.AmountTendered.Sub(st.OrderTotal))
				changeCounted[st.OrderID] = true
			}
		}

		mb, ok := byMethod[st.Method]
		if !ok {
			mb = &MethodBreakdown{Method: st.Method}
			byMethod[st.Method] = mb
		}
		mb.Count++
		mb.Amount = mb.Amount.Add(counted)
	}

	total := decimal.Zero
	for _, w := range withdrawals {
		if w.Amount.IsNegative() {
			return nil, NewValidationError("withdrawal", "withdrawal "+formatID(w.ID)+" has a negative amount")
		}
		total = total.Add(w.Amount)
	}

	breakdown := make([]MethodBreakdown, 0, len(byMethod))
	for _, mb := range byMethod {
		breakdown = append(breakdown, *mb)
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Method < breakdown[j].Method })

	expected := session.OpeningFloat.Add(inflows).Sub(change).Sub(total)
	return &Reconciliation{
		SessionID:       session.ID,
		OpeningFloat:    session.OpeningFloat,
		CashInflows:     inflows,
		ChangeGiven:     change,
		Withdrawals:     total,
		ExpectedBalance: expected,
		ByMethod:        breakdown,
	}, nil
}
