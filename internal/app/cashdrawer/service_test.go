package cashdrawer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type nopLogger struct{}

func (nopLogger) Info(action, message, requestID string, details map[string]interface{})  {}
func (nopLogger) Debug(action, message, requestID string, details map[string]interface{}) {}
func (nopLogger) Warn(action, message, requestID string, details map[string]interface{})  {}
func (nopLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeDrawerRepo struct {
	nextID      int64
	sessions    map[int64]*domain.CashDrawerSession
	withdrawals map[int64][]domain.CashWithdrawal
	settlements []domain.CashSettlement
}

func newFakeDrawerRepo() *fakeDrawerRepo {
	return &fakeDrawerRepo{
		sessions:    map[int64]*domain.CashDrawerSession{},
		withdrawals: map[int64][]domain.CashWithdrawal{},
	}
}

func (r *fakeDrawerRepo) OpenSession(ctx context.Context, session *domain.CashDrawerSession) error {
	for _, s := range r.sessions {
		if s.TenantID == session.TenantID && s.DrawerID == session.DrawerID && s.Status == domain.SessionOpen {
			return domain.NewConflictError("cash_session", "drawer "+session.DrawerID+" already has an open session")
		}
	}
	r.nextID++
	session.ID = r.nextID
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *fakeDrawerRepo) FindSession(ctx context.Context, tenantID uuid.UUID, sessionID int64) (*domain.CashDrawerSession, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.TenantID != tenantID {
		return nil, domain.NewNotFoundError("cash session", fmt.Sprint(sessionID))
	}
	cp := *s
	return &cp, nil
}

func (r *fakeDrawerRepo) FindOpenSession(ctx context.Context, tenantID uuid.UUID, drawerID string) (*domain.CashDrawerSession, error) {
	for _, s := range r.sessions {
		if s.TenantID == tenantID && s.DrawerID == drawerID && s.Status == domain.SessionOpen {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("open cash session", drawerID)
}

func (r *fakeDrawerRepo) AddWithdrawal(ctx context.Context, w *domain.CashWithdrawal) error {
	w.ID = int64(len(r.withdrawals[w.SessionID]) + 1)
	r.withdrawals[w.SessionID] = append(r.withdrawals[w.SessionID], *w)
	return nil
}

func (r *fakeDrawerRepo) ListWithdrawals(ctx context.Context, sessionID int64) ([]domain.CashWithdrawal, error) {
	return r.withdrawals[sessionID], nil
}

func (r *fakeDrawerRepo) ListSettlements(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.CashSettlement, error) {
	var out []domain.CashSettlement
	for _, s := range r.settlements {
		if !s.SettledAt.Before(from) && !s.SettledAt.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeDrawerRepo) CloseSession(ctx context.Context, session *domain.CashDrawerSession) error {
	if _, ok := r.sessions[session.ID]; !ok {
		return domain.NewNotFoundError("cash session", fmt.Sprint(session.ID))
	}
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func openTestSession(t *testing.T, svc *Service, tenant uuid.UUID, openingFloat string) *domain.CashDrawerSession {
	t.Helper()
	session, err := svc.OpenSession(context.Background(), interfaces.OpenSessionCommand{
		TenantID:     tenant,
		DrawerID:     "front-desk",
		OperatorID:   uuid.New(),
		OpeningFloat: dec(openingFloat),
	})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	return session
}

func TestOpenSessionRejectsSecondOpen(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	openTestSession(t, svc, tenant, "100.00")

	_, err := svc.OpenSession(context.Background(), interfaces.OpenSessionCommand{
		TenantID: tenant, DrawerID: "front-desk", OperatorID: uuid.New(), OpeningFloat: dec("50.00"),
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestRecordWithdrawal(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	session := openTestSession(t, svc, tenant, "100.00")

	w, err := svc.RecordWithdrawal(context.Background(), interfaces.WithdrawalCommand{
		TenantID: tenant, SessionID: session.ID, Kind: "expense", Amount: dec("15.00"), Note: "cleaning supplies",
	})
	if err != nil {
		t.Fatalf("RecordWithdrawal: %v", err)
	}
	if w.Kind != domain.WithdrawalExpense {
		t.Errorf("kind = %q, want expense", w.Kind)
	}

	_, err = svc.RecordWithdrawal(context.Background(), interfaces.WithdrawalCommand{
		TenantID: tenant, SessionID: session.ID, Kind: "expense", Amount: dec("5.00"),
	})
	if err == nil {
		t.Error("expected error for expense without note")
	}
}

func TestRecordWithdrawalClosedSession(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	session := openTestSession(t, svc, tenant, "0")

	if _, err := svc.CloseSession(context.Background(), interfaces.CloseSessionCommand{
		TenantID: tenant, SessionID: session.ID, CountedBalance: dec("0"), OperatorID: uuid.New(),
	}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	_, err := svc.RecordWithdrawal(context.Background(), interfaces.WithdrawalCommand{
		TenantID: tenant, SessionID: session.ID, Kind: "petty_cash", Amount: dec("5.00"),
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestReconcileOpenSession(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	session := openTestSession(t, svc, tenant, "100.00")

	tendered := dec("60.00")
	repo.settlements = []domain.CashSettlement{
		{
			OrderID:        1,
			Method:         domain.PaymentMethodCash,
			Amount:         dec("50.00"),
			OrderTotal:     dec("50.00"),
			AmountTendered: &tendered,
			SettledAt:      session.OpenedAt.Add(time.Minute),
		},
	}
	if _, err := svc.RecordWithdrawal(context.Background(), interfaces.WithdrawalCommand{
		TenantID: tenant, SessionID: session.ID, Kind: "petty_cash", Amount: dec("10.00"),
	}); err != nil {
		t.Fatalf("RecordWithdrawal: %v", err)
	}

	rec, err := svc.Reconcile(context.Background(), tenant, session.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	// 100 + 50 - 10 (change) - 10 (withdrawal) = 130
	if !rec.ExpectedBalance.Equal(dec("130.00")) {
		t.Errorf("expected balance = %s, want 130.00", rec.ExpectedBalance)
	}
}

func TestReconcileClosedSession(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	session := openTestSession(t, svc, tenant, "0")

	if _, err := svc.CloseSession(context.Background(), interfaces.CloseSessionCommand{
		TenantID: tenant, SessionID: session.ID, CountedBalance: dec("0"), OperatorID: uuid.New(),
	}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	_, err := svc.Reconcile(context.Background(), tenant, session.ID)
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCloseSessionComputesVariance(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	session := openTestSession(t, svc, tenant, "100.00")

	repo.settlements = []domain.CashSettlement{
		{
			OrderID:    1,
			Method:     domain.PaymentMethodCash,
			Amount:     dec("40.00"),
			OrderTotal: dec("40.00"),
			SettledAt:  session.OpenedAt.Add(time.Minute),
		},
	}

	closed, err := svc.CloseSession(context.Background(), interfaces.CloseSessionCommand{
		TenantID:       tenant,
		SessionID:      session.ID,
		CountedBalance: dec("138.00"),
		Notes:          "two reais short",
		OperatorID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	if closed.Status != domain.SessionClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}
	if closed.ExpectedBalance == nil || !closed.ExpectedBalance.Equal(dec("140.00")) {
		t.Errorf("expected balance = %v, want 140.00", closed.ExpectedBalance)
	}
	if closed.Variance == nil || !closed.Variance.Equal(dec("-2.00")) {
		t.Errorf("variance = %v, want -2.00", closed.Variance)
	}

	// The stored session carries the snapshot too.
	stored, err := repo.FindSession(context.Background(), tenant, session.ID)
	if err != nil {
		t.Fatalf("FindSession: %v", err)
	}
	if stored.Status != domain.SessionClosed || stored.ClosedAt == nil {
		t.Errorf("stored = %+v", stored)
	}
}

func TestCloseSessionTwice(t *testing.T) {
	repo := newFakeDrawerRepo()
	svc := NewService(repo, nopLogger{})
	tenant := uuid.New()
	session := openTestSession(t, svc, tenant, "0")

	if _, err := svc.CloseSession(context.Background(), interfaces.CloseSessionCommand{
		TenantID: tenant, SessionID: session.ID, CountedBalance: dec("0"), OperatorID: uuid.New(),
	}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	_, err := svc.CloseSession(context.Background(), interfaces.CloseSessionCommand{
		TenantID: tenant, SessionID: session.ID, CountedBalance: dec("0"), OperatorID: uuid.New(),
	})
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
