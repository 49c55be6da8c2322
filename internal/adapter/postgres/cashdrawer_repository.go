package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type cashDrawerRepository struct {
	db DB
}

func NewCashDrawerRepository(db DB) interfaces.CashDrawerRepository {
	return &cashDrawerRepository{db: db}
}

const sessionColumns = `id, tenant_id, drawer_id, operator_id, opening_float, expected_balance,
	counted_balance, variance, notes, status, opened_at, closed_at`

// OpenSession relies on the partial unique index on
// (tenant_id, drawer_id) WHERE status = 'open' to guarantee a single
// open session per drawer even under concurrent opens.
func (r *cashDrawerRepository) OpenSession(ctx context.Context, session *domain.CashDrawerSession) error {
	query := `
		INSERT INTO cash_drawer_sessions (tenant_id, drawer_id, operator_id, opening_float, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		session.TenantID, session.DrawerID, session.OperatorID, session.OpeningFloat,
		session.Status, session.OpenedAt,
	).Scan(&session.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("cash_session", "drawer "+session.DrawerID+" already has an open session")
		}
		return fmt.Errorf("failed to open cash session: %w", err)
	}
	return nil
}

func (r *cashDrawerRepository) FindSession(ctx context.Context, tenantID uuid.UUID, sessionID int64) (*domain.CashDrawerSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM cash_drawer_sessions WHERE tenant_id = $1 AND id = $2`
	return r.scanSession(r.db.QueryRow(ctx, query, tenantID, sessionID), strconv.FormatInt(sessionID, 10))
}

func (r *cashDrawerRepository) FindOpenSession(ctx context.Context, tenantID uuid.UUID, drawerID string) (*domain.CashDrawerSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM cash_drawer_sessions
		WHERE tenant_id = $1 AND drawer_id = $2 AND status = 'open'
	`
	return r.scanSession(r.db.QueryRow(ctx, query, tenantID, drawerID), drawerID)
}

func (r *cashDrawerRepository) scanSession(row Row, id string) (*domain.CashDrawerSession, error) {
	var s domain.CashDrawerSession
	err := row.Scan(
		&s.ID, &s.TenantID, &s.DrawerID, &s.OperatorID, &s.OpeningFloat,
		&s.ExpectedBalance, &s.CountedBalance, &s.Variance, &s.Notes,
		&s.Status, &s.OpenedAt, &s.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("cash session", id)
		}
		return nil, fmt.Errorf("failed to load cash session: %w", err)
	}
	return &s, nil
}

func (r *cashDrawerRepository) AddWithdrawal(ctx context.Context, w *domain.CashWithdrawal) error {
	query := `
		INSERT INTO cash_withdrawals (session_id, kind, amount, note, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query, w.SessionID, w.Kind, w.Amount, w.Note, w.CreatedAt).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

func (r *cashDrawerRepository) ListWithdrawals(ctx context.Context, sessionID int64) ([]domain.CashWithdrawal, error) {
	query := `
		SELECT id, session_id, kind, amount, note, created_at
		FROM cash_withdrawals
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []domain.CashWithdrawal
	for rows.Next() {
		var w domain.CashWithdrawal
		if err := rows.Scan(&w.ID, &w.SessionID, &w.Kind, &w.Amount, &w.Note, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read withdrawals: %w", err)
	}
	return withdrawals, nil
}

// ListSettlements joins paid transactions of completed orders. The
// window filter anchors on the settlement timestamp (paid_at, falling
// back to the transaction's creation time), not on order creation, so
// an order created before the shift but settled during it lands in the
// right drawer.
func (r *cashDrawerRepository) ListSettlements(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.CashSettlement, error) {
	query := `
		SELECT o.id, t.method, t.amount, o.total, o.amount_tendered, COALESCE(t.paid_at, t.created_at)
		FROM payment_transactions t
		JOIN orders o ON o.id = t.order_id
		WHERE t.tenant_id = $1
		  AND t.status = 'paid'
		  AND o.status = 'completed'
		  AND COALESCE(t.paid_at, t.created_at) >= $2
		  AND COALESCE(t.paid_at, t.created_at) <= $3
		ORDER BY COALESCE(t.paid_at, t.created_at) ASC, t.id ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []domain.CashSettlement
	for rows.Next() {
		var s domain.CashSettlement
		if err := rows.Scan(&s.OrderID, &s.Method, &s.Amount, &s.OrderTotal, &s.AmountTendered, &s.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settlements: %w", err)
	}
	return settlements, nil
}

func (r *cashDrawerRepository) CloseSession(ctx context.Context, session *domain.CashDrawerSession) error {
	query := `
		UPDATE cash_drawer_sessions
		SET operator_id = $1, expected_balance = $2, counted_balance = $3, variance = $4,
		    notes = $5, status = $6, closed_at = $7
		WHERE tenant_id = $8 AND id = $9 AND status = 'open'
	`
	tag, err := r.db.Exec(ctx, query,
		session.OperatorID, session.ExpectedBalance, session.CountedBalance, session.Variance,
		session.Notes, session.Status, session.ClosedAt,
		session.TenantID, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to close cash session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("cash session", strconv.FormatInt(session.ID, 10))
	}
	return nil
}
