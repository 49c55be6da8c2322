package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type paymentRepository struct {
	db DB
}

func NewPaymentRepository(db DB) interfaces.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, order_id, tenant_id, method_ref, provider, method, amount, currency,
	status, provider_payment_id, request_payload, response_payload,
	authorized_at, paid_at, cancelled_at, refunded_at, created_at, updated_at`

func (r *paymentRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (order_id, tenant_id, method_ref, provider, method,
		                                  amount, currency, status, provider_payment_id,
		                                  request_payload, response_payload, authorized_at,
		                                  paid_at, cancelled_at, refunded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		tx.OrderID, tx.TenantID, tx.MethodRef, tx.Provider, tx.Method, tx.Amount, tx.Currency,
		tx.Status, tx.ProviderPaymentID, tx.RequestPayload, tx.ResponsePayload,
		tx.AuthorizedAt, tx.PaidAt, tx.CancelledAt, tx.RefundedAt, tx.CreatedAt, tx.UpdatedAt,
	).Scan(&tx.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("payment_transaction", "provider payment id already recorded")
		}
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	return nil
}

func (r *paymentRepository) Update(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions
		SET status = $1, provider_payment_id = $2, response_payload = $3,
		    authorized_at = $4, paid_at = $5, cancelled_at = $6, refunded_at = $7, updated_at = $8
		WHERE tenant_id = $9 AND id = $10
	`
	tag, err := r.db.Exec(ctx, query,
		tx.Status, tx.ProviderPaymentID, tx.ResponsePayload,
		tx.AuthorizedAt, tx.PaidAt, tx.CancelledAt, tx.RefundedAt, tx.UpdatedAt,
		tx.TenantID, tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("payment transaction", strconv.FormatInt(tx.ID, 10))
	}
	return nil
}

func (r *paymentRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE tenant_id = $1 AND id = $2`
	tx, err := r.scanOne(r.db.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment transaction", strconv.FormatInt(id, 10))
		}
		return nil, err
	}
	return tx, nil
}

func (r *paymentRepository) FindByProviderPaymentID(ctx context.Context, tenantID uuid.UUID, provider, providerPaymentID string) (*domain.PaymentTransaction, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE tenant_id = $1 AND provider = $2 AND provider_payment_id = $3
	`
	tx, err := r.scanOne(r.db.QueryRow(ctx, query, tenantID, provider, providerPaymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment transaction", providerPaymentID)
		}
		return nil, err
	}
	return tx, nil
}

func (r *paymentRepository) ListForOrder(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.PaymentTransaction, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.PaymentTransaction
	for rows.Next() {
		tx, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payment transactions: %w", err)
	}
	return txs, nil
}

func (r *paymentRepository) LatestForOrder(ctx context.Context, tenantID uuid.UUID, orderID int64) (*domain.PaymentTransaction, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	tx, err := r.scanOne(r.db.QueryRow(ctx, query, tenantID, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment transaction", "order "+strconv.FormatInt(orderID, 10))
		}
		return nil, err
	}
	return tx, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *paymentRepository) scanOne(row Row) (*domain.PaymentTransaction, error) {
	return r.scanRow(row)
}

func (r *paymentRepository) scanRow(s scanner) (*domain.PaymentTransaction, error) {
	var tx domain.PaymentTransaction
	err := s.Scan(
		&tx.ID, &tx.OrderID, &tx.TenantID, &tx.MethodRef, &tx.Provider, &tx.Method,
		&tx.Amount, &tx.Currency, &tx.Status, &tx.ProviderPaymentID,
		&tx.RequestPayload, &tx.ResponsePayload,
		&tx.AuthorizedAt, &tx.PaidAt, &tx.CancelledAt, &tx.RefundedAt,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
	}
	return &tx, nil
}
