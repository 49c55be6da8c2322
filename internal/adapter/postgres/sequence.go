package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

// numberAllocator issues order numbers. The primary strategy is one
// lazily created database sequence per (tenant, prefix): a single
// nextval per allocation, no locking, no retries. The scoped strategy
// serializes under a transaction-scoped advisory lock and scans MAX+1,
// for numbering that must stay stable per a secondary key (per-table
// dine-in numbering) that a shared sequence cannot express.
type numberAllocator struct {
	db DB
}

func NewNumberAllocator(db DB) interfaces.NumberAllocator {
	return &numberAllocator{db: db}
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]{0,11}$`)

func (a *numberAllocator) Allocate(ctx context.Context, tenantID uuid.UUID, prefix string, width int) (string, error) {
	if err := validateAllocation(tenantID, prefix, width); err != nil {
		return "", err
	}

	// Sequence names cannot be bound parameters; the prefix is
	// restricted to alphanumerics above and the tenant part is a
	// hex-encoded uuid, so the identifier is safe to interpolate.
	seqName := sequenceName(tenantID, prefix)
	createSQL := fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %q`, seqName)
	if _, err := a.db.Exec(ctx, createSQL); err != nil {
		return "", fmt.Errorf("failed to create order number sequence: %w", err)
	}

	var seq int64
	if err := a.db.QueryRow(ctx, `SELECT nextval($1)`, seqName).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to advance order number sequence: %w", err)
	}

	return FormatOrderNumber(prefix, seq, width), nil
}

func (a *numberAllocator) AllocateScoped(ctx context.Context, tenantID uuid.UUID, scopeCode int64, prefix string, width int) (string, error) {
	if err := validateAllocation(tenantID, prefix, width); err != nil {
		return "", err
	}

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The lock key pairs a tenant-derived class with the caller's
	// scope code (e.g. the table number); it releases on commit or
	// rollback, serializing only allocations that share the key.
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, tenantLockClass(tenantID), int32(scopeCode))
	if err != nil {
		return "", fmt.Errorf("failed to acquire allocation lock: %w", err)
	}

	var maxSeq int64
	query := `
		SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM LENGTH($2) + 2) AS BIGINT)), 0)
		FROM orders
		WHERE tenant_id = $1 AND number LIKE $2 || '-%'
	`
	if err := tx.QueryRow(ctx, query, tenantID, prefix).Scan(&maxSeq); err != nil {
		return "", fmt.Errorf("failed to scan existing order numbers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit allocation: %w", err)
	}

	return FormatOrderNumber(prefix, maxSeq+1, width), nil
}

// FormatOrderNumber renders "{prefix}-{seq}" with the sequential part
// zero-padded to width digits.
func FormatOrderNumber(prefix string, seq int64, width int) string {
	return fmt.Sprintf("%s-%0*d", prefix, width, seq)
}

func validateAllocation(tenantID uuid.UUID, prefix string, width int) error {
	if tenantID == uuid.Nil {
		return domain.NewValidationError("tenant_id", "tenant id is required")
	}
	if !prefixPattern.MatchString(prefix) {
		return domain.NewValidationError("prefix", "prefix must be alphanumeric, starting with a letter")
	}
	if width < 1 || width > 12 {
		return domain.NewValidationError("width", "number width must be between 1 and 12")
	}
	return nil
}

func sequenceName(tenantID uuid.UUID, prefix string) string {
	hex := strings.ReplaceAll(tenantID.String(), "-", "")
	return fmt.Sprintf("order_number_seq_%s_%s", hex, strings.ToLower(prefix))
}

// tenantLockClass folds the tenant uuid into the 32-bit advisory-lock
// classifier.
func tenantLockClass(tenantID uuid.UUID) int32 {
	return int32(binary.BigEndian.Uint32(tenantID[:4]))
}
