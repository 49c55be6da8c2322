package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, entry *domain.HistoryEntry) error {
	// Fee zeroing for in-house channels is re-applied here so the rule
	// holds at the persistence boundary, not only in request handling.
	order.RecomputeTotals()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (tenant_id, channel, number, status, customer_ref, address_snapshot,
		                    table_ref, payment_method_ref, subtotal, discount, delivery_fee,
		                    service_fee, total, amount_tendered, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		order.TenantID, order.Channel, order.Number, order.Status, order.CustomerRef,
		order.AddressSnapshot, order.TableRef, order.PaymentMethodRef, order.Subtotal,
		order.Discount, order.DeliveryFee, order.ServiceFee, order.Total,
		order.AmountTendered, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("order_number", "number "+order.Number+" already exists for tenant")
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if err := insertLineItem(ctx, tx, &order.Items[i]); err != nil {
			return err
		}
	}

	entry.OrderID = order.ID
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.Order, error) {
	return r.findOne(ctx, tenantID, `id = $2`, id)
}

func (r *orderRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*domain.Order, error) {
	return r.findOne(ctx, tenantID, `number = $2`, number)
}

func (r *orderRepository) findOne(ctx context.Context, tenantID uuid.UUID, cond string, arg any) (*domain.Order, error) {
	query := `
		SELECT id, tenant_id, channel, number, status, customer_ref, address_snapshot,
		       table_ref, payment_method_ref, subtotal, discount, delivery_fee, service_fee,
		       total, amount_tendered, created_at, updated_at, completed_at
		FROM orders
		WHERE tenant_id = $1 AND ` + cond

	var order domain.Order
	err := r.db.QueryRow(ctx, query, tenantID, arg).Scan(
		&order.ID, &order.TenantID, &order.Channel, &order.Number, &order.Status,
		&order.CustomerRef, &order.AddressSnapshot, &order.TableRef, &order.PaymentMethodRef,
		&order.Subtotal, &order.Discount, &order.DeliveryFee, &order.ServiceFee,
		&order.Total, &order.AmountTendered, &order.CreatedAt, &order.UpdatedAt, &order.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("order", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if err := r.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT id, order_id, ref_kind, ref_id, name, image_ref, note, quantity, unit_price
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ID, &li.OrderID, &li.Ref.Kind, &li.Ref.ID, &li.Name,
			&li.ImageRef, &li.Note, &li.Quantity, &li.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan line item: %w", err)
		}
		order.Items = append(order.Items, li)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read line items: %w", err)
	}

	for i := range order.Items {
		if err := r.loadGroups(ctx, &order.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepository) loadGroups(ctx context.Context, li *domain.LineItem) error {
	query := `
		SELECT g.id, g.group_ref, g.name, g.required, g.quantitative, g.min_selection, g.max_selection,
		       a.id, a.addon_ref, a.name, a.unit_price, a.quantity
		FROM order_item_complement_groups g
		LEFT JOIN order_item_addons a ON a.group_id = g.id
		WHERE g.line_item_id = $1
		ORDER BY g.id, a.id
	`
	rows, err := r.db.Query(ctx, query, li.ID)
	if err != nil {
		return fmt.Errorf("failed to load complement groups: %w", err)
	}
	defer rows.Close()

	groups := make(map[int64]*domain.ComplementGroup)
	var groupOrder []int64
	for rows.Next() {
		var g domain.ComplementGroup
		var addonID *int64
		var addonRef *uuid.UUID
		var addonName *string
		var addonPrice *decimal.Decimal
		var addonQty *int
		if err := rows.Scan(&g.ID, &g.GroupRef, &g.Name, &g.Required, &g.Quantitative,
			&g.MinSelection, &g.MaxSelection,
			&addonID, &addonRef, &addonName, &addonPrice, &addonQty); err != nil {
			return fmt.Errorf("failed to scan complement group: %w", err)
		}
		existing, ok := groups[g.ID]
		if !ok {
			copied := g
			groups[g.ID] = &copied
			groupOrder = append(groupOrder, g.ID)
			existing = &copied
		}
		if addonID != nil {
			existing.Addons = append(existing.Addons, domain.AddonSelection{
				ID:        *addonID,
				AddonRef:  *addonRef,
				Name:      *addonName,
				UnitPrice: *addonPrice,
				Quantity:  *addonQty,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read complement groups: %w", err)
	}

	for _, id := range groupOrder {
		li.Groups = append(li.Groups, *groups[id])
	}
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, entry *domain.HistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE orders
		SET status = $1, updated_at = $2, completed_at = $3
		WHERE tenant_id = $4 AND id = $5
	`
	tag, err := tx.Exec(ctx, query, order.Status, order.UpdatedAt, order.CompletedAt, order.TenantID, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("order", strconv.FormatInt(order.ID, 10))
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *orderRepository) AddItem(ctx context.Context, order *domain.Order, item *domain.LineItem, entry *domain.HistoryEntry) error {
	order.RecomputeTotals()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertLineItem(ctx, tx, item); err != nil {
		return err
	}
	if err := updateTotals(ctx, tx, order); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *orderRepository) RemoveItem(ctx context.Context, order *domain.Order, itemID int64, entry *domain.HistoryEntry) error {
	order.RecomputeTotals()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM order_item_addons
		WHERE group_id IN (SELECT id FROM order_item_complement_groups WHERE line_item_id = $1)
	`, itemID); err != nil {
		return fmt.Errorf("failed to delete item addons: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_item_complement_groups WHERE line_item_id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to delete item groups: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM order_line_items WHERE id = $1 AND order_id = $2`, itemID, order.ID)
	if err != nil {
		return fmt.Errorf("failed to delete line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("line item", strconv.FormatInt(itemID, 10))
	}

	if err := updateTotals(ctx, tx, order); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *orderRepository) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *orderRepository) History(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT h.id, h.order_id, h.prev_status, h.new_status, h.operation, h.actor_id, h.reason, h.created_at
		FROM order_history h
		JOIN orders o ON o.id = h.order_id
		WHERE o.tenant_id = $1 AND h.order_id = $2
		ORDER BY h.created_at ASC, h.id ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.PrevStatus, &e.NewStatus, &e.Operation,
			&e.ActorID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order history: %w", err)
	}
	return entries, nil
}

func insertLineItem(ctx context.Context, tx Tx, li *domain.LineItem) error {
	query := `
		INSERT INTO order_line_items (order_id, ref_kind, ref_id, name, image_ref, note, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		li.OrderID, li.Ref.Kind, li.Ref.ID, li.Name, li.ImageRef, li.Note, li.Quantity, li.UnitPrice,
	).Scan(&li.ID)
	if err != nil {
		return fmt.Errorf("failed to insert line item: %w", err)
	}

	for gi := range li.Groups {
		g := &li.Groups[gi]
		groupQuery := `
			INSERT INTO order_item_complement_groups (line_item_id, group_ref, name, required, quantitative, min_selection, max_selection)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`
		err := tx.QueryRow(ctx, groupQuery,
			li.ID, g.GroupRef, g.Name, g.Required, g.Quantitative, g.MinSelection, g.MaxSelection,
		).Scan(&g.ID)
		if err != nil {
			return fmt.Errorf("failed to insert complement group: %w", err)
		}

		for ai := range g.Addons {
			a := &g.Addons[ai]
			addonQuery := `
				INSERT INTO order_item_addons (group_id, addon_ref, name, unit_price, quantity)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			`
			err := tx.QueryRow(ctx, addonQuery, g.ID, a.AddonRef, a.Name, a.UnitPrice, a.Quantity).Scan(&a.ID)
			if err != nil {
				return fmt.Errorf("failed to insert addon selection: %w", err)
			}
		}
	}
	return nil
}

func updateTotals(ctx context.Context, tx Tx, order *domain.Order) error {
	query := `
		UPDATE orders
		SET subtotal = $1, delivery_fee = $2, service_fee = $3, total = $4, updated_at = $5
		WHERE tenant_id = $6 AND id = $7
	`
	_, err := tx.Exec(ctx, query,
		order.Subtotal, order.DeliveryFee, order.ServiceFee, order.Total, order.UpdatedAt,
		order.TenantID, order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order totals: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx Tx, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO order_history (order_id, prev_status, new_status, operation, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		entry.OrderID, entry.PrevStatus, entry.NewStatus, entry.Operation, entry.ActorID,
		entry.Reason, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}
