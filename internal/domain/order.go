package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindRecipe  ItemKind = "recipe"
	ItemKindBundle  ItemKind = "bundle"
)

// ItemRef identifies what a line item sells: exactly one of a catalog
// product, a prepared recipe or a bundle.
type ItemRef struct {
	Kind ItemKind
	ID   uuid.UUID
}

// NewItemRef builds the tagged reference from the three mutually
// exclusive candidates; exactly one must be non-nil.
func NewItemRef(productID, recipeID, bundleID *uuid.UUID) (ItemRef, error) {
	var ref ItemRef
	count := 0
	if productID != nil {
		ref = ItemRef{Kind: ItemKindProduct, ID: *productID}
		count++
	}
	if recipeID != nil {
		ref = ItemRef{Kind: ItemKindRecipe, ID: *recipeID}
		count++
	}
	if bundleID != nil {
		ref = ItemRef{Kind: ItemKindBundle, ID: *bundleID}
		count++
	}
	if count != 1 {
		return ItemRef{}, NewValidationError("item_ref", "exactly one of product, recipe or bundle must be set")
	}
	return ref, nil
}

// AddonSelection is one chosen extra inside a complement group.
type AddonSelection struct {
	ID        int64
	AddonRef  uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (a AddonSelection) Subtotal() decimal.Decimal {
	return a.UnitPrice.Mul(decimal.NewFromInt(int64(a.Quantity)))
}

// ComplementGroup is a named set of addon selections attached to a
// line item, with its own selection-count rules.
type ComplementGroup struct {
	ID           int64
	GroupRef     uuid.UUID
	Name         string
	Required     bool
	Quantitative bool
	MinSelection int
	MaxSelection int
	Addons       []AddonSelection
}

// Validate checks the group's quantity rules. Non-quantitative groups
// force every addon quantity to 1; selection counts must respect the
// group's min/max.
func (g *ComplementGroup) Validate() error {
	selected := 0
	for i := range g.Addons {
		a := &g.Addons[i]
		if !g.Quantitative {
			a.Quantity = 1
		}
		if a.Quantity < 1 {
			return NewValidationError("addons", "addon quantity must be at least 1")
		}
		if a.UnitPrice.IsNegative() {
			return NewValidationError("addons", "addon price cannot be negative")
		}
		selected += a.Quantity
	}
	if g.Required && selected == 0 {
		return NewValidationError("complement_groups", "group "+g.Name+" is required")
	}
	if g.MinSelection > 0 && selected > 0 && selected < g.MinSelection {
		return NewValidationError("complement_groups", "group "+g.Name+" requires more selections")
	}
	if g.MaxSelection > 0 && selected > g.MaxSelection {
		return NewValidationError("complement_groups", "group "+g.Name+" allows fewer selections")
	}
	return nil
}

// Subtotal is always recomputed from the children; the persisted value
// is treated as a derived cache, never as the source of truth.
func (g ComplementGroup) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range g.Addons {
		total = total.Add(a.Subtotal())
	}
	return total
}

// LineItem is one sold position of an order. Price, description and
// image are snapshots frozen at add time, so later catalog edits do
// not rewrite order history.
type LineItem struct {
	ID        int64
	OrderID   int64
	Ref       ItemRef
	Name      string
	ImageRef  *string
	Note      string
	Quantity  int
	UnitPrice decimal.Decimal
	Groups    []ComplementGroup
}

func (li *LineItem) Validate() error {
	if li.Quantity < 1 {
		return NewValidationError("quantity", "quantity must be at least 1")
	}
	if li.UnitPrice.IsNegative() {
		return NewValidationError("unit_price", "unit price cannot be negative")
	}
	if li.Ref.Kind == "" {
		return NewValidationError("item_ref", "exactly one of product, recipe or bundle must be set")
	}
	for i := range li.Groups {
		if err := li.Groups[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Total is (unit price + addon totals) multiplied by the item quantity.
func (li LineItem) Total() decimal.Decimal {
	unit := li.UnitPrice
	for _, g := range li.Groups {
		unit = unit.Add(g.Subtotal())
	}
	return unit.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order is the aggregate root.
type Order struct {
	ID               int64
	TenantID         uuid.UUID
	Channel          Channel
	Number           string
	Status           OrderStatus
	CustomerRef      *uuid.UUID
	AddressSnapshot  *string
	TableRef         *int
	PaymentMethodRef *uuid.UUID
	Items            []LineItem
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	DeliveryFee      decimal.Decimal
	ServiceFee       decimal.Decimal
	Total            decimal.Decimal
	AmountTendered   *decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

type NewOrderParams struct {
	TenantID         uuid.UUID
	Channel          Channel
	CustomerRef      *uuid.UUID
	AddressSnapshot  *string
	TableRef         *int
	PaymentMethodRef *uuid.UUID
	Discount         decimal.Decimal
	DeliveryFee      decimal.Decimal
	ServiceFee       decimal.Decimal
	AmountTendered   *decimal.Decimal
	// InitialStatus overrides the default for delivery/pickup orders.
	// In-house channels always start in the print queue.
	InitialStatus OrderStatus
}

func NewOrder(p NewOrderParams) (*Order, error) {
	if p.TenantID == uuid.Nil {
		return nil, NewValidationError("tenant_id", "tenant id is required")
	}
	if _, err := ParseChannel(string(p.Channel)); err != nil {
		return nil, err
	}
	if p.Channel == ChannelDelivery && (p.AddressSnapshot == nil || *p.AddressSnapshot == "") {
		return nil, NewValidationError("address", "delivery orders require an address snapshot")
	}
	if p.Channel == ChannelDineIn && p.TableRef == nil {
		return nil, NewValidationError("table", "dine-in orders require a table reference")
	}
	if p.Discount.IsNegative() || p.DeliveryFee.IsNegative() || p.ServiceFee.IsNegative() {
		return nil, NewValidationError("fees", "discount and fees cannot be negative")
	}
	if p.AmountTendered != nil && p.AmountTendered.IsNegative() {
		return nil, NewValidationError("amount_tendered", "amount tendered cannot be negative")
	}

	status := StatusPrintQueue
	if !p.Channel.InHouse() && p.InitialStatus != "" {
		s, err := ParseOrderStatus(string(p.InitialStatus))
		if err != nil {
			return nil, err
		}
		if s.Terminal() {
			return nil, NewValidationError("status", "orders cannot be created in a terminal status")
		}
		status = s
	}

	now := time.Now().UTC()
	order := &Order{
		TenantID:         p.TenantID,
		Channel:          p.Channel,
		Status:           status,
		CustomerRef:      p.CustomerRef,
		AddressSnapshot:  p.AddressSnapshot,
		TableRef:         p.TableRef,
		PaymentMethodRef: p.PaymentMethodRef,
		Discount:         p.Discount,
		DeliveryFee:      p.DeliveryFee,
		ServiceFee:       p.ServiceFee,
		AmountTendered:   p.AmountTendered,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	order.RecomputeTotals()
	return order, nil
}

// Mutable fails with StateTransitionError when the order is terminal.
// Callers must check this before touching items, so a refused mutation
// leaves no partial writes behind.
func (o *Order) Mutable() error {
	if o.Status.Terminal() {
		return &StateTransitionError{OrderID: o.ID, From: o.Status, Action: "modify items"}
	}
	return nil
}

// RecomputeTotals derives subtotal and total from the line items.
// In-house channels get both fees forced to zero here, so the rule
// holds at the persistence boundary no matter what the caller sent.
func (o *Order) RecomputeTotals() {
	subtotal := decimal.Zero
	for _, li := range o.Items {
		subtotal = subtotal.Add(li.Total())
	}
	o.Subtotal = subtotal

	if o.Channel.InHouse() {
		o.DeliveryFee = decimal.Zero
		o.ServiceFee = decimal.Zero
	}

	total := subtotal.Sub(o.Discount).Add(o.DeliveryFee).Add(o.ServiceFee)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total
}

// AddItem validates the item, appends it and recomputes totals. The
// returned history entry must be persisted with the mutation.
func (o *Order) AddItem(li LineItem, actorID *uuid.UUID) (*HistoryEntry, error) {
	if err := o.Mutable(); err != nil {
		return nil, err
	}
	if err := li.Validate(); err != nil {
		return nil, err
	}
	li.OrderID = o.ID
	o.Items = append(o.Items, li)
	o.RecomputeTotals()
	o.UpdatedAt = time.Now().UTC()
	return newHistoryEntry(o.ID, o.Status, o.Status, OpItemAdded, actorID, "Item added: "+li.Name), nil
}

// RemoveItem drops the line item with the given id and recomputes
// totals.
func (o *Order) RemoveItem(itemID int64, actorID *uuid.UUID) (*HistoryEntry, error) {
	if err := o.Mutable(); err != nil {
		return nil, err
	}
	for i, li := range o.Items {
		if li.ID == itemID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.RecomputeTotals()
			o.UpdatedAt = time.Now().UTC()
			return newHistoryEntry(o.ID, o.Status, o.Status, OpItemRemoved, actorID, "Item removed: "+li.Name), nil
		}
	}
	return nil, NewNotFoundError("line item", formatID(itemID))
}

// Transition moves the order to a new status, enforcing the transition
// table and the delivery-only restriction on out_for_delivery.
func (o *Order) Transition(next OrderStatus, actorID *uuid.UUID, reason string) (*HistoryEntry, error) {
	if _, err := ParseOrderStatus(string(next)); err != nil {
		return nil, err
	}
	if next == StatusOutForDelivery && o.Channel != ChannelDelivery {
		return nil, &StateTransitionError{OrderID: o.ID, From: o.Status, To: next}
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &StateTransitionError{OrderID: o.ID, From: o.Status, To: next}
	}

	prev := o.Status
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	if next == StatusCompleted {
		now := o.UpdatedAt
		o.CompletedAt = &now
	}
	return newHistoryEntry(o.ID, prev, next, OpStatusChange, actorID, reason), nil
}

// Reopen is the only way out of a terminal status. The target defaults
// to pending and must itself be non-terminal.
func (o *Order) Reopen(to OrderStatus, actorID *uuid.UUID, reason string) (*HistoryEntry, error) {
	if !o.Status.Terminal() {
		return nil, &StateTransitionError{OrderID: o.ID, From: o.Status, Action: "reopen"}
	}
	if to == "" {
		to = StatusPending
	}
	if _, err := ParseOrderStatus(string(to)); err != nil {
		return nil, err
	}
	if to.Terminal() {
		return nil, NewValidationError("status", "reopen target must be a non-terminal status")
	}

	prev := o.Status
	o.Status = to
	o.CompletedAt = nil
	o.UpdatedAt = time.Now().UTC()
	return newHistoryEntry(o.ID, prev, to, OpReopened, actorID, reason), nil
}

// ChangeGiven is the cash handed back to the customer: the excess of
// the tendered amount over the order total, never negative.
func (o *Order) ChangeGiven() decimal.Decimal {
	if o.AmountTendered == nil {
		return decimal.Zero
	}
	change := o.AmountTendered.Sub(o.Total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}
