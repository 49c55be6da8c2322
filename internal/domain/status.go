package domain

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelDelivery Channel = "delivery"
	ChannelPickup   Channel = "pickup"
	ChannelDineIn   Channel = "dine_in"
	ChannelCounter  Channel = "counter"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelDelivery, ChannelPickup, ChannelDineIn, ChannelCounter:
		return Channel(s), nil
	}
	return "", NewValidationError("channel", "channel must be one of: delivery, pickup, dine_in, counter")
}

// InHouse reports whether the channel settles at the venue. In-house
// channels never carry delivery or service fees.
func (c Channel) InHouse() bool {
	return c == ChannelDineIn || c == ChannelCounter
}

// NumberPrefix is the default order-number prefix for the channel.
func (c Channel) NumberPrefix() string {
	switch c {
	case ChannelDelivery:
		return "DV"
	case ChannelPickup:
		return "PK"
	case ChannelDineIn:
		return "DI"
	case ChannelCounter:
		return "CT"
	}
	return "OR"
}

type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusPrintQueue      OrderStatus = "print_queue"
	StatusPreparing       OrderStatus = "preparing"
	StatusOutForDelivery  OrderStatus = "out_for_delivery"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
	StatusEdited          OrderStatus = "edited"
	StatusEditing         OrderStatus = "editing"
	StatusAwaitingPayment OrderStatus = "awaiting_payment"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusPending, StatusPrintQueue, StatusPreparing, StatusOutForDelivery,
		StatusCompleted, StatusCancelled, StatusEdited, StatusEditing, StatusAwaitingPayment:
		return OrderStatus(s), nil
	}
	return "", NewValidationError("status", "unknown order status: "+s)
}

// Terminal statuses end the order lifecycle; only an explicit reopen
// leaves them.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s OrderStatus) DisplayName() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusPrintQueue:
		return "Print queue"
	case StatusPreparing:
		return "Preparing"
	case StatusOutForDelivery:
		return "Out for delivery"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusEdited:
		return "Edited"
	case StatusEditing:
		return "Editing"
	case StatusAwaitingPayment:
		return "Awaiting payment"
	}
	return string(s)
}

// orderTransitions lists the allowed non-terminal moves. Terminal
// statuses (completed, cancelled) are reachable from any non-terminal
// status and are therefore not listed here.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusPrintQueue, StatusPreparing, StatusAwaitingPayment, StatusEditing},
	StatusPrintQueue:      {StatusPending, StatusPreparing, StatusAwaitingPayment, StatusEditing},
	StatusPreparing:       {StatusOutForDelivery, StatusAwaitingPayment, StatusEditing},
	StatusOutForDelivery:  {},
	StatusAwaitingPayment: {StatusPending, StatusPrintQueue, StatusPreparing},
	StatusEditing:         {StatusEdited},
	StatusEdited:          {StatusPending, StatusPrintQueue, StatusPreparing},
	StatusCompleted:       {},
	StatusCancelled:       {},
}

// CanTransitionTo checks the transition table. Reopening a terminal
// order is handled separately by Order.Reopen.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OperationType string

const (
	OpStatusChange OperationType = "status_change"
	OpItemAdded    OperationType = "item_added"
	OpItemRemoved  OperationType = "item_removed"
	OpReopened     OperationType = "reopened"
	OpPaymentEvent OperationType = "payment_event"
)

// HistoryEntry is an immutable audit record. One is appended on every
// status transition and on every item add/remove.
type HistoryEntry struct {
	ID         int64
	OrderID    int64
	PrevStatus OrderStatus
	NewStatus  OrderStatus
	Operation  OperationType
	ActorID    *uuid.UUID
	Reason     string
	CreatedAt  time.Time
}

func newHistoryEntry(orderID int64, prev, next OrderStatus, op OperationType, actorID *uuid.UUID, reason string) *HistoryEntry {
	if reason == "" {
		reason = prev.DisplayName() + " → " + next.DisplayName()
	}
	return &HistoryEntry{
		OrderID:    orderID,
		PrevStatus: prev,
		NewStatus:  next,
		Operation:  op,
		ActorID:    actorID,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}
