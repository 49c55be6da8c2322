package domain

import (
	"fmt"
	"strconv"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ValidationError reports malformed input. It is always raised before
// any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing order, transaction, line item or
// cash-drawer session.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a uniqueness or concurrency conflict, e.g. a
// duplicate open cash session or an order-number collision.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Detail)
}

func NewConflictError(resource, detail string) *ConflictError {
	return &ConflictError{Resource: resource, Detail: detail}
}

// AllocationExhaustedError is raised when the order-number allocator
// gives up after its bounded retry count. It unwraps to ConflictError.
type AllocationExhaustedError struct {
	Prefix   string
	Attempts int
}

func (e *AllocationExhaustedError) Error() string {
	return fmt.Sprintf("order number allocation for prefix %q exhausted after %d attempts", e.Prefix, e.Attempts)
}

func (e *AllocationExhaustedError) Unwrap() error {
	return &ConflictError{Resource: "order_number", Detail: e.Error()}
}

// StateTransitionError reports an undefined status transition or a
// mutation attempted on a terminal order.
type StateTransitionError struct {
	OrderID int64
	From    OrderStatus
	To      OrderStatus
	Action  string
}

func (e *StateTransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("order %d: cannot %s in status %q", e.OrderID, e.Action, e.From)
	}
	return fmt.Sprintf("order %d: invalid transition %q -> %q", e.OrderID, e.From, e.To)
}

// ExternalProviderError reports a network or timeout failure talking to
// the payment provider. An explicit refusal by the provider is NOT an
// error; it comes back as a REFUSED transaction status.
type ExternalProviderError struct {
	Provider string
	Err      error
}

func (e *ExternalProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Provider, e.Err)
}

func (e *ExternalProviderError) Unwrap() error {
	return e.Err
}
