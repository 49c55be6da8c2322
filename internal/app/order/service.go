package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-pos/comanda/internal/adapter/logger"
	"github.com/comanda-pos/comanda/internal/domain"
	"github.com/comanda-pos/comanda/internal/interfaces"
)

// maxNumberAttempts bounds the create-retry loop when a concurrently
// allocated number collides. The sequence strategy never collides;
// this only matters for the scoped MAX+1 fallback.
const maxNumberAttempts = 5

type Service struct {
	repo      interfaces.OrderRepository
	allocator interfaces.NumberAllocator
	catalog   interfaces.CatalogService
	publisher interfaces.EventPublisher
	logger    logger.Logger

	numberWidth int
}

func NewService(repo interfaces.OrderRepository, allocator interfaces.NumberAllocator, catalog interfaces.CatalogService, publisher interfaces.EventPublisher, lgr logger.Logger, numberWidth int) *Service {
	return &Service{
		repo:        repo,
		allocator:   allocator,
		catalog:     catalog,
		publisher:   publisher,
		logger:      lgr,
		numberWidth: numberWidth,
	}
}

func (s *Service) CreateOrder(ctx context.Context, cmd interfaces.CreateOrderCommand) (*domain.Order, error) {
	channel, err := domain.ParseChannel(cmd.Channel)
	if err != nil {
		return nil, err
	}

	order, err := domain.NewOrder(domain.NewOrderParams{
		TenantID:         cmd.TenantID,
		Channel:          channel,
		CustomerRef:      cmd.CustomerRef,
		AddressSnapshot:  cmd.AddressSnapshot,
		TableRef:         cmd.TableRef,
		PaymentMethodRef: cmd.PaymentMethodRef,
		Discount:         cmd.Discount,
		DeliveryFee:      cmd.DeliveryFee,
		ServiceFee:       cmd.ServiceFee,
		AmountTendered:   cmd.AmountTendered,
		InitialStatus:    domain.OrderStatus(cmd.InitialStatus),
	})
	if err != nil {
		s.logger.Error("validation_failed", "Order validation failed", "", nil, err)
		return nil, err
	}

	prefix := cmd.NumberPrefix
	if prefix == "" {
		prefix = channel.NumberPrefix()
	}

	for attempt := 1; ; attempt++ {
		number, err := s.allocateNumber(ctx, order, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate order number: %w", err)
		}
		order.Number = number

		entry := openingEntry(order, cmd.ActorID)
		err = s.repo.Create(ctx, order, entry)
		if err == nil {
			break
		}

		var conflict *domain.ConflictError
		if errors.As(err, &conflict) && conflict.Resource == "order_number" && attempt < maxNumberAttempts {
			s.logger.Debug("number_collision", "Order number collided, regenerating", "", map[string]interface{}{
				"number":  number,
				"attempt": attempt,
			})
			continue
		}
		if errors.As(err, &conflict) && conflict.Resource == "order_number" {
			return nil, &domain.AllocationExhaustedError{Prefix: prefix, Attempts: maxNumberAttempts}
		}
		s.logger.Error("db_transaction_failed", "Failed to create order", "", nil, err)
		return nil, err
	}

	s.logger.Debug("order_created", "Order created", "", map[string]interface{}{
		"order_number": order.Number,
		"channel":      string(order.Channel),
	})

	s.publishStatus(ctx, order, "", order.Status, "Order created")
	return order, nil
}

// allocateNumber picks the strategy: dine-in orders keep per-table
// numbering via the advisory-lock scan, everything else uses the
// atomic per-(tenant, prefix) sequence.
func (s *Service) allocateNumber(ctx context.Context, order *domain.Order, prefix string) (string, error) {
	if order.Channel == domain.ChannelDineIn && order.TableRef != nil {
		return s.allocator.AllocateScoped(ctx, order.TenantID, int64(*order.TableRef), prefix, s.numberWidth)
	}
	return s.allocator.Allocate(ctx, order.TenantID, prefix, s.numberWidth)
}

func (s *Service) AddLineItem(ctx context.Context, cmd interfaces.AddLineItemCommand) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	// Refuse terminal orders before consulting the catalog or writing
	// anything.
	if err := order.Mutable(); err != nil {
		return nil, err
	}

	ref, err := domain.NewItemRef(cmd.ProductID, cmd.RecipeID, cmd.BundleID)
	if err != nil {
		return nil, err
	}

	catalogItem, err := s.catalog.GetItemPrice(ctx, cmd.TenantID, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to consult catalog: %w", err)
	}
	if !catalogItem.Available {
		return nil, domain.NewValidationError("item_ref", "catalog item is not available")
	}

	item := domain.LineItem{
		Ref:       ref,
		Name:      catalogItem.Description,
		ImageRef:  catalogItem.ImageRef,
		Note:      cmd.Note,
		Quantity:  cmd.Quantity,
		UnitPrice: catalogItem.UnitPrice,
		Groups:    buildGroups(cmd.Groups),
	}

	entry, err := order.AddItem(item, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	added := &order.Items[len(order.Items)-1]
	if err := s.repo.AddItem(ctx, order, added, entry); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to add line item", "", nil, err)
		return nil, err
	}
	return order, nil
}

func (s *Service) RemoveLineItem(ctx context.Context, cmd interfaces.RemoveLineItemCommand) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	entry, err := order.RemoveItem(cmd.ItemID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RemoveItem(ctx, order, cmd.ItemID, entry); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to remove line item", "", nil, err)
		return nil, err
	}
	return order, nil
}

func (s *Service) TransitionStatus(ctx context.Context, cmd interfaces.TransitionCommand) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	next, err := domain.ParseOrderStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	prev := order.Status
	entry, err := order.Transition(next, cmd.ActorID, cmd.Reason)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, order, entry); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to update order status", "", nil, err)
		return nil, err
	}

	s.publishStatus(ctx, order, prev, next, entry.Reason)
	return order, nil
}

func (s *Service) ReopenOrder(ctx context.Context, cmd interfaces.ReopenCommand) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	prev := order.Status
	entry, err := order.Reopen(domain.OrderStatus(cmd.Status), cmd.ActorID, cmd.Reason)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, order, entry); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to reopen order", "", nil, err)
		return nil, err
	}

	s.publishStatus(ctx, order, prev, order.Status, entry.Reason)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, tenantID uuid.UUID, orderID int64) (*domain.Order, error) {
	return s.repo.FindByID(ctx, tenantID, orderID)
}

func (s *Service) GetHistory(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.HistoryEntry, error) {
	if _, err := s.repo.FindByID(ctx, tenantID, orderID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, tenantID, orderID)
}

// publishStatus emits the event best-effort: the transition is already
// committed and consumers resync from the store, so a broker hiccup is
// logged rather than bubbled up.
func (s *Service) publishStatus(ctx context.Context, order *domain.Order, prev, next domain.OrderStatus, reason string) {
	event := interfaces.OrderStatusEvent{
		TenantID:    order.TenantID,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Channel:     order.Channel,
		OldStatus:   prev,
		NewStatus:   next,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.publisher.PublishOrderStatus(ctx, event); err != nil {
		s.logger.Error("publish_failed", "Failed to publish order status event", "", map[string]interface{}{
			"order_number": order.Number,
		}, err)
	}
}

func openingEntry(order *domain.Order, actorID *uuid.UUID) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		OrderID:    order.ID,
		PrevStatus: order.Status,
		NewStatus:  order.Status,
		Operation:  domain.OpStatusChange,
		ActorID:    actorID,
		Reason:     "Order created",
		CreatedAt:  order.CreatedAt,
	}
}

func buildGroups(cmds []interfaces.ComplementGroupCommand) []domain.ComplementGroup {
	groups := make([]domain.ComplementGroup, len(cmds))
	for i, g := range cmds {
		addons := make([]domain.AddonSelection, len(g.Addons))
		for j, a := range g.Addons {
			addons[j] = domain.AddonSelection{
				AddonRef:  a.AddonRef,
				Name:      a.Name,
				UnitPrice: a.UnitPrice,
				Quantity:  a.Quantity,
			}
		}
		groups[i] = domain.ComplementGroup{
			GroupRef:     g.GroupRef,
			Name:         g.Name,
			Required:     g.Required,
			Quantitative: g.Quantitative,
			MinSelection: g.MinSelection,
			MaxSelection: g.MaxSelection,
			Addons:       addons,
		}
	}
	return groups
}
