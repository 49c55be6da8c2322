package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

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

type fakeAllocator struct {
	mu          sync.Mutex
	counters    map[string]int64
	scopedCalls int
	calls       int
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{counters: map[string]int64{}}
}

func (a *fakeAllocator) Allocate(ctx context.Context, tenantID uuid.UUID, prefix string, width int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	key := tenantID.String() + "/" + prefix
	a.counters[key]++
	return fmt.Sprintf("%s-%0*d", prefix, width, a.counters[key]), nil
}

func (a *fakeAllocator) AllocateScoped(ctx context.Context, tenantID uuid.UUID, scopeCode int64, prefix string, width int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.scopedCalls++
	key := fmt.Sprintf("%s/%s/%d", tenantID, prefix, scopeCode)
	a.counters[key]++
	return fmt.Sprintf("%s-%0*d", prefix, width, a.counters[key]), nil
}

type fakeOrderRepo struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]*domain.Order
	numbers map[string]bool
	history []*domain.HistoryEntry

	// conflictsLeft forces that many Create calls to fail with a
	// number conflict before succeeding; -1 means always conflict.
	conflictsLeft int

	addItemCalls    int
	updateStatCalls int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  map[int64]*domain.Order{},
		numbers: map[string]bool{},
	}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.Order, entry *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft != 0 {
		if r.conflictsLeft > 0 {
			r.conflictsLeft--
		}
		return domain.NewConflictError("order_number", "order number "+order.Number+" already exists")
	}
	key := order.TenantID.String() + "/" + order.Number
	if r.numbers[key] {
		return domain.NewConflictError("order_number", "order number "+order.Number+" already exists")
	}
	r.numbers[key] = true
	r.nextID++
	order.ID = r.nextID
	cp := *order
	r.orders[order.ID] = &cp
	r.history = append(r.history, entry)
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, tenantID uuid.UUID, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok || order.TenantID != tenantID {
		return nil, domain.NewNotFoundError("order", fmt.Sprint(id))
	}
	cp := *order
	cp.Items = append([]domain.LineItem(nil), order.Items...)
	return &cp, nil
}

func (r *fakeOrderRepo) FindByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.TenantID == tenantID && order.Number == number {
			cp := *order
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("order", number)
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, order *domain.Order, entry *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateStatCalls++
	cp := *order
	r.orders[order.ID] = &cp
	r.history = append(r.history, entry)
	return nil
}

func (r *fakeOrderRepo) AddItem(ctx context.Context, order *domain.Order, item *domain.LineItem, entry *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addItemCalls++
	cp := *order
	cp.Items = append([]domain.LineItem(nil), order.Items...)
	r.orders[order.ID] = &cp
	r.history = append(r.history, entry)
	return nil
}

func (r *fakeOrderRepo) RemoveItem(ctx context.Context, order *domain.Order, itemID int64, entry *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	cp.Items = append([]domain.LineItem(nil), order.Items...)
	r.orders[order.ID] = &cp
	r.history = append(r.history, entry)
	return nil
}

func (r *fakeOrderRepo) AppendHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entry)
	return nil
}

func (r *fakeOrderRepo) History(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]*domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.HistoryEntry
	for _, e := range r.history {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	mu    sync.Mutex
	item  interfaces.CatalogItem
	calls int
}

func (c *fakeCatalog) GetItemPrice(ctx context.Context, tenantID uuid.UUID, ref domain.ItemRef) (*interfaces.CatalogItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	item := c.item
	return &item, nil
}

type fakePublisher struct {
	mu           sync.Mutex
	statusEvents []interfaces.OrderStatusEvent
	failing      bool
}

func (p *fakePublisher) PublishOrderStatus(ctx context.Context, event interfaces.OrderStatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return errors.New("broker unavailable")
	}
	p.statusEvents = append(p.statusEvents, event)
	return nil
}

func (p *fakePublisher) PublishPaymentSettled(ctx context.Context, event interfaces.PaymentSettledEvent) error {
	return nil
}

func newTestService(repo *fakeOrderRepo, alloc *fakeAllocator, cat *fakeCatalog, pub *fakePublisher) *Service {
	if cat == nil {
		cat = &fakeCatalog{item: interfaces.CatalogItem{Available: true, UnitPrice: decimal.NewFromInt(10), Description: "Item"}}
	}
	if pub == nil {
		pub = &fakePublisher{}
	}
	return NewService(repo, alloc, cat, pub, nopLogger{}, 6)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateOrderAssignsChannelPrefixedNumber(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, newFakeAllocator(), nil, nil)
	addr := "Rua Bela Vista 90"

	order, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID:        uuid.New(),
		Channel:         "delivery",
		AddressSnapshot: &addr,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Number != "DV-000001" {
		t.Errorf("number = %q, want DV-000001", order.Number)
	}
	if order.ID == 0 {
		t.Error("order id not assigned")
	}
	if len(repo.history) != 1 || repo.history[0].Reason != "Order created" {
		t.Errorf("opening history entry missing: %+v", repo.history)
	}
}

func TestCreateOrderConcurrentNumbersAreDistinct(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, newFakeAllocator(), nil, nil)
	tenant := uuid.New()

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
				TenantID: tenant,
				Channel:  "pickup",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	seen := map[string]bool{}
	for _, order := range repo.orders {
		if seen[order.Number] {
			t.Fatalf("duplicate number %q", order.Number)
		}
		seen[order.Number] = true
	}
	if len(seen) != n {
		t.Errorf("orders = %d, want %d", len(seen), n)
	}
}

func TestCreateOrderRetriesNumberCollision(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.conflictsLeft = 2
	alloc := newFakeAllocator()
	svc := newTestService(repo, alloc, nil, nil)

	order, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID: uuid.New(),
		Channel:  "counter",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if alloc.calls != 3 {
		t.Errorf("allocator calls = %d, want 3", alloc.calls)
	}
	if order.Number != "CT-000003" {
		t.Errorf("number = %q, want CT-000003", order.Number)
	}
}

func TestCreateOrderExhaustsRetries(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.conflictsLeft = -1
	alloc := newFakeAllocator()
	svc := newTestService(repo, alloc, nil, nil)

	_, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID: uuid.New(),
		Channel:  "counter",
	})

	var exhausted *domain.AllocationExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AllocationExhaustedError, got %v", err)
	}
	if alloc.calls != maxNumberAttempts {
		t.Errorf("allocator calls = %d, want %d", alloc.calls, maxNumberAttempts)
	}
	// The exhaustion still reads as a conflict to the transport layer.
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Error("AllocationExhaustedError should unwrap to ConflictError")
	}
}

func TestCreateOrderDineInUsesScopedAllocation(t *testing.T) {
	repo := newFakeOrderRepo()
	alloc := newFakeAllocator()
	svc := newTestService(repo, alloc, nil, nil)
	table := 12

	order, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID: uuid.New(),
		Channel:  "dine_in",
		TableRef: &table,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if alloc.scopedCalls != 1 {
		t.Errorf("scoped calls = %d, want 1", alloc.scopedCalls)
	}
	if order.Number != "DI-000001" {
		t.Errorf("number = %q, want DI-000001", order.Number)
	}
}

func TestCreateOrderPublishesCreation(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, newFakeAllocator(), nil, pub)

	order, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID: uuid.New(),
		Channel:  "counter",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(pub.statusEvents) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.statusEvents))
	}
	if pub.statusEvents[0].NewStatus != order.Status {
		t.Errorf("event status = %q, want %q", pub.statusEvents[0].NewStatus, order.Status)
	}
}

func TestCreateOrderSucceedsWhenBrokerDown(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{failing: true}
	svc := newTestService(repo, newFakeAllocator(), nil, pub)

	if _, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID: uuid.New(),
		Channel:  "counter",
	}); err != nil {
		t.Fatalf("broker failure must not fail the create: %v", err)
	}
}

func createCounterOrder(t *testing.T, svc *Service, tenant uuid.UUID) *domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), interfaces.CreateOrderCommand{
		TenantID: tenant,
		Channel:  "counter",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

func TestAddLineItemSnapshotsCatalog(t *testing.T) {
	repo := newFakeOrderRepo()
	img := "cdn://margherita.png"
	cat := &fakeCatalog{item: interfaces.CatalogItem{
		UnitPrice:   dec("42.90"),
		Available:   true,
		Description: "Pizza Margherita",
		ImageRef:    &img,
	}}
	svc := newTestService(repo, newFakeAllocator(), cat, nil)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	productID := uuid.New()
	updated, err := svc.AddLineItem(context.Background(), interfaces.AddLineItemCommand{
		TenantID:  tenant,
		OrderID:   order.ID,
		ProductID: &productID,
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}

	if len(updated.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(updated.Items))
	}
	item := updated.Items[0]
	if item.Name != "Pizza Margherita" || !item.UnitPrice.Equal(dec("42.90")) {
		t.Errorf("snapshot = %q @ %s", item.Name, item.UnitPrice)
	}
	if !updated.Total.Equal(dec("85.80")) {
		t.Errorf("total = %s, want 85.80", updated.Total)
	}
	if repo.addItemCalls != 1 {
		t.Errorf("repo AddItem calls = %d, want 1", repo.addItemCalls)
	}
}

func TestAddLineItemUnavailableItem(t *testing.T) {
	repo := newFakeOrderRepo()
	cat := &fakeCatalog{item: interfaces.CatalogItem{UnitPrice: dec("10.00"), Available: false}}
	svc := newTestService(repo, newFakeAllocator(), cat, nil)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	productID := uuid.New()
	_, err := svc.AddLineItem(context.Background(), interfaces.AddLineItemCommand{
		TenantID:  tenant,
		OrderID:   order.ID,
		ProductID: &productID,
		Quantity:  1,
	})
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if repo.addItemCalls != 0 {
		t.Error("unavailable item reached the repository")
	}
}

func TestAddLineItemTerminalOrderLeavesNoWrites(t *testing.T) {
	repo := newFakeOrderRepo()
	cat := &fakeCatalog{item: interfaces.CatalogItem{UnitPrice: dec("10.00"), Available: true}}
	svc := newTestService(repo, newFakeAllocator(), cat, nil)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	if _, err := svc.TransitionStatus(context.Background(), interfaces.TransitionCommand{
		TenantID: tenant, OrderID: order.ID, Status: "cancelled",
	}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	productID := uuid.New()
	_, err := svc.AddLineItem(context.Background(), interfaces.AddLineItemCommand{
		TenantID:  tenant,
		OrderID:   order.ID,
		ProductID: &productID,
		Quantity:  1,
	})

	var transition *domain.StateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if cat.calls != 0 {
		t.Error("catalog consulted for a terminal order")
	}
	if repo.addItemCalls != 0 {
		t.Error("write attempted on a terminal order")
	}
}

func TestRemoveLineItem(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, newFakeAllocator(), nil, nil)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	productID := uuid.New()
	updated, err := svc.AddLineItem(context.Background(), interfaces.AddLineItemCommand{
		TenantID: tenant, OrderID: order.ID, ProductID: &productID, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddLineItem: %v", err)
	}

	// The fake never assigns item ids, so give it one by hand.
	repo.mu.Lock()
	repo.orders[order.ID].Items[0].ID = 77
	repo.mu.Unlock()
	_ = updated

	after, err := svc.RemoveLineItem(context.Background(), interfaces.RemoveLineItemCommand{
		TenantID: tenant, OrderID: order.ID, ItemID: 77,
	})
	if err != nil {
		t.Fatalf("RemoveLineItem: %v", err)
	}
	if len(after.Items) != 0 {
		t.Errorf("items = %d, want 0", len(after.Items))
	}
	if !after.Total.Equal(decimal.Zero) {
		t.Errorf("total = %s, want 0", after.Total)
	}
}

func TestTransitionStatusPersistsAndPublishes(t *testing.T) {
	repo := newFakeOrderRepo()
	pub := &fakePublisher{}
	svc := newTestService(repo, newFakeAllocator(), nil, pub)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	updated, err := svc.TransitionStatus(context.Background(), interfaces.TransitionCommand{
		TenantID: tenant, OrderID: order.ID, Status: "preparing",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.StatusPreparing {
		t.Errorf("status = %q, want preparing", updated.Status)
	}
	if repo.updateStatCalls != 1 {
		t.Errorf("UpdateStatus calls = %d, want 1", repo.updateStatCalls)
	}
	// Creation event plus the transition event.
	if len(pub.statusEvents) != 2 {
		t.Fatalf("events = %d, want 2", len(pub.statusEvents))
	}
	last := pub.statusEvents[1]
	if last.OldStatus != domain.StatusPrintQueue || last.NewStatus != domain.StatusPreparing {
		t.Errorf("event = %q -> %q", last.OldStatus, last.NewStatus)
	}
}

func TestTransitionStatusRejectsIllegalMove(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, newFakeAllocator(), nil, nil)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	_, err := svc.TransitionStatus(context.Background(), interfaces.TransitionCommand{
		TenantID: tenant, OrderID: order.ID, Status: "out_for_delivery",
	})
	var transition *domain.StateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if repo.updateStatCalls != 0 {
		t.Error("illegal transition was persisted")
	}
}

func TestReopenOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, newFakeAllocator(), nil, nil)
	tenant := uuid.New()
	order := createCounterOrder(t, svc, tenant)

	if _, err := svc.TransitionStatus(context.Background(), interfaces.TransitionCommand{
		TenantID: tenant, OrderID: order.ID, Status: "completed",
	}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	reopened, err := svc.ReopenOrder(context.Background(), interfaces.ReopenCommand{
		TenantID: tenant, OrderID: order.ID, Reason: "wrong table",
	})
	if err != nil {
		t.Fatalf("ReopenOrder: %v", err)
	}
	if reopened.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", reopened.Status)
	}
	if reopened.CompletedAt != nil {
		t.Error("completed_at survived the reopen")
	}

	history, err := svc.GetHistory(context.Background(), tenant, order.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	last := history[len(history)-1]
	if last.Operation != domain.OpReopened || last.Reason != "wrong table" {
		t.Errorf("last entry = %+v", last)
	}
}

func TestGetHistoryUnknownOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newTestService(repo, newFakeAllocator(), nil, nil)

	_, err := svc.GetHistory(context.Background(), uuid.New(), 999)
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
