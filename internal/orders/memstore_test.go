package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/settings"
)

// memState is an in-memory database. Each unit of work runs against a
// clone that replaces the original only on success, which gives tests the
// same all-or-nothing behavior as a Postgres transaction.
type memState struct {
	orders    map[int64]domain.Order
	refunds   map[int64]domain.Refund
	products  map[int64]domain.Product
	variants  map[int64]domain.Variant
	carts     map[int64]domain.CartEntry
	addresses map[int64]domain.Address
	emails    map[int64]string
	nextID    int64
}

func newMemState() *memState {
	return &memState{
		orders:    make(map[int64]domain.Order),
		refunds:   make(map[int64]domain.Refund),
		products:  make(map[int64]domain.Product),
		variants:  make(map[int64]domain.Variant),
		carts:     make(map[int64]domain.CartEntry),
		addresses: make(map[int64]domain.Address),
		emails:    make(map[int64]string),
		nextID:    1000,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	for k, v := range s.orders {
		v.Lines = append([]domain.OrderLine(nil), v.Lines...)
		c.orders[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

type memUnitOfWork struct {
	mu          sync.Mutex
	state       *memState
	failOrderNo string
}

var errInjected = errors.New("injected failure")

func (u *memUnitOfWork) Do(_ context.Context, fn func(s Stores) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	work := u.state.clone()
	ms := &memStores{state: work, failOrderNo: u.failOrderNo}
	if err := fn(Stores{
		Orders:    ms,
		Refunds:   ms,
		Stock:     ms,
		Carts:     ms,
		Addresses: ms,
		Users:     ms,
	}); err != nil {
		return err
	}
	u.state = work
	return nil
}

func (u *memUnitOfWork) snapshot() *memState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state.clone()
}

type memStores struct {
	state       *memState
	failOrderNo string
}

func copyOrder(o domain.Order) *domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return &o
}

func (m *memStores) CreateOrder(_ context.Context, o *domain.Order) error {
	o.ID = m.state.id()
	for i := range o.Lines {
		o.Lines[i].ID = m.state.id()
		o.Lines[i].OrderID = o.ID
	}
	m.state.orders[o.ID] = *copyOrder(*o)
	return nil
}

func (m *memStores) GetByOrderNo(_ context.Context, orderNo string) (*domain.Order, error) {
	for _, o := range m.state.orders {
		if o.OrderNo == orderNo && !o.Deleted {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (m *memStores) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := m.state.orders[id]
	if !ok || o.Deleted {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (m *memStores) LockByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	if m.failOrderNo != "" && orderNo == m.failOrderNo {
		return nil, errInjected
	}
	return m.GetByOrderNo(ctx, orderNo)
}

func (m *memStores) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *memStores) UpdateOrder(_ context.Context, o *domain.Order) error {
	if _, ok := m.state.orders[o.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	m.state.orders[o.ID] = *copyOrder(*o)
	return nil
}

func (m *memStores) SoftDelete(_ context.Context, id int64) error {
	o := m.state.orders[id]
	o.Deleted = true
	m.state.orders[id] = o
	return nil
}

func (m *memStores) ListByUser(_ context.Context, userID int64, status *domain.OrderStatus) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range m.state.orders {
		if o.UserID != userID || o.Deleted || (status != nil && o.Status != *status) {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStores) CountByUser(ctx context.Context, userID int64, status *domain.OrderStatus) (int64, error) {
	orders, err := m.ListByUser(ctx, userID, status)
	return int64(len(orders)), err
}

func (m *memStores) listWhere(match func(o domain.Order) bool) []domain.Order {
	out := []domain.Order{}
	for _, o := range m.state.orders {
		if !o.Deleted && match(o) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStores) ListUnpaidBefore(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	return m.listWhere(func(o domain.Order) bool {
		return o.Status == domain.OrderStatusPendingPayment && o.CreatedAt.Before(cutoff)
	}), nil
}

func (m *memStores) ListShippedBefore(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	return m.listWhere(func(o domain.Order) bool {
		return o.Status == domain.OrderStatusPendingReceipt && o.ShipTime != nil && o.ShipTime.Before(cutoff)
	}), nil
}

func (m *memStores) CreateRefund(_ context.Context, r *domain.Refund) error {
	r.ID = m.state.id()
	m.state.refunds[r.ID] = *r
	return nil
}

func (m *memStores) GetRefund(_ context.Context, id int64) (*domain.Refund, error) {
	r, ok := m.state.refunds[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStores) LockRefund(ctx context.Context, id int64) (*domain.Refund, error) {
	return m.GetRefund(ctx, id)
}

func (m *memStores) LatestRefund(_ context.Context, orderID int64) (*domain.Refund, error) {
	var latest *domain.Refund
	for _, r := range m.state.refunds {
		if r.OrderID != orderID {
			continue
		}
		if latest == nil || r.ID > latest.ID {
			latest = &r
		}
	}
	return latest, nil
}

func (m *memStores) CountActiveRefunds(_ context.Context, orderID int64) (int, error) {
	n := 0
	for _, r := range m.state.refunds {
		if r.OrderID == orderID && r.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (m *memStores) UpdateRefund(_ context.Context, r *domain.Refund) error {
	if _, ok := m.state.refunds[r.ID]; !ok {
		return domain.ErrRefundNotFound
	}
	m.state.refunds[r.ID] = *r
	return nil
}

func (m *memStores) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := m.state.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStores) GetVariant(_ context.Context, id int64) (*domain.Variant, error) {
	v, ok := m.state.variants[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *memStores) CheckStock(_ context.Context, productID int64, quantity int) (bool, error) {
	p, ok := m.state.products[productID]
	return ok && p.Stock >= quantity, nil
}

func (m *memStores) DecrementStock(_ context.Context, productID int64, quantity int) error {
	p, ok := m.state.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock < quantity {
		return domain.ErrInsufficientStock
	}
	p.Stock -= quantity
	m.state.products[productID] = p
	return nil
}

func (m *memStores) IncrementStock(_ context.Context, productID int64, quantity int) error {
	p, ok := m.state.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	m.state.products[productID] = p
	return nil
}

func (m *memStores) AdjustVariantStock(_ context.Context, variantID int64, delta int) error {
	v, ok := m.state.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	v.Stock += delta
	m.state.variants[variantID] = v
	return nil
}

func (m *memStores) IncrementSales(_ context.Context, productID int64, quantity int) error {
	p, ok := m.state.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Sales += quantity
	m.state.products[productID] = p
	return nil
}

func (m *memStores) CartEntries(_ context.Context, ids []int64) ([]domain.CartEntry, error) {
	var out []domain.CartEntry
	for _, id := range ids {
		if e, ok := m.state.carts[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStores) DeleteCartEntries(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(m.state.carts, id)
	}
	return nil
}

func (m *memStores) GetAddress(_ context.Context, id int64) (*domain.Address, error) {
	a, ok := m.state.addresses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStores) UserEmail(_ context.Context, userID int64) (string, error) {
	return m.state.emails[userID], nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.ShipmentNotification
	err  error
}

func (n *recordingNotifier) NotifyShipment(_ context.Context, msg domain.ShipmentNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

const (
	buyerID    int64 = 1
	otherID    int64 = 2
	buyerAddr  int64 = 10
	otherAddr  int64 = 20
	productA   int64 = 100
	productB   int64 = 200
	productOff int64 = 300
	variantRed int64 = 101
	variantBlu int64 = 102
	variantB   int64 = 201
)

type fixture struct {
	uow      *memUnitOfWork
	svc      *Service
	clock    *fakeClock
	notifier *recordingNotifier
	events   *recordingPublisher
	settings settings.Settings
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	state := newMemState()
	state.emails[buyerID] = "buyer@example.com"
	state.addresses[buyerAddr] = domain.Address{
		ID: buyerAddr, UserID: buyerID, ReceiverName: "Ada", ReceiverPhone: "555-0100",
		Province: "North", City: "Springfield", District: "Central", Detail: "1 Main St",
	}
	state.addresses[otherAddr] = domain.Address{ID: otherAddr, UserID: otherID, ReceiverName: "Bo", ReceiverPhone: "555-0200"}
	state.products[productA] = domain.Product{
		ID: productA, Name: "Product A", Price: money("50.00"), Stock: 10,
		CoverImage: "a.png", Status: domain.ProductStatusOnShelf,
	}
	state.products[productB] = domain.Product{
		ID: productB, Name: "Product B", Price: money("20.00"), Stock: 5, Status: domain.ProductStatusOnShelf,
	}
	state.products[productOff] = domain.Product{
		ID: productOff, Name: "Retired", Price: money("5.00"), Stock: 50, Status: domain.ProductStatusOffShelf,
	}
	state.variants[variantRed] = domain.Variant{
		ID: variantRed, ProductID: productA, Code: "A-RED", Name: "Red",
		Price: decimal.NewNullDecimal(money("55.00")), Stock: 4,
	}
	state.variants[variantBlu] = domain.Variant{ID: variantBlu, ProductID: productA, Code: "A-BLU", Name: "Blue", Stock: 3}
	state.variants[variantB] = domain.Variant{ID: variantB, ProductID: productB, Code: "B-STD", Name: "Standard", Stock: 5}

	f := &fixture{
		uow:      &memUnitOfWork{state: state},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		settings: settings.Defaults(),
	}
	f.svc = f.newService()
	return f
}

func (f *fixture) newService() *Service {
	return NewService(f.uow, settings.Static(f.settings), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(f.clock.Now),
		WithShipmentNotifier(f.notifier),
		WithEventPublisher(f.events),
	)
}

func (f *fixture) product(id int64) domain.Product {
	return f.uow.snapshot().products[id]
}

func (f *fixture) variant(id int64) domain.Variant {
	return f.uow.snapshot().variants[id]
}

func (f *fixture) order(t *testing.T, orderNo string) domain.Order {
	t.Helper()
	for _, o := range f.uow.snapshot().orders {
		if o.OrderNo == orderNo {
			return o
		}
	}
	t.Fatalf("order %s not stored", orderNo)
	return domain.Order{}
}

// placeOrder checks out 2 x A and 1 x B for the buyer.
func (f *fixture) placeOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:    buyerID,
		AddressID: buyerAddr,
		Items: []CheckoutItem{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return order
}
