package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/settings"
	"github.com/joao-fontenele/shopflow/internal/telemetry"
)

// ShipmentNotifier delivers the "your order has shipped" message. Failures
// are logged by the caller and never undo the shipment.
type ShipmentNotifier interface {
	NotifyShipment(ctx context.Context, n domain.ShipmentNotification) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	uow      UnitOfWork
	settings settings.Provider
	notifier ShipmentNotifier
	events   EventPublisher
	metrics  *telemetry.ShopMetrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithShipmentNotifier(n ShipmentNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func NewService(uow UnitOfWork, provider settings.Provider, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		uow:      uow,
		settings: provider,
		metrics:  telemetry.NewShopMetrics(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CheckoutItem struct {
	ProductID int64
	VariantID *int64
	Quantity  int
	SpecInfo  string
}

// CheckoutRequest places an order either from cart entries or from explicit
// items. Cart entries win when both are given.
type CheckoutRequest struct {
	UserID       int64
	AddressID    int64
	CartEntryIDs []int64
	Items        []CheckoutItem
	Note         string
}

func newOrderNo() string {
	return "ORD" + ulid.Make().String()
}

func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	if len(req.CartEntryIDs) == 0 && len(req.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	req.CartEntryIDs = uniqueIDs(req.CartEntryIDs)
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %d must be positive", domain.ErrInvalidInput, item.ProductID)
		}
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var order *domain.Order
	err = s.uow.Do(ctx, func(tx Stores) error {
		addr, err := tx.Addresses.GetAddress(ctx, req.AddressID)
		if err != nil {
			return err
		}
		if addr == nil || addr.UserID != req.UserID {
			return domain.ErrAddressNotFound
		}

		items := req.Items
		if len(req.CartEntryIDs) > 0 {
			items, err = s.cartItems(ctx, tx.Carts, req.UserID, req.CartEntryIDs)
			if err != nil {
				return err
			}
		}

		lines := make([]domain.OrderLine, 0, len(items))
		subtotal := decimal.Zero
		for _, item := range items {
			line, err := s.priceLine(ctx, tx.Stock, item)
			if err != nil {
				return err
			}
			subtotal = subtotal.Add(line.Subtotal)
			lines = append(lines, line)
		}

		total := subtotal.Add(cfg.DefaultFreight)
		order = &domain.Order{
			OrderNo:         newOrderNo(),
			UserID:          req.UserID,
			TotalAmount:     total,
			PayAmount:       total,
			Freight:         cfg.DefaultFreight,
			Status:          domain.OrderStatusPendingPayment,
			ReceiverName:    addr.ReceiverName,
			ReceiverPhone:   addr.ReceiverPhone,
			ReceiverAddress: addr.FullAddress(),
			Note:            req.Note,
			CreatedAt:       s.now(),
			Lines:           lines,
		}
		if err := tx.Orders.CreateOrder(ctx, order); err != nil {
			return err
		}

		for _, line := range order.Lines {
			if err := tx.Stock.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					return &domain.StockError{ProductID: line.ProductID, ProductName: line.ProductName, Requested: line.Quantity}
				}
				return err
			}
			if line.VariantID != nil {
				if err := tx.Stock.AdjustVariantStock(ctx, *line.VariantID, -line.Quantity); err != nil {
					return err
				}
			}
		}

		if len(req.CartEntryIDs) > 0 {
			return tx.Carts.DeleteCartEntries(ctx, req.CartEntryIDs)
		}
		return nil
	})
	s.metrics.Transition(ctx, "checkout", err)
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(ctx)
	s.publishCreated(ctx, order)
	s.logger.Info("order created",
		"order_no", order.OrderNo,
		"user_id", order.UserID,
		"total_amount", order.TotalAmount.StringFixed(2),
		"lines", len(order.Lines),
	)
	return order, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Service) cartItems(ctx context.Context, carts CartStore, userID int64, ids []int64) ([]CheckoutItem, error) {
	entries, err := carts.CartEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(entries) != len(ids) {
		return nil, fmt.Errorf("%w: unknown cart entries", domain.ErrInvalidInput)
	}

	items := make([]CheckoutItem, 0, len(entries))
	for _, e := range entries {
		if e.UserID != userID {
			return nil, fmt.Errorf("cart entry %d: %w", e.ID, domain.ErrForbidden)
		}
		items = append(items, CheckoutItem{
			ProductID: e.ProductID,
			VariantID: e.VariantID,
			Quantity:  e.Quantity,
			SpecInfo:  e.SpecInfo,
		})
	}
	return items, nil
}

// priceLine validates one requested item against the catalog and snapshots
// it into an order line.
func (s *Service) priceLine(ctx context.Context, stock StockStore, item CheckoutItem) (domain.OrderLine, error) {
	product, err := stock.GetProduct(ctx, item.ProductID)
	if err != nil {
		return domain.OrderLine{}, err
	}
	if product == nil || !product.OnShelf() {
		return domain.OrderLine{}, fmt.Errorf("product %d: %w", item.ProductID, domain.ErrProductUnavailable)
	}

	ok, err := stock.CheckStock(ctx, product.ID, item.Quantity)
	if err != nil {
		return domain.OrderLine{}, err
	}
	if !ok {
		return domain.OrderLine{}, &domain.StockError{ProductID: product.ID, ProductName: product.Name, Requested: item.Quantity}
	}

	price := product.Price
	spec := item.SpecInfo
	if item.VariantID != nil {
		variant, err := stock.GetVariant(ctx, *item.VariantID)
		if err != nil {
			return domain.OrderLine{}, err
		}
		if variant == nil || variant.ProductID != product.ID {
			return domain.OrderLine{}, fmt.Errorf("variant %d of product %d: %w", *item.VariantID, product.ID, domain.ErrProductUnavailable)
		}
		if variant.Price.Valid {
			price = variant.Price.Decimal
		}
		if spec == "" {
			spec = variant.Name
		}
	}

	return domain.OrderLine{
		ProductID:    product.ID,
		VariantID:    item.VariantID,
		ProductName:  product.Name,
		ProductImage: product.CoverImage,
		SpecInfo:     spec,
		UnitPrice:    price,
		Quantity:     item.Quantity,
		Subtotal:     price.Mul(decimal.NewFromInt(int64(item.Quantity))),
	}, nil
}

func (s *Service) publishCreated(ctx context.Context, order *domain.Order) {
	if s.events == nil {
		return
	}
	event := domain.OrderCreatedEvent{
		EventID:     uuid.NewString(),
		OrderNo:     order.OrderNo,
		UserID:      order.UserID,
		Lines:       order.Lines,
		TotalAmount: order.TotalAmount,
		Timestamp:   order.CreatedAt,
	}
	if err := s.events.Publish(ctx, order.OrderNo, event); err != nil {
		s.logger.Error("failed to publish order created event", "error", err, "order_no", order.OrderNo)
	}
}

// transition loads and locks the order, lets apply mutate it, and persists
// the result, all in one unit of work.
func (s *Service) transition(ctx context.Context, op, orderNo string, apply func(tx Stores, o *domain.Order) error) (*domain.Order, error) {
	var order *domain.Order
	err := s.uow.Do(ctx, func(tx Stores) error {
		o, err := tx.Orders.LockByOrderNo(ctx, orderNo)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrOrderNotFound
		}
		if err := apply(tx, o); err != nil {
			return err
		}
		if err := tx.Orders.UpdateOrder(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	s.metrics.Transition(ctx, op, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order transitioned", "op", op, "order_no", order.OrderNo, "status", order.Status.String())
	return order, nil
}

func requireOwner(o *domain.Order, userID int64) error {
	if o.UserID != userID {
		return fmt.Errorf("order %s: %w", o.OrderNo, domain.ErrForbidden)
	}
	return nil
}

func requireStatus(op string, o *domain.Order, allowed ...domain.OrderStatus) error {
	for _, st := range allowed {
		if o.Status == st {
			return nil
		}
	}
	return &domain.StateError{Op: op, Required: allowed, Actual: o.Status}
}

// restoreStock returns every line's quantity to the product and, for lines
// bought as a variant, to the variant too.
func restoreStock(ctx context.Context, stock StockStore, o *domain.Order) error {
	for _, line := range o.Lines {
		if err := stock.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return fmt.Errorf("restore stock for product %d: %w", line.ProductID, err)
		}
		if line.VariantID != nil {
			if err := stock.AdjustVariantStock(ctx, *line.VariantID, line.Quantity); err != nil {
				return fmt.Errorf("restore stock for variant %d: %w", *line.VariantID, err)
			}
		}
	}
	return nil
}

func (s *Service) Pay(ctx context.Context, orderNo string, userID int64, method domain.PaymentMethod) (*domain.Order, error) {
	return s.transition(ctx, "pay", orderNo, func(tx Stores, o *domain.Order) error {
		if err := requireOwner(o, userID); err != nil {
			return err
		}
		if err := requireStatus("pay", o, domain.OrderStatusPendingPayment); err != nil {
			return err
		}
		for _, line := range o.Lines {
			if err := tx.Stock.IncrementSales(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		now := s.now()
		o.Status = domain.OrderStatusPendingShipment
		o.PayTime = &now
		o.PaymentMethod = &method
		return nil
	})
}

func (s *Service) Ship(ctx context.Context, orderNo, company, trackingNo string) (*domain.Order, error) {
	var email string
	order, err := s.transition(ctx, "ship", orderNo, func(tx Stores, o *domain.Order) error {
		if err := requireStatus("ship", o, domain.OrderStatusPendingShipment); err != nil {
			return err
		}
		var err error
		if email, err = tx.Users.UserEmail(ctx, o.UserID); err != nil {
			return err
		}
		now := s.now()
		o.Status = domain.OrderStatusPendingReceipt
		o.ShipTime = &now
		o.ExpressCompany = company
		o.TrackingNo = trackingNo
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyShipment(ctx, email, order)
	return order, nil
}

func (s *Service) notifyShipment(ctx context.Context, email string, order *domain.Order) {
	if s.notifier == nil || email == "" {
		return
	}
	n := domain.ShipmentNotification{
		EventID:        uuid.NewString(),
		Email:          email,
		OrderNo:        order.OrderNo,
		ExpressCompany: order.ExpressCompany,
		TrackingNo:     order.TrackingNo,
		Timestamp:      s.now(),
	}
	if err := s.notifier.NotifyShipment(ctx, n); err != nil {
		s.logger.Error("failed to send shipment notification", "error", err, "order_no", order.OrderNo)
	}
}

func (s *Service) ConfirmReceive(ctx context.Context, orderNo string, userID int64) (*domain.Order, error) {
	return s.transition(ctx, "receive", orderNo, func(_ Stores, o *domain.Order) error {
		if err := requireOwner(o, userID); err != nil {
			return err
		}
		return s.markReceived(o)
	})
}

// autoReceive is the system-initiated receipt used by the sweeper. It skips
// the ownership check but re-checks that the order shipped before cutoff.
func (s *Service) autoReceive(ctx context.Context, orderNo string, cutoff time.Time) error {
	_, err := s.transition(ctx, "auto_receive", orderNo, func(_ Stores, o *domain.Order) error {
		if o.ShipTime == nil || !o.ShipTime.Before(cutoff) {
			return errNotDue
		}
		return s.markReceived(o)
	})
	return err
}

func (s *Service) markReceived(o *domain.Order) error {
	if err := requireStatus("confirm receipt of", o, domain.OrderStatusPendingReceipt); err != nil {
		return err
	}
	now := s.now()
	o.Status = domain.OrderStatusCompleted
	o.ReceiveTime = &now
	return nil
}

func (s *Service) Cancel(ctx context.Context, orderNo string, userID int64, reason string) (*domain.Order, error) {
	return s.transition(ctx, "cancel", orderNo, func(tx Stores, o *domain.Order) error {
		if err := requireOwner(o, userID); err != nil {
			return err
		}
		if err := requireStatus("cancel", o, domain.OrderStatusPendingPayment, domain.OrderStatusPendingShipment); err != nil {
			return err
		}
		return s.cancel(ctx, tx, o, reason)
	})
}

func (s *Service) AdminCancel(ctx context.Context, orderNo, reason string) (*domain.Order, error) {
	return s.transition(ctx, "admin_cancel", orderNo, func(tx Stores, o *domain.Order) error {
		if err := requireStatus("cancel", o,
			domain.OrderStatusPendingPayment,
			domain.OrderStatusPendingShipment,
			domain.OrderStatusPendingReceipt,
		); err != nil {
			return err
		}
		return s.cancel(ctx, tx, o, reason)
	})
}

// expireUnpaid cancels an order on the system's behalf. The guard is
// narrower than AdminCancel so an order paid after it was listed is left
// alone.
func (s *Service) expireUnpaid(ctx context.Context, orderNo string, cutoff time.Time) error {
	_, err := s.transition(ctx, "expire", orderNo, func(tx Stores, o *domain.Order) error {
		if err := requireStatus("expire", o, domain.OrderStatusPendingPayment); err != nil {
			return err
		}
		if !o.CreatedAt.Before(cutoff) {
			return errNotDue
		}
		return s.cancel(ctx, tx, o, CancelReasonUnpaid)
	})
	return err
}

func (s *Service) cancel(ctx context.Context, tx Stores, o *domain.Order, reason string) error {
	if err := restoreStock(ctx, tx.Stock, o); err != nil {
		return err
	}
	now := s.now()
	o.Status = domain.OrderStatusCancelled
	o.CancelTime = &now
	o.CancelReason = reason
	return nil
}

// Delete hides a finished order from its owner. Only completed or cancelled
// orders can be deleted.
func (s *Service) Delete(ctx context.Context, orderNo string, userID int64) error {
	err := s.uow.Do(ctx, func(tx Stores) error {
		o, err := tx.Orders.LockByOrderNo(ctx, orderNo)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrOrderNotFound
		}
		if err := requireOwner(o, userID); err != nil {
			return err
		}
		if err := requireStatus("delete", o, domain.OrderStatusCompleted, domain.OrderStatusCancelled); err != nil {
			return err
		}
		return tx.Orders.SoftDelete(ctx, o.ID)
	})
	s.metrics.Transition(ctx, "delete", err)
	if err != nil {
		return err
	}
	s.logger.Info("order deleted", "order_no", orderNo, "user_id", userID)
	return nil
}

// Viewer identifies who is reading. Admins may read any order.
type Viewer struct {
	UserID int64
	Admin  bool
}

func (v Viewer) canSee(o *domain.Order) error {
	if v.Admin {
		return nil
	}
	return requireOwner(o, v.UserID)
}

func (s *Service) Get(ctx context.Context, orderNo string, viewer Viewer) (*domain.Order, error) {
	var order *domain.Order
	err := s.uow.Do(ctx, func(tx Stores) error {
		o, err := tx.Orders.GetByOrderNo(ctx, orderNo)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrOrderNotFound
		}
		if err := viewer.canSee(o); err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

func (s *Service) List(ctx context.Context, userID int64, status *domain.OrderStatus) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.uow.Do(ctx, func(tx Stores) error {
		var err error
		orders, err = tx.Orders.ListByUser(ctx, userID, status)
		return err
	})
	return orders, err
}

func (s *Service) Counts(ctx context.Context, userID int64) (domain.OrderCounts, error) {
	var counts domain.OrderCounts
	err := s.uow.Do(ctx, func(tx Stores) error {
		targets := []struct {
			dst    *int64
			status *domain.OrderStatus
		}{
			{&counts.All, nil},
			{&counts.Unpaid, statusPtr(domain.OrderStatusPendingPayment)},
			{&counts.Unshipped, statusPtr(domain.OrderStatusPendingShipment)},
			{&counts.Shipped, statusPtr(domain.OrderStatusPendingReceipt)},
			{&counts.Completed, statusPtr(domain.OrderStatusCompleted)},
		}
		for _, t := range targets {
			n, err := tx.Orders.CountByUser(ctx, userID, t.status)
			if err != nil {
				return err
			}
			*t.dst = n
		}
		return nil
	})
	return counts, err
}

func statusPtr(s domain.OrderStatus) *domain.OrderStatus {
	return &s
}
