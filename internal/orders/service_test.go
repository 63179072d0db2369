package orders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

func TestCheckoutPayCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	order := f.placeOrder(t)

	if !order.TotalAmount.Equal(money("130.00")) {
		t.Errorf("expected total 130.00, got %s", order.TotalAmount)
	}
	if !order.PayAmount.Equal(order.TotalAmount) {
		t.Errorf("expected pay amount to equal total, got %s", order.PayAmount)
	}
	if !order.Freight.Equal(money("10.00")) {
		t.Errorf("expected freight 10.00, got %s", order.Freight)
	}
	if order.Status != domain.OrderStatusPendingPayment {
		t.Errorf("expected status pending_payment, got %s", order.Status)
	}
	if !strings.HasPrefix(order.OrderNo, "ORD") {
		t.Errorf("expected order number prefix ORD, got %s", order.OrderNo)
	}
	if order.ReceiverAddress != "North Springfield Central 1 Main St" {
		t.Errorf("unexpected receiver address %q", order.ReceiverAddress)
	}
	if len(order.Lines) != 2 || order.Lines[0].ProductName != "Product A" || !order.Lines[0].Subtotal.Equal(money("100")) {
		t.Errorf("unexpected lines %+v", order.Lines)
	}
	if got := f.product(productA).Stock; got != 8 {
		t.Errorf("expected product A stock 8, got %d", got)
	}
	if got := f.product(productB).Stock; got != 4 {
		t.Errorf("expected product B stock 4, got %d", got)
	}

	paid, err := f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodAlipay)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != domain.OrderStatusPendingShipment || paid.PayTime == nil {
		t.Errorf("expected pending_shipment with pay time, got %s %v", paid.Status, paid.PayTime)
	}
	if paid.PaymentMethod == nil || *paid.PaymentMethod != domain.PaymentMethodAlipay {
		t.Errorf("expected payment method alipay, got %v", paid.PaymentMethod)
	}
	if got := f.product(productA).Sales; got != 2 {
		t.Errorf("expected product A sales 2, got %d", got)
	}
	if got := f.product(productB).Sales; got != 1 {
		t.Errorf("expected product B sales 1, got %d", got)
	}

	cancelled, err := f.svc.Cancel(ctx, order.OrderNo, buyerID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelTime == nil {
		t.Errorf("expected cancelled with cancel time, got %s", cancelled.Status)
	}
	if cancelled.CancelReason != "changed my mind" {
		t.Errorf("expected cancel reason stored, got %q", cancelled.CancelReason)
	}
	if got := f.product(productA).Stock; got != 10 {
		t.Errorf("expected product A stock 10, got %d", got)
	}
	if got := f.product(productB).Stock; got != 5 {
		t.Errorf("expected product B stock 5, got %d", got)
	}

	_, err = f.svc.Cancel(ctx, order.OrderNo, buyerID, "again")
	var stateErr *domain.StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError on second cancel, got %v", err)
	}
	if stateErr.Actual != domain.OrderStatusCancelled {
		t.Errorf("expected actual status cancelled, got %s", stateErr.Actual)
	}
	if got := f.product(productA).Stock; got != 10 {
		t.Errorf("expected stock restored exactly once, got %d", got)
	}
}

func TestCheckoutIsAtomic(t *testing.T) {
	ctx := context.Background()

	t.Run("stock check fails on a later line", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Checkout(ctx, CheckoutRequest{
			UserID:    buyerID,
			AddressID: buyerAddr,
			Items: []CheckoutItem{
				{ProductID: productA, Quantity: 2},
				{ProductID: productB, Quantity: 6},
			},
		})

		var stockErr *domain.StockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected StockError, got %v", err)
		}
		if stockErr.ProductName != "Product B" {
			t.Errorf("expected error to name Product B, got %q", stockErr.ProductName)
		}
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Errorf("expected error to wrap ErrInsufficientStock")
		}
		if n := len(f.uow.snapshot().orders); n != 0 {
			t.Errorf("expected no orders, got %d", n)
		}
		if got := f.product(productA).Stock; got != 10 {
			t.Errorf("expected product A stock untouched, got %d", got)
		}
	})

	t.Run("decrement fails after earlier lines were taken", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Checkout(ctx, CheckoutRequest{
			UserID:    buyerID,
			AddressID: buyerAddr,
			Items: []CheckoutItem{
				{ProductID: productA, Quantity: 6},
				{ProductID: productA, Quantity: 6},
			},
		})

		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if n := len(f.uow.snapshot().orders); n != 0 {
			t.Errorf("expected no orders, got %d", n)
		}
		if got := f.product(productA).Stock; got != 10 {
			t.Errorf("expected product A stock 10 after rollback, got %d", got)
		}
	})
}

func TestCheckoutRejects(t *testing.T) {
	variantOfB := variantB

	tests := []struct {
		name     string
		req      CheckoutRequest
		expected error
	}{
		{
			name:     "empty order",
			req:      CheckoutRequest{UserID: buyerID, AddressID: buyerAddr},
			expected: domain.ErrEmptyOrder,
		},
		{
			name: "address of another user",
			req: CheckoutRequest{UserID: buyerID, AddressID: otherAddr,
				Items: []CheckoutItem{{ProductID: productA, Quantity: 1}}},
			expected: domain.ErrAddressNotFound,
		},
		{
			name: "missing address",
			req: CheckoutRequest{UserID: buyerID, AddressID: 999,
				Items: []CheckoutItem{{ProductID: productA, Quantity: 1}}},
			expected: domain.ErrNotFound,
		},
		{
			name: "off shelf product",
			req: CheckoutRequest{UserID: buyerID, AddressID: buyerAddr,
				Items: []CheckoutItem{{ProductID: productOff, Quantity: 1}}},
			expected: domain.ErrProductUnavailable,
		},
		{
			name: "unknown product",
			req: CheckoutRequest{UserID: buyerID, AddressID: buyerAddr,
				Items: []CheckoutItem{{ProductID: 999, Quantity: 1}}},
			expected: domain.ErrProductUnavailable,
		},
		{
			name: "variant of a different product",
			req: CheckoutRequest{UserID: buyerID, AddressID: buyerAddr,
				Items: []CheckoutItem{{ProductID: productA, VariantID: &variantOfB, Quantity: 1}}},
			expected: domain.ErrProductUnavailable,
		},
		{
			name: "non positive quantity",
			req: CheckoutRequest{UserID: buyerID, AddressID: buyerAddr,
				Items: []CheckoutItem{{ProductID: productA, Quantity: 0}}},
			expected: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Checkout(context.Background(), tt.req)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
			if n := len(f.uow.snapshot().orders); n != 0 {
				t.Errorf("expected no orders, got %d", n)
			}
		})
	}
}

func TestCheckoutVariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	red, blue := variantRed, variantBlu

	order, err := f.svc.Checkout(ctx, CheckoutRequest{
		UserID:    buyerID,
		AddressID: buyerAddr,
		Items: []CheckoutItem{
			{ProductID: productA, VariantID: &red, Quantity: 2},
			{ProductID: productA, VariantID: &blue, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if !order.Lines[0].UnitPrice.Equal(money("55.00")) {
		t.Errorf("expected variant price 55.00, got %s", order.Lines[0].UnitPrice)
	}
	if order.Lines[0].SpecInfo != "Red" {
		t.Errorf("expected spec info Red, got %q", order.Lines[0].SpecInfo)
	}
	if !order.Lines[1].UnitPrice.Equal(money("50.00")) {
		t.Errorf("expected product price for unpriced variant, got %s", order.Lines[1].UnitPrice)
	}
	// 2 x 55 + 1 x 50 + 10 freight
	if !order.TotalAmount.Equal(money("170.00")) {
		t.Errorf("expected total 170.00, got %s", order.TotalAmount)
	}
	if got := f.product(productA).Stock; got != 7 {
		t.Errorf("expected product A stock 7, got %d", got)
	}
	if got := f.variant(variantRed).Stock; got != 2 {
		t.Errorf("expected red variant stock 2, got %d", got)
	}
	if got := f.variant(variantBlu).Stock; got != 2 {
		t.Errorf("expected blue variant stock 2, got %d", got)
	}

	if _, err := f.svc.AdminCancel(ctx, order.OrderNo, "out of packaging"); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if got := f.variant(variantRed).Stock; got != 4 {
		t.Errorf("expected red variant stock restored to 4, got %d", got)
	}
	if got := f.product(productA).Stock; got != 10 {
		t.Errorf("expected product A stock restored to 10, got %d", got)
	}
}

func TestCheckoutFromCart(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes the cart entries", func(t *testing.T) {
		f := newFixture(t)
		red := variantRed
		f.uow.state.carts[1] = domain.CartEntry{ID: 1, UserID: buyerID, ProductID: productA, VariantID: &red, SpecInfo: "Red / L", Quantity: 1}
		f.uow.state.carts[2] = domain.CartEntry{ID: 2, UserID: buyerID, ProductID: productB, Quantity: 2}

		order, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: buyerID, AddressID: buyerAddr, CartEntryIDs: []int64{1, 2}})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}

		if len(order.Lines) != 2 || order.Lines[0].SpecInfo != "Red / L" {
			t.Errorf("unexpected lines %+v", order.Lines)
		}
		if n := len(f.uow.snapshot().carts); n != 0 {
			t.Errorf("expected cart to be emptied, got %d entries", n)
		}
	})

	t.Run("repeated entry ids count once", func(t *testing.T) {
		f := newFixture(t)
		f.uow.state.carts[1] = domain.CartEntry{ID: 1, UserID: buyerID, ProductID: productB, Quantity: 2}

		order, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: buyerID, AddressID: buyerAddr, CartEntryIDs: []int64{1, 1}})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		if len(order.Lines) != 1 || order.Lines[0].Quantity != 2 {
			t.Errorf("expected a single line of 2, got %+v", order.Lines)
		}
		if got := f.product(productB).Stock; got != 3 {
			t.Errorf("expected product B stock 3, got %d", got)
		}
	})

	t.Run("refuses entries owned by someone else", func(t *testing.T) {
		f := newFixture(t)
		f.uow.state.carts[1] = domain.CartEntry{ID: 1, UserID: buyerID, ProductID: productA, Quantity: 1}
		f.uow.state.carts[2] = domain.CartEntry{ID: 2, UserID: otherID, ProductID: productB, Quantity: 1}

		_, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: buyerID, AddressID: buyerAddr, CartEntryIDs: []int64{1, 2}})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
		if n := len(f.uow.snapshot().carts); n != 2 {
			t.Errorf("expected cart untouched, got %d entries", n)
		}
	})

	t.Run("unknown entries", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: buyerID, AddressID: buyerAddr, CartEntryIDs: []int64{77}})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected invalid input, got %v", err)
		}
	})
}

func TestCheckoutPublishesEvent(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)

	if len(f.events.keys) != 1 || f.events.keys[0] != order.OrderNo {
		t.Fatalf("expected one event keyed by order number, got %v", f.events.keys)
	}
	event, ok := f.events.events[0].(domain.OrderCreatedEvent)
	if !ok {
		t.Fatalf("expected OrderCreatedEvent, got %T", f.events.events[0])
	}
	if event.EventID == "" || !event.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestLifecycleOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t)

	if _, err := f.svc.Ship(ctx, order.OrderNo, "UPS", "1Z999"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ship before pay to fail with invalid state, got %v", err)
	}
	if _, err := f.svc.ConfirmReceive(ctx, order.OrderNo, buyerID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected receive before ship to fail with invalid state, got %v", err)
	}

	if _, err := f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected second pay to fail, got %v", err)
	}

	shipped, err := f.svc.Ship(ctx, order.OrderNo, "UPS", "1Z999")
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if shipped.Status != domain.OrderStatusPendingReceipt || shipped.ShipTime == nil || shipped.TrackingNo != "1Z999" {
		t.Errorf("unexpected shipped order %+v", shipped)
	}

	if _, err := f.svc.Cancel(ctx, order.OrderNo, buyerID, ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected user cancel after shipment to fail, got %v", err)
	}

	received, err := f.svc.ConfirmReceive(ctx, order.OrderNo, buyerID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if received.Status != domain.OrderStatusCompleted || received.ReceiveTime == nil {
		t.Errorf("expected completed with receive time, got %s", received.Status)
	}

	if _, err := f.svc.AdminCancel(ctx, order.OrderNo, "too late"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected admin cancel of completed order to fail, got %v", err)
	}
}

func TestTransitionsOnCancelledOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t)

	if _, err := f.svc.Cancel(ctx, order.OrderNo, buyerID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ops := map[string]func() error{
		"pay": func() error {
			_, err := f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat)
			return err
		},
		"ship": func() error {
			_, err := f.svc.Ship(ctx, order.OrderNo, "UPS", "1")
			return err
		},
		"receive": func() error {
			_, err := f.svc.ConfirmReceive(ctx, order.OrderNo, buyerID)
			return err
		},
		"admin cancel": func() error {
			_, err := f.svc.AdminCancel(ctx, order.OrderNo, "")
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("expected invalid state, got %v", err)
			}
		})
	}
}

func TestOwnershipAndLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t)

	if _, err := f.svc.Pay(ctx, order.OrderNo, otherID, domain.PaymentMethodWeChat); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden pay, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, order.OrderNo, otherID, ""); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden cancel, got %v", err)
	}
	if _, err := f.svc.Get(ctx, order.OrderNo, Viewer{UserID: otherID}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden get, got %v", err)
	}
	if _, err := f.svc.Get(ctx, order.OrderNo, Viewer{UserID: otherID, Admin: true}); err != nil {
		t.Errorf("expected admin to read any order, got %v", err)
	}
	if _, err := f.svc.Pay(ctx, "ORDMISSING", buyerID, domain.PaymentMethodWeChat); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected order not found, got %v", err)
	}
	if got := f.order(t, order.OrderNo).Status; got != domain.OrderStatusPendingPayment {
		t.Errorf("expected order untouched, got %s", got)
	}
}

func TestShipNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("notifies the buyer", func(t *testing.T) {
		f := newFixture(t)
		order := f.placeOrder(t)
		_, _ = f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat)

		if _, err := f.svc.Ship(ctx, order.OrderNo, "DHL", "JD0001"); err != nil {
			t.Fatalf("ship: %v", err)
		}

		if len(f.notifier.sent) != 1 {
			t.Fatalf("expected one notification, got %d", len(f.notifier.sent))
		}
		n := f.notifier.sent[0]
		if n.Email != "buyer@example.com" || n.OrderNo != order.OrderNo || n.ExpressCompany != "DHL" || n.TrackingNo != "JD0001" {
			t.Errorf("unexpected notification %+v", n)
		}
	})

	t.Run("delivery failure keeps the shipment", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.err = errors.New("smtp down")
		order := f.placeOrder(t)
		_, _ = f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat)

		shipped, err := f.svc.Ship(ctx, order.OrderNo, "DHL", "JD0001")
		if err != nil {
			t.Fatalf("expected ship to succeed, got %v", err)
		}
		if shipped.Status != domain.OrderStatusPendingReceipt {
			t.Errorf("expected pending_receipt, got %s", shipped.Status)
		}
		if got := f.order(t, order.OrderNo).Status; got != domain.OrderStatusPendingReceipt {
			t.Errorf("expected stored status pending_receipt, got %s", got)
		}
	})

	t.Run("skips buyers without email", func(t *testing.T) {
		f := newFixture(t)
		delete(f.uow.state.emails, buyerID)
		order := f.placeOrder(t)
		_, _ = f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat)

		if _, err := f.svc.Ship(ctx, order.OrderNo, "DHL", "JD0001"); err != nil {
			t.Fatalf("ship: %v", err)
		}
		if len(f.notifier.sent) != 0 {
			t.Errorf("expected no notification, got %d", len(f.notifier.sent))
		}
	})
}

func TestAdminCancelShippedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t)
	_, _ = f.svc.Pay(ctx, order.OrderNo, buyerID, domain.PaymentMethodWeChat)
	_, _ = f.svc.Ship(ctx, order.OrderNo, "UPS", "1Z")

	cancelled, err := f.svc.AdminCancel(ctx, order.OrderNo, "lost in transit")
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if got := f.product(productA).Stock; got != 10 {
		t.Errorf("expected stock restored, got %d", got)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.placeOrder(t)

	if err := f.svc.Delete(ctx, order.OrderNo, buyerID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected open order delete to fail, got %v", err)
	}

	_, _ = f.svc.Cancel(ctx, order.OrderNo, buyerID, "")

	if err := f.svc.Delete(ctx, order.OrderNo, otherID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected forbidden delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, order.OrderNo, buyerID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, order.OrderNo, Viewer{UserID: buyerID}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected deleted order to be hidden, got %v", err)
	}
}

func TestListAndCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.placeOrder(t)
	second := f.placeOrder(t)
	_, _ = f.svc.Pay(ctx, second.OrderNo, buyerID, domain.PaymentMethodWeChat)

	orders, err := f.svc.List(ctx, buyerID, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 || orders[0].OrderNo != second.OrderNo || orders[1].OrderNo != first.OrderNo {
		t.Errorf("expected newest first, got %v", orders)
	}
	if len(orders[0].Lines) != 2 {
		t.Errorf("expected lines to be loaded, got %d", len(orders[0].Lines))
	}

	unpaid := domain.OrderStatusPendingPayment
	orders, _ = f.svc.List(ctx, buyerID, &unpaid)
	if len(orders) != 1 || orders[0].OrderNo != first.OrderNo {
		t.Errorf("expected only the unpaid order, got %v", orders)
	}

	counts, err := f.svc.Counts(ctx, buyerID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	expected := domain.OrderCounts{All: 2, Unpaid: 1, Unshipped: 1}
	if counts != expected {
		t.Errorf("expected %+v, got %+v", expected, counts)
	}

	counts, _ = f.svc.Counts(ctx, otherID)
	if counts != (domain.OrderCounts{}) {
		t.Errorf("expected zero counts for another user, got %+v", counts)
	}
}
