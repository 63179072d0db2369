package orders

import (
	"context"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// OrderStore persists orders with their lines. Lookups return nil, nil when
// the order does not exist or was deleted by its owner.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// LockByOrderNo and LockByID also hold the row until the enclosing
	// transaction ends, so concurrent transitions on one order serialize.
	LockByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	LockByID(ctx context.Context, id int64) (*domain.Order, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error
	SoftDelete(ctx context.Context, id int64) error
	ListByUser(ctx context.Context, userID int64, status *domain.OrderStatus) ([]domain.Order, error)
	CountByUser(ctx context.Context, userID int64, status *domain.OrderStatus) (int64, error)
	ListUnpaidBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
	ListShippedBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
}

type RefundStore interface {
	CreateRefund(ctx context.Context, r *domain.Refund) error
	GetRefund(ctx context.Context, id int64) (*domain.Refund, error)
	LockRefund(ctx context.Context, id int64) (*domain.Refund, error)
	LatestRefund(ctx context.Context, orderID int64) (*domain.Refund, error)
	CountActiveRefunds(ctx context.Context, orderID int64) (int, error)
	UpdateRefund(ctx context.Context, r *domain.Refund) error
}

// StockStore is the slice of the inventory repository the order lifecycle
// needs to reserve and restore stock.
type StockStore interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetVariant(ctx context.Context, id int64) (*domain.Variant, error)
	CheckStock(ctx context.Context, productID int64, quantity int) (bool, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error
	AdjustVariantStock(ctx context.Context, variantID int64, delta int) error
	IncrementSales(ctx context.Context, productID int64, quantity int) error
}

type CartStore interface {
	CartEntries(ctx context.Context, ids []int64) ([]domain.CartEntry, error)
	DeleteCartEntries(ctx context.Context, ids []int64) error
}

type AddressStore interface {
	GetAddress(ctx context.Context, id int64) (*domain.Address, error)
}

type UserStore interface {
	// UserEmail returns "" when the user has no email on file.
	UserEmail(ctx context.Context, userID int64) (string, error)
}

// Stores groups the stores that one unit of work hands to its callback.
type Stores struct {
	Orders    OrderStore
	Refunds   RefundStore
	Stock     StockStore
	Carts     CartStore
	Addresses AddressStore
	Users     UserStore
}

// UnitOfWork runs fn against stores that share a single transaction. A non-nil
// error from fn rolls back every write fn made.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(s Stores) error) error
}
