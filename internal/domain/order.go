package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus int

const (
	OrderStatusPendingPayment  OrderStatus = 0
	OrderStatusPendingShipment OrderStatus = 1
	OrderStatusPendingReceipt  OrderStatus = 2
	OrderStatusCompleted       OrderStatus = 3
	OrderStatusCancelled       OrderStatus = 4
	OrderStatusRefunding       OrderStatus = 5
	OrderStatusRefunded        OrderStatus = 6
	OrderStatusRefundComplete  OrderStatus = 7
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusPendingPayment:  "pending_payment",
	OrderStatusPendingShipment: "pending_shipment",
	OrderStatusPendingReceipt:  "pending_receipt",
	OrderStatusCompleted:       "completed",
	OrderStatusCancelled:       "cancelled",
	OrderStatusRefunding:       "refunding",
	OrderStatusRefunded:        "refunded",
	OrderStatusRefundComplete:  "refund_complete",
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

type PaymentMethod int

const (
	PaymentMethodWeChat PaymentMethod = 1
	PaymentMethodAlipay PaymentMethod = 2
)

// OrderLine is a snapshot of what was bought. Product name, image and price
// are copied at checkout and never follow later catalog edits.
type OrderLine struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	VariantID    *int64          `json:"variant_id,omitempty"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	SpecInfo     string          `json:"spec_info"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Reviewed     bool            `json:"reviewed"`
}

type Order struct {
	ID              int64           `json:"id"`
	OrderNo         string          `json:"order_no"`
	UserID          int64           `json:"user_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PayAmount       decimal.Decimal `json:"pay_amount"`
	Freight         decimal.Decimal `json:"freight"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   *PaymentMethod  `json:"payment_method,omitempty"`
	ReceiverName    string          `json:"receiver_name"`
	ReceiverPhone   string          `json:"receiver_phone"`
	ReceiverAddress string          `json:"receiver_address"`
	ExpressCompany  string          `json:"express_company,omitempty"`
	TrackingNo      string          `json:"tracking_no,omitempty"`
	Note            string          `json:"note,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	PayTime         *time.Time      `json:"pay_time,omitempty"`
	ShipTime        *time.Time      `json:"ship_time,omitempty"`
	ReceiveTime     *time.Time      `json:"receive_time,omitempty"`
	CancelTime      *time.Time      `json:"cancel_time,omitempty"`
	Deleted         bool            `json:"-"`
	Lines           []OrderLine     `json:"items"`
}

// OrderCounts is the per-status summary shown on a customer's account page.
type OrderCounts struct {
	All       int64 `json:"all"`
	Unpaid    int64 `json:"unpaid"`
	Unshipped int64 `json:"unshipped"`
	Shipped   int64 `json:"shipped"`
	Completed int64 `json:"completed"`
}
