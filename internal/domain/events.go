package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderCreatedEvent struct {
	EventID     string          `json:"event_id"`
	OrderNo     string          `json:"order_no"`
	UserID      int64           `json:"user_id"`
	Lines       []OrderLine     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ShipmentNotification asks the notification worker to tell a customer that
// their order has left the warehouse.
type ShipmentNotification struct {
	EventID        string    `json:"event_id"`
	Email          string    `json:"email"`
	OrderNo        string    `json:"order_no"`
	ExpressCompany string    `json:"express_company"`
	TrackingNo     string    `json:"tracking_no"`
	Timestamp      time.Time `json:"timestamp"`
}
