package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RefundStatus int

const (
	RefundStatusRequested RefundStatus = 0
	RefundStatusApproved  RefundStatus = 1
	RefundStatusRejected  RefundStatus = 2
	RefundStatusCancelled RefundStatus = 3
)

func (s RefundStatus) String() string {
	switch s {
	case RefundStatusRequested:
		return "requested"
	case RefundStatusApproved:
		return "approved"
	case RefundStatusRejected:
		return "rejected"
	case RefundStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Active reports whether the refund still blocks a new request on its order.
func (s RefundStatus) Active() bool {
	return s == RefundStatusRequested || s == RefundStatusApproved
}

type Refund struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	RefundNo  string          `json:"refund_no"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Status    RefundStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	HandledAt *time.Time      `json:"handled_at,omitempty"`
}
