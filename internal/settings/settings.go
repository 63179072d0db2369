package settings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Settings are the operator-tunable values the order lifecycle reads on
// every operation that needs them.
type Settings struct {
	OrderCancelHours int             `json:"order_cancel_hours" validate:"gte=0,lte=720"`
	OrderConfirmDays int             `json:"order_confirm_days" validate:"gte=0,lte=90"`
	DefaultFreight   decimal.Decimal `json:"default_freight"`
	StockWarning     int             `json:"stock_warning" validate:"gte=0"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func Defaults() Settings {
	return Settings{
		OrderCancelHours: 24,
		OrderConfirmDays: 7,
		DefaultFreight:   decimal.RequireFromString("10.00"),
		StockWarning:     10,
	}
}

// CancelWindow is how long an unpaid order may wait before the sweeper
// cancels it. Zero disables the sweep.
func (s Settings) CancelWindow() time.Duration {
	return time.Duration(s.OrderCancelHours) * time.Hour
}

// ConfirmWindow is how long a shipped order waits before it is marked
// received automatically. Zero disables the sweep.
func (s Settings) ConfirmWindow() time.Duration {
	return time.Duration(s.OrderConfirmDays) * 24 * time.Hour
}

type Provider interface {
	Get(ctx context.Context) (Settings, error)
}

// Static is a Provider that always returns the same value.
type Static Settings

func (s Static) Get(context.Context) (Settings, error) {
	return Settings(s), nil
}
