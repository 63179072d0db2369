package settings

import (
	"context"
	"database/sql"
	"errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the stored settings, or Defaults when no row exists yet.
func (r *Repository) Get(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.db.QueryRowContext(ctx, `
		SELECT order_cancel_hours, order_confirm_days, default_freight, stock_warning, updated_at
		FROM system_settings
		ORDER BY id
		LIMIT 1
	`).Scan(&s.OrderCancelHours, &s.OrderConfirmDays, &s.DefaultFreight, &s.StockWarning, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Defaults(), nil
		}
		return Settings{}, err
	}
	return s, nil
}

func (r *Repository) Update(ctx context.Context, s Settings) (Settings, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO system_settings (id, order_cancel_hours, order_confirm_days, default_freight, stock_warning, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			order_cancel_hours = EXCLUDED.order_cancel_hours,
			order_confirm_days = EXCLUDED.order_confirm_days,
			default_freight = EXCLUDED.default_freight,
			stock_warning = EXCLUDED.stock_warning,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, s.OrderCancelHours, s.OrderConfirmDays, s.DefaultFreight, s.StockWarning).Scan(&s.UpdatedAt)
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}
