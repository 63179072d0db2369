package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

const orderColumns = `id, order_no, user_id, total_amount, pay_amount, freight, status, payment_method,
	receiver_name, receiver_phone, receiver_address, express_company, tracking_no, note, cancel_reason,
	created_at, pay_time, ship_time, receive_time, cancel_time`

type OrderRepository struct {
	db database.DBTX
}

func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(&o.ID, &o.OrderNo, &o.UserID, &o.TotalAmount, &o.PayAmount, &o.Freight, &o.Status, &o.PaymentMethod,
		&o.ReceiverName, &o.ReceiverPhone, &o.ReceiverAddress, &o.ExpressCompany, &o.TrackingNo, &o.Note, &o.CancelReason,
		&o.CreatedAt, &o.PayTime, &o.ShipTime, &o.ReceiveTime, &o.CancelTime)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (order_no, user_id, total_amount, pay_amount, freight, status,
			receiver_name, receiver_phone, receiver_address, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id
	`, o.OrderNo, o.UserID, o.TotalAmount, o.PayAmount, o.Freight, o.Status,
		o.ReceiverName, o.ReceiverPhone, o.ReceiverAddress, o.Note, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return err
	}

	for i := range o.Lines {
		line := &o.Lines[i]
		line.OrderID = o.ID
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, variant_id, product_name, product_image,
				spec_info, unit_price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, line.OrderID, line.ProductID, line.VariantID, line.ProductName, line.ProductImage,
			line.SpecInfo, line.UnitPrice, line.Quantity, line.Subtotal,
		).Scan(&line.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_no = $1 AND deleted = FALSE
	`, orderNo)
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND deleted = FALSE
	`, id)
}

func (r *OrderRepository) LockByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_no = $1 AND deleted = FALSE
		FOR UPDATE
	`, orderNo)
}

func (r *OrderRepository) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND deleted = FALSE
		FOR UPDATE
	`, id)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadLines(ctx, map[int64]*domain.Order{o.ID: o}, []int64{o.ID}); err != nil {
		return nil, err
	}

	return o, nil
}

func (r *OrderRepository) UpdateOrder(ctx context.Context, o *domain.Order) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $2, payment_method = $3, express_company = $4, tracking_no = $5,
			note = $6, cancel_reason = $7, pay_time = $8, ship_time = $9,
			receive_time = $10, cancel_time = $11, updated_at = NOW()
		WHERE id = $1
	`, o.ID, o.Status, o.PaymentMethod, o.ExpressCompany, o.TrackingNo,
		o.Note, o.CancelReason, o.PayTime, o.ShipTime,
		o.ReceiveTime, o.CancelTime)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

func (r *OrderRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET deleted = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// ListByUser returns the user's orders newest first, lines included. A nil
// status lists every status.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64, status *domain.OrderStatus) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND deleted = FALSE AND ($2::SMALLINT IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
	`, true, userID, status)
}

func (r *OrderRepository) CountByUser(ctx context.Context, userID int64, status *domain.OrderStatus) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE user_id = $1 AND deleted = FALSE AND ($2::SMALLINT IS NULL OR status = $2)
	`, userID, status).Scan(&count)
	return count, err
}

func (r *OrderRepository) ListUnpaidBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND deleted = FALSE AND created_at < $2
		ORDER BY created_at
	`, false, domain.OrderStatusPendingPayment, cutoff)
}

func (r *OrderRepository) ListShippedBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND deleted = FALSE AND ship_time < $2
		ORDER BY ship_time
	`, false, domain.OrderStatusPendingReceipt, cutoff)
}

func (r *OrderRepository) list(ctx context.Context, query string, withLines bool, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		o.Lines = []domain.OrderLine{}
		orderMap[o.ID] = o
		orderIDs = append(orderIDs, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if withLines {
		if err := r.loadLines(ctx, orderMap, orderIDs); err != nil {
			return nil, err
		}
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderMap map[int64]*domain.Order, orderIDs []int64) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, variant_id, product_name, product_image,
			spec_info, unit_price, quantity, subtotal, reviewed
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.VariantID, &line.ProductName, &line.ProductImage,
			&line.SpecInfo, &line.UnitPrice, &line.Quantity, &line.Subtotal, &line.Reviewed); err != nil {
			return err
		}
		o := orderMap[line.OrderID]
		o.Lines = append(o.Lines, line)
	}

	return rows.Err()
}
