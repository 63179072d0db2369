package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

const refundColumns = `id, order_id, refund_no, amount, reason, status, created_at, handled_at`

type RefundRepository struct {
	db database.DBTX
}

func NewRefundRepository(db database.DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func scanRefund(row rowScanner) (*domain.Refund, error) {
	rf := &domain.Refund{}
	if err := row.Scan(&rf.ID, &rf.OrderID, &rf.RefundNo, &rf.Amount, &rf.Reason, &rf.Status, &rf.CreatedAt, &rf.HandledAt); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *RefundRepository) CreateRefund(ctx context.Context, rf *domain.Refund) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO refunds (order_id, refund_no, amount, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, rf.OrderID, rf.RefundNo, rf.Amount, rf.Reason, rf.Status, rf.CreatedAt).Scan(&rf.ID)
}

func (r *RefundRepository) GetRefund(ctx context.Context, id int64) (*domain.Refund, error) {
	return r.getOne(ctx, `
		SELECT `+refundColumns+` FROM refunds WHERE id = $1 AND deleted = FALSE
	`, id)
}

func (r *RefundRepository) LockRefund(ctx context.Context, id int64) (*domain.Refund, error) {
	return r.getOne(ctx, `
		SELECT `+refundColumns+` FROM refunds WHERE id = $1 AND deleted = FALSE FOR UPDATE
	`, id)
}

// LatestRefund returns the most recent refund request for the order, or nil.
func (r *RefundRepository) LatestRefund(ctx context.Context, orderID int64) (*domain.Refund, error) {
	return r.getOne(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE order_id = $1 AND deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, orderID)
}

func (r *RefundRepository) CountActiveRefunds(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM refunds
		WHERE order_id = $1 AND deleted = FALSE AND status = ANY($2)
	`, orderID, pq.Array([]int64{
		int64(domain.RefundStatusRequested),
		int64(domain.RefundStatusApproved),
	})).Scan(&count)
	return count, err
}

func (r *RefundRepository) UpdateRefund(ctx context.Context, rf *domain.Refund) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refunds SET status = $2, handled_at = $3
		WHERE id = $1
	`, rf.ID, rf.Status, rf.HandledAt)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrRefundNotFound
	}

	return nil
}

func (r *RefundRepository) getOne(ctx context.Context, query string, arg any) (*domain.Refund, error) {
	rf, err := scanRefund(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rf, nil
}
