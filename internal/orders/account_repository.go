package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

// AccountRepository reads the customer-owned records checkout depends on:
// shipping addresses, cart entries and contact email.
type AccountRepository struct {
	db database.DBTX
}

func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetAddress(ctx context.Context, id int64) (*domain.Address, error) {
	a := &domain.Address{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, receiver_name, receiver_phone, province, city, district, detail_address
		FROM addresses
		WHERE id = $1 AND deleted = FALSE
	`, id).Scan(&a.ID, &a.UserID, &a.ReceiverName, &a.ReceiverPhone, &a.Province, &a.City, &a.District, &a.Detail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *AccountRepository) CartEntries(ctx context.Context, ids []int64) ([]domain.CartEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, variant_id, spec_info, quantity
		FROM cart_entries
		WHERE id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.CartEntry
	for rows.Next() {
		var e domain.CartEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProductID, &e.VariantID, &e.SpecInfo, &e.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *AccountRepository) DeleteCartEntries(ctx context.Context, ids []int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_entries WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func (r *AccountRepository) UserEmail(ctx context.Context, userID int64) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}
