package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

const productColumns = `id, name, category_id, price, original_price, stock, sales,
	cover_image, description, status, is_hot, is_recommend, is_flash_sale, created_at`

const variantColumns = `id, product_id, code, name, attributes, price, original_price, stock, sales, status`

type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.OriginalPrice, &p.Stock, &p.Sales,
		&p.CoverImage, &p.Description, &p.Status, &p.IsHot, &p.IsRecommend, &p.IsFlashSale, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanVariant(row rowScanner) (*domain.Variant, error) {
	v := &domain.Variant{}
	var attrs []byte
	err := row.Scan(&v.ID, &v.ProductID, &v.Code, &v.Name, &attrs, &v.Price, &v.OriginalPrice, &v.Stock, &v.Sales, &v.Status)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &v.Attributes); err != nil {
			return nil, fmt.Errorf("decode variant %d attributes: %w", v.ID, err)
		}
	}
	return v, nil
}

// GetProduct returns nil when the product does not exist or was deleted.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND deleted = FALSE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	v, err := scanVariant(r.db.QueryRowContext(ctx, `
		SELECT `+variantColumns+`
		FROM product_variants
		WHERE id = $1 AND deleted = FALSE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (r *Repository) ListVariants(ctx context.Context, productID int64) ([]domain.Variant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+variantColumns+`
		FROM product_variants
		WHERE product_id = $1 AND deleted = FALSE
		ORDER BY id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	variants := []domain.Variant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return variants, nil
}

// CheckStock reports whether the product's current stock covers quantity.
// A missing product reports false.
func (r *Repository) CheckStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	var stock int
	err := r.db.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1 AND deleted = FALSE
	`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return stock >= quantity, nil
}

// DecrementStock takes quantity units only if that many are on hand, so two
// concurrent checkouts can never drive stock below zero.
func (r *Repository) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		exists, err := r.productExists(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}

	return nil
}

func (r *Repository) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	return r.execOne(ctx, domain.ErrProductNotFound, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
}

func (r *Repository) SetStock(ctx context.Context, productID int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidInput)
	}
	return r.execOne(ctx, domain.ErrProductNotFound, `
		UPDATE products
		SET stock = $2, updated_at = NOW()
		WHERE id = $1 AND deleted = FALSE
	`, productID, stock)
}

// AdjustVariantStock applies delta without a floor. Variant counters are
// kept in step with the product's but are never the gate for a checkout.
func (r *Repository) AdjustVariantStock(ctx context.Context, variantID int64, delta int) error {
	return r.execOne(ctx, domain.ErrVariantNotFound, `
		UPDATE product_variants
		SET stock = stock + $2
		WHERE id = $1
	`, variantID, delta)
}

func (r *Repository) SetVariantStock(ctx context.Context, variantID int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", domain.ErrInvalidInput)
	}
	return r.execOne(ctx, domain.ErrVariantNotFound, `
		UPDATE product_variants
		SET stock = $2
		WHERE id = $1 AND deleted = FALSE
	`, variantID, stock)
}

func (r *Repository) IncrementSales(ctx context.Context, productID int64, quantity int) error {
	return r.execOne(ctx, domain.ErrProductNotFound, `
		UPDATE products
		SET sales = sales + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
}

// CreateProduct inserts p and its variants. Callers wanting both or neither
// should pass a transaction to NewRepository.
func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category_id, price, original_price, stock, cover_image,
			description, status, is_hot, is_recommend, is_flash_sale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, p.Name, p.CategoryID, p.Price, p.OriginalPrice, p.Stock, p.CoverImage,
		p.Description, p.Status, p.IsHot, p.IsRecommend, p.IsFlashSale,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return err
	}

	for i := range p.Variants {
		v := &p.Variants[i]
		v.ProductID = p.ID

		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return err
		}
		if v.Attributes == nil {
			attrs = []byte("{}")
		}

		err = r.db.QueryRowContext(ctx, `
			INSERT INTO product_variants (product_id, code, name, attributes, price, original_price, stock, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, v.ProductID, v.Code, v.Name, string(attrs), v.Price, v.OriginalPrice, v.Stock, v.Status).Scan(&v.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListLowStock returns on-shelf products whose stock is at or below threshold,
// lowest first.
func (r *Repository) ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE deleted = FALSE AND status = $1 AND stock <= $2
		ORDER BY stock, id
	`, domain.ProductStatusOnShelf, threshold)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) productExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	return exists, err
}

func (r *Repository) execOne(ctx context.Context, notFound error, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
