package inventory

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListVariants(ctx context.Context, productID int64) ([]domain.Variant, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	SetStock(ctx context.Context, productID int64, stock int) error
	SetVariantStock(ctx context.Context, variantID int64, stock int) error
	ListLowStock(ctx context.Context, threshold int) ([]domain.Product, error)
}

// PostgresCatalog is a Repository bound to a pool that creates products and
// their variants in one transaction.
type PostgresCatalog struct {
	*Repository
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{Repository: NewRepository(db), db: db}
}

func (c *PostgresCatalog) CreateProduct(ctx context.Context, p *domain.Product) error {
	return database.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		return NewRepository(tx).CreateProduct(ctx, p)
	})
}
