package orders

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/inventory"
)

type PostgresUnitOfWork struct {
	db *sql.DB
}

func NewPostgresUnitOfWork(db *sql.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db}
}

func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(s Stores) error) error {
	return database.WithTx(ctx, u.db, func(tx *sql.Tx) error {
		return fn(postgresStores(tx))
	})
}

func postgresStores(q database.DBTX) Stores {
	accounts := NewAccountRepository(q)
	return Stores{
		Orders:    NewOrderRepository(q),
		Refunds:   NewRefundRepository(q),
		Stock:     inventory.NewRepository(q),
		Carts:     accounts,
		Addresses: accounts,
		Users:     accounts,
	}
}
