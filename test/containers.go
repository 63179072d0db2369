package test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joao-fontenele/shopflow/internal/database"
)

type PostgresSetup struct {
	ConnStr string
	cleanup func()
}

func (p *PostgresSetup) Cleanup() {
	p.cleanup()
}

func SetupPostgres(ctx context.Context, t *testing.T) *PostgresSetup {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("shopflow"),
		postgres.WithUsername("shopflow"),
		postgres.WithPassword("shopflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresSetup{ConnStr: connStr, cleanup: cleanup}
}

func runMigrations(connStr string) error {
	migrationsPath := getMigrationsPath()

	m, err := migrate.New(migrationsPath, connStr)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	testDir := filepath.Dir(filename)
	projectRoot := filepath.Dir(testDir)
	migrationsDir := filepath.Join(projectRoot, "migrations")
	return "file://" + migrationsDir
}

func SetupKafka(ctx context.Context, t *testing.T) ([]string, func()) {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers, cleanup
}

// OpenShopDB opens a pool whose connections all resolve tables in the shop
// schema.
func OpenShopDB(connStr string) (*sql.DB, error) {
	dsn, err := database.WithSearchPath(connStr, "shop")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return db, nil
}

// Fixture ids inserted by SeedFixtures.
const (
	BuyerID    int64 = 1
	OtherID    int64 = 2
	AddressID  int64 = 1
	ProductAID int64 = 1
	ProductBID int64 = 2
)

// SeedFixtures inserts two users, the buyer's address, and products A
// (50.00, stock 10) and B (20.00, stock 5).
func SeedFixtures(ctx context.Context, t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		`INSERT INTO users (id, username, email) VALUES (1, 'buyer', 'buyer@example.com'), (2, 'other', 'other@example.com')`,
		`INSERT INTO addresses (id, user_id, receiver_name, receiver_phone, province, city, district, detail_address)
			VALUES (1, 1, 'Ana', '555-0100', 'SP', 'Sao Paulo', 'Centro', 'Rua A 1')`,
		`INSERT INTO products (id, name, price, stock) VALUES (1, 'Product A', 50.00, 10), (2, 'Product B', 20.00, 5)`,
		`SELECT setval('users_id_seq', 10), setval('addresses_id_seq', 10), setval('products_id_seq', 10)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
}

// Truncate empties every table written by the order lifecycle and reseeds
// the fixtures, so subtests start from the same state.
func Truncate(ctx context.Context, t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.ExecContext(ctx, `TRUNCATE refunds, order_lines, orders, cart_entries, product_variants, products, addresses, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	SeedFixtures(ctx, t, db)
}
