// Package integration runs the stock ledger against a real PostgreSQL
// database started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB is a migrated database in its own container
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// NewTestDB starts a PostgreSQL container, applies every migration and
// terminates the container when the test finishes.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)
	return testDB
}

// Close closes the connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CreateWarehouse inserts a warehouse
func (tdb *TestDB) CreateWarehouse(tenantID uuid.UUID) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO warehouses (id, tenant_id, code, name) VALUES (?, ?, ?, ?)`,
		id, tenantID, "WH_"+id.String()[:8], "Warehouse "+id.String()[:8]).Error
	require.NoError(tdb.t, err, "Failed to create warehouse")
	return id
}

// CreateBinLocation inserts a bin inside warehouseID
func (tdb *TestDB) CreateBinLocation(tenantID, warehouseID uuid.UUID, code string, priority int) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO bin_locations (id, tenant_id, warehouse_id, code, priority) VALUES (?, ?, ?, ?, ?)`,
		id, tenantID, warehouseID, code, priority).Error
	require.NoError(tdb.t, err, "Failed to create bin location")
	return id
}

// CreateStockContainer inserts a container; a nil warehouse leaves it unassigned
func (tdb *TestDB) CreateStockContainer(tenantID uuid.UUID, warehouseID *uuid.UUID) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO stock_containers (id, tenant_id, warehouse_id, code) VALUES (?, ?, ?, ?)`,
		id, tenantID, warehouseID, "SC_"+id.String()[:8]).Error
	require.NoError(tdb.t, err, "Failed to create stock container")
	return id
}

// CreateOrder inserts an order with one line item per product quantity
func (tdb *TestDB) CreateOrder(tenantID uuid.UUID, state string, externallyManaged bool, lines map[uuid.UUID]int64) uuid.UUID {
	tdb.t.Helper()
	id := uuid.New()
	err := tdb.DB.Exec(`INSERT INTO orders (id, tenant_id, order_number, state, externally_managed) VALUES (?, ?, ?, ?, ?)`,
		id, tenantID, "SO_"+id.String()[:8], state, externallyManaged).Error
	require.NoError(tdb.t, err, "Failed to create order")
	for productID, qty := range lines {
		err := tdb.DB.Exec(`INSERT INTO order_line_items (id, tenant_id, order_id, product_id, quantity) VALUES (?, ?, ?, ?, ?)`,
			uuid.New(), tenantID, id, productID, qty).Error
		require.NoError(tdb.t, err, "Failed to create order line item")
	}
	return id
}

// Exec runs raw SQL, used to corrupt aggregates on purpose
func (tdb *TestDB) Exec(query string, args ...any) {
	tdb.t.Helper()
	require.NoError(tdb.t, tdb.DB.Exec(query, args...).Error)
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	// concurrency tests need more than one connection
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, sqlDB
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	migrationsPath := findMigrationsPath()
	require.NotEmpty(t, migrationsPath, "Could not find migrations directory")

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err, "Failed to create migration driver")

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	require.NoError(t, err, "Failed to create migrate instance")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to run migrations")
	}
}

// findMigrationsPath walks up from this file to the module root
func findMigrationsPath() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	dir := filepath.Dir(filename)
	for range 5 {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	if wd, err := os.Getwd(); err == nil {
		for _, p := range []string{filepath.Join(wd, "migrations"), filepath.Join(wd, "..", "..", "migrations")} {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping %s in short mode", t.Name())
	}
}
