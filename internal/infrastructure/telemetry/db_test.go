package telemetry_test

import (
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestRegisterPoolMetrics(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.Exec("SELECT 1").Error)

	reader, mp := newManualMeter(t)
	reg, err := telemetry.RegisterPoolMetrics(mp.Meter("db"), db)
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	metrics := collect(t, reader)
	for _, name := range []string{
		"db_pool_open_connections",
		"db_pool_in_use_connections",
		"db_pool_idle_connections",
		"db_pool_wait_count_total",
	} {
		assert.Contains(t, metrics, name)
	}
	open := metrics["db_pool_open_connections"].Data.(metricdata.Gauge[int64])
	require.Len(t, open.DataPoints, 1)
	assert.GreaterOrEqual(t, open.DataPoints[0].Value, int64(1))
}

func TestInstrumentDB(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, telemetry.InstrumentDB(db, false, zap.NewNop()))
	assert.NoError(t, db.Exec("SELECT 1").Error)
}
