// Package dbtest provides isolated in-memory databases for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"venue-backend/internal/db"
)

// New returns a migrated sqlite database private to the calling test. The pool
// is pinned to one connection so concurrent callers queue instead of failing
// with SQLITE_BUSY; the database lives as long as that connection.
//
// Transactions on it never interleave, so concurrency tests built on it check
// outcomes under contention only. The guards themselves (conditional stock
// update, version-checked writes) are pinned by the SQL-shape and
// version-check tests in the store package.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gormDB
}
