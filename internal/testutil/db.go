// Package testutil provides an in-memory SQLite store for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aryan0dhankhar/portal/pkg/database"
)

// NewPool opens a private in-memory database with foreign keys enforced.
// The schema is not created; call EnsureSchema or use NewDB.
func NewPool(t *testing.T) *database.ConnectionPool {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pool, err := database.NewFromGorm(db, nil)
	if err != nil {
		t.Fatalf("wrap pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

// NewDB returns a migrated in-memory database
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	pool := NewPool(t)
	if err := pool.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool.DB()
}
