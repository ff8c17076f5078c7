package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds database configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SQLMigrations   bool
}

// ConnectionPool manages database connections.
// Opening a pool never dials the server; the first query does.
type ConnectionPool struct {
	sqlDB         *sql.DB
	db            *gorm.DB
	sqlMigrations bool
	logger        *slog.Logger
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(config *Config, logger *slog.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlDB, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		sqlDB.SetMaxOpenConns(25)
	}

	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		sqlDB.SetMaxIdleConns(5)
	}

	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		logger.Warn("failed to install otelgorm plugin", slog.String("error", err.Error()))
	}

	return &ConnectionPool{
		sqlDB:         sqlDB,
		db:            db,
		sqlMigrations: config.SQLMigrations,
		logger:        logger,
	}, nil
}

// NewFromGorm wraps an already opened gorm handle. Schema is managed
// through AutoMigrate.
func NewFromGorm(db *gorm.DB, logger *slog.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	return &ConnectionPool{sqlDB: sqlDB, db: db, logger: logger}, nil
}

// DB returns the gorm handle
func (cp *ConnectionPool) DB() *gorm.DB {
	return cp.db
}

// EnsureSchema creates or upgrades the schema
func (cp *ConnectionPool) EnsureSchema(ctx context.Context) error {
	if cp.sqlMigrations {
		return runSQLMigrations(ctx, cp.sqlDB, cp.logger)
	}
	return autoMigrate(ctx, cp.db)
}

// Health checks the database health
func (cp *ConnectionPool) Health(ctx context.Context) error {
	ctxTest, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return cp.sqlDB.PingContext(ctxTest)
}

// Close closes the database connection
func (cp *ConnectionPool) Close() error {
	if cp.sqlDB != nil {
		return cp.sqlDB.Close()
	}
	return nil
}
