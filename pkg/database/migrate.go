package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/aryan0dhankhar/portal/internal/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Models lists every table managed by AutoMigrate, parents first
func Models() []any {
	return []any{
		&domain.Partner{},
		&domain.Outlet{},
		&domain.User{},
		&domain.KpiDaily{},
		&domain.AiTicket{},
		&domain.FranchiseDebt{},
	}
}

func autoMigrate(ctx context.Context, db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.WithContext(ctx).AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return nil
}

type migrationLogger struct {
	logger *slog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "migrate"))
}

func (l migrationLogger) Verbose() bool {
	return false
}

// runSQLMigrations applies the embedded migrations on a dedicated connection
// so that closing the migrator leaves the pool open.
func runSQLMigrations(ctx context.Context, sqlDB *sql.DB, logger *slog.Logger) error {
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}

	driver, err := pgmigrate.WithConnection(ctx, conn, &pgmigrate.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		source.Close()
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrationLogger{logger: logger}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sql migrations failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logger.Info("schema up to date", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}
