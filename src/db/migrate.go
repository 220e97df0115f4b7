package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/go-extras/go-kit/must"
	"github.com/stokaro/ptah/dbschema"
	"github.com/stokaro/ptah/migration/migrator"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the embedded NNNNNNNNNN_name.{up,down}.sql files.
func Migrations() fs.FS {
	return must.Must(fs.Sub(migrationFS, "migrations"))
}

// Migrate applies the embedded schema migrations that have not run yet.
func Migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	conn, err := dbschema.ConnectToDatabase(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect for migrations: %w", err)
	}
	defer conn.Close()

	m, err := migrator.NewFSMigrator(conn, Migrations())
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m = m.WithLogger(logger)

	if err := m.MigrateUp(ctx); err != nil {
		return err
	}

	status, err := m.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	logger.Info("Schema up to date", "version", status.CurrentVersion, "total", status.TotalMigrations)
	return nil
}
