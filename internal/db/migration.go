package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations applies all pending schema migrations. Called at server
// startup and by the system test harness before wiring services.
func RunMigrations(dbURL string, schema string) error {
	slog.Info("Running database migrations...")

	if schema == "" {
		schema = "public"
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := ensureSchemaExists(db, schema); err != nil {
		return err
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return err
	}

	slog.Info("Database migrations completed")
	return nil
}

// ensureSchemaExists creates the schema when missing and points the
// migration connection's search_path at it.
func ensureSchemaExists(db *sql.DB, schema string) error {
	query := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	if _, err := db.Exec(query); err != nil {
		return err
	}

	setPathQuery := "SET search_path TO " + pgx.Identifier{schema}.Sanitize()
	if _, err := db.Exec(setPathQuery); err != nil {
		return err
	}

	slog.Info("Schema is ready", "schema", schema)
	return nil
}
