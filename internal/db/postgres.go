package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	libdb "evcentral/libs/db"
)

//go:embed schema.sql
var schema string

// NewPostgres opens the shared pool used by every repository.
func NewPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return libdb.NewPostgresPool(ctx, dsn)
}

// Migrate creates the tables of the central system. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schema
}
