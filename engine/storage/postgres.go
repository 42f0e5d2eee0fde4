// Package storage provides the Postgres-backed stores. Both stores keep the
// same optimistic-versioning contract as their in-memory counterparts: Save
// succeeds only against the version it loaded and bumps it by one.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN string `split_words:"true"`
}

// NewDB opens a bun handle over the Postgres DSN.
func NewDB(cfg Config) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*conversationRow)(nil),
		(*holdRow)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}
