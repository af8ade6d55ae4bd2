// Package db embeds the SQL migrations for the ratings schema.
package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// UpMigrations returns the names of the forward migrations in apply order.
func UpMigrations() ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*_*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every forward migration in order. Migrations are written to be
// idempotent, so Apply is safe to call on every startup.
func Apply(ctx context.Context, conn Execer) error {
	names, err := UpMigrations()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no migration files found")
	}
	for _, name := range names {
		payload, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		// No arguments, so pgx sends this over the simple protocol and
		// multi-statement files work.
		if _, err := conn.Exec(ctx, string(payload)); err != nil {
			return fmt.Errorf("apply migration %s: %w", strings.TrimPrefix(name, "migrations/"), err)
		}
	}
	return nil
}
