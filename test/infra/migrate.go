package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationsDir string

func init() {
	if _, file, _, ok := runtime.Caller(0); ok {
		migrationsDir = filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	}
}

// requiredTables must all resolve in the search path once migrations ran.
var requiredTables = []string{"customers", "interactions", "action_plans", "sessions", "outcomes", "outbox"}

type migration struct {
	name string
	sql  string
}

// ApplyMigrations runs migrations/*.sql in name order and checks the outcome
// tables exist. With isolate set, everything lands in a fresh outcomes_run_*
// schema that the returned teardown drops.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse pool config: %w", err)
	}

	teardown := func(context.Context) error { return nil }
	if isolate {
		schema := fmt.Sprintf("outcomes_run_%d", time.Now().UnixNano())
		if teardown, err = isolateSchema(ctx, dsn, schema, cfg); err != nil {
			return nil, nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		_ = teardown(ctx)
		return nil, nil, fmt.Errorf("connect pool: %w", err)
	}

	fail := func(err error) (*pgxpool.Pool, func(context.Context) error, error) {
		pool.Close()
		_ = teardown(ctx)
		return nil, nil, err
	}
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fail(fmt.Errorf("apply %s: %w", m.name, err))
		}
	}
	if err := checkTables(ctx, pool); err != nil {
		return fail(err)
	}
	return pool, teardown, nil
}

// isolateSchema creates schema and pins every pool connection to it.
func isolateSchema(ctx context.Context, dsn, schema string, cfg *pgxpool.Config) (func(context.Context) error, error) {
	ident := pgx.Identifier{schema}.Sanitize()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect for schema: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", schema, err)
	}

	cfg.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		_, err := c.Exec(ctx, "SET search_path TO "+ident)
		return err
	}
	return func(ctx context.Context) error {
		c, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer c.Close(ctx)
		_, err = c.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
		return err
	}, nil
}

func checkTables(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range requiredTables {
		var found bool
		if err := pool.QueryRow(ctx, `SELECT to_regclass($1::text) IS NOT NULL`, table).Scan(&found); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !found {
			return fmt.Errorf("migrations did not create table %s", table)
		}
	}
	return nil
}

// loadMigrations reads the .sql files of dir sorted by name. Other files and
// subdirectories are ignored; a directory without migrations is an error.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("migrations dir %s not found", dir)
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var out []migration
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, migration{name: e.Name(), sql: string(data)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no migrations in %s", dir)
	}
	return out, nil
}
