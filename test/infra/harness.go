package infra

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable means no database could be found or started; callers skip.
var ErrUnavailable = errors.New("infra: no postgres available")

// Env is a migrated database ready for tests.
type Env struct {
	Pool *pgxpool.Pool

	container *PGContainer
	teardown  func(context.Context) error
}

// Open finds a database (override DSN, OUTCOMES_TEST_PG_DSN, a container,
// then a local server), and applies migrations. Shared databases get a
// throwaway schema.
func Open(ctx context.Context, overrideDSN string) (*Env, error) {
	var (
		pgC *PGContainer
		dsn string
		err error
	)
	switch {
	case overrideDSN != "" || os.Getenv(DSNEnv) != "":
		pgC, dsn, err = StartPostgres(ctx, overrideDSN)
	case dockerAvailable(ctx):
		pgC, dsn, err = StartPostgres(ctx, "")
	default:
		dsn, err = InitLocalDatabase(ctx)
		if err != nil {
			return nil, errors.Join(ErrUnavailable, err)
		}
		pgC = &PGContainer{}
	}
	if err != nil {
		return nil, err
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, pgC.Shared())
	if err != nil {
		_ = pgC.Terminate(context.Background())
		return nil, err
	}
	return &Env{Pool: pool, container: pgC, teardown: teardown}, nil
}

func (e *Env) Close(ctx context.Context) error {
	e.Pool.Close()
	return errors.Join(e.teardown(ctx), e.container.Terminate(ctx))
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
