package sqlstore

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	grantmigrations "github.com/goliatone/go-grants/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type postgresConfig struct {
	dsn   string
	debug bool
}

func (c postgresConfig) GetDebug() bool {
	return c.debug
}

func (c postgresConfig) GetDriver() string {
	return "postgres"
}

func (c postgresConfig) GetServer() string {
	return c.dsn
}

func (c postgresConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c postgresConfig) GetOtelIdentifier() string {
	return "go-grants"
}

// NewPostgresClient opens a lib/pq connection, wraps it in a persistence
// client with the postgres dialect, and registers this module's postgres
// migrations. The caller owns Migrate and Close.
func NewPostgresClient(ctx context.Context, dsn string) (*persistence.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, goerrors.New("sqlstore: postgres dsn is required", goerrors.CategoryBadInput)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "sqlstore: open postgres connection")
	}

	client, err := persistence.New(postgresConfig{dsn: dsn}, sqlDB, pgdialect.New())
	if err != nil {
		_ = sqlDB.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "sqlstore: create persistence client")
	}

	_, err = grantmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != grantmigrations.DialectPostgres {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, grantmigrations.WithValidationTargets(grantmigrations.DialectPostgres))
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
