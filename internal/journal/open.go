package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/petrijr/wireflow/pkg/api"
)

// Driver names accepted by Open.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Handle is an opened store together with the connection it owns.
type Handle struct {
	Store
	closer io.Closer
}

// Close releases the underlying connection, if any.
func (h *Handle) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

// Open connects the named driver. dsn is a file name or ":memory:" for
// sqlite, a connection URL for postgres and a redis:// URL or host:port for
// redis. prefix only applies to redis.
func Open(ctx context.Context, driver, dsn, prefix string) (*Handle, error) {
	switch driver {
	case "", DriverNone:
		return &Handle{Store: NoopStore{}}, nil
	case DriverMemory:
		return &Handle{Store: NewMemoryStore()}, nil
	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		return openSQL(ctx, "sqlite", dsn, SQLite)
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("journal: postgres requires a dsn")
		}
		return openSQL(ctx, "pgx", dsn, Postgres)
	case DriverRedis:
		return openRedis(ctx, dsn, prefix)
	}
	return nil, fmt.Errorf("%w: journal driver %q", api.ErrNotSupported, driver)
}

func openSQL(ctx context.Context, driverName, dsn string, dialect Dialect) (*Handle, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// Every connection of an in-memory database is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping %s: %w", dialect, err)
	}

	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Handle{Store: store, closer: db}, nil
}

func openRedis(ctx context.Context, dsn, prefix string) (*Handle, error) {
	opts := &redis.Options{Addr: dsn}
	if dsn == "" {
		opts.Addr = "localhost:6379"
	} else if parsed, err := redis.ParseURL(dsn); err == nil {
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("journal: ping redis: %w", err)
	}
	return &Handle{Store: NewRedisStore(client, prefix), closer: client}, nil
}
