// Package factory opens the storage adapter named by a storage.Config.
package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/storage"
	"github.com/leeforge/billing/storage/memory"
	"github.com/leeforge/billing/storage/mongostore"
	"github.com/leeforge/billing/storage/redisstore"
	"github.com/leeforge/billing/storage/sqlstore"
)

// DriverAuto picks the driver from the DSN.
const DriverAuto storage.Driver = "auto"

// CloseFunc releases the backend connection.
type CloseFunc func(ctx context.Context) error

func noClose(context.Context) error { return nil }

// Open connects to the configured backend.
func Open(ctx context.Context, cfg storage.Config, logger logging.Logger) (storage.Adapter, CloseFunc, error) {
	logger = logging.OrNop(logger)
	driver := cfg.Driver
	if driver == "" || driver == DriverAuto {
		driver = DetectDriver(cfg.DSN)
	}

	switch driver {
	case storage.DriverMemory:
		return memory.New(), noClose, nil
	case storage.DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		s, err := sqlstore.OpenSQLite(ctx, dsn, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case storage.DriverPostgres:
		s, err := sqlstore.OpenPostgres(ctx, cfg.DSN, cfg.MaxOpenConns, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case storage.DriverMongo:
		s, err := mongostore.Open(ctx, cfg.DSN, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case storage.DriverRedis:
		client, err := redisstore.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		s := redisstore.New(client, cfg.Redis.Prefix)
		return s, func(context.Context) error { return s.Close() }, nil
	}
	return nil, nil, errors.NewConfiguration(fmt.Sprintf("unsupported storage driver %q", driver))
}

// DetectDriver guesses the driver from a connection string. An empty DSN
// means the in-memory store.
func DetectDriver(dsn string) storage.Driver {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case lower == "":
		return storage.DriverMemory
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return storage.DriverPostgres
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return storage.DriverMongo
	case strings.HasPrefix(lower, "redis://"):
		return storage.DriverRedis
	}
	return storage.DriverSQLite
}
