package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
	"github.com/xenking/market-orders/internal/storage/postgres"
	"github.com/xenking/market-orders/internal/storage/sqlite"
)

// Storage is an opened database with its repositories.
type Storage struct {
	Users    user.Repository
	Products product.Repository
	Orders   order.Repository

	// Ping checks connectivity; it backs the readiness probe.
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage connects to the configured driver and applies the schema.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*Storage, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Storage ready", zap.String("driver", cfg.Driver))
		return &Storage{
			Users:    postgres.NewUserRepository(pool),
			Products: postgres.NewProductRepository(pool),
			Orders:   postgres.NewOrderRepository(pool),
			Ping:     pool.Ping,
			Close:    pool.Close,
		}, nil
	case DriverSQLite:
		conn, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		lg.Info("Storage ready", zap.String("driver", cfg.Driver), zap.String("path", cfg.SQLitePath))
		return &Storage{
			Users:    sqlite.NewUserRepository(conn),
			Products: sqlite.NewProductRepository(conn),
			Orders:   sqlite.NewOrderRepository(conn),
			Ping:     conn.PingContext,
			Close:    func() { _ = conn.Close() },
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
