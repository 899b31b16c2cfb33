package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/market-orders/internal/app"
	"github.com/xenking/market-orders/internal/seed"
)

type seedFiles []string

func (s *seedFiles) String() string { return strings.Join(*s, ",") }

func (s *seedFiles) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		storage app.StorageConfig
		files   seedFiles
		pepper  string
	)

	flag.StringVar(&storage.Driver, "driver", app.DriverPostgres, "storage driver: postgres or sqlite")
	flag.StringVar(&storage.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&storage.SQLitePath, "sqlite-path", "market.db", "SQLite database file")
	flag.Var(&files, "seed-file", "seed file, .json or .json.gz; repeatable (default db/seed/seed.json)")
	flag.StringVar(&pepper, "token-pepper", "", "HMAC pepper for token hashing (or MARKET_AUTH_TOKEN_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if storage.DatabaseURL == "" {
		storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if storage.Driver == app.DriverPostgres && storage.DatabaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if pepper == "" {
		pepper = os.Getenv("MARKET_AUTH_TOKEN_PEPPER")
	}
	if len(files) == 0 {
		files = seedFiles{"db/seed/seed.json"}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, storage, files, []byte(pepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg app.StorageConfig, paths []string, pepper []byte) error {
	loaded, err := seed.LoadFiles(ctx, paths)
	if err != nil {
		return err
	}

	store, err := app.OpenStorage(ctx, lg, cfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.Close()

	s := seed.NewSeeder(lg, store.Users, store.Products, pepper)
	for i, f := range loaded {
		res, err := s.Apply(ctx, f)
		if err != nil {
			return errors.Wrapf(err, "apply %s", paths[i])
		}
		lg.Info("Applied seed file",
			zap.String("file", paths[i]),
			zap.Int("users", res.Users),
			zap.Int("products", res.Products),
			zap.Int("skipped", res.Skipped),
		)
	}
	return nil
}
