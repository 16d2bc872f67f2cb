package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finsight/internal/account"
	"github.com/mtlprog/finsight/internal/chain"
	"github.com/mtlprog/finsight/internal/config"
	"github.com/mtlprog/finsight/internal/conversion"
	"github.com/mtlprog/finsight/internal/database"
	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/events"
	"github.com/mtlprog/finsight/internal/exchange"
	"github.com/mtlprog/finsight/internal/export"
	"github.com/mtlprog/finsight/internal/live"
	"github.com/mtlprog/finsight/internal/portfolio"
	"github.com/mtlprog/finsight/internal/snapshot"
	"github.com/mtlprog/finsight/internal/user"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// app holds every wired service of one process.
type app struct {
	cfg       config.Config
	pool      *pgxpool.Pool
	bus       *events.Bus
	hub       *live.Hub
	rates     *exchange.Service
	users     *user.Service
	reader    *chain.Reader
	accounts  *account.Service
	snapshots *snapshot.Service
	portfolio *portfolio.Service
	exporter  *export.Service
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	return database.RunMigrations(ctx, pool, migrationsSub)
}

// newApp connects, migrates and wires the services. The caller closes app.pool.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	a := &app{cfg: cfg, pool: pool, bus: events.NewBus(), hub: live.NewHub()}

	// Exchange rates
	frankfurter := exchange.NewFrankfurterClient(cfg.FrankfurterURL, cfg.HTTPRetryMax, cfg.HTTPRetryBaseDelay)
	coingecko := exchange.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax)
	a.rates = exchange.NewService(exchange.NewPgRepository(pool), cfg.RateCacheTTL, frankfurter, coingecko)

	// Users and on-chain balances
	a.users = user.NewService(user.NewPgRepository(pool), cfg.DefaultTimezone)
	a.reader = newChainReader(cfg)
	a.accounts = account.NewService(account.NewPgRepository(pool), a.reader, a.bus)

	// Snapshots and everything reading them
	helper := conversion.NewHelper(a.rates, a.users)
	defaultLoc := domain.LoadLocation(cfg.DefaultTimezone, time.UTC)
	a.snapshots = snapshot.NewService(snapshot.NewPgRepository(pool), a.accounts, a.users, helper, defaultLoc)
	a.snapshots.SetNotifier(a.hub)
	a.portfolio = portfolio.NewService(a.accounts, helper)
	a.exporter = export.NewService(a.snapshots)

	a.bus.Subscribe(events.TopicAccountCreated, "snapshot", a.snapshots.OnAccountChanged)
	a.bus.Subscribe(events.TopicAccountUpdated, "snapshot", a.snapshots.OnAccountChanged)

	slog.Debug("services wired", "providers", []string{frankfurter.Name(), coingecko.Name()}, "default_timezone", defaultLoc.String())
	return a, nil
}

func newChainReader(cfg config.Config) *chain.Reader {
	return chain.NewReader(
		chain.NewEthereumClient(cfg.EthRPCURLs),
		chain.NewBitcoinClient(cfg.MempoolURL, cfg.HTTPRetryMax, cfg.HTTPRetryBaseDelay),
	)
}
