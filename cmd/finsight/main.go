package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/finsight/internal/api"
	"github.com/mtlprog/finsight/internal/config"
	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/export"
	"github.com/mtlprog/finsight/internal/snapshot"
	"github.com/mtlprog/finsight/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	slog.SetDefault(newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel))

	if err := newCLI(cfg).RunContext(ctx, os.Args); err != nil {
		slog.Error("finsight failed", "error", err)
		os.Exit(1)
	}
}

func newCLI(cfg config.Config) *cli.App {
	rangeFlags := []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "first snapshot date (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "to", Usage: "last snapshot date (YYYY-MM-DD)"},
	}

	return &cli.App{
		Name:  "finsight",
		Usage: "personal finance balance history",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and background workers",
				Action: func(c *cli.Context) error {
					return serve(c.Context, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations and exit",
				Action: func(c *cli.Context) error {
					pool, err := connect(c.Context, cfg)
					if err != nil {
						return err
					}
					defer pool.Close()
					return migrate(c.Context, pool)
				},
			},
			{
				Name:  "sync",
				Usage: "refresh every crypto wallet balance once",
				Action: withApp(cfg, func(c *cli.Context, a *app) error {
					res, err := a.accounts.SyncAll(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "synced=%d skipped=%d failed=%d\n", res.Synced, res.Skipped, res.Failed)
					return nil
				}),
			},
			{
				Name:  "forward-fill",
				Usage: "carry yesterday's snapshots into today",
				Action: withApp(cfg, func(c *cli.Context, a *app) error {
					res, err := a.snapshots.ForwardFill(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "created=%d skipped=%d\n", res.Created, res.Skipped)
					return nil
				}),
			},
			{
				Name:  "balance",
				Usage: "read a wallet balance from the chain",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "network", Required: true, Usage: "ethereum or bitcoin"},
					&cli.StringFlag{Name: "address", Required: true},
				},
				Action: func(c *cli.Context) error {
					balance, err := newChainReader(cfg).GetBalance(c.Context, c.String("network"), c.String("address"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, balance)
					return nil
				},
			},
			{
				Name:  "rates",
				Usage: "exchange rate maintenance",
				Subcommands: []*cli.Command{
					{
						Name:  "backfill",
						Usage: "store daily rates for a date range",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "base", Value: domain.DefaultCurrency},
							&cli.StringSliceFlag{Name: "targets", Usage: "target currencies, defaults to RATE_WARM_CURRENCIES"},
							&cli.StringFlag{Name: "from", Required: true},
							&cli.StringFlag{Name: "to", Usage: "defaults to yesterday"},
						},
						Action: withApp(cfg, backfillRates),
					},
				},
			},
			{
				Name:  "export",
				Usage: "export a user's snapshots to Google Sheets or an XLSX file",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "out", Usage: "XLSX output path, used when Google Sheets is not configured", Value: "snapshots.xlsx"},
				}, rangeFlags...),
				Action: withApp(cfg, exportSnapshots),
			},
		},
	}
}

func withApp(cfg config.Config, action func(*cli.Context, *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c.Context, cfg)
		if err != nil {
			return err
		}
		defer a.pool.Close()
		return action(c, a)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	syncSchedule, err := worker.ParseSchedule(cfg.SyncSchedule)
	if err != nil {
		return fmt.Errorf("SYNC_SCHEDULE: %w", err)
	}
	fillSchedule, err := worker.ParseSchedule(cfg.ForwardFillSchedule)
	if err != nil {
		return fmt.Errorf("FORWARD_FILL_SCHEDULE: %w", err)
	}

	// Start workers
	workers := []*worker.Recurring{
		worker.NewRecurring("SyncWorker", syncSchedule, worker.SyncAccounts(a.accounts), false),
		worker.NewRecurring("ForwardFillWorker", fillSchedule, worker.ForwardFillSnapshots(a.snapshots), false),
		worker.NewRateWorker(a.rates, domain.DefaultCurrency, cfg.RateWarmCurrencies, cfg.RateWorkerInterval),
	}
	for _, w := range workers {
		go w.Run(ctx)
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, job endpoints are unprotected")
	}
	handler := api.NewHandler(api.Deps{
		Snapshots: a.snapshots,
		Accounts:  a.accounts,
		Settings:  a.users,
		Portfolio: a.portfolio,
		Exporter:  a.exporter,
		Chain:     a.reader,
		Filler:    a.snapshots,
		Hub:       a.hub,
	})
	srv := api.NewServer(api.ServerConfig{
		Port:           cfg.HTTPPort,
		JWTSecret:      cfg.JWTSecret,
		AdminAPIKey:    cfg.AdminAPIKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, handler)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func backfillRates(c *cli.Context, a *app) error {
	start, err := domain.ParseDate(c.String("from"))
	if err != nil {
		return err
	}
	endDate := c.String("to")
	if endDate == "" {
		endDate = domain.Yesterday(time.Now(), time.UTC)
	}
	end, err := domain.ParseDate(endDate)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("--from %s is after --to %s", c.String("from"), endDate)
	}

	base := strings.ToUpper(c.String("base"))
	targets := c.StringSlice("targets")
	if len(targets) == 0 {
		targets = a.cfg.RateWarmCurrencies
	}

	stored, err := a.rates.Backfill(c.Context, base, targets, start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "stored %d rates for %s\n", stored, base)
	return nil
}

func exportSnapshots(c *cli.Context, a *app) error {
	rng := snapshot.Range{From: c.String("from"), To: c.String("to")}
	userID := c.String("user")

	if a.cfg.GoogleSpreadsheetID != "" && a.cfg.GoogleCredentialsJSON != "" {
		sheet, err := export.NewSheetsWriter(c.Context, a.cfg.GoogleSpreadsheetID, a.cfg.GoogleCredentialsJSON)
		if err != nil {
			return err
		}
		n, err := a.exporter.ExportTo(c.Context, sheet, userID, rng)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "wrote %d rows to spreadsheet %s\n", n, a.cfg.GoogleSpreadsheetID)
		return nil
	}

	path := c.String("out")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := a.exporter.WriteXLSX(c.Context, f, userID, rng); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
