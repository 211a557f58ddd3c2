package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/brojonat/soltrack/client"
	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/helius"
	"github.com/brojonat/soltrack/service/pricing"
	txsync "github.com/brojonat/soltrack/service/sync"
	"github.com/brojonat/soltrack/service/valuation"
	"github.com/urfave/cli/v2"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch and store transactions newer than the latest stored one",
		Action: func(c *cli.Context) error {
			var result *client.SyncResult
			if serverURL := c.String("server-url"); serverURL != "" {
				var err error
				result, err = client.NewClient(serverURL, nil, cliLogger()).Sync(c.Context)
				if result == nil {
					return fmt.Errorf("failed to sync: %w", err)
				}
			} else {
				local, err := runLocalSync(c)
				if err != nil {
					return err
				}
				result = &client.SyncResult{
					NewCount:  local.NewCount,
					Processed: local.Processed,
					Skipped:   local.Skipped,
					Failed:    local.Failed,
					Pages:     local.Pages,
					Cursor:    local.Cursor,
					Truncated: local.Truncated,
					Error:     local.Error,
				}
			}

			out := c.App.Writer
			if c.Bool("json") {
				if err := outputJSON(out, result); err != nil {
					return err
				}
			} else if result.Error == nil {
				fmt.Fprintf(out, "✓ Synced %d new transactions (%d processed, %d skipped, %d pages)\n",
					result.NewCount, result.Processed, result.Skipped, result.Pages)
			}
			if result.Error != nil {
				return fmt.Errorf("sync failed: %s", *result.Error)
			}
			return nil
		},
	}
}

func runLocalSync(c *cli.Context) (*txsync.Result, error) {
	cfg, err := loadConfig(c, true)
	if err != nil {
		return nil, err
	}
	logger := cliLogger()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	source := helius.NewClient(cfg.HeliusBaseURL, cfg.HeliusAPIKey, httpClient, logger, nil)
	opener := db.NewOpener(db.Options{Path: cfg.DBPath, DatabaseURL: cfg.DatabaseURL}, logger, nil)

	engine, err := txsync.NewEngine(cfg, source, opener, nil, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}
	return engine.Sync(c.Context), nil
}

func holdingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "holdings",
		Usage: "Show current holdings valued in the reference currency",
		Description: `Values the stored history with live quotes. Locally this needs MY_WALLET
(or --wallet) and the store, but not HELIUS_API_KEY.`,
		Action: func(c *cli.Context) error {
			portfolio, err := loadPortfolio(c)
			if err != nil {
				return fmt.Errorf("failed to compute holdings: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, portfolio)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "ASSET\tBALANCE\tUNIT PRICE\tVALUE\t")
			for _, p := range portfolio.Positions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
					p.Symbol,
					p.Balance.StringFixed(6),
					p.UnitPrice.StringFixed(4),
					p.TotalValue.StringFixed(2),
				)
			}
			w.Flush()
			fmt.Fprintf(out, "\nNet worth: %s (USD→%s %s)\n", portfolio.Display, portfolio.Currency, portfolio.FXRate.String())
			return nil
		},
	}
}

// loadPortfolio values holdings through the dashboard API when a server URL
// is set and locally otherwise.
func loadPortfolio(c *cli.Context) (*client.Portfolio, error) {
	if serverURL := c.String("server-url"); serverURL != "" {
		return client.NewClient(serverURL, nil, cliLogger()).Holdings(c.Context)
	}

	cfg, err := loadConfig(c, false)
	if err != nil {
		return nil, err
	}
	logger := cliLogger()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	opener := db.NewOpener(db.Options{Path: cfg.DBPath, DatabaseURL: cfg.DatabaseURL}, logger, nil)
	quotes := pricing.NewDexScreener(cfg.DexScreenerBaseURL, cfg.PriceChunkSize, httpClient, logger, nil)
	rates := pricing.NewFrankfurter(cfg.FXBaseURL, cfg.FXFallbackRate, httpClient, logger, nil)

	aggregator, err := valuation.NewAggregator(cfg, opener, quotes, rates, logger)
	if err != nil {
		return nil, err
	}
	p, err := aggregator.NetWorth(c.Context)
	if err != nil {
		return nil, err
	}

	portfolio := &client.Portfolio{
		Currency: p.Currency,
		FXRate:   p.FXRate,
		Total:    p.Total,
		Display:  p.Display,
	}
	for _, h := range p.Positions {
		portfolio.Positions = append(portfolio.Positions, client.Position{
			Mint:       h.Mint,
			Symbol:     h.Symbol,
			Balance:    h.Balance,
			UnitPrice:  h.UnitPrice,
			TotalValue: h.TotalValue,
		})
	}
	return portfolio, nil
}

// loadConfig reads the environment and applies the global flags. Commands
// that never call the transaction source pass requireSource=false so that
// HELIUS_API_KEY stays optional.
func loadConfig(c *cli.Context, requireSource bool) (*config.Config, error) {
	if c.IsSet("wallet") {
		os.Setenv("MY_WALLET", c.String("wallet"))
	}
	load := config.Load
	if !requireSource {
		load = config.LoadWithoutSource
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if requireSource {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateWithoutSource()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// cliLogger logs errors to stderr, or everything when LOG_LEVEL=debug.
func cliLogger() *slog.Logger {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
