package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "soltrack",
		Usage: "Solana wallet tracker CLI",
		Description: `A command-line tool for syncing and inspecting a single tracked wallet.

Store commands read the local database directly. sync and holdings run locally
unless --server-url is set, in which case they call the dashboard API.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			syncCommand(),
			holdingsCommand(),
			statsCommand(),
			listTransactionsCommand(),
			getTransactionCommand(),
			listSwapsCommand(),
			subscribeCommand(),
			healthCommand(),
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-path",
				Usage:   "SQLite database file",
				EnvVars: []string{"DB_PATH"},
				Value:   "solana_tracker.db",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection URL (overrides --db-path)",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "wallet",
				Usage:   "Tracked wallet address",
				EnvVars: []string{"MY_WALLET"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Dashboard server URL; sync and holdings go through it when set",
				EnvVars: []string{"SERVER_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
