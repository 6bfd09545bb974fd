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
		Name:  "mintledger",
		Usage: "Off-chain SPL token ledger CLI",
		Description: `A command-line tool for inspecting and operating the mintledger service.

Use this CLI to query the ledger database or HTTP API, verify balances against
chain, replay history, and manage the reconcile schedule.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					dbBalancesCommand(),
					dbAccountsCommand(),
					dbAccountCommand(),
					dbEventsCommand(),
					dbMintCommand(),
				},
			},
			// Client commands (HTTP API)
			clientCommands(),
			// Chain commands
			verifyCommand(),
			backfillCommand(),
			ataCommand(),
			// Event stream commands
			natsCommands(),
			// Temporal management commands
			{
				Name:  "temporal",
				Usage: "Reconcile schedule management",
				Subcommands: []*cli.Command{
					scheduleCommand(),
					unscheduleCommand(),
					reconcileCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Tracked token mint address",
			EnvVars: []string{"TOKEN"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Ledger store backend (sqlite or postgres)",
			EnvVars: []string{"STORE_BACKEND"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sqlite-path",
			Usage:   "SQLite ledger file",
			EnvVars: []string{"SQLITE_PATH"},
			Value:   "ledger.db",
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC URL (defaults to Helius mainnet when RPC_KEY is set)",
			EnvVars: []string{"RPC_URL"},
		},
		&cli.Float64Flag{
			Name:    "rpc-rps",
			Usage:   "RPC requests per second (0 = unlimited)",
			EnvVars: []string{"RPC_RPS"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue of the reconcile worker",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "mintledger-reconcile",
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "Ledger server URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:3001",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to JSON output (implies --json)",
		},
	}
}
