package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/mintledger/service/app"
	"github.com/brojonat/mintledger/service/verify"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Compare ledger balances with on-chain token accounts",
		Description: `Reads every ledger balance, from the database or from a running server
with --via-server, and compares each with the account's on-chain amount.
Exits non-zero when any balance disagrees.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "via-server",
				Usage: "Read balances from --server-url instead of the database",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall timeout",
				Value: 10 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			token, err := requireToken(c)
			if err != nil {
				return err
			}
			if err := requireRPC(c); err != nil {
				return err
			}

			var source verify.BalanceSource
			if c.Bool("via-server") {
				cl, err := getClient(c)
				if err != nil {
					return err
				}
				source = cl
			} else {
				store, err := getStore(c)
				if err != nil {
					return err
				}
				defer store.Close()
				source = store
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			rpcClient := app.NewRPC(configFromFlags(c), nil, cliLogger())
			report, err := verify.New(rpcClient, source, token, nil, cliLogger()).Run(ctx)
			if err != nil {
				return err
			}
			if err := printReport(c, report); err != nil {
				return err
			}
			if !report.OK() {
				return cli.Exit(fmt.Sprintf("%d balances disagree with chain", len(report.Mismatches)), 1)
			}
			return nil
		},
	}
}

func printReport(c *cli.Context, report *verify.Report) error {
	if wantJSON(c) {
		return outputJSON(c, report)
	}

	if len(report.Mismatches) > 0 {
		w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tLEDGER\tON CHAIN")
		for _, m := range report.Mismatches {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Address, m.Ledger, m.OnChain)
		}
		w.Flush()
		fmt.Fprintln(c.App.Writer)
	}

	status := "✓ all balances match"
	if !report.OK() {
		status = "✗ mismatches found"
	}
	fmt.Fprintf(c.App.Writer, "%s (checked: %d, matched: %d, skipped: %d, mismatched: %d)\n",
		status, report.Checked, report.Matched, report.Skipped, len(report.Mismatches))
	return nil
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Seed the mint and replay the token's history into the database",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Signatures per history page",
				Value: 8,
			},
		},
		Action: func(c *cli.Context) error {
			if _, err := requireToken(c); err != nil {
				return err
			}
			if err := requireRPC(c); err != nil {
				return err
			}

			store, err := getStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := cliLogger()
			cfg := configFromFlags(c)
			cfg.BackfillBatchSize = c.Int("batch-size")

			pipeline, err := app.NewPipeline(cfg, store, app.NewRPC(cfg, nil, logger), nil, nil, logger)
			if err != nil {
				return err
			}

			start := time.Now()
			stats, err := pipeline.Monitor.Bootstrap(context.Background())
			if err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, stats)
			}
			fmt.Fprintf(c.App.Writer, "Backfill complete in %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(c.App.Writer, "  Seen:       %d\n", stats.Seen)
			fmt.Fprintf(c.App.Writer, "  Applied:    %d\n", stats.Applied)
			fmt.Fprintf(c.App.Writer, "  Duplicates: %d\n", stats.Duplicates)
			fmt.Fprintf(c.App.Writer, "  Ignored:    %d\n", stats.Ignored)
			fmt.Fprintf(c.App.Writer, "  Failed:     %d\n", stats.Failed)
			return nil
		},
	}
}

func ataCommand() *cli.Command {
	return &cli.Command{
		Name:      "ata",
		Usage:     "Derive the associated token account of a wallet for the tracked token",
		ArgsUsage: "<wallet>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet argument is required")
			}
			token, err := requireToken(c)
			if err != nil {
				return err
			}
			wallet, err := solana.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid wallet address: %w", err)
			}

			ata, _, err := solana.FindAssociatedTokenAddress(wallet, solana.MustPublicKeyFromBase58(token))
			if err != nil {
				return fmt.Errorf("failed to derive associated token account: %w", err)
			}

			if wantJSON(c) {
				return outputJSON(c, map[string]string{
					"wallet":  wallet.String(),
					"mint":    token,
					"account": ata.String(),
				})
			}
			fmt.Fprintln(c.App.Writer, ata.String())
			return nil
		},
	}
}
