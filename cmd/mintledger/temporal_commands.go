package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/mintledger/service/temporal"
	"github.com/urfave/cli/v2"
)

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		cliLogger(),
	)
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Create or update the token's reconcile schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Time between reconcile runs",
				EnvVars: []string{"RECONCILE_INTERVAL"},
				Value:   time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			token, err := requireToken(c)
			if err != nil {
				return err
			}
			interval := c.Duration("interval")
			if interval < time.Minute {
				return fmt.Errorf("interval must be at least 1m, got %s", interval)
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertReconcileSchedule(context.Background(), token, interval); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Reconcile schedule for %s runs every %s\n", token, interval)
			return nil
		},
	}
}

func unscheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "unschedule",
		Usage: "Delete the token's reconcile schedule",
		Action: func(c *cli.Context) error {
			token, err := requireToken(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteReconcileSchedule(context.Background(), token); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Reconcile schedule for %s deleted\n", token)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Run a reconcile workflow now and wait for its result",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the workflow",
				Value: time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			token, err := requireToken(c)
			if err != nil {
				return err
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			result, err := tc.RunReconcile(ctx, token)
			if err != nil {
				return err
			}

			if wantJSON(c) {
				return outputJSON(c, result)
			}
			fmt.Fprintf(c.App.Writer, "Reconcile of %s\n", result.Token)
			fmt.Fprintf(c.App.Writer, "  Replayed:    %d applied, %d failed\n", result.Backfill.Applied, result.Backfill.Failed)
			fmt.Fprintf(c.App.Writer, "  Checked:     %d\n", result.Checked)
			fmt.Fprintf(c.App.Writer, "  Matched:     %d\n", result.Matched)
			fmt.Fprintf(c.App.Writer, "  Mismatched:  %d\n", len(result.Mismatches))
			for _, m := range result.Mismatches {
				fmt.Fprintf(c.App.Writer, "    %s ledger=%s chain=%s\n", m.Address, m.Ledger, m.OnChain)
			}
			return nil
		},
	}
}
