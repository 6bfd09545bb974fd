package main

import (
	"context"
	"fmt"

	"github.com/brojonat/mintledger/client"
	"github.com/urfave/cli/v2"
)

func getClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, nil, cliLogger()), nil
}

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Query a running ledger server",
		Subcommands: []*cli.Command{
			{
				Name:      "balance",
				Usage:     "Show one account's balance",
				ArgsUsage: "<address>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("address argument is required")
					}
					cl, err := getClient(c)
					if err != nil {
						return err
					}
					b, err := cl.Balance(context.Background(), c.Args().First())
					if err != nil {
						return err
					}
					if wantJSON(c) {
						return outputJSON(c, b)
					}
					fmt.Fprintf(c.App.Writer, "%s\t%s\n", b.Address, rawUnits(b.Balance))
					return nil
				},
			},
			{
				Name:      "account",
				Usage:     "Show one token account",
				ArgsUsage: "<address>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("address argument is required")
					}
					cl, err := getClient(c)
					if err != nil {
						return err
					}
					acct, err := cl.TokenAccount(context.Background(), c.Args().First())
					if err != nil {
						return err
					}
					return printAccount(c, acct)
				},
			},
			{
				Name:  "balances",
				Usage: "List every account balance",
				Action: func(c *cli.Context) error {
					cl, err := getClient(c)
					if err != nil {
						return err
					}
					ctx := context.Background()
					balances, err := cl.ListBalances(ctx)
					if err != nil {
						return err
					}
					decimals := -1
					if token := c.String("token"); token != "" {
						if m, err := cl.Mint(ctx, token); err == nil {
							decimals = int(m.Decimals)
						}
					}
					return printBalances(c, balances, decimals)
				},
			},
			{
				Name:  "events",
				Usage: "Query the event log",
				Flags: eventFilterFlags(),
				Action: func(c *cli.Context) error {
					filter, err := eventFilterFromFlags(c)
					if err != nil {
						return err
					}
					matcher, err := newJQMatcher(c.StringSlice("must-jq"))
					if err != nil {
						return err
					}
					cl, err := getClient(c)
					if err != nil {
						return err
					}
					events, err := cl.ListEvents(context.Background(), filter)
					if err != nil {
						return err
					}
					events, err = filterEvents(events, matcher)
					if err != nil {
						return err
					}
					return printEvents(c, events)
				},
			},
		},
	}
}
