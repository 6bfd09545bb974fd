package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/numeric"
	"github.com/urfave/cli/v2"
)

func dbBalancesCommand() *cli.Command {
	return &cli.Command{
		Name:  "balances",
		Usage: "List every account balance",
		Action: func(c *cli.Context) error {
			store, err := getStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			balances, err := store.ListBalances(ctx)
			if err != nil {
				return fmt.Errorf("failed to list balances: %w", err)
			}

			decimals := -1
			if token := c.String("token"); token != "" {
				if m, err := store.GetMint(ctx, token); err == nil {
					decimals = int(m.Decimals)
				}
			}
			return printBalances(c, balances, decimals)
		},
	}
}

func dbAccountsCommand() *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Usage:   "List every token account",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, err := getStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			accounts, err := store.ListAccounts(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			return printAccounts(c, accounts)
		},
	}
}

func dbAccountCommand() *cli.Command {
	return &cli.Command{
		Name:      "account",
		Usage:     "Show one token account",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("address argument is required")
			}
			store, err := getStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			acct, err := store.GetAccount(context.Background(), c.Args().First())
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("account %s not found", c.Args().First())
			}
			if err != nil {
				return fmt.Errorf("failed to get account: %w", err)
			}
			return printAccount(c, acct)
		},
	}
}

func eventFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "Only events touching this address",
		},
		&cli.StringFlag{
			Name:  "signature",
			Usage: "Only events of this transaction",
		},
		&cli.StringFlag{
			Name:    "type",
			Aliases: []string{"t"},
			Usage:   "Only events of this type (initAccount, transfer, mint, burn)",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of events",
			Value:   100,
		},
		&cli.StringSliceFlag{
			Name:  "must-jq",
			Usage: "jq filter each event must satisfy (can be specified multiple times, all must match)",
		},
	}
}

func eventFilterFromFlags(c *cli.Context) (ledger.EventFilter, error) {
	f := ledger.EventFilter{
		Address:   c.String("address"),
		Signature: c.String("signature"),
		Type:      ledger.EventType(c.String("type")),
		Limit:     c.Int("limit"),
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, fmt.Errorf("invalid event type %q", f.Type)
	}
	if f.Limit < 1 {
		return f, fmt.Errorf("limit must be at least 1")
	}
	return f, nil
}

func dbEventsCommand() *cli.Command {
	return &cli.Command{
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

			store, err := getStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.ListEvents(context.Background(), filter)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			events, err = filterEvents(events, matcher)
			if err != nil {
				return err
			}
			return printEvents(c, events)
		},
	}
}

func dbMintCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Show mint metadata (defaults to --token)",
		ArgsUsage: "[mint]",
		Action: func(c *cli.Context) error {
			mint := c.Args().First()
			if mint == "" {
				token, err := requireToken(c)
				if err != nil {
					return err
				}
				mint = token
			}

			store, err := getStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			m, err := store.GetMint(context.Background(), mint)
			if errors.Is(err, ledger.ErrNotFound) {
				return fmt.Errorf("mint %s not found", mint)
			}
			if err != nil {
				return fmt.Errorf("failed to get mint: %w", err)
			}
			return printMint(c, m)
		},
	}
}

// filterEvents keeps the events that satisfy every --must-jq filter.
func filterEvents(events []ledger.Event, matcher jqMatcher) ([]ledger.Event, error) {
	if len(matcher) == 0 {
		return events, nil
	}
	out := make([]ledger.Event, 0, len(events))
	for _, e := range events {
		doc, err := toDocument(e)
		if err != nil {
			return nil, err
		}
		if matcher.Match(doc) {
			out = append(out, e)
		}
	}
	return out, nil
}

// printBalances prints balances; decimals < 0 means the mint is unknown
// and only raw amounts are shown.
func printBalances(c *cli.Context, balances []ledger.Balance, decimals int) error {
	if wantJSON(c) {
		if balances == nil {
			balances = []ledger.Balance{}
		}
		return outputJSON(c, balances)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	if decimals >= 0 {
		fmt.Fprintln(w, "ADDRESS\tBALANCE\tAMOUNT")
	} else {
		fmt.Fprintln(w, "ADDRESS\tBALANCE")
	}
	for _, b := range balances {
		v, err := numeric.Decode(b.Balance)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", b.Address, err)
		}
		if decimals < 0 {
			fmt.Fprintf(w, "%s\t%s\n", b.Address, v)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%.*f\n", b.Address, v, decimals, numeric.ScaledFloat(v, uint32(decimals)))
	}
	w.Flush()

	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d accounts\n", len(balances))
	return nil
}

func printAccounts(c *cli.Context, accounts []ledger.Account) error {
	if wantJSON(c) {
		if accounts == nil {
			accounts = []ledger.Account{}
		}
		return outputJSON(c, accounts)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tOWNER\tBALANCE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Address, formatOptional(a.Owner), rawUnits(a.Balance))
	}
	w.Flush()

	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d accounts\n", len(accounts))
	return nil
}

func printAccount(c *cli.Context, a *ledger.Account) error {
	if wantJSON(c) {
		return outputJSON(c, a)
	}
	fmt.Fprintf(c.App.Writer, "Address:  %s\n", a.Address)
	fmt.Fprintf(c.App.Writer, "Mint:     %s\n", a.Mint)
	fmt.Fprintf(c.App.Writer, "Owner:    %s\n", formatOptional(a.Owner))
	fmt.Fprintf(c.App.Writer, "Balance:  %s\n", rawUnits(a.Balance))
	return nil
}

func printEvents(c *cli.Context, events []ledger.Event) error {
	if wantJSON(c) {
		if events == nil {
			events = []ledger.Event{}
		}
		return outputJSON(c, events)
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNATURE\tTYPE\tFROM\tTO\tAMOUNT")
	for _, e := range events {
		from, to := e.Source, e.Destination
		switch e.Type {
		case ledger.EventMint:
			from = e.Mint
		case ledger.EventBurn:
			to = e.Mint
		case ledger.EventInitAccount:
			from, to = e.Owner, e.Account
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Signature,
			e.Type,
			formatOptional(from),
			formatOptional(to),
			formatOptional(rawUnits(e.Amount)),
		)
	}
	w.Flush()

	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d events\n", len(events))
	return nil
}

func printMint(c *cli.Context, m *ledger.Mint) error {
	if wantJSON(c) {
		return outputJSON(c, m)
	}
	fmt.Fprintf(c.App.Writer, "Mint:              %s\n", m.Address)
	fmt.Fprintf(c.App.Writer, "Supply:            %s\n", rawUnits(m.Supply))
	fmt.Fprintf(c.App.Writer, "Decimals:          %d\n", m.Decimals)
	fmt.Fprintf(c.App.Writer, "Initialized:       %t\n", m.IsInitialized)
	fmt.Fprintf(c.App.Writer, "Mint Authority:    %s\n", formatAuthority(m.MintAuthorityOption, m.MintAuthority))
	fmt.Fprintf(c.App.Writer, "Freeze Authority:  %s\n", formatAuthority(m.FreezeAuthorityOption, m.FreezeAuthority))
	return nil
}

// rawUnits renders a stored amount in base-10 raw units. Values that don't
// decode are shown as stored.
func rawUnits(s string) string {
	if s == "" {
		return ""
	}
	v, err := numeric.Decode(s)
	if err != nil {
		return s
	}
	return v.String()
}

func formatOptional(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatAuthority(option uint32, key string) string {
	if option == 0 {
		return "(none)"
	}
	return key
}
