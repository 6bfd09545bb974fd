package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/mintledger/service/ledger"
	natspkg "github.com/brojonat/mintledger/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

func natsCommands() *cli.Command {
	return &cli.Command{
		Name:  "nats",
		Usage: "Ledger event stream commands",
		Subcommands: []*cli.Command{
			subscribeCommand(),
		},
	}
}

// subscribeCommand tails ledger events from the JetStream stream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Stream applied ledger events",
		Description: `Stream events published by the server to NATS JetStream.

Events are published to ledger.{type}. Without --type every event is shown.

Example:
  mintledger nats subscribe --type transfer --must-jq '.amount != null' --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Only show events of this type",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (used with --durable)",
				Value: "mintledger-cli",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many events (0 = no limit)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Exit after this long (0 = no limit)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "Only show events for which this jq filter is truthy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			subject, err := subscribeSubject(c.String("type"))
			if err != nil {
				return err
			}
			matcher, err := newJQMatcher(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			}
			if c.Bool("durable") {
				consumerConfig.Durable = c.String("consumer-name")
				consumerConfig.Name = c.String("consumer-name")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if timeout := c.Duration("timeout"); timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			nc, err := nats.Connect(c.String("nats-url"), nats.Name("mintledger-cli"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}
			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			if !wantJSON(c) {
				fmt.Fprintf(c.App.ErrWriter, "Subscribing to %s (Ctrl-C to exit)\n\n", subject)
			}

			msgs := make(chan jetstream.Msg, 10)
			consumer, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgs <- msg:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return fmt.Errorf("failed to consume: %w", err)
			}
			defer consumer.Stop()

			limit := c.Int("count")
			shown := 0
			for {
				select {
				case msg := <-msgs:
					var event natspkg.EventMessage
					if err := json.Unmarshal(msg.Data(), &event); err != nil {
						fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
						msg.Ack()
						continue
					}
					msg.Ack()

					keep, err := matchEvent(matcher, event)
					if err != nil {
						return err
					}
					if !keep {
						continue
					}
					if err := printStreamedEvent(c, event); err != nil {
						return err
					}
					shown++
					if limit > 0 && shown >= limit {
						return nil
					}
				case <-ctx.Done():
					if !wantJSON(c) {
						fmt.Fprintf(c.App.ErrWriter, "\nReceived %d event(s)\n", shown)
					}
					return nil
				}
			}
		},
	}
}

// subscribeSubject maps an optional event type to its stream subject.
func subscribeSubject(eventType string) (string, error) {
	if eventType == "" {
		return natspkg.StreamSubjects, nil
	}
	t := ledger.EventType(eventType)
	if !t.Valid() {
		return "", fmt.Errorf("invalid event type %q (want initAccount, transfer, mint or burn)", eventType)
	}
	return natspkg.Subject(t), nil
}

func matchEvent(matcher jqMatcher, event natspkg.EventMessage) (bool, error) {
	if len(matcher) == 0 {
		return true, nil
	}
	doc, err := toDocument(event)
	if err != nil {
		return false, err
	}
	return matcher.Match(doc), nil
}

func printStreamedEvent(c *cli.Context, event natspkg.EventMessage) error {
	if c.String("jq") != "" {
		return outputJSON(c, event)
	}
	if wantJSON(c) {
		// one document per line so the stream stays pipeable
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}

	fmt.Fprintf(c.App.Writer, "%s  %-11s %s\n", event.PublishedAt.Format(time.RFC3339), event.Type, event.Signature)
	switch event.Type {
	case ledger.EventTransfer:
		fmt.Fprintf(c.App.Writer, "  %s -> %s  %s\n", event.Source, event.Destination, rawUnits(event.Amount))
	case ledger.EventMint:
		fmt.Fprintf(c.App.Writer, "  -> %s  %s\n", event.Destination, rawUnits(event.Amount))
	case ledger.EventBurn:
		fmt.Fprintf(c.App.Writer, "  %s ->  %s\n", event.Source, rawUnits(event.Amount))
	case ledger.EventInitAccount:
		fmt.Fprintf(c.App.Writer, "  %s owner=%s\n", event.Account, event.Owner)
	}
	return nil
}
