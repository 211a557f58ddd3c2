package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/solana"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams transaction events published by sync.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Stream newly stored transactions of the tracked wallet from NATS",
		Description: `Each sync that stores new transactions publishes them to the subject
txns.{wallet_address}. This command follows that subject until interrupted.

Example:
  soltrack subscribe --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay every retained event instead of only new ones",
			},
		},
		Action: func(c *cli.Context) error {
			wallet := c.String("wallet")
			if wallet == "" {
				return fmt.Errorf("wallet is required (set MY_WALLET env var or use --wallet)")
			}

			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubject: natspkg.Subject(wallet),
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			}
			if c.Bool("all") {
				consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			jsonOutput := c.Bool("json")
			out := c.App.Writer
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Subscribed to %s (Ctrl-C to exit)\n\n", natspkg.Subject(wallet))
			}

			msgChan := make(chan jetstream.Msg, 10)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				msgChan <- msg
			})
			if err != nil {
				return fmt.Errorf("failed to consume: %w", err)
			}
			defer cc.Stop()

			count := 0
			for {
				select {
				case msg := <-msgChan:
					var event natspkg.TransactionEvent
					if err := json.Unmarshal(msg.Data(), &event); err != nil {
						fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
						msg.Ack()
						continue
					}
					count++
					if jsonOutput {
						data, _ := json.Marshal(event)
						fmt.Fprintln(out, string(data))
					} else {
						printEvent(out, &event)
					}
					msg.Ack()

				case <-ctx.Done():
					if !jsonOutput {
						fmt.Fprintf(c.App.ErrWriter, "\nReceived %d transactions\n", count)
					}
					if ctx.Err() == context.Canceled {
						return nil
					}
					return ctx.Err()
				}
			}
		},
	}
}

func printEvent(w io.Writer, event *natspkg.TransactionEvent) {
	blockTime := "-"
	if event.BlockTime != nil {
		blockTime = event.BlockTime.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "%s  %-10s %-3s %.6f %s  %s\n",
		blockTime,
		event.Type,
		event.Direction,
		event.Amount,
		solana.Symbol(event.TokenMint),
		event.Signature,
	)
}
