package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/solana"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show stored transaction counts per type and recent swaps",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "swaps",
				Usage: "Number of recent swaps to show",
				Value: 3,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			var stats struct {
				Total  int64          `json:"total"`
				ByType []db.TypeCount `json:"by_type"`
				Swaps  []string       `json:"recent_swaps"`
			}
			err := withStore(c, func(store db.Store) error {
				var err error
				if stats.Total, err = store.Count(ctx); err != nil {
					return err
				}
				if stats.ByType, err = store.CountByType(ctx); err != nil {
					return err
				}
				swaps, err := store.ListTransactions(ctx, db.ListParams{Type: solana.TypeSwap, Limit: c.Int("swaps")})
				if err != nil {
					return err
				}
				for _, s := range swaps {
					stats.Swaps = append(stats.Swaps, s.Signature)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to load stats: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, stats)
			}

			fmt.Fprintf(out, "Total: %d transactions\n\n", stats.Total)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tCOUNT")
			for _, tc := range stats.ByType {
				fmt.Fprintf(w, "%s\t%d\n", tc.Type, tc.Count)
			}
			w.Flush()

			fmt.Fprintln(out, "\nRecent swaps:")
			if len(stats.Swaps) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, sig := range stats.Swaps {
				fmt.Fprintf(out, "  %s\n", sig)
			}
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List stored transactions newest first",
		Aliases: []string{"txs"},
		Description: `List stored transactions. --jq filters are evaluated against each raw
payload and all of them must be truthy for a transaction to be listed.

Example:
  soltrack txs --type SWAP --jq '.source == "JUPITER"' --limit 20`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Filter by transaction type (e.g. SWAP, TRANSFER)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter over the raw payload (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}
			limit := c.Int("limit")
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1")
			}

			var records []*db.Record
			err = withStore(c, func(store db.Store) error {
				var err error
				if len(filters) == 0 {
					records, err = store.ListTransactions(c.Context, db.ListParams{Type: c.String("type"), Limit: limit})
					return err
				}
				all, err := store.ScanAll(c.Context)
				if err != nil {
					return err
				}
				records = filterRecords(all, c.String("type"), filters, limit)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, records)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSIGNATURE\tTYPE\tASSET\tAMOUNT\tDIR")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.6f\t%s\n",
					formatTime(r.Timestamp),
					r.Signature,
					r.Type,
					solana.Symbol(r.TokenMint),
					r.TokenAmount,
					r.Direction,
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d transactions\n", len(records))
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Show one stored transaction with its legs",
		Aliases:   []string{"tx"},
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			signature := c.Args().First()

			var rec *db.Record
			err := withStore(c, func(store db.Store) error {
				var err error
				rec, err = store.GetTransaction(c.Context, signature)
				return err
			})
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("transaction %s not found", signature)
			}
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			var legs []solana.Leg
			if raw, err := solana.DecodeRawTransaction(rec.RawData); err == nil {
				legs = solana.Legs(raw, c.String("wallet"))
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, struct {
					*db.Record
					Legs []solana.Leg `json:"legs"`
				}{rec, legs})
			}

			fmt.Fprintf(out, "Signature:  %s\n", rec.Signature)
			fmt.Fprintf(out, "Time:       %s\n", formatTime(rec.Timestamp))
			fmt.Fprintf(out, "Type:       %s\n", rec.Type)
			fmt.Fprintf(out, "Asset:      %s (%s)\n", solana.Symbol(rec.TokenMint), rec.TokenMint)
			fmt.Fprintf(out, "Amount:     %.9f %s\n", rec.TokenAmount, rec.Direction)
			if rec.Fee != nil {
				fmt.Fprintf(out, "Fee:        %.9f SOL\n", solana.LamportsToSOL(*rec.Fee))
			}
			if len(legs) > 0 {
				fmt.Fprintln(out, "Legs:")
				for _, leg := range legs {
					fmt.Fprintf(out, "  %-6s %-4s %s %.9f\n", leg.Kind, leg.Direction, solana.Symbol(leg.Mint), leg.Amount)
				}
			}
			return nil
		},
	}
}

func listSwapsCommand() *cli.Command {
	return &cli.Command{
		Name:  "swaps",
		Usage: "Show what the wallet sent and received in recent swaps",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of swaps",
				Value:   10,
			},
		},
		Action: func(c *cli.Context) error {
			wallet := c.String("wallet")
			if wallet == "" {
				return fmt.Errorf("wallet is required (set MY_WALLET env var or use --wallet)")
			}

			var records []*db.Record
			err := withStore(c, func(store db.Store) error {
				var err error
				records, err = store.ListTransactions(c.Context, db.ListParams{Type: solana.TypeSwap, Limit: c.Int("limit")})
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to list swaps: %w", err)
			}

			type swap struct {
				Signature string        `json:"signature"`
				Timestamp *time.Time    `json:"timestamp,omitempty"`
				Sent      []solana.Flow `json:"sent"`
				Received  []solana.Flow `json:"received"`
			}
			swaps := make([]swap, 0, len(records))
			for _, r := range records {
				b, err := solana.BreakdownOfRaw(r.RawData, wallet)
				if err != nil {
					continue
				}
				swaps = append(swaps, swap{r.Signature, r.Timestamp, b.SentFlows(), b.ReceivedFlows()})
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, swaps)
			}
			if len(swaps) == 0 {
				fmt.Fprintln(out, "No swaps found")
				return nil
			}
			for _, s := range swaps {
				fmt.Fprintf(out, "%s  %s\n", formatTime(s.Timestamp), s.Signature)
				for _, f := range s.Sent {
					fmt.Fprintf(out, "  sent     %.6f %s\n", f.Amount, f.Symbol)
				}
				for _, f := range s.Received {
					fmt.Fprintf(out, "  received %.6f %s\n", f.Amount, f.Symbol)
				}
			}
			return nil
		},
	}
}

// withStore opens the store selected by the global flags for one operation.
func withStore(c *cli.Context, fn func(db.Store) error) error {
	opts := db.Options{Path: c.String("db-path"), DatabaseURL: c.String("database-url")}
	if opts.Path == "" && opts.DatabaseURL == "" {
		return fmt.Errorf("db-path or database-url is required")
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithStore(ctx, db.NewOpener(opts, nil, nil), fn)
}

// compileJQ parses and compiles every filter.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// filterRecords keeps records of txType (any when empty) whose raw payload
// satisfies every filter, up to limit.
func filterRecords(records []*db.Record, txType string, filters []*gojq.Code, limit int) []*db.Record {
	var out []*db.Record
	for _, r := range records {
		if len(out) >= limit {
			break
		}
		if txType != "" && r.Type != txType {
			continue
		}
		if matchesAll(r.RawData, filters) {
			out = append(out, r)
		}
	}
	return out
}

func matchesAll(raw json.RawMessage, filters []*gojq.Code) bool {
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false
	}
	for _, code := range filters {
		iter := code.Run(payload)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
