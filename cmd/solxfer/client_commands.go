package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solxfer/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for a running solxfer server",
		Subcommands: []*cli.Command{
			clientTransferCommand(),
			clientStateCommand(),
			clientWalletsCommand(),
			clientWatchCommand(),
		},
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger(c))
}

func clientTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Submit a transfer through the server's connected wallet and wait for it to settle",
		ArgsUsage: "RECIPIENT AMOUNT_SOL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output the resulting form state as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("recipient and amount are required")
			}

			state, err := newClient(c).Transfer(c.Context, c.Args().Get(0), c.Args().Get(1))
			if state != nil {
				if c.Bool("json") {
					if err := printJSON(c.App.Writer, state); err != nil {
						return err
					}
				} else {
					printFormState(c.App.Writer, state)
				}
			}
			if errors.Is(err, client.ErrBusy) {
				return cli.Exit("a transfer is already in flight, try again once it settles", 1)
			}
			var transferErr *client.TransferError
			if errors.As(err, &transferErr) {
				return cli.Exit(fmt.Sprintf("transfer failed (%s)", transferErr.Kind), 1)
			}
			return err
		},
	}
}

func clientStateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show the server's transfer form state",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			state, err := newClient(c).State(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get form state: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, state)
			}
			printFormState(c.App.Writer, state)
			return nil
		},
	}
}

func clientWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallets",
		Usage: "List the wallet integrations configured on the server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			list, err := newClient(c).Wallets(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, list)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Network: %s\n", list.Network)
			for _, a := range list.Adapters {
				marker := " "
				if a.Selected {
					marker = "*"
				}
				status := "not connected"
				if a.Connected {
					status = "connected " + a.PublicKey
				} else if !a.Ready {
					status = "not ready"
				}
				fmt.Fprintf(w, "%s %-10s %s\n", marker, a.Name, status)
			}
			return nil
		},
	}
}

var errWatchDone = errors.New("watch done")

func clientWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream transfer events from the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "phase",
				Usage: "Only stream one phase (validating, submitting, confirming, success, failed)",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many matching events (0 streams until interrupted)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output events as JSON (one per line)",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			limit := c.Int("count")
			jsonOutput := c.Bool("json")
			w := c.App.Writer
			seen := 0

			err = newClient(c).Watch(ctx, c.String("phase"), func(e *client.Event) error {
				ok, err := matches(filters, e)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}

				if jsonOutput {
					data, err := json.Marshal(e)
					if err != nil {
						return fmt.Errorf("failed to marshal event: %w", err)
					}
					fmt.Fprintln(w, string(data))
				} else {
					printEvent(w, e)
				}

				seen++
				if limit > 0 && seen >= limit {
					return errWatchDone
				}
				return nil
			})
			if errors.Is(err, errWatchDone) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func compileFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, filter := range exprs {
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

// matches reports whether every filter yields a truthy first result for e.
func matches(filters []*gojq.Code, e *client.Event) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// gojq only understands plain JSON values.
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return false, fmt.Errorf("failed to decode event: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if _, isErr := result.(error); isErr {
			return false, nil
		}
		if !isTruthy(result) {
			return false, nil
		}
	}
	return true, nil
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

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printFormState(w io.Writer, s *client.FormState) {
	fmt.Fprintf(w, "Phase:      %s\n", s.Phase)
	if s.PublicKey != "" {
		fmt.Fprintf(w, "Wallet:     %s\n", s.PublicKey)
	} else {
		fmt.Fprintf(w, "Wallet:     not connected\n")
	}
	if s.Recipient != "" {
		fmt.Fprintf(w, "Recipient:  %s\n", s.Recipient)
	}
	if s.Amount != "" {
		fmt.Fprintf(w, "Amount:     %s SOL\n", s.Amount)
	}
	if s.Status != "" {
		fmt.Fprintf(w, "Status:     %s\n", s.Status)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", s.Error)
	}
	if s.Signature != "" {
		fmt.Fprintf(w, "Signature:  %s\n", s.Signature)
	}
}

func printEvent(w io.Writer, e *client.Event) {
	line := fmt.Sprintf("%s  %-10s", e.PublishedAt.Format(time.RFC3339), e.Phase)
	if e.SOL != "" {
		line += fmt.Sprintf("  %s SOL -> %s", e.SOL, e.ToAddress)
	}
	if e.Status != "" {
		line += "  " + e.Status
	}
	if e.Error != "" {
		line += fmt.Sprintf("  %s (%s)", e.Error, e.Kind)
	}
	if e.Signature != "" {
		line += "  " + e.Signature
	}
	fmt.Fprintln(w, line)
}
