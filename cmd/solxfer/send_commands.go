package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/solxfer/service/app"
	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/brojonat/solxfer/service/wallet"
	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v2"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send SOL from a local keypair wallet",
		Description: `Validates the recipient and amount, asks for approval, signs with the
keypair file and waits for confirmation. Missing fields are prompted for.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "to",
				Usage: "Recipient address (base58)",
			},
			&cli.StringFlag{
				Name:  "amount",
				Usage: "Amount in SOL (e.g. 0.5)",
			},
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "Path to a solana-keygen keypair file (defaults to WALLET_KEYPAIR_PATH)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Approve the transaction without asking",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if kp := c.String("keypair"); kp != "" {
				cfg.WalletKeypairPath = kp
			}
			// A local send signs in-process and exposes no metrics.
			cfg.WalletAutoConnect = true
			cfg.MetricsEnabled = false
			cfg.TemporalEnabled = false

			to, amount := c.String("to"), c.String("amount")
			if to == "" || amount == "" {
				if err := promptTransfer(&to, &amount); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := app.Options{}
			if !c.Bool("yes") {
				opts.Approver = confirmApprover(to, amount, cfg.SolanaNetwork)
			}

			a, err := app.New(ctx, cfg, opts, cliLogger(c))
			if err != nil {
				return err
			}
			defer a.Close()

			w := c.App.ErrWriter
			a.Form.Observe(progressPrinter(w))

			state, err := a.Form.Submit(ctx, to, amount)
			if err != nil {
				if state.Signature != "" {
					fmt.Fprintf(w, "  Signature: %s\n", state.Signature)
				}
				return cli.Exit(state.Error, 1)
			}

			fmt.Fprintf(c.App.Writer, "✓ %s\n", state.Status)
			fmt.Fprintf(c.App.Writer, "  Signature: %s\n", state.Signature)
			fmt.Fprintf(c.App.Writer, "  Explorer:  %s\n", explorerURL(state.Signature, cfg.SolanaNetwork))
			return nil
		},
	}
}

// promptTransfer asks for the fields that were not given as flags.
func promptTransfer(to, amount *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Recipient Address").
				Description("Base58 Solana address").
				Value(to).
				Placeholder("Enter Solana address").
				Validate(func(s string) error {
					if _, err := transfer.ParseRecipient(s); err != nil {
						return err
					}
					return nil
				}),

			huh.NewInput().
				Title("Amount (SOL)").
				Value(amount).
				Placeholder("0.0").
				Validate(func(s string) error {
					if _, err := transfer.ParseAmount(s); err != nil {
						return err
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeCatppuccin())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return cli.Exit("aborted", 1)
		}
		return fmt.Errorf("failed to read transfer details: %w", err)
	}
	return nil
}

// confirmApprover asks the user at the terminal before the wallet signs.
// Aborting the prompt declines the request.
func confirmApprover(to, amount, network string) wallet.Approver {
	return wallet.ApproverFunc(func(ctx context.Context, req wallet.Approval) (bool, error) {
		var ok bool
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("Send %s SOL on %s?", amount, network)).
			Description(fmt.Sprintf("From: %s\nTo:   %s", req.Signer, to)).
			Affirmative("Approve").
			Negative("Reject").
			Value(&ok)

		err := huh.NewForm(huh.NewGroup(confirm)).
			WithTheme(huh.ThemeCatppuccin()).
			RunWithContext(ctx)
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return ok, nil
	})
}

// progressPrinter writes the status line of every in-flight transition.
func progressPrinter(w io.Writer) transfer.Observer {
	return transfer.ObserverFunc(func(ctx context.Context, e transfer.Event) {
		if e.State.Phase.InFlight() && e.State.Status != "" {
			fmt.Fprintf(w, "… %s\n", e.State.Status)
		}
	})
}

// explorerURL links a signature on the Solana explorer for the network.
func explorerURL(signature, network string) string {
	u := "https://explorer.solana.com/tx/" + signature
	switch network {
	case "", "mainnet-beta":
		return u
	case "localnet":
		return u + "?cluster=custom"
	default:
		return u + "?cluster=" + network
	}
}
