package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/brojonat/solxfer/service/logging"
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
		Name:  "solxfer",
		Usage: "Send SOL from a connected wallet",
		Description: `A command-line tool for the solxfer transfer service.

Run the web form with "serve", send a transfer from a local keypair with "send",
or talk to a running server with the "client" commands.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			serveCommand(),
			workerCommand(),
			sendCommand(),
			clientCommands(),
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
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Server URL for client commands and health checks",
				EnvVars: []string{"SOLXFER_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level for client-side commands (debug, info, warn, error)",
				EnvVars: []string{"SOLXFER_LOG_LEVEL"},
				Value:   "warn",
			},
		},
	}
}

// cliLogger is the human-readable logger used by commands that run in a
// terminal.
func cliLogger(c *cli.Context) *slog.Logger {
	return logging.New(os.Stderr, c.String("log-level"), "text")
}
