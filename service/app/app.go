package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/metrics"
	natspkg "github.com/brojonat/solxfer/service/nats"
	"github.com/brojonat/solxfer/service/server"
	"github.com/brojonat/solxfer/service/solana"
	"github.com/brojonat/solxfer/service/temporal"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/brojonat/solxfer/service/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

// KeypairAdapterName is the name of the keypair-file wallet integration.
const KeypairAdapterName = "keypair"

// Options tunes how New assembles the application.
type Options struct {
	// Approver confirms each signature request. Nil approves everything,
	// which suits the web form where the user already pressed Send.
	Approver wallet.Approver
	// Registerer receives the metrics collectors. Nil uses the default
	// Prometheus registry.
	Registerer prometheus.Registerer
	// RPCClient replaces the HTTP JSON-RPC client.
	RPCClient solana.RPCClient
	// Subscribe also opens a NATS subscriber for the SSE endpoint.
	Subscribe bool
}

// App holds the process-wide dependencies: one RPC connection, one wallet
// registry and one transfer form.
type App struct {
	Config  *config.Config
	Conn    *solana.Client
	Wallets *wallet.Registry
	Form    *transfer.Form
	Metrics *metrics.Metrics

	subscriber natspkg.Subscriber
	logger     *slog.Logger
	closers    []func()
}

// New builds the application from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	if cfg.MetricsEnabled {
		a.Metrics = metrics.NewMetrics(opts.Registerer)
		logger.Info("Prometheus metrics collector initialized")
	}

	rpcClient := opts.RPCClient
	if rpcClient == nil {
		rpcClient = solana.NewRPCClient(cfg.SolanaRPCURL)
	}
	a.Conn = solana.NewClient(rpcClient, solana.Options{
		Endpoint:     cfg.SolanaNetwork,
		Commitment:   cfg.SolanaCommitment,
		ConfirmAfter: cfg.ConfirmTimeout,
		PollInterval: cfg.ConfirmPollInterval,
	}, a.Metrics, logger)
	logger.Info("initialized solana RPC client",
		"network", cfg.SolanaNetwork,
		"url", cfg.SolanaRPCURL,
		"commitment", cfg.SolanaCommitment,
	)

	keypair := wallet.NewKeypairAdapter(KeypairAdapterName, cfg.WalletKeypairPath, opts.Approver, logger)
	a.Wallets = wallet.NewRegistry(logger, keypair)
	if cfg.WalletAutoConnect {
		a.Wallets.AutoConnect(ctx)
	}

	a.Form = transfer.NewForm(a.Wallets, a.Conn, logger)
	if a.Metrics != nil {
		a.Form.Observe(a.Metrics)
	}

	if err := a.connectNATS(opts.Subscribe); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.TemporalEnabled {
		tc, err := temporal.NewClient(a.temporalConn(), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create temporal client: %w", err)
		}
		a.closers = append(a.closers, tc.Close)
		a.Form.WithExecutor(tc.Executor(a.Metrics))
		logger.Info("transfers run as temporal workflows", "task_queue", cfg.TemporalTaskQueue)
	}

	return a, nil
}

func (a *App) connectNATS(subscribe bool) error {
	if a.Config.NATSURL == "" {
		a.logger.Warn("NATS_URL not set, transfer events will not be published")
		return nil
	}

	publisher, err := natspkg.NewPublisher(a.Config.NATSURL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	a.closers = append(a.closers, func() { publisher.Close() })
	a.Form.Observe(natspkg.NewEventObserver(publisher, a.Metrics, a.logger))

	if !subscribe {
		return nil
	}
	subscriber, err := natspkg.NewSubscriber(a.Config.NATSURL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create NATS subscriber: %w", err)
	}
	a.closers = append(a.closers, func() { subscriber.Close() })
	a.subscriber = subscriber
	return nil
}

// Server builds the HTTP server for the form.
func (a *App) Server() (*server.Server, error) {
	srv := server.New(a.Config.ServerAddr, a.Config.SolanaNetwork, a.Form, a.Wallets, a.subscriber, a.Metrics, a.logger)
	if err := srv.WithTemplates(); err != nil {
		return nil, err
	}
	return srv, nil
}

// Serve runs the HTTP server until ctx is done, then shuts it down
// gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		a.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	if err := <-serverErrors; err != nil {
		return err
	}
	a.logger.Info("server shutdown complete")
	return nil
}

// NewWorker builds a Temporal worker that signs with the application's
// wallet.
func (a *App) NewWorker() (*temporal.Worker, error) {
	return temporal.NewWorker(temporal.WorkerConfig{
		Temporal: a.temporalConn(),
		Conn:     a.Conn,
		Wallets:  a.Wallets,
		Metrics:  a.Metrics,
		Logger:   a.logger,
	})
}

func (a *App) temporalConn() temporal.Conn {
	return temporal.Conn{
		Host:      a.Config.TemporalHost,
		Namespace: a.Config.TemporalNamespace,
		TaskQueue: a.Config.TemporalTaskQueue,
	}
}

// Close releases connections in reverse order of creation and disconnects
// the wallet.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.Wallets != nil {
		a.Wallets.Disconnect()
	}
}
