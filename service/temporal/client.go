package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/solxfer/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

// Conn identifies the Temporal frontend and the task queue transfers are
// scheduled on. The server and the worker must agree on all three.
type Conn struct {
	Host      string
	Namespace string
	TaskQueue string
}

func (c Conn) dial(logger *slog.Logger) (client.Client, error) {
	logger.Info("connecting to temporal",
		"host", c.Host,
		"namespace", c.Namespace,
		"task_queue", c.TaskQueue,
	)
	tc, err := client.Dial(client.Options{
		HostPort:  c.Host,
		Namespace: c.Namespace,
		Logger:    log.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}
	return tc, nil
}

// Client is the server side of the Temporal integration: it starts transfer
// workflows and waits for their outcome.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient dials Temporal for starting transfer workflows.
func NewClient(conn Conn, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "temporal_client")

	c, err := conn.dial(logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to temporal")

	return &Client{
		client:    c,
		taskQueue: conn.TaskQueue,
		logger:    logger,
	}, nil
}

// Executor returns a transfer executor that runs every submission as a
// TransferWorkflow on the client's task queue. m may be nil.
func (c *Client) Executor(m *metrics.Metrics) *Executor {
	return NewExecutor(c.client, c.taskQueue, c.logger).WithMetrics(m)
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}
