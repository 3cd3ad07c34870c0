package nats

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/transfer"
)

// EventObserver publishes every form transition. Publish failures are
// logged and never affect the transfer.
type EventObserver struct {
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var _ transfer.Observer = (*EventObserver)(nil)

// NewEventObserver creates an observer publishing through p.
// If m is nil, no metrics will be recorded.
func NewEventObserver(p Publisher, m *metrics.Metrics, logger *slog.Logger) *EventObserver {
	return &EventObserver{publisher: p, metrics: m, logger: logger}
}

func (o *EventObserver) ObserveTransfer(ctx context.Context, e transfer.Event) {
	event := FromTransferEvent(e)

	// The submission may outlive the request that started it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	start := time.Now()
	err := o.publisher.PublishTransfer(ctx, event)

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		o.metrics.RecordNATSPublish(event.Subject(), status, time.Since(start).Seconds())
	}
	if err != nil {
		o.logger.WarnContext(ctx, "failed to publish transfer event",
			"subject", event.Subject(),
			"error", err,
		)
	}
}
