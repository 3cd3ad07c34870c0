package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	natspkg "github.com/brojonat/solxfer/service/nats"
)

// handleStreamTransfers streams transfer events as Server-Sent Events.
// GET /api/v1/stream/transfers?phase={phase}
// Without a phase filter every transition is streamed.
func handleStreamTransfers(subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		phase := r.URL.Query().Get("phase")
		ctx := r.Context()

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		events, err := subscriber.Subscribe(ctx, phase)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to transfer events", "phase", phase, "error", err)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(ctx, "SSE client connected",
			"phase", phase,
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event
		fmt.Fprintf(w, "event: connected\ndata: {\"phase\":%q}\n\n", phase)
		flusher.Flush()

		// Create ticker for keepalive comments (every 10 seconds)
		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal event", "error", err)
					continue
				}

				fmt.Fprintf(w, "event: transfer\ndata: %s\n\n", data)
				flusher.Flush()

				if m != nil {
					m.RecordSSEEventSent(event.Phase)
				}

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
