package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber streams transfer events as they are published.
type Subscriber interface {
	// Subscribe delivers events whose phase matches phase ("" for all) until
	// ctx is done. The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, phase string) (<-chan *TransferEvent, error)
}

// JetStreamSubscriber reads transfer events through ephemeral JetStream
// consumers, one per subscription.
type JetStreamSubscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming transfer events.
func NewSubscriber(natsURL string, logger *slog.Logger) (*JetStreamSubscriber, error) {
	nc, js, err := connect(natsURL, "solxfer-subscriber")
	if err != nil {
		return nil, err
	}
	logger.Info("NATS subscriber initialized", "url", natsURL)
	return &JetStreamSubscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe creates an ephemeral consumer that only delivers new messages.
func (s *JetStreamSubscriber) Subscribe(ctx context.Context, phase string) (<-chan *TransferEvent, error) {
	subject := StreamSubjects
	if phase != "" {
		subject = SubjectPrefix + phase
	}

	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *TransferEvent, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var event TransferEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.WarnContext(ctx, "failed to unmarshal event", "error", err)
			_ = msg.Ack()
			return
		}
		select {
		case out <- &event:
			_ = msg.Ack()
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		<-cc.Closed()
		close(out)
	}()

	return out, nil
}

// Close closes the NATS connection.
func (s *JetStreamSubscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS subscriber closed")
	}
	return nil
}
