package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultSubmissionStream   = "POS_ORDERS"
	DefaultSubmissionConsumer = "kitchenscreens"
	DefaultSubmissionMaxAge   = 24 * time.Hour
)

// NATSStream is a durable events.Subscriber backed by a JetStream consumer.
// Batches published while the service is down are delivered on restart.
type NATSStream struct {
	conn     *nats.Conn
	consumer jetstream.Consumer
	logger   apt.Logger

	cc jetstream.ConsumeContext
}

type NATSStreamConfig struct {
	URL          string
	StreamName   string
	Subject      string
	ConsumerName string
	MaxAge       time.Duration
}

// NewNATSStream ensures the stream and its durable consumer exist.
func NewNATSStream(ctx context.Context, cfg NATSStreamConfig, logger apt.Logger) (*NATSStream, error) {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultSubmissionStream
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = DefaultSubmissionConsumer
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSubmissionMaxAge
	}

	conn, err := connectNATS(cfg.URL, "kitchenscreens-stream")
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.Subject},
		MaxAge:   cfg.MaxAge,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot create stream %s: %w", cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		FilterSubject: cfg.Subject,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot create consumer %s: %w", cfg.ConsumerName, err)
	}

	return &NATSStream{conn: conn, consumer: consumer, logger: logger}, nil
}

// Subscribe starts consuming. The topic is fixed by the consumer filter.
// A failing handler naks the message so it is redelivered.
func (s *NATSStream) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	cc, err := s.consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			s.logger.Error("stream handler failed", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("cannot consume %s: %w", topic, err)
	}
	s.cc = cc
	return nil
}

func (s *NATSStream) Close() error {
	if s.cc != nil {
		s.cc.Stop()
	}
	return s.conn.Drain()
}
