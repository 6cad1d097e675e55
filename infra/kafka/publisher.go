// Package kafka publishes dispatch lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/regiondispatch/core/logger"
	"github.com/kilianp07/regiondispatch/core/notify"
)

// Config holds the writer settings.
type Config struct {
	Brokers      []string `json:"brokers"`
	Topic        string   `json:"topic"`
	RequiredAcks int      `json:"required_acks"`
	BatchTimeout int      `json:"batch_timeout_ms"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "regiondispatch.events"
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = int(kafka.RequireAll)
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	switch kafka.RequiredAcks(c.RequiredAcks) {
	case kafka.RequireNone, kafka.RequireOne, kafka.RequireAll:
	default:
		return fmt.Errorf("kafka.required_acks must be -1, 0 or 1")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements notify.Publisher. Messages are keyed by the envelope
// key so events of one call stay on one partition in order.
type Publisher struct {
	w   messageWriter
	log logger.Logger
}

var _ notify.Publisher = (*Publisher)(nil)

// NewPublisher creates a kafka-go writer for cfg.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		BatchTimeout:           time.Duration(cfg.BatchTimeout) * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	log = logger.OrNop(log)
	log.Infof("kafka writer on %v topic %s", cfg.Brokers, cfg.Topic)
	return &Publisher{w: w, log: log}, nil
}

// Publish writes env as one message.
func (p *Publisher) Publish(ctx context.Context, env notify.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(env.Key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(env.Event)},
			{Key: "id", Value: []byte(env.ID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
