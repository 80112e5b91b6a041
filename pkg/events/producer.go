// Package events publishes relayed outbox rows to the message broker.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/identitywear/storefront-backend/pkg/config"
)

// Message is a broker-neutral record. Key keeps one aggregate on one partition.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

// Publisher delivers messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes messages with a single kafka-go writer. The topic is
// set per message so one writer serves every topic.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a publisher for the configured brokers.
func NewKafkaPublisher(cfg config.EventsConfig) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return errors.New("topic is required")
	}
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    at,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops messages. Used when no brokers are configured so the
// relay still drains the outbox.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Message) error { return nil }

func (NoopPublisher) Close() error { return nil }

// New picks the kafka publisher when brokers are configured.
func New(cfg config.EventsConfig) (Publisher, error) {
	if !cfg.Enabled() {
		return NoopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg)
}
