package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// ParseBrokers splits a comma-separated broker string
func ParseBrokers(brokers string) []string {
	list := strings.Split(brokers, ",")
	out := list[:0]
	for _, b := range list {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Writer is the part of kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes domain events to a single topic
type Producer struct {
	writer Writer
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a synchronous producer for cfg.Topic
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

func NewProducerWithWriter(writer Writer, topic string, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, logger: logger, topic: topic}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes evt keyed by its subject so that every event about the same
// request or profile lands on one partition in order.
func (p *Producer) Publish(ctx context.Context, evt *Event) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish",
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event.type", string(evt.Type)),
	)
	defer span.End()

	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	evt.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "type", Value: []byte(evt.Type)},
		{Key: "event_id", Value: []byte(evt.ID.String())},
	}
	for k, v := range tracing.TraceHeaders(ctx) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.Key()),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %s to Kafka topic %s", evt.Type, p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "event published")
	p.logger.WithContext(ctx).Debugf("Published %s event %s", evt.Type, evt.ID)
	return nil
}
