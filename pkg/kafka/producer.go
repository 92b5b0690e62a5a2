package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wooconduit/conduit/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers     []string
	EventsTopic string
	ErrorTopic  string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers string, eventsTopic string, errorTopic string) Config {
	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	return Config{
		Brokers:     brokerList,
		EventsTopic: eventsTopic,
		ErrorTopic:  errorTopic,
	}
}

// Producer handles producing messages to Kafka
type Producer struct {
	writer      *kafka.Writer
	errorWriter *kafka.Writer
	logger      ectologger.Logger
	topic       string
	errorTopic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	errorWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ErrorTopic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:      writer,
		errorWriter: errorWriter,
		logger:      logger,
		topic:       cfg.EventsTopic,
		errorTopic:  cfg.ErrorTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if p.errorWriter != nil {
		if err := p.errorWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SyncEventMessage is one sync run outcome published for downstream consumers
type SyncEventMessage struct {
	// Metadata
	ServerID string    `json:"server_id"`
	Domain   string    `json:"domain"`
	Resource string    `json:"resource"`
	Identity string    `json:"identity"`
	RunID    string    `json:"run_id"`
	Action   string    `json:"action"` // pulled, pushed, created, skipped, failed
	Error    string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// PollEventMessage summarizes one polling pass over a store
type PollEventMessage struct {
	Type      string    `json:"type"` // "poll.started" | "poll.completed"
	ServerID  string    `json:"server_id"`
	Resource  string    `json:"resource"`
	RunID     string    `json:"run_id"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Producer) messageHeaders(ctx context.Context, serverID, resource, identity string) []kafka.Header {
	headers := []kafka.Header{
		{Key: "server_id", Value: []byte(serverID)},
		{Key: "resource", Value: []byte(resource)},
	}
	if identity != "" {
		headers = append(headers, kafka.Header{Key: "identity", Value: []byte(identity)})
	}

	// W3C trace context headers for distributed tracing
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}
	return headers
}

// PublishSyncEvent publishes one sync outcome to Kafka
func (p *Producer) PublishSyncEvent(ctx context.Context, msg *SyncEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishSyncEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("server_id", msg.ServerID),
		attribute.String("resource", msg.Resource),
		attribute.String("identity", msg.Identity),
		attribute.String("action", msg.Action),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	// Identity-keyed so one entity's events land on one partition in order
	key := fmt.Sprintf("%s:%s", msg.ServerID, msg.Identity)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: p.messageHeaders(ctx, msg.ServerID, msg.Resource, msg.Identity),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published sync event to Kafka: identity=%s action=%s trace=%s",
		msg.Identity, msg.Action, msg.TraceID)

	return nil
}

// PublishSyncError publishes a failed sync outcome to the error topic
func (p *Producer) PublishSyncError(ctx context.Context, msg *SyncEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishSyncError")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.errorTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("server_id", msg.ServerID),
		attribute.String("identity", msg.Identity),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal sync error event: %w", err)
	}

	if p.errorWriter == nil {
		return fmt.Errorf("errorWriter is nil (error topic not configured)")
	}

	key := fmt.Sprintf("%s:%s", msg.ServerID, msg.Identity)

	if err := p.errorWriter.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: p.messageHeaders(ctx, msg.ServerID, msg.Resource, msg.Identity),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka error topic %s", p.errorTopic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	return nil
}

// PublishPollEvent publishes a polling lifecycle event
func (p *Producer) PublishPollEvent(ctx context.Context, evt *PollEventMessage) error {
	if evt == nil {
		return fmt.Errorf("poll event is nil")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal poll event: %w", err)
	}

	key := fmt.Sprintf("%s:%s", evt.ServerID, evt.Resource)

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: p.messageHeaders(ctx, evt.ServerID, evt.Resource, ""),
	}); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish poll event to Kafka topic %s", p.topic)
		return err
	}

	return nil
}

// PublishBatch publishes multiple sync events in a batch
func (p *Producer) PublishBatch(ctx context.Context, messages []*SyncEventMessage) error {
	if len(messages) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishBatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.Int("messaging.batch_size", len(messages)),
	)

	traceID := tracing.GetTraceID(ctx)
	spanID := tracing.GetSpanID(ctx)

	kafkaMessages := make([]kafka.Message, len(messages))

	for i, msg := range messages {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		msg.TraceID = traceID
		msg.SpanID = spanID

		data, err := json.Marshal(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed to marshal message %d", i))
			return fmt.Errorf("failed to marshal message %d: %w", i, err)
		}

		kafkaMessages[i] = kafka.Message{
			Key:     []byte(fmt.Sprintf("%s:%s", msg.ServerID, msg.Identity)),
			Value:   data,
			Headers: p.messageHeaders(ctx, msg.ServerID, msg.Resource, msg.Identity),
		}
	}

	err := p.writer.WriteMessages(ctx, kafkaMessages...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish batch")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish batch to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "batch published")
	p.logger.WithContext(ctx).Infof("Published %d sync events to Kafka", len(messages))
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
