package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer the audit stream needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditWriter appends audit records to a Kafka topic keyed by event id, so
// every record of one event lands on the same partition.
type AuditWriter struct {
	writer Writer
}

func NewAuditWriter(brokers []string, topic string) *AuditWriter {
	return &AuditWriter{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}}
}

func NewAuditWriterWithWriter(w Writer) *AuditWriter {
	return &AuditWriter{writer: w}
}

func (a *AuditWriter) Publish(ctx context.Context, key string, body []byte) error {
	if err := a.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (a *AuditWriter) Close() error {
	return a.writer.Close()
}
