package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "orders-reconciliation"

	eventOrphanedHeader = "order_header_orphaned"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends orphaned order headers to the reconciliation topic.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(topic string, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w}
}

func (p *Publisher) ReportOrphan(ctx context.Context, report checkout.OrphanReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal orphan report: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(report.OrderID), // order id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventOrphanedHeader)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish orphan report: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
