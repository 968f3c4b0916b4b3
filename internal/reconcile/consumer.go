package reconcile

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer checks every order reported on the reconciliation topic.
type Consumer struct {
	reconciler *Reconciler
	reader     messageReader
	logger     *zap.Logger
}

func NewConsumer(reconciler *Reconciler, logger *zap.Logger, topic string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "storefront-reconcile",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reconciler: reconciler, reader: reader, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Error("error reading message", zap.Error(err))
		return
	}

	var report checkout.OrphanReport
	if err := json.Unmarshal(m.Value, &report); err != nil {
		c.logger.Error("error parsing message", zap.Error(err))
		return
	}
	if report.OrderID == "" {
		c.logger.Warn("message without order id", zap.ByteString("key", m.Key))
		return
	}

	drift, err := c.reconciler.Check(ctx, report.OrderID)
	if err != nil {
		c.logger.Error("check reported order failed", zap.String("order_id", report.OrderID), zap.Error(err))
		return
	}
	if drift == nil {
		c.logger.Info("reported order is consistent", zap.String("order_id", report.OrderID))
		return
	}

	if _, err := c.reconciler.Apply(ctx, []Drift{*drift}); err != nil {
		c.logger.Error("apply reconciliation failed", zap.String("order_id", report.OrderID), zap.Error(err))
	}
}
