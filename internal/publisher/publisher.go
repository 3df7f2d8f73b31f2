package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettledEvent is emitted once per settled checkout.
type SettledEvent struct {
	PaymentID   string          `json:"paymentId"`
	CheckoutID  string          `json:"checkoutId"`
	UserID      int64           `json:"userId"`
	Units       int             `json:"units"`
	Total       decimal.Decimal `json:"total"`
	BalanceUsed decimal.Decimal `json:"balanceUsed"`
	ExternalPay decimal.Decimal `json:"externalPaid"`
	Observer    string          `json:"observer"`
	SettledAt   time.Time       `json:"settledAt"`
}

type Publisher interface {
	PublishSettled(ctx context.Context, ev SettledEvent) error
	Close() error
}

// Kafka writes events as JSON keyed by payment id.
type Kafka struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafka(brokers []string, topic string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (k *Kafka) PublishSettled(ctx context.Context, ev SettledEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal settled event: %w", err)
	}
	msg := kafka.Message{Key: []byte(ev.PaymentID), Value: data, Time: ev.SettledAt.UTC()}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("publish settled event", zap.String("payment_id", ev.PaymentID), zap.Error(err))
		return err
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

type Nop struct{}

func (Nop) PublishSettled(context.Context, SettledEvent) error { return nil }

func (Nop) Close() error { return nil }
