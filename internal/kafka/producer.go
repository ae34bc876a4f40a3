// Package kafka streams fulfillment-facing events. The purchase flow
// never depends on a publish succeeding; failed publishes are logged and
// dropped.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-blindbox/internal/config"
	"ms-blindbox/internal/logger"
	"ms-blindbox/internal/models"
)

type Producer struct {
	orderWriter   *kafka.Writer
	paymentWriter *kafka.Writer
	log           *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	return &Producer{
		orderWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topics.OrderCreated,
		}),
		paymentWriter: kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topics.PaymentRecorded,
		}),
		log: log,
	}
}

// PublishOrderCreated streams a completed checkout to fulfillment.
func (p *Producer) PublishOrderCreated(order models.Order) error {
	msgBytes, err := json.Marshal(order)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.orderWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID),
		Value: msgBytes,
	}); err != nil {
		return err
	}
	p.log.Info("KAFKA", fmt.Sprintf("Published order created: %s", order.ID))
	return nil
}

// PublishPaymentRecorded streams a webhook-confirmed payment.
func (p *Producer) PublishPaymentRecorded(event models.PaymentEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.paymentWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PaymentIntentID),
		Value: msgBytes,
	}); err != nil {
		return err
	}
	p.log.Info("KAFKA", fmt.Sprintf("Published payment recorded: %s", event.PaymentIntentID))
	return nil
}

func (p *Producer) Close() error {
	if err := p.orderWriter.Close(); err != nil {
		return err
	}
	return p.paymentWriter.Close()
}
