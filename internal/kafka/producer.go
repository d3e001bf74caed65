package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-fulfillment/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

// Publish writes a single message to the given topic.
func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

// OrderEvent is the payload streamed for order lifecycle topics.
type OrderEvent struct {
	Type      string       `json:"type"`
	Reference string       `json:"reference"`
	Order     models.Order `json:"order"`
	Timestamp time.Time    `json:"timestamp"`
}

// PublishOrderEvent streams an order lifecycle event keyed by reference.
func (p *Producer) PublishOrderEvent(topic, eventType string, order models.Order) error {
	msgBytes, err := json.Marshal(OrderEvent{
		Type:      eventType,
		Reference: order.Reference,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.Publish(topic, order.Reference, msgBytes)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
