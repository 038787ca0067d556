package kafka

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"kcd-ticketing/internal/models"

	"github.com/segmentio/kafka-go"
)

// OrderEvent is the envelope published for every order lifecycle transition.
type OrderEvent struct {
	Type      string       `json:"type"`
	Order     models.Order `json:"order"`
	Timestamp time.Time    `json:"timestamp"`
}

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// PublishOrderEvent streams a lifecycle event keyed by order ID, so all
// events for one order land in the same partition in order.
func (p *Producer) PublishOrderEvent(eventType string, order models.Order) error {
	event := OrderEvent{
		Type:      eventType,
		Order:     order,
		Timestamp: time.Now(),
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(order.ID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// EnsureTopicExists creates the topic if the broker does not have it yet.
func EnsureTopicExists(brokers []string, topic string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	return controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
