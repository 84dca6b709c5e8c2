// Package feed exports committed history entries to a message broker.
package feed

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer delivers one message to a topic.
type Producer interface {
	SendMessage(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

// KafkaProducer is a Producer backed by a kafka-go Writer.
type KafkaProducer struct {
	w *kafka.Writer
}

// NewKafkaProducer connects a writer to brokers. The topic is taken from each message.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *KafkaProducer) SendMessage(ctx context.Context, topic string, key, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
}

func (p *KafkaProducer) Close() error { return p.w.Close() }
