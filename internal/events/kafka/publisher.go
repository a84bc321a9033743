package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	interfaces "github.com/sheikh-saqib/giving-vault/internal/interfaces"
)

type Publisher struct {
	writer *kafka.Writer
	prefix string
}

// NewPublisher writes to topics named prefix+topic. The writer carries no
// default topic so every message names its own.
func NewPublisher(brokers []string, prefix string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		prefix: prefix,
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	msg, err := p.message(topic, event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// message keys events by their partition key so one donor's events stay in
// order on a single partition.
func (p *Publisher) message(topic string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	msg := kafka.Message{
		Topic: p.prefix + topic,
		Value: data,
	}
	if keyed, ok := event.(interfaces.Keyed); ok {
		msg.Key = []byte(keyed.PartitionKey())
	}
	return msg, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
