package events

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/Alecxender1402/QuickCourt/libs/kafkax"
)

// KafkaNotifier writes each event to the topic named after its type.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers string) (*KafkaNotifier, error) {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:                   kafka.TCP(list...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}, nil
}

func (n *KafkaNotifier) Publish(ctx context.Context, ev Event) error {
	msg, err := kafkaMessage(ctx, ev)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func kafkaMessage(ctx context.Context, ev Event) (kafka.Message, error) {
	payload, err := ev.Payload()
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Topic: ev.Type,
		Key:   []byte(ev.Key()),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return msg, nil
}
