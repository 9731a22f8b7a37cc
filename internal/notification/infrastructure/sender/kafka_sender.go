// Package sender holds delivery adapters behind the domain Sender interface.
package sender

import (
	"context"

	"github.com/savacoop/saccocore/internal/notification/domain"
	"github.com/savacoop/saccocore/pkg/mq"
)

// KafkaSender publishes delivery commands to Kafka. A downstream consumer
// (SMS gateway adapter, mail relay) performs the actual send.
type KafkaSender struct {
	producer *mq.KafkaProducer
	topic    string
}

// DeliveryCommand is the wire format consumed by gateway adapters.
type DeliveryCommand struct {
	Target  string `json:"target"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func NewKafkaSender(producer *mq.KafkaProducer, topic string) domain.Sender {
	return &KafkaSender{producer: producer, topic: topic}
}

// Send publishes the command keyed by target so each recipient sees messages
// in order.
func (s *KafkaSender) Send(ctx context.Context, target, title, message string) error {
	return s.producer.SendMessage(ctx, s.topic, target, DeliveryCommand{
		Target:  target,
		Title:   title,
		Message: message,
	})
}
