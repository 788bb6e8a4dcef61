// Package notify contains notifier implementations for record
// lifecycle events.
package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/logger"
)

// KafkaNotifier publishes record events to a kafka topic. The message
// key is "<class>/<operation>" so consumers can partition by class.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier returns a notifier writing to the given brokers and
// topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Default().WithError(err).Errorf("cannot publish %d event(s)", len(messages))
				}
			},
		},
	}
}

// Notify implements core.Notifier.
func (n *KafkaNotifier) Notify(class string, operation core.Operation, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(class + "/" + string(operation)),
		Value: payload,
	})
	if err != nil {
		logger.Default().WithError(err).Errorf("cannot publish %s event for class %s", operation, class)
	}
}

// Close flushes pending messages and releases the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
