package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaEvent struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	CartKey string    `json:"cart_key"`
	At      time.Time `json:"at"`
}

// Kafka publishes notifications to a topic so other UI surfaces can show them.
type Kafka struct {
	writer  messageWriter
	cartKey string
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewKafka(cartKey, topic string, log logrus.FieldLogger, brokers ...string) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(_ []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).Warn("publish notification failed")
			}
		},
	}
	return newKafka(w, cartKey, log)
}

func newKafka(w messageWriter, cartKey string, log logrus.FieldLogger) *Kafka {
	return &Kafka{
		writer:  w,
		cartKey: cartKey,
		timeout: 5 * time.Second,
		log:     log,
	}
}

func (k *Kafka) ReportError(msg string) {
	payload, err := json.Marshal(kafkaEvent{
		Level:   "error",
		Message: msg,
		CartKey: k.cartKey,
		At:      time.Now().UTC(),
	})
	if err != nil {
		k.log.WithError(err).Error("marshal notification failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(uuid.NewString()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("cart.notification")},
		},
	})
	if err != nil {
		k.log.WithError(err).Warn("publish notification failed")
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
