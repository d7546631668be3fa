package poller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Clearer empties the cart stored under Key.
type Clearer interface {
	Key() string
	Clear(ctx context.Context) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type checkoutEvent struct {
	CartKey string `json:"cart_key"`
}

// Poller clears the cart when a checkout for its key completes.
type Poller struct {
	store  Clearer
	reader messageReader
	log    logrus.FieldLogger
}

func NewPoller(store Clearer, topic string, log logrus.FieldLogger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "storefront-cart",
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{store: store, reader: reader, log: log}
}

// Run consumes messages until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.handleNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Error("error closing reader")
	}
}

func (p *Poller) handleNext(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.WithError(err).Error("error reading message")
		}
		return
	}

	var event checkoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.WithError(err).WithField("offset", m.Offset).Warn("error parsing checkout message")
		return
	}
	if event.CartKey == "" {
		p.log.WithField("offset", m.Offset).Warn("checkout message without cart_key")
		return
	}
	if event.CartKey != p.store.Key() {
		return
	}

	if err := p.store.Clear(ctx); err != nil {
		p.log.WithError(err).Error("failed to clear cart after checkout")
		return
	}
	p.log.WithField("cart_key", event.CartKey).Info("cart cleared after checkout")
}
