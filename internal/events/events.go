// Package events publishes resolve outcomes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// ResolveEvent summarizes one resolve call.
type ResolveEvent struct {
	Key        string    `json:"key"`
	Outcome    string    `json:"outcome"` // hit|fill|empty|error
	SubQueries int       `json:"sub_queries"`
	SubHits    int       `json:"sub_hits"`
	Fetched    int       `json:"fetched"`
	Failed     int       `json:"failed"`
	Features   int       `json:"features"`
	DurationMS int64     `json:"duration_ms"`
	TS         time.Time `json:"ts"`
}

// Sink receives resolve events. Publish must not block the caller.
type Sink interface {
	Publish(ctx context.Context, ev ResolveEvent)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ResolveEvent) {}

type Publisher struct {
	topic   string
	logger  *slog.Logger
	prod    sarama.AsyncProducer
	events  chan ResolveEvent
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Sink = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, queueSize, logger), nil
}

// NewPublisherWithProducer takes ownership of prod; Close closes it.
func NewPublisherWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		logger:  logger.With("component", "events"),
		prod:    prod,
		events:  make(chan ResolveEvent, queueSize),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("marshal resolve event", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Key),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev, dropping it when the queue is full or the publisher
// is closed.
func (p *Publisher) Publish(_ context.Context, ev ResolveEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("resolve event dropped", "key", ev.Key)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}
