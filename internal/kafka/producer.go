package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/config"
	"github.com/fathima-sithara/marketplace-chat/internal/events"
	"github.com/fathima-sithara/marketplace-chat/internal/metrics"
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrClosed    = errors.New("producer closed")
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes domain events to kafka from a background goroutine so
// request handlers never wait on the broker. Writes go through a circuit
// breaker; while it is open events are dropped and counted.
type Producer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan events.Event
	done   chan struct{}
}

func NewProducer(kc config.KafkaConfig, bc config.BreakerConfig, log *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(kc.Brokers...),
		Topic:        kc.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(w, bc, log, 1024)
}

func newProducer(w messageWriter, bc config.BreakerConfig, log *zap.Logger, buffer int) *Producer {
	log = log.Named("kafka")
	st := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Interval:    time.Duration(bc.IntervalSec) * time.Second,
		Timeout:     time.Duration(bc.TimeoutSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	p := &Producer{
		writer: w,
		cb:     gobreaker.NewCircuitBreaker(st),
		log:    log,
		queue:  make(chan events.Event, buffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues e without blocking.
func (p *Producer) Publish(_ context.Context, e events.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- e:
		return nil
	default:
		metrics.EventPublished(string(e.Type), false)
		return ErrQueueFull
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for e := range p.queue {
		err := p.write(e)
		metrics.EventPublished(string(e.Type), err == nil)
		if err != nil {
			p.log.Warn("event not published", zap.String("type", string(e.Type)), zap.String("chat_id", e.ChatID), zap.Error(err))
		}
	}
}

func (p *Producer) write(e events.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:     []byte(e.Key()),
		Value:   b,
		Time:    e.At,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(e.Type)}},
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	return err
}

// Close drains queued events, then closes the writer.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.log.Warn("closing producer with undelivered events", zap.Int("pending", len(p.queue)))
	}
	return p.writer.Close()
}
