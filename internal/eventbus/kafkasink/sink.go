// Package kafkasink forwards event bus traffic to a Kafka topic as JSON, one
// message per event keyed by event type. Export is best effort: write errors
// are logged and the events are dropped.
package kafkasink

import (
	"context"
	"encoding/json"
	"time"

	"fitbuddy/internal/eventbus"
	logx "fitbuddy/pkg/logx"

	"github.com/segmentio/kafka-go"
)

const (
	defaultBatch = 32
	flushEvery   = time.Second
)

// Producer is the write side of a kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	bus  eventbus.Bus
	out  Producer
	log  logx.Logger
	host string
}

// NewWriter builds the synchronous writer used in production.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func New(bus eventbus.Bus, out Producer, source string, log logx.Logger) *Sink {
	return &Sink{bus: bus, out: out, log: log, host: source}
}

type envelope struct {
	Source string         `json:"source"`
	Event  eventbus.Event `json:"event"`
}

// Run pumps events until ctx is done, flushing on batch size or every second.
// It closes the producer on return.
func (s *Sink) Run(ctx context.Context) error {
	events, unsub := s.bus.Subscribe(256)
	defer unsub()
	defer func() {
		if err := s.out.Close(); err != nil {
			s.log.Warn("kafka writer close failed", logx.Err(err))
		}
	}()

	tick := time.NewTicker(flushEvery)
	defer tick.Stop()

	batch := make([]kafka.Message, 0, defaultBatch)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.out.WriteMessages(ctx, batch...); err != nil {
			s.log.Warn("event export failed", logx.Int("events", len(batch)), logx.Err(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			flush(fctx)
			cancel()
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := s.encode(ev)
			if err != nil {
				s.log.Debug("event not exportable", logx.String("type", ev.Type), logx.Err(err))
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= defaultBatch {
				flush(ctx)
			}
		case <-tick.C:
			flush(ctx)
		}
	}
}

func (s *Sink) encode(ev eventbus.Event) (kafka.Message, error) {
	b, err := json.Marshal(envelope{Source: s.host, Event: ev})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.Type), Value: b, Time: ev.Time}, nil
}
