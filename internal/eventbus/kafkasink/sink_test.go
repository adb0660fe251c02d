package kafkasink

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fitbuddy/internal/eventbus"
	logx "fitbuddy/pkg/logx"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type memProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (p *memProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *memProducer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *memProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func TestSinkExportsEvents(t *testing.T) {
	bus := eventbus.New()
	prod := &memProducer{}
	sink := New(bus, prod, "test-host", logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	// wait for the subscription before publishing
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.JobFinished, Data: map[string]string{"job": "motivation"}})
		return prod.count() > 0
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	prod.mu.Lock()
	defer prod.mu.Unlock()
	require.True(t, prod.closed)
	m := prod.msgs[0]
	require.Equal(t, eventbus.JobFinished, string(m.Key))

	var env struct {
		Source string `json:"source"`
		Event  struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(m.Value, &env))
	require.Equal(t, "test-host", env.Source)
	require.Equal(t, "motivation", env.Event.Data["job"])
}
