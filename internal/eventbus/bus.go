// Package eventbus is an in-memory fanout for lifecycle events (job runs,
// broadcasts, config reloads). Publish never blocks; a slow subscriber loses
// events instead of stalling the publisher.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by fitbuddy components.
const (
	JobStarted        = "job.started"
	JobFinished       = "job.finished"
	JobFailed         = "job.failed"
	JobSkipped        = "job.skipped"
	BroadcastFinished = "broadcast.finished"
	ConfigReloaded    = "config.reloaded"
)

// Event data should stay small and JSON-serializable; sinks export it as is.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Mem is the default Bus. It owns no goroutines.
type Mem struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped atomic.Uint64
}

func New() *Mem {
	return &Mem{subs: map[uint64]chan Event{}}
}

func (b *Mem) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	// Sends are non-blocking, so holding the read lock here is cheap and keeps
	// unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Mem) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Mem) Dropped() uint64 { return b.dropped.Load() }
