package notify

import (
	"sync"

	"github.com/yanun0323/logs"
)

// Signal names a local in-process broadcast, distinct from user-visible
// notifications.
type Signal string

const (
	SignalGenerationComplete   Signal = "generation.complete"
	SignalOptimizationProgress Signal = "optimization.progress"
	SignalTimetableReload      Signal = "timetable.reload"
)

// Broadcast is one delivered local signal with its attached payload.
type Broadcast struct {
	Signal  Signal
	Payload []byte
}

// Broadcaster publishes named local signals to interested components.
type Broadcaster interface {
	Publish(signal Signal, payload []byte)
}

// NopBroadcaster drops every broadcast.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Signal, []byte) {}

const defaultSubscriberBuffer = 16

// Bus fans local signals out to subscriber channels. Publishing never
// blocks; a subscriber with a full buffer misses the broadcast.
type Bus struct {
	mu     sync.RWMutex
	buffer int
	nextID int
	subs   map[Signal]map[int]chan Broadcast
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{
		buffer: buffer,
		subs:   make(map[Signal]map[int]chan Broadcast),
	}
}

// Subscribe registers interest in one signal. The returned cancel func
// releases the subscription and closes the channel.
func (b *Bus) Subscribe(signal Signal) (<-chan Broadcast, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Broadcast, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	if b.subs[signal] == nil {
		b.subs[signal] = make(map[int]chan Broadcast)
	}
	b.subs[signal][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[signal]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers the payload to every current subscriber of the signal.
func (b *Bus) Publish(signal Signal, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[signal] {
		select {
		case ch <- Broadcast{Signal: signal, Payload: payload}:
		default:
			logs.Warnf("local broadcast dropped, signal: %s", signal)
		}
	}
}

// Close tears the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
}
