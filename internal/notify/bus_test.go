package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	ch, cancel := bus.Subscribe(SignalGenerationComplete)
	defer cancel()

	bus.Publish(SignalGenerationComplete, []byte(`{"type":"generation_complete"}`))

	select {
	case got := <-ch:
		assert.Equal(t, SignalGenerationComplete, got.Signal)
		assert.JSONEq(t, `{"type":"generation_complete"}`, string(got.Payload))
	default:
		t.Fatal("expected a broadcast")
	}
}

func TestBusSignalIsolation(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	progress, cancelProgress := bus.Subscribe(SignalOptimizationProgress)
	defer cancelProgress()

	bus.Publish(SignalGenerationComplete, []byte("x"))
	assert.Empty(t, progress)
}

func TestBusPublishFullBufferDoesNotBlock(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ch, cancel := bus.Subscribe(SignalTimetableReload)
	defer cancel()

	bus.Publish(SignalTimetableReload, []byte("a"))
	bus.Publish(SignalTimetableReload, []byte("b")) // dropped, must not block

	got := <-ch
	assert.Equal(t, []byte("a"), got.Payload)
	assert.Empty(t, ch)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	ch, cancel := bus.Subscribe(SignalTimetableReload)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)

	bus.Publish(SignalTimetableReload, []byte("x")) // no subscriber, no panic
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe(SignalGenerationComplete)
	bus.Close()

	_, open := <-ch
	require.False(t, open)

	cancel() // after close, still safe
	bus.Publish(SignalGenerationComplete, []byte("x"))

	late, lateCancel := bus.Subscribe(SignalGenerationComplete)
	defer lateCancel()
	_, open = <-late
	assert.False(t, open)
}
