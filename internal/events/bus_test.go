package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEventBus_EmitReachesSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus()
	var calls atomic.Int32
	done := make(chan struct{}, 2)
	handler := func(ctx context.Context, e Event) error {
		calls.Add(1)
		done <- struct{}{}
		return nil
	}
	bus.Subscribe(EventPeerConnected, "a", handler)
	bus.Subscribe(EventPeerConnected, "b", handler)
	assert.Equal(t, 2, bus.HandlerCount(EventPeerConnected))

	bus.Emit(context.Background(), Event{Type: EventPeerConnected, Source: "test"})
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}
	bus.Stop()
	assert.Equal(t, int32(2), calls.Load())
}

func TestEventBus_SubscribeSameNameReplaces(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventMatchFailed, "telemetry", func(context.Context, Event) error { return errors.New("old") })
	bus.Subscribe(EventMatchFailed, "telemetry", func(context.Context, Event) error { return nil })
	assert.Equal(t, 1, bus.HandlerCount(EventMatchFailed))
	assert.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventMatchFailed}))

	bus.Unsubscribe(EventMatchFailed, "telemetry")
	assert.Zero(t, bus.HandlerCount(EventMatchFailed))
}

func TestEventBus_EmitSyncRecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewEventBus()
	boom := errors.New("boom")
	bus.Subscribe(EventShutdown, "panics", func(context.Context, Event) error { panic("bad handler") })
	bus.Subscribe(EventShutdown, "fails", func(context.Context, Event) error { return boom })

	err := bus.EmitSync(context.Background(), Event{Type: EventShutdown})
	require.ErrorIs(t, err, boom)
	bus.Stop()
}

func TestEventBus_StopIsIdempotentAndDropsEvents(t *testing.T) {
	bus := NewEventBus()
	var calls atomic.Int32
	bus.Subscribe(EventShutdown, "count", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})
	bus.Stop()
	bus.Stop()

	select {
	case <-bus.StopCh():
	default:
		t.Fatal("stop channel not closed")
	}
	bus.Emit(context.Background(), Event{Type: EventShutdown})
	assert.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventShutdown}))
	assert.Zero(t, calls.Load())
}
