package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Handle(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestEventBus_PublishRequiresStart(t *testing.T) {
	bus := NewEventBus()
	assert.ErrorIs(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "", nil)), ErrBusNotRunning)

	require.NoError(t, bus.Start())
	assert.True(t, bus.IsRunning())
	require.NoError(t, bus.Stop())
	assert.False(t, bus.IsRunning())
	assert.Error(t, bus.Start())
}

func TestEventBus_OrderedDelivery(t *testing.T) {
	bus := NewEventBus()
	require.NoError(t, bus.Start())
	defer bus.Stop()

	rec := &recorder{}
	_, err := bus.Subscribe(EventStatusChanged, rec)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "", map[string]interface{}{"seq": i})))
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 20 }, time.Second, 5*time.Millisecond)
	for i, ev := range rec.snapshot() {
		assert.Equal(t, i, ev.Data()["seq"])
	}
}

func TestEventBus_WildcardAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	require.NoError(t, bus.Start())
	defer bus.Stop()

	all := &recorder{}
	tracks := &recorder{}
	unsubscribeAll, err := bus.Subscribe(AllEvents, all)
	require.NoError(t, err)
	_, err = bus.Subscribe(EventTrackAdded, tracks)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.GetHandlerCount(AllEvents))

	require.NoError(t, bus.Publish(NewEvent(EventTrackAdded, "demo", "s1", nil)))
	require.NoError(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "s1", nil)))

	require.Eventually(t, func() bool {
		return len(all.snapshot()) == 2 && len(tracks.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	unsubscribeAll()
	unsubscribeAll()
	assert.Equal(t, 0, bus.GetHandlerCount(AllEvents))

	require.NoError(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "s1", nil)))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, all.snapshot(), 2)
}

func TestEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewEventBus()
	require.NoError(t, bus.Start())
	defer bus.Stop()

	calls := make(chan struct{}, 2)
	_, err := bus.Subscribe(EventStatusChanged, HandlerFunc(func(ctx context.Context, event Event) error {
		calls <- struct{}{}
		panic("boom")
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "", nil)))
	require.NoError(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "", nil)))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("handler not called after panic")
		}
	}
}

func TestEventBus_DropsWhenQueueFull(t *testing.T) {
	bus := NewEventBusWithQueueSize(1)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	block := make(chan struct{})
	_, err := bus.Subscribe(EventStatusChanged, HandlerFunc(func(ctx context.Context, event Event) error {
		<-block
		return nil
	}))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(NewEvent(EventStatusChanged, "demo", "", nil)))
	}
	close(block)

	stats := bus.GetStats()
	assert.EqualValues(t, 10, stats["published"])
	assert.Greater(t, stats["dropped"].(uint64), uint64(0))
}

func TestEnvelope(t *testing.T) {
	ev := NewEvent(EventStreamStarted, "cam", "sess", map[string]interface{}{"k": "v"})
	env := Envelope(ev)
	assert.Equal(t, EventStreamStarted, env.Type)
	assert.Equal(t, "cam", env.StreamID)
	assert.Equal(t, "sess", env.SessionID)
	assert.Equal(t, "v", env.Data["k"])
}

func TestEventBus_LoggerComponent(t *testing.T) {
	bus := NewEventBus()
	assert.Equal(t, "event-bus", bus.logger.Data["component"])
}
