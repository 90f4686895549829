package events

import (
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(StateChangedEvent{Phase: "running", Port: 8000})

	select {
	case got := <-received:
		if got.Phase != "running" || got.Port != 8000 {
			t.Errorf("got %+v, want phase=running port=8000", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := New()
	first := make(chan HealthChangedEvent, 1)
	second := make(chan HealthChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e HealthChangedEvent) { first <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e HealthChangedEvent) { second <- e })
	defer unsub2()

	bus.Publish(HealthChangedEvent{Kind: "unhealthy", ConsecutiveFailures: 2})

	for i, ch := range []chan HealthChangedEvent{first, second} {
		select {
		case got := <-ch:
			if got.ConsecutiveFailures != 2 {
				t.Errorf("subscriber %d got failures=%d, want 2", i, got.ConsecutiveFailures)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	received := make(chan RestartScheduledEvent, 1)

	unsub := bus.Subscribe(func(e RestartScheduledEvent) { received <- e })
	unsub()

	bus.Publish(RestartScheduledEvent{Attempt: 1})

	select {
	case <-received:
		t.Error("received event after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[LogEntryEvent](bus, ch)
	defer unsub()

	bus.Publish(LogEntryEvent{Message: "first"})
	bus.Publish(LogEntryEvent{Message: "second"})

	// Publishing with a full channel must not block; give delivery a moment.
	time.Sleep(50 * time.Millisecond)
	select {
	case e := <-ch:
		if _, ok := e.(LogEntryEvent); !ok {
			t.Errorf("unexpected event type %T", e)
		}
	default:
		t.Fatal("no event delivered")
	}
}
