package events

import (
	"testing"
	"time"
)

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e CaptureStateChangedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(CaptureStateChangedEvent{CaptureID: 3, OldState: "starting", NewState: "running"})

	got := waitFor(t, received)
	if got.CaptureID != 3 || got.NewState != "running" {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestBus_TypeRouting(t *testing.T) {
	bus := New()
	states := make(chan CaptureStateChangedEvent, 1)
	progress := make(chan CaptureProgressEvent, 1)

	defer bus.Subscribe(func(e CaptureStateChangedEvent) { states <- e })()
	defer bus.Subscribe(func(e CaptureProgressEvent) { progress <- e })()

	bus.Publish(CaptureProgressEvent{CaptureID: 1, Frame: 10})

	got := waitFor(t, progress)
	if got.Frame != 10 {
		t.Errorf("Frame = %d, want 10", got.Frame)
	}
	select {
	case e := <-states:
		t.Errorf("state subscriber received %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_OrderedPerSubscriber(t *testing.T) {
	bus := New()
	ch := make(chan CaptureProgressEvent, 100)
	defer SubscribeToChannel[CaptureProgressEvent](bus, ch)()

	for i := range 50 {
		bus.Publish(CaptureProgressEvent{CaptureID: 1, Frame: uint64(i)})
	}

	for i := range 50 {
		got := waitFor(t, ch)
		if got.Frame != uint64(i) {
			t.Fatalf("event %d has frame %d", i, got.Frame)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureLaunchFailedEvent, 1)

	unsub := bus.Subscribe(func(e CaptureLaunchFailedEvent) { received <- e })
	unsub()

	bus.Publish(CaptureLaunchFailedEvent{Source: "rtsp://cam", Error: "boom"})

	select {
	case e := <-received:
		t.Errorf("received event after unsubscribe: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_NilBusPublish(_ *testing.T) {
	var bus *Bus
	bus.Publish(CaptureLaunchFailedEvent{})
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a no-op unsubscribe")
	}
	unsub()
}
