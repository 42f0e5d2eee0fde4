package eventbus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var got []string
	bus.Subscribe(KindSlotExtracted, func(e Event) error {
		got = append(got, e.Payload.(SlotExtractedPayload).Slot)
		return nil
	})

	now := time.Now()
	bus.Publish(New("conv-1", KindSlotExtracted, SlotExtractedPayload{Slot: "a"}, now))
	bus.Publish(New("conv-1", KindSlotExtracted, SlotExtractedPayload{Slot: "b"}, now))
	bus.Publish(New("conv-1", KindSlotExtracted, SlotExtractedPayload{Slot: "c"}, now))

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected delivery order: %v", got)
	}
}

func TestSubscriberErrorDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	var sinkCalls int
	bus := NewBus(WithErrorSink(func(Event, error) { sinkCalls++ }))

	var delivered int
	bus.Subscribe(KindStageChanged, func(Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(KindStageChanged, func(Event) error {
		delivered++
		return nil
	})

	bus.Publish(New("conv-1", KindStageChanged, StageChangedPayload{From: "greeting", To: "needs_discovery"}, time.Now()))

	if delivered != 1 {
		t.Fatalf("expected second subscriber to receive the event, delivered=%d", delivered)
	}
	if sinkCalls != 1 {
		t.Fatalf("expected one error-sink call, got %d", sinkCalls)
	}
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	t.Parallel()

	var sinkCalls int
	bus := NewBus(WithErrorSink(func(Event, error) { sinkCalls++ }))

	var delivered int
	bus.Subscribe(KindMeetingExpired, func(Event) error { panic("bad subscriber") })
	bus.Subscribe(KindMeetingExpired, func(Event) error {
		delivered++
		return nil
	})

	bus.Publish(New("conv-1", KindMeetingExpired, MeetingExpiredPayload{HoldID: "h1"}, time.Now()))

	if delivered != 1 {
		t.Fatalf("expected delivery to survive the panic, delivered=%d", delivered)
	}
	if sinkCalls != 1 {
		t.Fatalf("expected one error-sink call, got %d", sinkCalls)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var delivered int
	unsubscribe := bus.Subscribe(KindConsentRecorded, func(Event) error {
		delivered++
		return nil
	})

	e := New("conv-1", KindConsentRecorded, ConsentRecordedPayload{RecordedAt: time.Now()}, time.Now())
	bus.Publish(e)
	unsubscribe()
	bus.Publish(e)
	unsubscribe() // repeat is a no-op

	if delivered != 1 {
		t.Fatalf("expected exactly one delivery, got %d", delivered)
	}
}

func TestSubscribeDuringPublish(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var mu sync.Mutex
	var lateDelivered int

	bus.Subscribe(KindMessageReceived, func(Event) error {
		// Registering from inside a handler must not deadlock.
		bus.Subscribe(KindMessageReceived, func(Event) error {
			mu.Lock()
			lateDelivered++
			mu.Unlock()
			return nil
		})
		return nil
	})

	e := New("conv-1", KindMessageReceived, MessageReceivedPayload{Text: "hi"}, time.Now())
	bus.Publish(e)
	bus.Publish(e)

	mu.Lock()
	defer mu.Unlock()
	// The late subscriber sees the second publish only.
	if lateDelivered == 0 {
		t.Fatal("expected late subscriber to receive subsequent events")
	}
}

func TestEventsHaveUniqueIDs(t *testing.T) {
	t.Parallel()

	a := New("conv-1", KindMessageReceived, nil, time.Now())
	b := New("conv-1", KindMessageReceived, nil, time.Now())
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct non-empty event ids, got %q and %q", a.ID, b.ID)
	}
}
