package events

import (
	"errors"
	"testing"
	"time"

	"github.com/finsight/finsight/pkg/types"
)

func TestPublishSyncDeliversToSubscriber(t *testing.T) {
	bus := New(Config{NumWorkers: 1, BufferSize: 16}, nil)
	defer bus.Close()

	received := make(chan Event, 1)
	bus.Subscribe(EventTypeAnomalyEmitted, func(e Event) error {
		received <- e
		return nil
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewAnomalyEmittedEvent(types.Anomaly{Symbol: "AAPL"}))

	select {
	case e := <-received:
		ev, ok := e.(*AnomalyEmittedEvent)
		if !ok || ev.Anomaly.Symbol != "AAPL" {
			t.Fatalf("unexpected event: %+v", e)
		}
	default:
		t.Fatal("handler was not invoked synchronously")
	}
}

func TestSubscribeAllReceivesEveryEventType(t *testing.T) {
	bus := New(Config{NumWorkers: 1, BufferSize: 16}, nil)
	defer bus.Close()

	var count int
	bus.SubscribeAll(func(e Event) error {
		count++
		return nil
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewBarsFetchedEvent("AAPL", 20))
	bus.PublishSync(NewDecisionMadeEvent("AAPL", types.Decision{State: types.StateMonitor}))

	if count != 2 {
		t.Fatalf("got %d deliveries, want 2", count)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(Config{NumWorkers: 1, BufferSize: 16}, nil)
	defer bus.Close()

	var count int
	sub := bus.Subscribe(EventTypeOutcomeWritten, func(e Event) error {
		count++
		return nil
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewOutcomeWrittenEvent(types.Outcome{AnomalyID: "a1"}))
	bus.Unsubscribe(sub)
	bus.PublishSync(NewOutcomeWrittenEvent(types.Outcome{AnomalyID: "a2"}))

	if count != 1 {
		t.Fatalf("got %d deliveries, want 1 (after unsubscribe)", count)
	}
}

func TestHandlerErrorIncrementsProcessingErrors(t *testing.T) {
	bus := New(Config{NumWorkers: 1, BufferSize: 16}, nil)
	defer bus.Close()

	bus.Subscribe(EventTypeError, func(e Event) error {
		return errors.New("boom")
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewErrorEvent("detector", errors.New("z-score overflow")))

	if bus.Stats().ProcessingErrors != 1 {
		t.Fatalf("ProcessingErrors = %d, want 1", bus.Stats().ProcessingErrors)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	bus := New(Config{NumWorkers: 1, BufferSize: 16}, nil)
	defer bus.Close()

	bus.Subscribe(EventTypeQualityUpdated, func(e Event) error {
		panic("unexpected")
	}, SubscriptionOptions{Async: false})

	bus.PublishSync(NewQualityUpdatedEvent(types.PatternQuality{SampleSize: 5}))

	if bus.Stats().ProcessingErrors != 1 {
		t.Fatalf("ProcessingErrors = %d, want 1 after recovered panic", bus.Stats().ProcessingErrors)
	}
}

func TestPublishAsyncIsDeliveredEventually(t *testing.T) {
	bus := New(Config{NumWorkers: 2, BufferSize: 16}, nil)
	defer bus.Close()

	done := make(chan struct{})
	bus.Subscribe(EventTypeBarsFetched, func(e Event) error {
		close(done)
		return nil
	})

	bus.Publish(NewBarsFetchedEvent("MSFT", 10))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler was not invoked within timeout")
	}
}
