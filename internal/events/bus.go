package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventHandler processes one event. A returned error is logged, not
// propagated; a panic is recovered and logged the same way.
type EventHandler func(Event) error

// EventFilter decides whether a subscriber should see a given event.
type EventFilter func(Event) bool

// SubscriptionOptions controls how a subscription's handler runs.
type SubscriptionOptions struct {
	Filter     EventFilter
	Async      bool
	BufferSize int
}

// Subscription is a single registered handler.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	Options   SubscriptionOptions
	active    atomic.Bool
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool { return s.active.Load() }

// Stats is a snapshot of the bus's running counters.
type Stats struct {
	EventsPublished   int64
	EventsProcessed   int64
	EventsDropped     int64
	ProcessingErrors  int64
	ActiveSubscribers int64
}

// Config configures the bus's worker pool and channel buffer.
type Config struct {
	NumWorkers int
	BufferSize int
}

// DefaultConfig matches the teacher's defaults, scaled down for
// FinSight's lower per-symbol event volume (a detection cycle emits a
// handful of events per symbol per scan, not per-tick market data).
func DefaultConfig() Config {
	return Config{NumWorkers: 8, BufferSize: 4096}
}

// Bus fans published events out to subscribers through a fixed worker
// pool, grounded on the teacher's EventBus (same Subscribe/Publish/Stats
// shape, same panic-recovering executeHandler).
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan   chan Event
	workerCount int

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64

	subCounter atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Bus and starts its worker pool immediately.
func New(config Config, logger *zap.Logger) *Bus {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subscribers: make(map[EventType][]*Subscription),
		eventChan:   make(chan Event, config.BufferSize),
		workerCount: config.NumWorkers,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}

	for i := 0; i < config.NumWorkers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			b.processEvent(event)
		}
	}
}

func (b *Bus) processEvent(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.GetType()]
	allSubs := b.allSubscribers
	b.mu.RUnlock()

	dispatch := func(sub *Subscription) {
		if !sub.active.Load() {
			return
		}
		if sub.Options.Filter != nil && !sub.Options.Filter(event) {
			return
		}
		if sub.Options.Async {
			go b.executeHandler(sub, event)
		} else {
			b.executeHandler(sub, event)
		}
	}

	for _, sub := range subs {
		dispatch(sub)
	}
	for _, sub := range allSubs {
		dispatch(sub)
	}

	b.eventsProcessed.Add(1)
}

func (b *Bus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.processingErrors.Add(1)
			if b.logger != nil {
				b.logger.Error("event handler panicked",
					zap.String("subscription_id", sub.ID),
					zap.String("event_type", string(event.GetType())),
					zap.Any("panic", r))
			}
		}
	}()

	if err := sub.Handler(event); err != nil {
		b.processingErrors.Add(1)
		if b.logger != nil {
			b.logger.Warn("event handler error",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Error(err))
		}
	}
}

func (b *Bus) subscriptionID() string {
	n := b.subCounter.Add(1)
	return "sub-" + time.Now().Format("20060102150405") + "-" + itoa(n)
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true, BufferSize: 256}
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &Subscription{ID: b.subscriptionID(), EventType: eventType, Handler: handler, Options: options}
	sub.active.Store(true)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.mu.Unlock()

	b.activeSubscribers.Add(1)
	return sub
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler EventHandler, opts ...SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true, BufferSize: 256}
	if len(opts) > 0 {
		options = opts[0]
	}

	sub := &Subscription{ID: b.subscriptionID(), EventType: "*", Handler: handler, Options: options}
	sub.active.Store(true)

	b.mu.Lock()
	b.allSubscribers = append(b.allSubscribers, sub)
	b.mu.Unlock()

	b.activeSubscribers.Add(1)
	return sub
}

// Unsubscribe deactivates a subscription; it stops receiving events but
// is not removed from the internal slice (matching the teacher's
// tombstone-by-flag approach, cheap at FinSight's subscriber counts).
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
	b.activeSubscribers.Add(-1)
}

// Publish sends event to all subscribers without blocking the caller. If
// the channel buffer is full, the event is dropped and counted rather
// than applying backpressure to the detection cycle.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		b.eventsPublished.Add(1)
	default:
		b.eventsDropped.Add(1)
		if b.logger != nil {
			b.logger.Warn("event dropped, buffer full", zap.String("event_type", string(event.GetType())))
		}
	}
}

// PublishSync dispatches event to every matching subscriber from the
// caller's goroutine, for tests and ordering-sensitive callers:
// synchronous handlers run before it returns, async handlers are started
// on their own goroutines.
func (b *Bus) PublishSync(event Event) {
	b.eventsPublished.Add(1)
	b.processEvent(event)
}

// Stats returns a snapshot of the bus's counters.
func (b *Bus) Stats() Stats {
	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsProcessed:   b.eventsProcessed.Load(),
		EventsDropped:     b.eventsDropped.Load(),
		ProcessingErrors:  b.processingErrors.Load(),
		ActiveSubscribers: b.activeSubscribers.Load(),
	}
}

// Close stops the worker pool and waits for its workers to exit; events
// still buffered in the channel are not delivered.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}
