// Package events provides FinSight's internal event bus: a worker-pool
// fan-out broadcaster used for observability and cross-component
// notification (not for the detection cycle's own control flow, which is
// driven directly by internal/scheduler). Adapted from the teacher's
// internal/events/event_bus.go (worker pool, Subscription/EventBus/Stats
// shape), with the trading-specific EventType vocabulary replaced by the
// five events a FinSight detection cycle actually emits.
package events

import (
	"sync/atomic"
	"time"

	"github.com/finsight/finsight/pkg/types"
)

// EventType categorizes an Event.
type EventType string

const (
	EventTypeBarsFetched    EventType = "bars_fetched"
	EventTypeAnomalyEmitted EventType = "anomaly_emitted"
	EventTypeDecisionMade   EventType = "decision_made"
	EventTypeOutcomeWritten EventType = "outcome_written"
	EventTypeQualityUpdated EventType = "quality_updated"
	EventTypeError          EventType = "error"
)

// Event is the common interface every published event satisfies.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides the common Event fields.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetID() string           { return e.ID }

var eventCounter atomic.Int64

func newBaseEvent(eventType EventType) BaseEvent {
	n := eventCounter.Add(1)
	return BaseEvent{
		ID:        eventID(eventType, n),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func eventID(eventType EventType, n int64) string {
	return string(eventType) + "-" + itoa(n)
}

func itoa(i int64) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// BarsFetchedEvent marks a completed bar fetch for one symbol.
type BarsFetchedEvent struct {
	BaseEvent
	Symbol string
	Count  int
}

// NewBarsFetchedEvent creates a BarsFetchedEvent.
func NewBarsFetchedEvent(symbol string, count int) *BarsFetchedEvent {
	return &BarsFetchedEvent{BaseEvent: newBaseEvent(EventTypeBarsFetched), Symbol: symbol, Count: count}
}

// AnomalyEmittedEvent marks a detector finding, before the agent decides.
type AnomalyEmittedEvent struct {
	BaseEvent
	Anomaly types.Anomaly
}

// NewAnomalyEmittedEvent creates an AnomalyEmittedEvent.
func NewAnomalyEmittedEvent(a types.Anomaly) *AnomalyEmittedEvent {
	return &AnomalyEmittedEvent{BaseEvent: newBaseEvent(EventTypeAnomalyEmitted), Anomaly: a}
}

// DecisionMadeEvent marks the Decision Agent's output for one anomaly.
type DecisionMadeEvent struct {
	BaseEvent
	Symbol   string
	Decision types.Decision
}

// NewDecisionMadeEvent creates a DecisionMadeEvent.
func NewDecisionMadeEvent(symbol string, d types.Decision) *DecisionMadeEvent {
	return &DecisionMadeEvent{BaseEvent: newBaseEvent(EventTypeDecisionMade), Symbol: symbol, Decision: d}
}

// OutcomeWrittenEvent marks a finalized Outcome row.
type OutcomeWrittenEvent struct {
	BaseEvent
	Outcome types.Outcome
}

// NewOutcomeWrittenEvent creates an OutcomeWrittenEvent.
func NewOutcomeWrittenEvent(o types.Outcome) *OutcomeWrittenEvent {
	return &OutcomeWrittenEvent{BaseEvent: newBaseEvent(EventTypeOutcomeWritten), Outcome: o}
}

// QualityUpdatedEvent marks a PatternQuality recomputation.
type QualityUpdatedEvent struct {
	BaseEvent
	Quality types.PatternQuality
}

// NewQualityUpdatedEvent creates a QualityUpdatedEvent.
func NewQualityUpdatedEvent(q types.PatternQuality) *QualityUpdatedEvent {
	return &QualityUpdatedEvent{BaseEvent: newBaseEvent(EventTypeQualityUpdated), Quality: q}
}

// ErrorEvent carries a component failure for observability.
type ErrorEvent struct {
	BaseEvent
	Component string
	Err       string
}

// NewErrorEvent creates an ErrorEvent.
func NewErrorEvent(component string, err error) *ErrorEvent {
	return &ErrorEvent{BaseEvent: newBaseEvent(EventTypeError), Component: component, Err: err.Error()}
}
