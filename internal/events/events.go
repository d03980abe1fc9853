// Package events fans item and batch transitions out to subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/photoup/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Item lifecycle events
	EventItemQueued    EventType = "item_queued"    // Item (re)entered the queue
	EventItemEncoding  EventType = "item_encoding"  // Worker picked the item up
	EventItemUploading EventType = "item_uploading" // Encoding done, transmit started
	EventItemProgress  EventType = "item_progress"  // Blended progress changed
	EventItemSucceeded EventType = "item_succeeded" // Store acknowledged the item
	EventItemFailed    EventType = "item_failed"    // Read, transport or protocol failure

	// Batch events
	EventBatchSelected  EventType = "batch_selected"  // Item set replaced by a new selection
	EventBatchStarted   EventType = "batch_started"   // Submit or retry run began
	EventBatchCompleted EventType = "batch_completed" // Run drained; summary attached
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ItemEvent carries a snapshot of one item after a state or progress change.
type ItemEvent struct {
	BaseEvent
	ItemID   string
	Index    int // Position in selection order
	Name     string
	Size     int64
	Status   string
	Progress int // 0..100
	Error    string
	RecordID string // Store-assigned identity, set on success
}

// BatchEvent represents a batch-level transition.
type BatchEvent struct {
	BaseEvent
	Retry      bool // True for retry-failed runs
	Total      int
	Success    int
	Failed     int
	InProgress int
	Advisory   string
	Duration   time.Duration
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{bufferSize: bufferSize}
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events for a full subscriber are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, ch := range eb.all {
		close(ch)
	}
}

// UnsubscribeAll removes a channel returned by SubscribeAll. The channel is
// not closed; the caller stops reading from it.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	for i, sub := range eb.all {
		if sub == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			return
		}
	}
}

// ResetDroppedEventCount returns the number of events dropped for full
// subscribers since the last call and resets the counter.
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
