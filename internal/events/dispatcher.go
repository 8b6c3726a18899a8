package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// ErrQueueFull is returned when an event cannot be enqueued. The caller owns
// the retry; the event is never half-delivered.
var ErrQueueFull = errors.New("event queue full")

// inMemoryDispatcher is a simple synchronous dispatcher, used in tests where
// deterministic delivery matters.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a synchronous dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			// continue processing other handlers despite errors
		}
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// ChannelDispatcher delivers events on a background goroutine so a slow or
// failing handler never delays the publishing call path. Delivery is
// at-least-once from the moment Publish accepts the event: handler errors
// are retried with backoff before being logged and dropped.
type ChannelDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	queue     chan Event
	logger    *zap.Logger
	retries   int
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewChannelDispatcher creates an asynchronous dispatcher. Start must be
// called before events are consumed.
func NewChannelDispatcher(logger *zap.Logger, queueSize, retries int) *ChannelDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if retries < 0 {
		retries = 0
	}
	return &ChannelDispatcher{
		listeners: make(map[EventType][]EventHandler),
		queue:     make(chan Event, queueSize),
		logger:    logger,
		retries:   retries,
	}
}

// Start launches the delivery goroutine.
func (d *ChannelDispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Publish enqueues the event without blocking the caller. A full queue is
// surfaced as ErrQueueFull so the caller can retry instead of losing the
// event silently.
func (d *ChannelDispatcher) Publish(_ context.Context, event Event) error {
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a handler for the given event type.
func (d *ChannelDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Close drains the queue and stops delivery.
func (d *ChannelDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *ChannelDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *ChannelDispatcher) deliver(event Event) {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	// Background context: the publishing request may already be finished.
	ctx := context.Background()
	for _, handler := range handlers {
		backoff := 50 * time.Millisecond
		var err error
		for attempt := 0; attempt <= d.retries; attempt++ {
			if attempt > 0 {
				time.Sleep(backoff)
				backoff *= 2
			}
			if err = handler(ctx, event); err == nil {
				break
			}
		}
		if err != nil {
			d.logger.Error("event handler failed after retries",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}
