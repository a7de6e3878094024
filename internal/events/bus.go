// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event channel full")
)

type registration struct {
	id      string
	handler Handler
}

// Bus is an in-memory event bus. Asynchronous events are delivered by a
// single goroutine in publish order. Handlers of one event run in
// subscription order, type-specific handlers before All handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]registration

	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	eventChan chan Event

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewBus creates a bus whose asynchronous queue holds bufferSize events.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:  make(map[EventType][]registration),
		logger:    logger.Named("event_bus"),
		ctx:       ctx,
		cancel:    cancel,
		eventChan: make(chan Event, bufferSize),
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for one event type, or for every type when
// eventType is All.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	id := uuid.New().String()

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, eventBus: b, typ: eventType}
}

// SubscribeFunc subscribes a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for asynchronous delivery. It never blocks: when
// the queue is full the event is dropped and ErrBusFull returned.
func (b *Bus) Publish(event Event) error {
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	select {
	case b.eventChan <- event:
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishWait queues an event for asynchronous delivery, waiting for room
// in the queue until ctx is done. Events that must not be lost go through
// here; only high-rate updates use Publish.
func (b *Bus) PublishWait(ctx context.Context, event Event) error {
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	select {
	case b.eventChan <- event:
		return nil
	default:
	}

	b.logger.Debug("Event channel full, waiting",
		zap.String("event_type", string(event.Type())))
	select {
	case b.eventChan <- event:
		return nil
	case <-b.ctx.Done():
		b.dropped.Add(1)
		return ErrBusClosed
	case <-ctx.Done():
		b.dropped.Add(1)
		b.logger.Warn("Gave up waiting for event channel",
			zap.String("event_type", string(event.Type())),
			zap.Error(ctx.Err()))
		return fmt.Errorf("publish %s: %w", event.Type(), ctx.Err())
	}
}

// PublishSync delivers an event to every matching handler on the caller's
// goroutine. All handlers run even when some fail; their errors are joined.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	specific, wildcard := b.handlers[event.Type()], b.handlers[All]
	targets := make([]registration, 0, len(specific)+len(wildcard))
	targets = append(targets, specific...)
	targets = append(targets, wildcard...)
	b.mu.RUnlock()

	var errs []error
	for _, r := range targets {
		if err := b.deliver(ctx, r, event); err != nil {
			b.failed.Add(1)
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", r.id),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	b.delivered.Add(1)
	return errors.Join(errs...)
}

// deliver turns a handler panic into an error so one bad subscriber cannot
// stop the delivery goroutine.
func (b *Bus) deliver(ctx context.Context, r registration, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.handler.Handle(ctx, event)
}

func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// Drain what was queued before shutdown.
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			_ = b.PublishSync(b.ctx, event)
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		// Copy so that in-flight PublishSync snapshots stay intact.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, eventType)
		} else {
			b.handlers[eventType] = next
		}
		break
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, delivers the queued ones and waits for
// the delivery goroutine or ctx.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete",
			zap.Uint64("delivered", b.delivered.Load()),
			zap.Uint64("dropped", b.dropped.Load()))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats returns queue and subscription counters.
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlerCounts := make(map[string]int, len(b.handlers))
	for eventType, regs := range b.handlers {
		handlerCounts[string(eventType)] = len(regs)
	}

	return map[string]interface{}{
		"buffer_size":       cap(b.eventChan),
		"pending_events":    len(b.eventChan),
		"event_types":       len(b.handlers),
		"handlers_per_type": handlerCounts,
		"delivered":         b.delivered.Load(),
		"dropped":           b.dropped.Load(),
		"handler_failures":  b.failed.Load(),
	}
}
