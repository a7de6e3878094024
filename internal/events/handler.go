// internal/events/handler.go
package events

import (
	"context"
	"sync"
)

// Handler processes events. Handlers run on the bus goroutine and must not
// block for long.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Typed adapts a function taking one concrete event type. Events of any
// other type are ignored, so it can be subscribed to All.
func Typed[T Event](fn func(ctx context.Context, event T) error) HandlerFunc {
	return func(ctx context.Context, event Event) error {
		e, ok := event.(T)
		if !ok {
			return nil
		}
		return fn(ctx, e)
	}
}

// Subscription is returned by Subscribe.
type Subscription interface {
	// Unsubscribe removes the handler. Calling it again is a no-op.
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
	once     sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.eventBus.unsubscribe(s.id, s.typ)
	})
}
