package ui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

// UpdateSender forwards engine events to the UI without ever blocking the
// event bus. Events that do not fit in the channel are dropped and counted.
type UpdateSender struct {
	msgChan        chan tea.Msg
	sub            events.Subscription
	droppedUpdates atomic.Uint64
	sentUpdates    atomic.Uint64
	logger         *zap.Logger
	statsInterval  time.Duration
	stopStats      chan struct{}
	closeOnce      sync.Once
}

// NewUpdateSender subscribes to every event on bus.
func NewUpdateSender(bus *events.Bus, buffer int, logger *zap.Logger) *UpdateSender {
	us := &UpdateSender{
		msgChan:       make(chan tea.Msg, buffer),
		logger:        logger.Named("ui_updates"),
		statsInterval: 30 * time.Second,
		stopStats:     make(chan struct{}),
	}
	if bus != nil {
		us.sub = bus.Subscribe(events.All, us)
	}

	go us.logStats()
	return us
}

// Handle implements events.Handler.
func (us *UpdateSender) Handle(_ context.Context, ev events.Event) error {
	us.SendUpdate(EngineEventMsg{Event: ev})
	return nil
}

// SendUpdate sends a message to UI without blocking
func (us *UpdateSender) SendUpdate(msg tea.Msg) {
	select {
	case us.msgChan <- msg:
		us.sentUpdates.Add(1)
	default:
		us.droppedUpdates.Add(1)
	}
}

// Listen returns a command that waits for the next forwarded message.
func (us *UpdateSender) Listen() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-us.msgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// GetStats returns current statistics
func (us *UpdateSender) GetStats() (sent, dropped uint64) {
	return us.sentUpdates.Load(), us.droppedUpdates.Load()
}

func (us *UpdateSender) logStats() {
	ticker := time.NewTicker(us.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, dropped := us.GetStats()
			if dropped > 0 {
				us.logger.Warn("UI update statistics",
					zap.Uint64("sent", sent),
					zap.Uint64("dropped", dropped),
					zap.Float64("drop_rate", float64(dropped)/float64(sent+dropped)*100))
			}
		case <-us.stopStats:
			return
		}
	}
}

// Close unsubscribes from the bus and stops the stats loop. It is safe to
// call more than once.
func (us *UpdateSender) Close() {
	us.closeOnce.Do(func() {
		if us.sub != nil {
			us.sub.Unsubscribe()
		}
		close(us.stopStats)
	})
}
