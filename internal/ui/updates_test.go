package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

func TestUpdateSenderNonBlocking(t *testing.T) {
	sender := NewUpdateSender(nil, 10, zap.NewNop())
	defer sender.Close()

	// Fill the channel
	for i := 0; i < 10; i++ {
		sender.SendUpdate(refreshMsg(time.Now()))
	}

	// These should be dropped without blocking
	start := time.Now()
	for i := 0; i < 100; i++ {
		sender.SendUpdate(refreshMsg(time.Now()))
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("SendUpdate blocked for %v, expected non-blocking", elapsed)
	}

	sent, dropped := sender.GetStats()
	assert.Equal(t, uint64(10), sent)
	assert.Equal(t, uint64(100), dropped)
}

func TestUpdateSenderConcurrent(t *testing.T) {
	sender := NewUpdateSender(nil, 100, zap.NewNop())
	defer sender.Close()

	var wg sync.WaitGroup
	numGoroutines := 10
	messagesPerGoroutine := 100

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				sender.SendUpdate(actionResultMsg{Text: "test"})
			}
		}()
	}
	wg.Wait()

	sent, dropped := sender.GetStats()
	assert.Equal(t, uint64(numGoroutines*messagesPerGoroutine), sent+dropped)
	assert.Equal(t, uint64(100), sent)
}

func TestUpdateSenderForwardsBusEvents(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 16)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	}()

	sender := NewUpdateSender(bus, 4, zap.NewNop())
	defer sender.Close()

	ev := events.AlertFiredEvent{
		BaseEvent: events.NewBase(events.AlertFired, time.Now()),
		AlertID:   "a1",
	}
	require.NoError(t, bus.PublishSync(context.Background(), ev))

	msg := sender.Listen()()
	got, ok := msg.(EngineEventMsg)
	require.True(t, ok, "unexpected message %T", msg)
	assert.Equal(t, events.AlertFired, got.Event.Type())

	sender.Close()
	require.NoError(t, bus.PublishSync(context.Background(), ev))
	sent, _ := sender.GetStats()
	assert.Equal(t, uint64(1), sent)
}
