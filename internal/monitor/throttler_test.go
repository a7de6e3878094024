package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

func update(id string, price float64) events.CampaignUpdatedEvent {
	return events.CampaignUpdatedEvent{
		BaseEvent:  events.NewBase(events.CampaignUpdated, base),
		CampaignID: id,
		Stats:      campaign.Stats{CurrentPrice: price},
	}
}

func TestThrottlerCoalescesUpdates(t *testing.T) {
	clock := &fakeClock{now: base}
	pub := &recordingPublisher{}
	th := newUpdateThrottler(100*time.Millisecond, func(ev events.Event) { _ = pub.Publish(ev) }, clock.Now, zaptest.NewLogger(t))

	th.Send(update("c1", 1.0))
	th.Send(update("c1", 1.1))
	th.Send(update("c1", 1.2))
	th.Send(update("c2", 5.0))

	require.Len(t, pub.events, 2)

	// nothing is due yet
	th.FlushPending()
	require.Len(t, pub.events, 2)

	clock.Advance(100 * time.Millisecond)
	th.FlushPending()
	require.Len(t, pub.events, 3)
	last := pub.events[2].(events.CampaignUpdatedEvent)
	assert.Equal(t, "c1", last.CampaignID)
	assert.Equal(t, 1.2, last.Stats.CurrentPrice)

	sent, coalesced := th.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Equal(t, uint64(1), coalesced)
}

func TestThrottlerForget(t *testing.T) {
	clock := &fakeClock{now: base}
	pub := &recordingPublisher{}
	th := newUpdateThrottler(time.Second, func(ev events.Event) { _ = pub.Publish(ev) }, clock.Now, zaptest.NewLogger(t))

	th.Send(update("c1", 1.0))
	th.Send(update("c1", 2.0))
	th.Forget("c1")

	clock.Advance(time.Second)
	th.FlushPending()
	assert.Len(t, pub.events, 1)

	// forgotten campaigns start fresh
	th.Send(update("c1", 3.0))
	assert.Len(t, pub.events, 2)
}

func TestThrottlerDisabled(t *testing.T) {
	pub := &recordingPublisher{}
	th := newUpdateThrottler(0, func(ev events.Event) { _ = pub.Publish(ev) }, time.Now, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		th.Send(update("c1", float64(i)))
	}
	assert.Len(t, pub.events, 5)
}
