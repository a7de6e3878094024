// internal/monitor/throttler.go
package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

// updateThrottler coalesces campaign.updated events so observers see at most
// one update per campaign per interval. The latest stats always win.
type updateThrottler struct {
	mu       sync.Mutex
	interval time.Duration
	publish  func(events.Event)
	now      func() time.Time
	last     map[string]time.Time
	pending  map[string]events.CampaignUpdatedEvent
	logger   *zap.Logger

	sent      uint64
	coalesced uint64
}

func newUpdateThrottler(interval time.Duration, publish func(events.Event), now func() time.Time, logger *zap.Logger) *updateThrottler {
	return &updateThrottler{
		interval: interval,
		publish:  publish,
		now:      now,
		last:     make(map[string]time.Time),
		pending:  make(map[string]events.CampaignUpdatedEvent),
		logger:   logger,
	}
}

// Send publishes the update now or parks it until the interval elapses.
func (t *updateThrottler) Send(ev events.CampaignUpdatedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.interval > 0 && now.Sub(t.last[ev.CampaignID]) < t.interval {
		if _, parked := t.pending[ev.CampaignID]; parked {
			t.coalesced++
		}
		t.pending[ev.CampaignID] = ev
		return
	}
	delete(t.pending, ev.CampaignID)
	t.emit(ev, now)
}

// FlushPending publishes parked updates whose interval has elapsed.
func (t *updateThrottler) FlushPending() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, ev := range t.pending {
		if now.Sub(t.last[id]) < t.interval {
			continue
		}
		delete(t.pending, id)
		t.emit(ev, now)
	}
}

// Forget drops any state kept for a campaign.
func (t *updateThrottler) Forget(campaignID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, campaignID)
	delete(t.last, campaignID)
}

// Stats returns how many updates were published and how many were replaced
// by a newer one before publishing.
func (t *updateThrottler) Stats() (sent, coalesced uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent, t.coalesced
}

func (t *updateThrottler) emit(ev events.CampaignUpdatedEvent, now time.Time) {
	t.last[ev.CampaignID] = now
	t.sent++
	t.publish(ev)
	t.logger.Debug("Campaign update published",
		zap.String("campaign_id", ev.CampaignID),
		zap.Float64("price", ev.Stats.CurrentPrice),
		zap.Float64("change_percent", ev.Stats.ChangePercent))
}
