// internal/monitor/campaigns.go
package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/feed"
)

// StartCampaign quotes the instrument once to record the baseline, then
// subscribes to its ticks.
func (m *Monitor) StartCampaign(ctx context.Context, req StartRequest) (campaign.Campaign, error) {
	if m.ctx.Err() != nil {
		return campaign.Campaign{}, ErrMonitorClosed
	}
	ref, err := campaign.ParseInstrument(req.Mint, req.Pool)
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("%w: %v", ErrInvalidInstrument, err)
	}

	start := m.now()
	tick, err := m.feed.Quote(ctx, ref)
	m.metrics.RecordQuoteLatency("baseline", m.now().Sub(start))
	if err != nil {
		if errors.Is(err, feed.ErrUnknownInstrument) {
			return campaign.Campaign{}, fmt.Errorf("%w: %v", ErrInvalidInstrument, err)
		}
		return campaign.Campaign{}, fmt.Errorf("failed to quote baseline: %w", err)
	}
	if tick.Price <= 0 {
		return campaign.Campaign{}, fmt.Errorf("%w: no price for %s", ErrInvalidInstrument, ref)
	}

	c := campaign.New(m.newID(), ref, tick.Price, tick.PriceUSD, m.now())
	c.Owner = req.Owner
	c.Label = req.Label
	e := &entry{c: c}

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return campaign.Campaign{}, ErrMonitorClosed
	}
	if err := m.subscribeLocked(ref); err != nil {
		m.mu.Unlock()
		return campaign.Campaign{}, fmt.Errorf("failed to subscribe to price feed: %w", err)
	}
	m.campaigns[c.ID] = e
	m.indexLocked(e)
	m.mu.Unlock()

	snap := c.Snapshot()
	m.metrics.SetActiveCampaigns(m.activeCount())
	m.persistCampaign(snap)
	m.announce(events.CampaignEvent{
		BaseEvent: events.NewBase(events.CampaignStarted, m.now()),
		Campaign:  snap,
	})

	m.logger.Info("🚀 Campaign started",
		zap.String("campaign_id", snap.ID),
		zap.String("mint", ref.Mint),
		zap.String("pool", ref.Pool),
		zap.Float64("baseline", snap.BaselinePrice),
		zap.Float64("baseline_usd", snap.BaselinePriceUSD))

	return snap, nil
}

// StopCampaign moves a campaign to its terminal state. Dispatches already in
// flight are not interrupted. Stopping a stopped campaign is a no-op.
func (m *Monitor) StopCampaign(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if !e.c.Active() {
		e.mu.Unlock()
		return nil
	}
	e.c.Stop()
	snap := e.c.Snapshot()
	e.mu.Unlock()

	m.mu.Lock()
	m.unindexLocked(snap)
	m.mu.Unlock()

	m.throttler.Forget(id)
	m.metrics.SetActiveCampaigns(m.activeCount())
	m.persistCampaign(snap)
	m.announce(events.CampaignEvent{
		BaseEvent: events.NewBase(events.CampaignStopped, m.now()),
		Campaign:  snap,
		Reason:    "stopped",
	})

	m.logger.Info("🛑 Campaign stopped",
		zap.String("campaign_id", id),
		zap.Uint64("ticks", snap.Ticks))
	return nil
}

// ResetBaseline makes the current price the campaign's new baseline.
// Existing alerts keep their resolved targets.
func (m *Monitor) ResetBaseline(id string) (campaign.Campaign, error) {
	e, err := m.entry(id)
	if err != nil {
		return campaign.Campaign{}, err
	}

	e.mu.Lock()
	if !e.c.Active() {
		e.mu.Unlock()
		return campaign.Campaign{}, ErrCampaignNotActive
	}
	e.c.ResetBaseline()
	snap := e.c.Snapshot()
	e.mu.Unlock()

	m.persistCampaign(snap)
	m.announce(events.CampaignEvent{
		BaseEvent: events.NewBase(events.CampaignBaselineReset, m.now()),
		Campaign:  snap,
	})
	m.logger.Info("Campaign baseline reset",
		zap.String("campaign_id", id),
		zap.Float64("baseline", snap.BaselinePrice))
	return snap, nil
}

// DeleteCampaign stops the campaign and removes it with all its alerts.
// Trigger records are kept.
func (m *Monitor) DeleteCampaign(id string) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.c.Stop()
	snap := e.c.Snapshot()
	alertIDs := make([]string, 0, len(e.alerts))
	for _, a := range e.alerts {
		alertIDs = append(alertIDs, a.ID)
	}
	e.mu.Unlock()

	m.mu.Lock()
	m.unindexLocked(snap)
	delete(m.campaigns, id)
	for _, aid := range alertIDs {
		delete(m.alertOwner, aid)
	}
	m.mu.Unlock()

	m.throttler.Forget(id)
	m.metrics.SetActiveCampaigns(m.activeCount())
	if m.store != nil {
		ctx, cancel := m.storeCtx()
		if err := m.store.DeleteCampaign(ctx, id); err != nil {
			m.logger.Error("Failed to delete campaign from store",
				zap.String("campaign_id", id),
				zap.Error(err))
		}
		cancel()
	}
	m.announce(events.CampaignEvent{
		BaseEvent: events.NewBase(events.CampaignDeleted, m.now()),
		Campaign:  snap,
		Reason:    "deleted",
	})
	m.logger.Info("Campaign deleted",
		zap.String("campaign_id", id),
		zap.Int("alerts", len(alertIDs)))
	return nil
}

// Restore loads campaigns, alerts and recent trigger records from the store
// and resubscribes active campaigns. It is meant to run once, before the
// monitor is used.
func (m *Monitor) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	campaigns, err := m.store.LoadCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load campaigns: %w", err)
	}
	alerts, err := m.store.LoadAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load alerts: %w", err)
	}
	records, err := m.store.LoadRecords(ctx, m.journal.Capacity())
	if err != nil {
		return fmt.Errorf("failed to load trigger records: %w", err)
	}

	m.mu.Lock()
	for i := range campaigns {
		c := campaigns[i]
		e := &entry{c: &c}
		m.campaigns[c.ID] = e
		if !c.Active() {
			continue
		}
		if err := m.subscribeLocked(c.Instrument); err != nil {
			m.logger.Error("Failed to resubscribe restored campaign",
				zap.String("campaign_id", c.ID),
				zap.Error(err))
			continue
		}
		m.indexLocked(e)
	}
	for i := range alerts {
		a := alerts[i]
		e, ok := m.campaigns[a.CampaignID]
		if !ok {
			continue
		}
		e.alerts = append(e.alerts, &a)
		m.alertOwner[a.ID] = a.CampaignID
	}
	m.mu.Unlock()

	m.journal.Preload(records)
	m.metrics.SetActiveCampaigns(m.activeCount())
	m.logger.Info("Monitor state restored",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("alerts", len(alerts)),
		zap.Int("records", len(records)))
	return nil
}

func (m *Monitor) indexLocked(e *entry) {
	key := e.c.Instrument.Key()
	byID, ok := m.byInstrument[key]
	if !ok {
		byID = make(map[string]*entry)
		m.byInstrument[key] = byID
	}
	byID[e.c.ID] = e
}

func (m *Monitor) unindexLocked(c campaign.Campaign) {
	key := c.Instrument.Key()
	byID, ok := m.byInstrument[key]
	if !ok {
		return
	}
	if _, ok := byID[c.ID]; !ok {
		return
	}
	delete(byID, c.ID)
	if len(byID) == 0 {
		delete(m.byInstrument, key)
	}
	m.unsubscribeLocked(c.Instrument)
}

// subscribeLocked opens the feed subscription for an instrument on first use.
func (m *Monitor) subscribeLocked(ref campaign.InstrumentRef) error {
	key := ref.Key()
	if sub, ok := m.subs[key]; ok {
		sub.refs++
		return nil
	}
	ticks, err := m.feed.Subscribe(m.ctx, ref)
	if err != nil {
		return err
	}
	m.subs[key] = &subscription{ref: ref, refs: 1}

	m.loops.Add(1)
	go m.consume(ref, ticks)
	return nil
}

func (m *Monitor) unsubscribeLocked(ref campaign.InstrumentRef) {
	key := ref.Key()
	sub, ok := m.subs[key]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}
	delete(m.subs, key)
	m.feed.Unsubscribe(ref)
}

func (m *Monitor) consume(ref campaign.InstrumentRef, ticks <-chan feed.Tick) {
	defer m.loops.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			m.OnPriceTick(ref, t.Price, t.PriceUSD, t.Timestamp)
		}
	}
}
