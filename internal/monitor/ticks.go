// internal/monitor/ticks.go
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
)

type firing struct {
	campaign campaign.Campaign
	alert    alert.Alert
}

// OnPriceTick routes a tick to every active campaign on the instrument.
// Each campaign applies the tick and evaluates its alerts under its own
// lock; every fired alert is dispatched on its own goroutine.
//
// A tick older than a campaign's last update does not change its stats but
// alerts are still evaluated against the current state.
func (m *Monitor) OnPriceTick(ref campaign.InstrumentRef, price, priceUSD float64, ts time.Time) {
	m.mu.RLock()
	byID := m.byInstrument[ref.Key()]
	entries := make([]*entry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		m.applyTick(e, price, priceUSD, ts)
	}
}

func (m *Monitor) applyTick(e *entry, price, priceUSD float64, ts time.Time) {
	if m.ctx.Err() != nil {
		return
	}
	e.mu.Lock()
	if !e.c.Active() {
		e.mu.Unlock()
		return
	}
	stats, applied := e.c.ApplyTick(price, priceUSD, ts)
	fired := alert.Evaluate(e.alerts, stats, m.now())
	snap := e.c.Snapshot()
	firings := make([]firing, 0, len(fired))
	for _, a := range fired {
		hit := *a.Clone()
		// Saved under the campaign lock so a DeleteAlert that follows
		// cannot be overwritten by this upsert.
		m.persistAlert(hit)
		firings = append(firings, firing{campaign: snap, alert: hit})
	}
	e.mu.Unlock()

	m.metrics.RecordTick(applied)
	if applied {
		m.throttler.Send(events.CampaignUpdatedEvent{
			BaseEvent:  events.NewBase(events.CampaignUpdated, m.now()),
			CampaignID: snap.ID,
			Stats:      snap.Stats,
		})
	} else {
		m.logger.Debug("Tick rejected",
			zap.String("campaign_id", snap.ID),
			zap.Float64("price", price),
			zap.Time("tick_time", ts),
			zap.Time("last_updated", snap.LastUpdatedAt))
	}

	for _, f := range firings {
		m.fire(f)
	}
}

// fire runs the alert's actions detached from any caller context, journals
// the outcome and announces it. Firings after Shutdown are dropped.
func (m *Monitor) fire(f firing) {
	a, c := f.alert, f.campaign

	m.mu.RLock()
	if m.ctx.Err() != nil {
		m.mu.RUnlock()
		m.logger.Warn("Monitor closed, alert not dispatched",
			zap.String("campaign_id", c.ID),
			zap.String("alert_id", a.ID))
		return
	}
	m.dispatches.Add(1)
	m.mu.RUnlock()

	m.metrics.RecordAlertFired(string(a.PriceType), string(a.Direction))
	m.logger.Info("🔔 Alert fired",
		zap.String("campaign_id", c.ID),
		zap.String("alert_id", a.ID),
		zap.String("mint", c.Instrument.Mint),
		zap.Float64("price", c.CurrentPrice),
		zap.Float64("price_usd", c.CurrentPriceUSD),
		zap.Float64("target_price", a.TargetPrice))

	go func() {
		defer m.dispatches.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.dispatchTimeout)
		defer cancel()

		fc := dispatch.FireContext{
			CampaignID:    c.ID,
			AlertID:       a.ID,
			Label:         c.Label,
			Instrument:    c.Instrument,
			Price:         c.CurrentPrice,
			PriceUSD:      c.CurrentPriceUSD,
			ChangePercent: c.ChangePercent,
			Target:        a.TargetPrice,
			Direction:     a.Direction,
			PriceType:     a.PriceType,
			FiredAt:       a.HitAt,
		}
		outcomes := m.executor.Execute(ctx, fc, a.Actions)

		rec := journal.Record{
			ID:                  journal.RecordID(a.ID, a.HitAt),
			CampaignID:          c.ID,
			AlertID:             a.ID,
			PriceType:           a.PriceType,
			Direction:           a.Direction,
			TargetValue:         a.TargetValue,
			TargetPrice:         a.TargetPrice,
			TriggeredAtPrice:    c.CurrentPrice,
			TriggeredAtPriceUSD: c.CurrentPriceUSD,
			Timestamp:           a.HitAt,
			Outcomes:            outcomes,
		}
		m.journal.Append(rec)
		m.metrics.RecordJournalAppend()

		m.announce(events.AlertFiredEvent{
			BaseEvent:         events.NewBase(events.AlertFired, m.now()),
			AlertID:           a.ID,
			CampaignID:        c.ID,
			RecordID:          rec.ID,
			TriggeredPrice:    c.CurrentPrice,
			TriggeredPriceUSD: c.CurrentPriceUSD,
			Outcomes:          outcomes,
		})

		m.logger.Info("Alert dispatch finished",
			zap.String("alert_id", a.ID),
			zap.String("record_id", rec.ID),
			zap.Int("actions", len(outcomes)),
			zap.Int("failed", rec.Failed()))
	}()
}
