// internal/monitor/rules.go
package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/storage"
)

// AddAlert attaches a one-shot alert to an active campaign. The target is
// resolved against the campaign's current baseline.
func (m *Monitor) AddAlert(ctx context.Context, campaignID string, rule alert.Rule) (alert.Alert, error) {
	if err := validateRule(rule); err != nil {
		return alert.Alert{}, err
	}
	e, err := m.entry(campaignID)
	if err != nil {
		return alert.Alert{}, err
	}

	e.mu.Lock()
	active := e.c.Active()
	ref := e.c.Instrument
	e.mu.Unlock()
	if !active {
		return alert.Alert{}, ErrCampaignNotActive
	}

	actions, err := m.captureBalances(ctx, ref, rule.Actions)
	if err != nil {
		return alert.Alert{}, err
	}

	e.mu.Lock()
	if !e.c.Active() {
		e.mu.Unlock()
		return alert.Alert{}, ErrCampaignNotActive
	}
	a := &alert.Alert{
		ID:          m.newID(),
		CampaignID:  campaignID,
		PriceType:   rule.PriceType,
		Direction:   rule.Direction,
		TargetValue: rule.Value,
		TargetPrice: alert.ResolveTarget(rule.PriceType, rule.Direction, rule.Value, e.c.BaselinePrice),
		Actions:     actions,
		CreatedAt:   m.now(),
	}
	e.alerts = append(e.alerts, a)
	snap := *a.Clone()
	e.mu.Unlock()

	m.mu.Lock()
	m.alertOwner[a.ID] = campaignID
	m.mu.Unlock()

	m.persistAlert(snap)
	m.announce(events.AlertEvent{BaseEvent: events.NewBase(events.AlertCreated, m.now()), Alert: snap})
	m.logger.Info("Alert added",
		zap.String("campaign_id", campaignID),
		zap.String("alert_id", snap.ID),
		zap.String("price_type", string(snap.PriceType)),
		zap.String("direction", string(snap.Direction)),
		zap.Float64("target_value", snap.TargetValue),
		zap.Float64("target_price", snap.TargetPrice),
		zap.Int("actions", len(snap.Actions)))
	return snap, nil
}

// EditAlertActions replaces the action list of an alert that has not fired.
func (m *Monitor) EditAlertActions(ctx context.Context, alertID string, actions []alert.Action) (alert.Alert, error) {
	e, err := m.alertEntry(alertID)
	if err != nil {
		return alert.Alert{}, err
	}

	e.mu.Lock()
	_, a := findAlert(e, alertID)
	if a == nil {
		e.mu.Unlock()
		return alert.Alert{}, ErrAlertNotFound
	}
	hit := a.Hit
	ref := e.c.Instrument
	e.mu.Unlock()

	if hit {
		return alert.Alert{}, ErrAlertAlreadyFired
	}
	if err := validateActions(actions); err != nil {
		return alert.Alert{}, err
	}
	captured, err := m.captureBalances(ctx, ref, actions)
	if err != nil {
		return alert.Alert{}, err
	}

	e.mu.Lock()
	_, a = findAlert(e, alertID)
	if a == nil {
		e.mu.Unlock()
		return alert.Alert{}, ErrAlertNotFound
	}
	if a.Hit {
		e.mu.Unlock()
		return alert.Alert{}, ErrAlertAlreadyFired
	}
	a.Actions = captured
	snap := *a.Clone()
	e.mu.Unlock()

	m.persistAlert(snap)
	m.announce(events.AlertEvent{BaseEvent: events.NewBase(events.AlertUpdated, m.now()), Alert: snap})
	m.logger.Info("Alert actions updated",
		zap.String("alert_id", alertID),
		zap.Int("actions", len(snap.Actions)))
	return snap, nil
}

// EditAlertTarget changes the threshold of an alert that has not fired. The
// new target is resolved against the current baseline.
func (m *Monitor) EditAlertTarget(alertID string, pt alert.PriceType, dir alert.Direction, value float64) (alert.Alert, error) {
	e, err := m.alertEntry(alertID)
	if err != nil {
		return alert.Alert{}, err
	}

	e.mu.Lock()
	_, a := findAlert(e, alertID)
	if a == nil {
		e.mu.Unlock()
		return alert.Alert{}, ErrAlertNotFound
	}
	if a.Hit {
		e.mu.Unlock()
		return alert.Alert{}, ErrAlertAlreadyFired
	}
	if err := alert.ValidateTarget(pt, dir, value); err != nil {
		e.mu.Unlock()
		return alert.Alert{}, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	a.PriceType = pt
	a.Direction = dir
	a.TargetValue = value
	a.TargetPrice = alert.ResolveTarget(pt, dir, value, e.c.BaselinePrice)
	snap := *a.Clone()
	e.mu.Unlock()

	m.persistAlert(snap)
	m.announce(events.AlertEvent{BaseEvent: events.NewBase(events.AlertUpdated, m.now()), Alert: snap})
	m.logger.Info("Alert target updated",
		zap.String("alert_id", alertID),
		zap.Float64("target_price", snap.TargetPrice))
	return snap, nil
}

// DeleteAlert removes an alert whether or not it has fired. Its trigger
// records stay in the journal.
func (m *Monitor) DeleteAlert(alertID string) error {
	e, err := m.alertEntry(alertID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	i, a := findAlert(e, alertID)
	if a == nil {
		e.mu.Unlock()
		return ErrAlertNotFound
	}
	e.alerts = append(e.alerts[:i], e.alerts[i+1:]...)
	snap := *a.Clone()
	e.mu.Unlock()

	m.mu.Lock()
	delete(m.alertOwner, alertID)
	m.mu.Unlock()

	if m.store != nil {
		ctx, cancel := m.storeCtx()
		if err := m.store.DeleteAlert(ctx, alertID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Error("Failed to delete alert from store",
				zap.String("alert_id", alertID),
				zap.Error(err))
		}
		cancel()
	}
	m.announce(events.AlertEvent{BaseEvent: events.NewBase(events.AlertDeleted, m.now()), Alert: snap})
	m.logger.Info("Alert deleted", zap.String("alert_id", alertID))
	return nil
}

// captureBalances fills ReferenceBalance of fixed-size sell actions from the
// order service. The input slice is not modified.
func (m *Monitor) captureBalances(ctx context.Context, ref campaign.InstrumentRef, actions []alert.Action) ([]alert.Action, error) {
	out := make([]alert.Action, len(actions))
	copy(out, actions)
	for i, a := range out {
		sell, ok := a.(alert.ExecuteSell)
		if !ok || sell.UseLiveBalance || sell.ReferenceBalance > 0 {
			continue
		}
		if m.orders == nil {
			return nil, fmt.Errorf("%w: action %d: no order service to capture the reference balance", ErrInvalidAlert, i)
		}
		balance, err := m.orders.Balance(ctx, sell.Wallet, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to capture reference balance for action %d: %w", i, err)
		}
		if balance <= 0 {
			return nil, fmt.Errorf("%w: action %d: wallet %s holds nothing to sell", ErrInvalidAlert, i, sell.Wallet)
		}
		sell.ReferenceBalance = balance
		out[i] = sell
	}
	return out, nil
}

func validateRule(rule alert.Rule) error {
	if err := alert.ValidateTarget(rule.PriceType, rule.Direction, rule.Value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	return validateActions(rule.Actions)
}

func validateActions(actions []alert.Action) error {
	if len(actions) == 0 {
		return ErrEmptyActionList
	}
	if err := alert.ValidateActions(actions); err != nil {
		if errors.Is(err, alert.ErrNoActions) {
			return ErrEmptyActionList
		}
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	return nil
}
