// internal/monitor/monitor.go
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/dispatch"
	"github.com/rovshanmuradov/solana-testlab/internal/events"
	"github.com/rovshanmuradov/solana-testlab/internal/feed"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
	"github.com/rovshanmuradov/solana-testlab/internal/storage"
	"github.com/rovshanmuradov/solana-testlab/internal/utils/metrics"
)

const (
	defaultDispatchTimeout = 60 * time.Second
	defaultUpdateInterval  = 150 * time.Millisecond
	storeTimeout           = 5 * time.Second
	announceTimeout        = 5 * time.Second
)

// Executor runs the action list of a fired alert.
type Executor interface {
	Execute(ctx context.Context, fc dispatch.FireContext, actions []alert.Action) []dispatch.Outcome
}

// Config wires the monitor. Feed, Executor and Journal are required.
type Config struct {
	Feed     feed.Feed
	Executor Executor
	// Orders is used to capture reference balances when sell actions are
	// attached to an alert.
	Orders  dispatch.OrderService
	Journal *journal.Journal
	Events  events.Publisher
	Store   storage.Store
	Metrics *metrics.Collector
	Logger  *zap.Logger

	DispatchTimeout time.Duration
	// UpdateInterval is the minimum gap between campaign.updated events for
	// one campaign. Zero uses the default; a negative value disables throttling.
	UpdateInterval time.Duration

	Clock func() time.Time
	NewID func() string
}

// StartRequest describes a campaign to start.
type StartRequest struct {
	Mint  string
	Pool  string
	Owner string
	Label string
}

type entry struct {
	mu     sync.Mutex
	c      *campaign.Campaign
	alerts []*alert.Alert
}

type subscription struct {
	ref  campaign.InstrumentRef
	refs int
}

// Monitor owns the campaigns, routes ticks to them and fires their alerts.
type Monitor struct {
	mu           sync.RWMutex
	campaigns    map[string]*entry
	alertOwner   map[string]string
	byInstrument map[string]map[string]*entry
	subs         map[string]*subscription

	feed     feed.Feed
	executor Executor
	orders   dispatch.OrderService
	journal  *journal.Journal
	events   events.Publisher
	store    storage.Store
	metrics  *metrics.Collector
	logger   *zap.Logger

	dispatchTimeout time.Duration
	throttler       *updateThrottler
	now             func() time.Time
	newID           func() string

	ctx        context.Context
	cancel     context.CancelFunc
	dispatches sync.WaitGroup
	loops      sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a monitor and starts its update flush loop.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	interval := cfg.UpdateInterval
	if interval == 0 {
		interval = defaultUpdateInterval
	}
	if interval < 0 {
		interval = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		campaigns:       make(map[string]*entry),
		alertOwner:      make(map[string]string),
		byInstrument:    make(map[string]map[string]*entry),
		subs:            make(map[string]*subscription),
		feed:            cfg.Feed,
		executor:        cfg.Executor,
		orders:          cfg.Orders,
		journal:         cfg.Journal,
		events:          cfg.Events,
		store:           cfg.Store,
		metrics:         cfg.Metrics,
		logger:          logger.Named("monitor"),
		dispatchTimeout: timeout,
		now:             now,
		newID:           newID,
		ctx:             ctx,
		cancel:          cancel,
	}
	m.throttler = newUpdateThrottler(interval, m.publish, now, m.logger)

	if interval > 0 {
		m.loops.Add(1)
		go m.runThrottlerFlush(interval)
	}
	return m
}

func (m *Monitor) runThrottlerFlush(interval time.Duration) {
	defer m.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			m.throttler.FlushPending()
			return
		case <-ticker.C:
			m.throttler.FlushPending()
		}
	}
}

// Campaign returns a snapshot of one campaign.
func (m *Monitor) Campaign(id string) (campaign.Campaign, error) {
	e, err := m.entry(id)
	if err != nil {
		return campaign.Campaign{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Snapshot(), nil
}

// Campaigns returns snapshots of every campaign, oldest first.
func (m *Monitor) Campaigns() []campaign.Campaign {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.campaigns))
	for _, e := range m.campaigns {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]campaign.Campaign, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.c.Snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Alerts returns copies of a campaign's alerts in creation order.
func (m *Monitor) Alerts(campaignID string) ([]alert.Alert, error) {
	e, err := m.entry(campaignID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]alert.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, *a.Clone())
	}
	return out, nil
}

// Alert returns a copy of one alert.
func (m *Monitor) Alert(alertID string) (alert.Alert, error) {
	e, err := m.alertEntry(alertID)
	if err != nil {
		return alert.Alert{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, a := findAlert(e, alertID)
	if a == nil {
		return alert.Alert{}, ErrAlertNotFound
	}
	return *a.Clone(), nil
}

// Journal returns up to limit trigger records, newest first. An empty
// campaignID returns records of every campaign.
func (m *Monitor) Journal(limit int, campaignID string) []journal.Record {
	return m.journal.List(limit, campaignID)
}

// Wait blocks until every in-flight dispatch has finished.
func (m *Monitor) Wait() {
	m.dispatches.Wait()
}

// Shutdown stops all feed subscriptions, waits for in-flight dispatches and
// persists the final campaign snapshots.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.logger.Info("Shutting down campaign monitor")

		m.mu.Lock()
		for key, sub := range m.subs {
			m.feed.Unsubscribe(sub.ref)
			delete(m.subs, key)
		}
		// Cancelled under the lock: fire checks ctx and registers its
		// dispatch under the read lock, so no Add can race the Wait below.
		m.cancel()
		m.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		m.loops.Wait()
		m.dispatches.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Monitor shutdown timeout, dispatches still running")
		return ctx.Err()
	}

	for _, c := range m.Campaigns() {
		m.persistCampaign(c)
	}
	m.logger.Info("Campaign monitor stopped")
	return nil
}

func (m *Monitor) entry(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return e, nil
}

func (m *Monitor) alertEntry(alertID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cid, ok := m.alertOwner[alertID]
	if !ok {
		return nil, ErrAlertNotFound
	}
	e, ok := m.campaigns[cid]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return e, nil
}

func findAlert(e *entry, alertID string) (int, *alert.Alert) {
	for i, a := range e.alerts {
		if a.ID == alertID {
			return i, a
		}
	}
	return -1, nil
}

// publish is used for campaign.updated only; it drops the event when the
// bus is saturated.
func (m *Monitor) publish(ev events.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ev); err != nil {
		m.logger.Debug("Campaign update dropped",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}

// announce publishes a lifecycle event, waiting for room on the bus.
func (m *Monitor) announce(ev events.Event) {
	if m.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()
	if err := m.events.PublishWait(ctx, ev); err != nil {
		m.logger.Error("Failed to publish event",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}

func (m *Monitor) activeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, byID := range m.byInstrument {
		n += len(byID)
	}
	return n
}

func (m *Monitor) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func (m *Monitor) persistCampaign(c campaign.Campaign) {
	if m.store == nil {
		return
	}
	ctx, cancel := m.storeCtx()
	defer cancel()
	if err := m.store.SaveCampaign(ctx, c); err != nil {
		m.logger.Error("Failed to persist campaign",
			zap.String("campaign_id", c.ID),
			zap.Error(err))
	}
}

func (m *Monitor) persistAlert(a alert.Alert) {
	if m.store == nil {
		return
	}
	ctx, cancel := m.storeCtx()
	defer cancel()
	if err := m.store.SaveAlert(ctx, a); err != nil {
		m.logger.Error("Failed to persist alert",
			zap.String("alert_id", a.ID),
			zap.Error(err))
	}
}
